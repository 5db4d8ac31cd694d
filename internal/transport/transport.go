// Package transport owns the serial link to the bench.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	tarm "github.com/tarm/serial"
	bugst "go.bug.st/serial"
)

var (
	ErrPortUnavailable = errors.New("serial port unavailable")
	ErrNotConnected    = errors.New("serial port is not open")
	ErrAlreadyOpen     = errors.New("serial port already open")
)

// maxPending bounds a line that never sees its terminator.
const maxPending = 1 << 20

// Port is what the transport needs from a serial device.
type Port interface {
	io.ReadWriteCloser
}

// Opener acquires a port. readTimeout bounds each Read so the loop can poll.
type Opener func(name string, baud int, readTimeout time.Duration) (Port, error)

// SerialOpener opens a real device with tarm/serial.
func SerialOpener(name string, baud int, readTimeout time.Duration) (Port, error) {
	p, err := tarm.OpenPort(&tarm.Config{Name: name, Baud: baud, ReadTimeout: readTimeout})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPorts enumerates the serial devices on this machine.
func ListPorts() ([]string, error) {
	return bugst.GetPortsList()
}

// Transport reads lines from the port on its own goroutine and writes frames
// from the caller's. Completed lines are delivered on Lines.
type Transport struct {
	open        Opener
	readTimeout time.Duration
	log         zerolog.Logger
	lines       chan []byte

	mu     sync.Mutex // guards port, cancel, done and serializes writes
	port   Port
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

func New(open Opener, readTimeout time.Duration, queue int, logger zerolog.Logger) *Transport {
	if queue <= 0 {
		queue = 1
	}
	return &Transport{
		open:        open,
		readTimeout: readTimeout,
		log:         logger.With().Str("component", "transport").Logger(),
		lines:       make(chan []byte, queue),
	}
}

// Lines delivers one complete line per element, terminator stripped. The
// channel is never closed; it outlives individual connections.
func (t *Transport) Lines() <-chan []byte { return t.lines }

// Open acquires name at baud and starts the read loop. ctx bounds the open
// itself; the loop runs until Close or a read error.
func (t *Transport) Open(ctx context.Context, name string, baud int) error {
	t.mu.Lock()
	if t.port != nil {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyOpen, t.name)
	}
	t.mu.Unlock()

	type result struct {
		p   Port
		err error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := t.open(name, baud, t.readTimeout)
		ch <- result{p, err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		// release the port if the open completes after we gave up
		go func() {
			if late := <-ch; late.err == nil {
				_ = late.p.Close()
			}
		}()
		return fmt.Errorf("%w: %s: %v", ErrPortUnavailable, name, ctx.Err())
	}
	if r.err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPortUnavailable, name, r.err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		_ = r.p.Close()
		return fmt.Errorf("%w: %s", ErrAlreadyOpen, t.name)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	t.port, t.name, t.cancel, t.done = r.p, name, cancel, make(chan struct{})
	go t.readLoop(loopCtx, r.p, t.done)

	t.log.Info().Str("port", name).Int("baud", baud).Msg("serial connection open")
	return nil
}

// Connected reports whether a port is held.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Write sends one frame. Concurrent writes are serialized, so a frame is
// always fully written before the next one starts.
func (t *Transport) Write(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return ErrNotConnected
	}
	for len(frame) > 0 {
		n, err := t.port.Write(frame)
		if err != nil {
			return fmt.Errorf("write %s: %w", t.name, err)
		}
		frame = frame[n:]
	}
	t.log.Debug().Str("port", t.name).Msg("frame written")
	return nil
}

// Close stops the read loop and releases the port. It is safe to call any
// number of times, including after the loop ended on a read error.
func (t *Transport) Close() error {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done == nil {
		return nil
	}
	err := t.release(done)
	<-done
	return err
}

// release stops the loop that owns done and closes its port. Closing the
// port also unblocks a Read in flight.
func (t *Transport) release(done chan struct{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != done || t.port == nil {
		return nil
	}
	p, name := t.port, t.name
	t.cancel()
	t.port, t.cancel, t.done = nil, nil, nil
	err := p.Close()
	t.log.Info().Str("port", name).Msg("serial connection closed")
	if err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return nil
}

func (t *Transport) readLoop(ctx context.Context, p Port, done chan struct{}) {
	var pending []byte
	buf := make([]byte, 4096)

	defer func() {
		if ctx.Err() == nil {
			// ended on its own: nobody will call Close for this connection
			if err := t.release(done); err != nil {
				t.log.Error().Err(err).Msg("release after read failure")
			}
		}
		close(done)
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := p.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := bytes.TrimRight(pending[:i], "\r")
				out := make([]byte, len(line))
				copy(out, line)
				pending = pending[i+1:]

				select {
				case t.lines <- out:
				case <-ctx.Done():
					return
				}
			}
			if len(pending) > maxPending {
				t.log.Warn().Int("bytes", len(pending)).Msg("dropping unterminated input")
				pending = pending[:0]
			}
		}

		switch {
		case err == nil || errors.Is(err, io.EOF):
			if n == 0 {
				// read timeout with nothing available
				time.Sleep(time.Millisecond)
			}
		default:
			if ctx.Err() == nil {
				t.log.Error().Err(err).Msg("serial read failed")
			}
			return
		}
	}
}
