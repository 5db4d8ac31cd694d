// Package ingest turns raw lines from the bench into store updates.
package ingest

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"sapphire/internal/codec"
	"sapphire/internal/export"
	"sapphire/internal/protocol"
	"sapphire/internal/store"
)

// Event reports one field updated by an ingest.
type Event struct {
	Group protocol.Group
	Field string
	Value float64
	Index uint64
}

// LoggingSink receives logging captures.
type LoggingSink interface {
	WriteLogging(samples []export.Sample) (string, error)
}

// Recorder journals every accepted frame.
type Recorder interface {
	Record(ctx context.Context, index uint64, group, payload string) error
}

type Ingestor struct {
	store  *store.Store
	sink   LoggingSink
	rec    Recorder
	log    zerolog.Logger
	events chan Event

	dropped   atomic.Uint64
	lastFrame atomic.Int64 // unix nanos
}

type Option func(*Ingestor)

func WithLoggingSink(s LoggingSink) Option { return func(in *Ingestor) { in.sink = s } }

func WithRecorder(r Recorder) Option { return func(in *Ingestor) { in.rec = r } }

func New(s *store.Store, queue int, logger zerolog.Logger, opts ...Option) *Ingestor {
	if queue <= 0 {
		queue = 1
	}
	in := &Ingestor{
		store:  s,
		log:    logger.With().Str("component", "ingest").Logger(),
		events: make(chan Event, queue),
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

// Events delivers field updates. When the reader falls behind, events are
// dropped rather than stalling ingest; the store always holds the truth.
func (in *Ingestor) Events() <-chan Event { return in.events }

// Dropped counts events lost to a full channel.
func (in *Ingestor) Dropped() uint64 { return in.dropped.Load() }

// LastFrame is when the last frame was accepted; zero before the first.
func (in *Ingestor) LastFrame() time.Time {
	n := in.lastFrame.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Run drains lines until ctx is done.
func (in *Ingestor) Run(ctx context.Context, lines <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-lines:
			_ = in.Handle(ctx, codec.Latin1(b))
		}
	}
}

// Replay feeds a recorded capture through Handle, for offline inspection.
// It returns the number of frames rejected.
func (in *Ingestor) Replay(ctx context.Context, r io.Reader) (int, error) {
	rejected := 0
	s := codec.NewScanner(r)
	for s.Next() {
		if ctx.Err() != nil {
			return rejected, ctx.Err()
		}
		if err := in.Handle(ctx, s.Line()); err != nil {
			rejected++
		}
	}
	return rejected, s.Err()
}

// Handle processes one line. Lines that are not frames are ignored; decode
// failures leave the store untouched and are returned after being logged.
func (in *Ingestor) Handle(ctx context.Context, line string) error {
	if !codec.IsFrame(line) {
		if line != "" {
			in.log.Debug().Str("line", line).Msg("ignoring non-frame line")
		}
		return nil
	}

	f, err := codec.Decode(line)
	switch {
	case errors.Is(err, codec.ErrUnknownGroup):
		in.store.Skip()
		in.log.Warn().Err(err).Msg("skipping frame")
		return err
	case err != nil:
		in.log.Warn().Err(err).Msg("dropping malformed frame")
		return err
	}

	idx, err := in.store.Apply(f)
	if err != nil {
		in.log.Error().Err(err).Str("group", string(f.Group())).Msg("apply failed")
		return err
	}
	in.lastFrame.Store(time.Now().UnixNano())

	if in.rec != nil {
		if err := in.rec.Record(ctx, idx, string(f.Group()), line); err != nil {
			in.log.Error().Err(err).Msg("journal write failed")
		}
	}

	switch v := f.(type) {
	case protocol.LoggingReport:
		in.export(v)
	case protocol.Report:
		// read back from the store: it fills fields the bench omitted
		for _, fld := range in.store.Snapshot(v.Group()) {
			in.emit(Event{Group: v.Group(), Field: fld.Name, Value: fld.Value, Index: idx})
		}
	}
	return nil
}

func (in *Ingestor) export(r protocol.LoggingReport) {
	if len(r.Values)%2 != 0 {
		in.log.Warn().Int("values", len(r.Values)).Msg("logging capture has an unpaired trailing value")
	}
	if in.sink == nil {
		in.log.Warn().Msg("logging capture received but no export sink configured")
		return
	}
	path, err := in.sink.WriteLogging(export.Pairs(r.Values))
	if err != nil {
		in.log.Error().Err(err).Msg("logging export failed")
		return
	}
	in.log.Info().Str("file", path).Int("samples", len(r.Values)/2).Msg("logging capture saved")
}

func (in *Ingestor) emit(e Event) {
	select {
	case in.events <- e:
	default:
		in.dropped.Add(1)
	}
}
