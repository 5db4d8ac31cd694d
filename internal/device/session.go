// Package device ties the link, the mirror and the command builder into the
// API the console drives.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"sapphire/internal/codec"
	"sapphire/internal/command"
	"sapphire/internal/config"
	"sapphire/internal/export"
	"sapphire/internal/ingest"
	"sapphire/internal/protocol"
	"sapphire/internal/store"
	"sapphire/internal/transport"
)

// Link is the transport surface a session needs.
type Link interface {
	Open(ctx context.Context, name string, baud int) error
	Write(frame []byte) error
	Close() error
	Connected() bool
	Lines() <-chan []byte
}

type Session struct {
	cfg      config.Config
	link     Link
	store    *store.Store
	ingest   *ingest.Ingestor
	exporter *export.Exporter
	log      zerolog.Logger

	ingestOpts []ingest.Option

	sendMu sync.Mutex // one plan on the wire at a time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connectedAt atomic.Int64 // unix nanos of the last successful Connect
}

type Option func(*Session)

// WithRecorder journals every accepted frame.
func WithRecorder(r ingest.Recorder) Option {
	return func(s *Session) { s.ingestOpts = append(s.ingestOpts, ingest.WithRecorder(r)) }
}

// New builds a session around link. The caller keeps ownership of cfg's files.
func New(cfg config.Config, link Link, logger zerolog.Logger, opts ...Option) *Session {
	s := &Session{
		cfg:      cfg,
		link:     link,
		store:    store.New(cfg.Retention, cfg.Counter),
		exporter: export.New(cfg.OutputDir),
		log:      logger.With().Str("component", "session").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	iopts := append([]ingest.Option{ingest.WithLoggingSink(s.exporter)}, s.ingestOpts...)
	s.ingest = ingest.New(s.store, cfg.Queue, logger, iopts...)
	return s
}

// Connect opens the configured port and starts ingesting its telemetry.
func (s *Session) Connect(ctx context.Context) error {
	if s.cfg.OpenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.OpenTimeout)
		defer cancel()
	}
	if err := s.link.Open(ctx, s.cfg.Port, s.cfg.Baud); err != nil {
		return err
	}
	s.connectedAt.Store(time.Now().UnixNano())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		runCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ingest.Run(runCtx, s.link.Lines())
		}()
	}
	return nil
}

// Disconnect closes the port and stops ingesting. Lines already queued are
// left for the next connection's ingest.
func (s *Session) Disconnect() error {
	err := s.link.Close()

	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
	return err
}

func (s *Session) Connected() bool { return s.link.Connected() }

// Stale reports a held port that has delivered no telemetry for the
// configured interval, counted from the later of the connect and the last
// accepted frame. A bench silent since connecting goes stale too.
func (s *Session) Stale() bool {
	if s.cfg.StaleAfter <= 0 || !s.link.Connected() {
		return false
	}
	since := time.Unix(0, s.connectedAt.Load())
	if last := s.ingest.LastFrame(); last.After(since) {
		since = last
	}
	return time.Since(since) > s.cfg.StaleAfter
}

// Submit builds an action against the current intent and writes its frames
// back to back. The new intent is committed only if every frame went out.
func (s *Session) Submit(a command.Action) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	plan, err := command.Build(s.store.Intent(), a)
	if err != nil {
		return err
	}
	for i, m := range plan.Frames {
		b, err := codec.Encode(m)
		if err != nil {
			return err
		}
		if err := s.link.Write(b); err != nil {
			if i > 0 {
				s.log.Error().Err(err).Str("action", a.String()).Int("frame", i+1).Msg("action interrupted")
			}
			return fmt.Errorf("%s: %w", a, err)
		}
	}
	s.store.CommitIntent(plan.Next)
	s.log.Info().Str("action", a.String()).Int("frames", len(plan.Frames)).Msg("action sent")
	return nil
}

// Current is the latest reported value of a field.
func (s *Session) Current(g protocol.Group, field string) (float64, error) {
	return s.store.Current(g, field)
}

func (s *Session) Snapshot(g protocol.Group) []protocol.Field { return s.store.Snapshot(g) }

func (s *Session) Since(g protocol.Group, field string, from uint64) ([]store.Sample, error) {
	return s.store.Since(g, field, from)
}

// Events delivers telemetry updates for the console to drain.
func (s *Session) Events() <-chan ingest.Event { return s.ingest.Events() }

func (s *Session) Intent() protocol.Intent { return s.store.Intent() }

// ReadBack copies the settings the bench last echoed into the intent,
// without transmitting anything.
func (s *Session) ReadBack(g protocol.Group) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	in := s.store.Intent()
	switch g {
	case protocol.GroupGeneralSettings:
		gs, err := s.store.GeneralSettings()
		if err != nil {
			return err
		}
		gs.Write = protocol.Low
		in.GeneralSettings = gs
	case protocol.GroupControlSettings:
		cs, err := s.store.ControlSettings()
		if err != nil {
			return err
		}
		cs.Write = protocol.Low
		in.ControlSettings = cs
	default:
		return fmt.Errorf("%s cannot be read back", g)
	}
	s.store.CommitIntent(in)
	return nil
}

// Replay ingests a recorded capture as if the bench had sent it.
func (s *Session) Replay(ctx context.Context, r io.Reader) (int, error) {
	return s.ingest.Replay(ctx, r)
}

// SaveSettings dumps the four outbound records to timestamped JSON files.
func (s *Session) SaveSettings() ([]string, error) {
	paths, err := s.exporter.DumpIntent(s.store.Intent())
	if err != nil {
		return paths, err
	}
	s.log.Info().Strs("files", paths).Msg("settings saved")
	return paths, nil
}

// IsLinkError reports errors the operator fixes by (re)connecting.
func IsLinkError(err error) bool {
	return errors.Is(err, transport.ErrNotConnected) || errors.Is(err, transport.ErrPortUnavailable)
}
