// Package store is the client-side mirror of the bench: the telemetry
// history it reported and the records the operator intends to send.
package store

import (
	"errors"
	"fmt"
	"sync"

	"sapphire/internal/config"
	"sapphire/internal/protocol"
)

var (
	ErrNoData       = errors.New("no data received yet")
	ErrUnknownField = errors.New("unknown field")
)

// Sample is one history element and the logical index of the ingest that produced it.
type Sample struct {
	Index uint64
	Value float64
}

type topic struct {
	names  []string
	stamps *ring[uint64]
	series map[string]*ring[float64]
}

func newTopic(g protocol.Group, retention int) *topic {
	t := &topic{
		names:  protocol.FieldNames(g),
		stamps: newRing[uint64](retention),
		series: map[string]*ring[float64]{},
	}
	for _, n := range t.names {
		t.series[n] = newRing[float64](retention)
	}
	return t
}

// Store is safe for concurrent use. Histories are written by ingest;
// the intent is written by the control side.
type Store struct {
	mu      sync.RWMutex
	policy  config.CounterPolicy
	counter uint64
	times   *ring[uint64]
	topics  map[protocol.Group]*topic

	general *protocol.GeneralSettings
	control *protocol.ControlSettings

	intent protocol.Intent
}

func New(retention int, policy config.CounterPolicy) *Store {
	s := &Store{
		policy: policy,
		times:  newRing[uint64](retention),
		topics: map[protocol.Group]*topic{},
		intent: protocol.DefaultIntent(),
	}
	for _, g := range protocol.Topics {
		s.topics[g] = newTopic(g, retention)
	}
	return s
}

// Apply appends every field of a report to its topic in one step and returns
// the logical index assigned to it. Frames without history go through Skip.
func (s *Store) Apply(f protocol.Frame) (uint64, error) {
	r, ok := f.(protocol.Report)
	if !ok {
		return s.Skip(), nil
	}
	t, ok := s.topics[r.Group()]
	if !ok {
		return 0, fmt.Errorf("%w: %s has no history", ErrUnknownField, r.Group())
	}

	fields := r.Fields()

	s.mu.Lock()
	defer s.mu.Unlock()

	if cr, ok := r.(protocol.ControlsReport); ok && !cr.HasWarningLevel {
		// the bench omits warninglevel until it raises one; carry the last value
		wl, _ := t.series[protocol.FieldWarningLevel].last()
		for i := range fields {
			if fields[i].Name == protocol.FieldWarningLevel {
				fields[i].Value = wl
			}
		}
	}

	s.counter++
	s.times.push(s.counter)
	t.stamps.push(s.counter)
	for _, fld := range fields {
		t.series[fld.Name].push(fld.Value)
	}

	switch v := r.(type) {
	case protocol.GeneralSettingsReport:
		g := v.Settings
		s.general = &g
	case protocol.ControlSettingsReport:
		c := v.Settings
		s.control = &c
	}
	return s.counter, nil
}

// Skip accounts for a well-formed frame that feeds no history. Under
// CountAllFrames it still advances the counter; the returned index is the
// counter after the call.
func (s *Store) Skip() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.policy == config.CountAllFrames {
		s.counter++
		s.times.push(s.counter)
	}
	return s.counter
}

// Counter is the number of frames counted so far.
func (s *Store) Counter() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counter
}

// Times returns the retained logical time index, oldest first.
func (s *Store) Times() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint64, s.times.len())
	for i := range out {
		out[i] = s.times.at(i)
	}
	return out
}

func (s *Store) series(g protocol.Group, field string) (*topic, *ring[float64], error) {
	t, ok := s.topics[g]
	if !ok {
		return nil, nil, fmt.Errorf("%w: group %q", ErrUnknownField, g)
	}
	r, ok := t.series[field]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s/%s", ErrUnknownField, g, field)
	}
	return t, r, nil
}

// Current returns the most recent value of a field.
func (s *Store) Current(g protocol.Group, field string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, r, err := s.series(g, field)
	if err != nil {
		return 0, err
	}
	v, ok := r.last()
	if !ok {
		return 0, fmt.Errorf("%s/%s: %w", g, field, ErrNoData)
	}
	return v, nil
}

// Len is the number of retained samples of a field.
func (s *Store) Len(g protocol.Group, field string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, r, err := s.series(g, field)
	if err != nil {
		return 0
	}
	return r.len()
}

// Since returns the retained samples whose index is >= from.
func (s *Store) Since(g protocol.Group, field string, from uint64) ([]Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, r, err := s.series(g, field)
	if err != nil {
		return nil, err
	}
	var out []Sample
	for i := 0; i < r.len(); i++ {
		if idx := t.stamps.at(i); idx >= from {
			out = append(out, Sample{Index: idx, Value: r.at(i)})
		}
	}
	return out, nil
}

// Snapshot returns the latest value of every field of a topic, in report
// order. It is empty until the topic has been reported once.
func (s *Store) Snapshot(g protocol.Group) []protocol.Field {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topics[g]
	if !ok || t.stamps.len() == 0 {
		return nil
	}
	out := make([]protocol.Field, 0, len(t.names))
	for _, n := range t.names {
		v, _ := t.series[n].last()
		out = append(out, protocol.Field{Name: n, Value: v})
	}
	return out
}

// GeneralSettings is the last calibration echo from the bench.
func (s *Store) GeneralSettings() (protocol.GeneralSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.general == nil {
		return protocol.GeneralSettings{}, fmt.Errorf("%s: %w", protocol.GroupGeneralSettings, ErrNoData)
	}
	return *s.general, nil
}

// ControlSettings is the last filter-chain echo from the bench.
func (s *Store) ControlSettings() (protocol.ControlSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.control == nil {
		return protocol.ControlSettings{}, fmt.Errorf("%s: %w", protocol.GroupControlSettings, ErrNoData)
	}
	return *s.control, nil
}

// Intent returns a copy of the outbound records.
func (s *Store) Intent() protocol.Intent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.intent
}

// CommitIntent replaces the outbound records.
func (s *Store) CommitIntent(i protocol.Intent) {
	s.mu.Lock()
	s.intent = i
	s.mu.Unlock()
}
