// Package codec frames and parses the bench's newline-delimited JSON.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"sapphire/internal/protocol"
)

var (
	ErrDecode       = errors.New("malformed frame")
	ErrUnknownGroup = errors.New("unknown record group")
)

// DecodeError reports a frame that could not be turned into a record.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	line := e.Line
	if len(line) > 80 {
		line = line[:80] + "..."
	}
	return fmt.Sprintf("%s: %v (%q)", ErrDecode, e.Err, line)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Latin1 decodes raw serial bytes one byte per rune. Garbled bytes never fail.
func Latin1(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

// IsFrame reports whether a line looks like a JSON object frame.
func IsFrame(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}")
}

// Decode classifies one frame. Single quotes are accepted as string delimiters.
func Decode(line string) (protocol.Frame, error) {
	text := strings.ReplaceAll(strings.TrimSpace(line), "'", `"`)

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &top); err != nil {
		return nil, &DecodeError{Line: line, Err: err}
	}
	if len(top) != 1 {
		return nil, &DecodeError{Line: line, Err: fmt.Errorf("want one top-level key, got %d", len(top))}
	}

	var (
		key string
		raw json.RawMessage
	)
	for k, v := range top {
		key, raw = k, v
	}

	var (
		f   protocol.Frame
		err error
	)
	switch protocol.Group(key) {
	case protocol.GroupControls:
		f, err = decodeControls(raw)
	case protocol.GroupGeneralSettings:
		f, err = decodeGeneralSettings(raw)
	case protocol.GroupControlSettings:
		f, err = decodeControlSettings(raw)
	case protocol.GroupLogging:
		f, err = decodeLogging(raw)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownGroup, key)
	}
	if err != nil {
		return nil, &DecodeError{Line: line, Err: fmt.Errorf("%s: %w", key, err)}
	}
	return f, nil
}

// Encode serializes a record group as one compact frame ending in '\n'.
func Encode(m protocol.Message) ([]byte, error) {
	b, err := json.Marshal(map[protocol.Group]protocol.Message{m.Group(): m})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Group(), err)
	}
	return append(b, '\n'), nil
}

// ------------------------------ field readers ----------------------------------

type object map[string]json.RawMessage

func parseObject(raw json.RawMessage) (object, error) {
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, err
	}
	if o == nil {
		return nil, errors.New("payload is not an object")
	}
	return o, nil
}

// number reads a numeric field; booleans count as 0/1.
func (o object) number(key string) (float64, error) {
	raw, ok := o[key]
	if !ok {
		return 0, fmt.Errorf("missing %q", key)
	}
	return scalar(key, raw)
}

func (o object) bit(key string) (protocol.Bit, error) {
	v, err := o.number(key)
	return protocol.BitOf(v != 0), err
}

// numbers reads an array field holding at least n elements.
func (o object) numbers(key string, dst []float64) error {
	raw, ok := o[key]
	if !ok {
		return fmt.Errorf("missing %q", key)
	}
	var vs []json.RawMessage
	if err := json.Unmarshal(raw, &vs); err != nil {
		return fmt.Errorf("%q: want array: %w", key, err)
	}
	if len(vs) < len(dst) {
		return fmt.Errorf("%q: want %d elements, got %d", key, len(dst), len(vs))
	}
	for i := range dst {
		v, err := scalar(fmt.Sprintf("%s[%d]", key, i), vs[i])
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

func scalar(key string, raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%q: want number, got %s", key, raw)
	}
	return v, nil
}

// ------------------------------ group decoders ---------------------------------

func decodeControls(raw json.RawMessage) (protocol.Frame, error) {
	o, err := parseObject(raw)
	if err != nil {
		return nil, err
	}
	var r protocol.ControlsReport
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{protocol.FieldState, &r.State},
		{protocol.FieldYawAngle, &r.YawAngle},
		{protocol.FieldYawStdDev, &r.YawStdDev},
		{protocol.FieldErrorAxis1, &r.ErrorAxis1},
		{protocol.FieldErrorAxis2, &r.ErrorAxis2},
	} {
		if *f.dst, err = o.number(f.key); err != nil {
			return nil, err
		}
	}
	if _, ok := o[protocol.FieldWarningLevel]; ok {
		if r.WarningLevel, err = o.number(protocol.FieldWarningLevel); err != nil {
			return nil, err
		}
		r.HasWarningLevel = true
	}
	return r, nil
}

func decodeGeneralSettings(raw json.RawMessage) (protocol.Frame, error) {
	o, err := parseObject(raw)
	if err != nil {
		return nil, err
	}
	var s protocol.GeneralSettings
	for _, f := range s.Fields() {
		v, err := o.number(f.Name)
		if err != nil {
			return nil, err
		}
		if err := s.Set(f.Name, v); err != nil {
			return nil, err
		}
	}
	return protocol.GeneralSettingsReport{Settings: s}, nil
}

func decodeControlSettings(raw json.RawMessage) (protocol.Frame, error) {
	o, err := parseObject(raw)
	if err != nil {
		return nil, err
	}
	var s protocol.ControlSettings
	arrays := []struct {
		key string
		dst []float64
	}{
		{"prefilterNumerator", s.PrefilterNumerator[:]},
		{"prefilterDenominator", s.PrefilterDenominator[:]},
		{"filter1Numerator", s.Filter1Numerator[:]},
		{"filter1Denominator", s.Filter1Denominator[:]},
		{"filter2Numerator", s.Filter2Numerator[:]},
		{"filter3Numerator", s.Filter3Numerator[:]},
		{"quadraticParameters", s.QuadraticParameters[:]},
		{"fParameters", s.FParameters[:]},
		{"kParameters", s.KParameters[:]},
	}
	for _, a := range arrays {
		if err := o.numbers(a.key, a.dst); err != nil {
			return nil, err
		}
	}
	if s.Filter2Denominator, err = o.number("filter2Denominator"); err != nil {
		return nil, err
	}
	if s.Filter3Denominator, err = o.number("filter3Denominator"); err != nil {
		return nil, err
	}
	if s.HysteresisCompensation, err = o.bit("hysteresisCompensation"); err != nil {
		return nil, err
	}
	if s.CompensationOffset, err = o.number("compensationOffset"); err != nil {
		return nil, err
	}
	return protocol.ControlSettingsReport{Settings: s}, nil
}

func decodeLogging(raw json.RawMessage) (protocol.Frame, error) {
	var vs []json.RawMessage
	if err := json.Unmarshal(raw, &vs); err != nil {
		return nil, fmt.Errorf("want numeric array: %w", err)
	}
	out := make([]float64, len(vs))
	for i, v := range vs {
		f, err := scalar(fmt.Sprintf("[%d]", i), v)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return protocol.LoggingReport{Values: out}, nil
}
