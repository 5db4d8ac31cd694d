// Package command turns operator actions into the frames the bench expects.
//
// Building is pure: Build takes the current intent and an action and returns
// the frames to transmit, in order, plus the intent to commit once they are
// all written. Every frame carries a complete record group.
package command

import (
	"errors"
	"fmt"

	"sapphire/internal/protocol"
)

// ErrLoopClosed refuses a logging capture while the controller runs closed loop.
var ErrLoopClosed = errors.New("open the loop before starting a logging capture")

// Plan is the result of building one action.
type Plan struct {
	Frames []protocol.Message
	Next   protocol.Intent
}

// Action is one operator intent. The set is closed to this package.
type Action interface {
	fmt.Stringer
	build(protocol.Intent) (Plan, error)
}

func Build(cur protocol.Intent, a Action) (Plan, error) {
	if a == nil {
		return Plan{}, errors.New("nil action")
	}
	return a.build(cur)
}

// pulse emits rec with the pulse raised, then with it lowered. set raises or
// lowers the pulse on a copy; the lowered record is what gets committed.
func pulse[R protocol.Message](rec R, set func(*R, protocol.Bit)) ([]protocol.Message, R) {
	hi, lo := rec, rec
	set(&hi, protocol.High)
	set(&lo, protocol.Low)
	return []protocol.Message{hi, lo}, lo
}

// -------------------------- Controls --------------------------

type StartMotion struct {
	Setpoint  float64
	Reference protocol.Reference
}

func (a StartMotion) String() string {
	return fmt.Sprintf("start motion to %g (%s)", a.Setpoint, a.Reference)
}

func (a StartMotion) build(cur protocol.Intent) (Plan, error) {
	c := cur.Controls
	c.Setpoint = a.Setpoint
	if a.Reference != "" {
		c.Reference = a.Reference
	}
	c.StopMotion = protocol.Low
	frames, next := pulse(c, func(r *protocol.Controls, b protocol.Bit) { r.StartMotion = b })
	cur.Controls = next
	return Plan{Frames: frames, Next: cur}, nil
}

type StopMotion struct {
	Setpoint  float64
	Reference protocol.Reference
}

func (a StopMotion) String() string { return "stop motion" }

func (a StopMotion) build(cur protocol.Intent) (Plan, error) {
	c := cur.Controls
	c.Setpoint = a.Setpoint
	if a.Reference != "" {
		c.Reference = a.Reference
	}
	c.StartMotion = protocol.Low
	frames, next := pulse(c, func(r *protocol.Controls, b protocol.Bit) { r.StopMotion = b })
	cur.Controls = next
	return Plan{Frames: frames, Next: cur}, nil
}

type ResetControlProtection struct{}

func (ResetControlProtection) String() string { return "reset control protection" }

func (ResetControlProtection) build(cur protocol.Intent) (Plan, error) {
	frames, next := pulse(cur.Controls, func(r *protocol.Controls, b protocol.Bit) { r.ResetControlProtection = b })
	cur.Controls = next
	return Plan{Frames: frames, Next: cur}, nil
}

type ResetInterferometerProtection struct{}

func (ResetInterferometerProtection) String() string { return "reset interferometer protection" }

func (ResetInterferometerProtection) build(cur protocol.Intent) (Plan, error) {
	frames, next := pulse(cur.Controls, func(r *protocol.Controls, b protocol.Bit) { r.ResetInterferometerProtection = b })
	cur.Controls = next
	return Plan{Frames: frames, Next: cur}, nil
}

// SetMode is persistent state, sent once.
type SetMode struct {
	Mode protocol.Mode
}

func (a SetMode) String() string { return "mode " + a.Mode.String() }

func (a SetMode) build(cur protocol.Intent) (Plan, error) {
	if !a.Mode.Valid() {
		return Plan{}, fmt.Errorf("invalid %s", a.Mode)
	}
	cur.Controls.Mode = a.Mode
	return Plan{Frames: []protocol.Message{cur.Controls}, Next: cur}, nil
}

// -------------------------- settings writes --------------------------

// WriteGeneralSettings sends the calibration with the write flag raised.
// The committed record keeps the flag low.
type WriteGeneralSettings struct {
	Settings protocol.GeneralSettings
}

func (WriteGeneralSettings) String() string { return "write general settings" }

func (a WriteGeneralSettings) build(cur protocol.Intent) (Plan, error) {
	g := a.Settings
	g.Write = protocol.High
	cur.GeneralSettings = a.Settings
	cur.GeneralSettings.Write = protocol.Low
	return Plan{Frames: []protocol.Message{g}, Next: cur}, nil
}

type WriteControlSettings struct {
	Settings protocol.ControlSettings
}

func (WriteControlSettings) String() string { return "write control settings" }

func (a WriteControlSettings) build(cur protocol.Intent) (Plan, error) {
	c := a.Settings
	c.Write = protocol.High
	cur.ControlSettings = a.Settings
	cur.ControlSettings.Write = protocol.Low
	return Plan{Frames: []protocol.Message{c}, Next: cur}, nil
}

// -------------------------- Expert procedures --------------------------

type StartProfileMotion struct {
	WaveformID int
}

func (a StartProfileMotion) String() string {
	return fmt.Sprintf("start profile motion (waveform %d)", a.WaveformID)
}

func (a StartProfileMotion) build(cur protocol.Intent) (Plan, error) {
	e := cur.ExpertProcedures
	e.WaveformID = a.WaveformID
	e.ProfileMotionStop = protocol.Low
	frames, next := pulse(e, func(r *protocol.ExpertProcedures, b protocol.Bit) { r.ProfileMotionStart = b })
	cur.ExpertProcedures = next
	return Plan{Frames: frames, Next: cur}, nil
}

type StopProfileMotion struct {
	WaveformID int
}

func (StopProfileMotion) String() string { return "stop profile motion" }

func (a StopProfileMotion) build(cur protocol.Intent) (Plan, error) {
	e := cur.ExpertProcedures
	e.WaveformID = a.WaveformID
	e.ProfileMotionStart = protocol.Low
	frames, next := pulse(e, func(r *protocol.ExpertProcedures, b protocol.Bit) { r.ProfileMotionStop = b })
	cur.ExpertProcedures = next
	return Plan{Frames: frames, Next: cur}, nil
}

type StartRampCycles struct {
	Cycles int
	Rate   float64
}

func (a StartRampCycles) String() string {
	return fmt.Sprintf("start %d ramp cycles at %g", a.Cycles, a.Rate)
}

func (a StartRampCycles) build(cur protocol.Intent) (Plan, error) {
	if a.Cycles < 0 {
		return Plan{}, fmt.Errorf("ramp cycles must not be negative, got %d", a.Cycles)
	}
	e := cur.ExpertProcedures
	e.NumberCycles = a.Cycles
	e.RampRate = a.Rate
	e.RampCyclesStop = protocol.Low
	frames, next := pulse(e, func(r *protocol.ExpertProcedures, b protocol.Bit) { r.RampCyclesStart = b })
	cur.ExpertProcedures = next
	return Plan{Frames: frames, Next: cur}, nil
}

type StopRampCycles struct {
	Cycles int
	Rate   float64
}

func (StopRampCycles) String() string { return "stop ramp cycles" }

func (a StopRampCycles) build(cur protocol.Intent) (Plan, error) {
	e := cur.ExpertProcedures
	e.NumberCycles = a.Cycles
	e.RampRate = a.Rate
	e.RampCyclesStart = protocol.Low
	frames, next := pulse(e, func(r *protocol.ExpertProcedures, b protocol.Bit) { r.RampCyclesStop = b })
	cur.ExpertProcedures = next
	return Plan{Frames: frames, Next: cur}, nil
}

// TriggerLogging asks the bench for a (yaw angle, voltage) capture.
type TriggerLogging struct{}

func (TriggerLogging) String() string { return "start logging capture" }

func (TriggerLogging) build(cur protocol.Intent) (Plan, error) {
	if cur.Controls.Mode == protocol.ClosedLoop {
		return Plan{}, ErrLoopClosed
	}
	frames, next := pulse(cur.ExpertProcedures, func(r *protocol.ExpertProcedures, b protocol.Bit) { r.Logging = b })
	cur.ExpertProcedures = next
	return Plan{Frames: frames, Next: cur}, nil
}
