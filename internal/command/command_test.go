package command

import (
	"errors"
	"testing"

	"github.com/matryer/is"

	"sapphire/internal/protocol"
)

func TestPulsedActionsEmitTwoFrames(t *testing.T) {
	// pulse and pair read the flags of interest from each frame
	type flags func(protocol.Message) (pulse, pair protocol.Bit)

	ctl := func(p, q func(protocol.Controls) protocol.Bit) flags {
		return func(m protocol.Message) (protocol.Bit, protocol.Bit) {
			c := m.(protocol.Controls)
			return p(c), q(c)
		}
	}
	exp := func(p, q func(protocol.ExpertProcedures) protocol.Bit) flags {
		return func(m protocol.Message) (protocol.Bit, protocol.Bit) {
			e := m.(protocol.ExpertProcedures)
			return p(e), q(e)
		}
	}
	low := func(protocol.Controls) protocol.Bit { return protocol.Low }
	lowE := func(protocol.ExpertProcedures) protocol.Bit { return protocol.Low }

	// a stale intent with every pair flag raised must still come out clean
	dirty := protocol.DefaultIntent()
	dirty.Controls.StartMotion = protocol.High
	dirty.Controls.StopMotion = protocol.High
	dirty.ExpertProcedures.ProfileMotionStart = protocol.High
	dirty.ExpertProcedures.ProfileMotionStop = protocol.High
	dirty.ExpertProcedures.RampCyclesStart = protocol.High
	dirty.ExpertProcedures.RampCyclesStop = protocol.High

	cases := []struct {
		action Action
		read   flags
	}{
		{StartMotion{Setpoint: 5}, ctl(
			func(c protocol.Controls) protocol.Bit { return c.StartMotion },
			func(c protocol.Controls) protocol.Bit { return c.StopMotion })},
		{StopMotion{}, ctl(
			func(c protocol.Controls) protocol.Bit { return c.StopMotion },
			func(c protocol.Controls) protocol.Bit { return c.StartMotion })},
		{ResetControlProtection{}, ctl(
			func(c protocol.Controls) protocol.Bit { return c.ResetControlProtection }, low)},
		{ResetInterferometerProtection{}, ctl(
			func(c protocol.Controls) protocol.Bit { return c.ResetInterferometerProtection }, low)},
		{StartProfileMotion{WaveformID: 3}, exp(
			func(e protocol.ExpertProcedures) protocol.Bit { return e.ProfileMotionStart },
			func(e protocol.ExpertProcedures) protocol.Bit { return e.ProfileMotionStop })},
		{StopProfileMotion{}, exp(
			func(e protocol.ExpertProcedures) protocol.Bit { return e.ProfileMotionStop },
			func(e protocol.ExpertProcedures) protocol.Bit { return e.ProfileMotionStart })},
		{StartRampCycles{Cycles: 4, Rate: 0.5}, exp(
			func(e protocol.ExpertProcedures) protocol.Bit { return e.RampCyclesStart },
			func(e protocol.ExpertProcedures) protocol.Bit { return e.RampCyclesStop })},
		{StopRampCycles{}, exp(
			func(e protocol.ExpertProcedures) protocol.Bit { return e.RampCyclesStop },
			func(e protocol.ExpertProcedures) protocol.Bit { return e.RampCyclesStart })},
		{TriggerLogging{}, exp(
			func(e protocol.ExpertProcedures) protocol.Bit { return e.Logging }, lowE)},
	}

	for _, tc := range cases {
		t.Run(tc.action.String(), func(t *testing.T) {
			is := is.New(t)

			p, err := Build(dirty, tc.action)
			is.NoErr(err)
			is.Equal(len(p.Frames), 2)

			pulse, pair := tc.read(p.Frames[0])
			is.Equal(pulse, protocol.High)
			is.Equal(pair, protocol.Low)

			pulse, pair = tc.read(p.Frames[1])
			is.Equal(pulse, protocol.Low)
			is.Equal(pair, protocol.Low)

			is.Equal(p.Frames[0].Group(), p.Frames[1].Group())
		})
	}
}

func TestStartMotionMergesIntoPersistedRecord(t *testing.T) {
	is := is.New(t)

	cur := protocol.DefaultIntent()
	cur.Controls.Mode = protocol.ClosedLoop
	cur.GeneralSettings.MaxVoltage = 100

	p, err := Build(cur, StartMotion{Setpoint: 12.5, Reference: protocol.Relative})
	is.NoErr(err)

	first := p.Frames[0].(protocol.Controls)
	is.Equal(first.Setpoint, 12.5)
	is.Equal(first.Mode, protocol.ClosedLoop)
	is.Equal(first.Reference, protocol.Relative)

	is.Equal(p.Next.Controls, p.Frames[1].(protocol.Controls))
	is.Equal(p.Next.GeneralSettings.MaxVoltage, 100.0)
	// the caller's value is untouched
	is.Equal(cur.Controls.Setpoint, 0.0)
}

func TestSetModeIsSingleFrame(t *testing.T) {
	is := is.New(t)

	p, err := Build(protocol.DefaultIntent(), SetMode{Mode: protocol.OpenLoop})
	is.NoErr(err)
	is.Equal(len(p.Frames), 1)
	is.Equal(p.Frames[0].(protocol.Controls).Mode, protocol.OpenLoop)
	is.Equal(p.Next.Controls.Mode, protocol.OpenLoop)

	_, err = Build(protocol.DefaultIntent(), SetMode{Mode: protocol.Mode(7)})
	is.True(err != nil)
}

func TestSettingsWritesRaiseFlagOnlyOnTheWire(t *testing.T) {
	is := is.New(t)

	gs := protocol.GeneralSettings{YawOffset: 1, MaxPIDLimit: 9}
	p, err := Build(protocol.DefaultIntent(), WriteGeneralSettings{Settings: gs})
	is.NoErr(err)
	is.Equal(len(p.Frames), 1)
	is.Equal(p.Frames[0].(protocol.GeneralSettings).Write, protocol.High)
	is.Equal(p.Next.GeneralSettings, gs)

	var cs protocol.ControlSettings
	cs.Filter1Numerator = [4]float64{1, 2, 3, 4}
	cs.Write = protocol.High
	p, err = Build(protocol.DefaultIntent(), WriteControlSettings{Settings: cs})
	is.NoErr(err)
	is.Equal(len(p.Frames), 1)
	sent := p.Frames[0].(protocol.ControlSettings)
	is.Equal(sent.Write, protocol.High)
	is.Equal(sent.Filter1Numerator, cs.Filter1Numerator)
	is.Equal(p.Next.ControlSettings.Write, protocol.Low)
}

func TestLoggingRefusedInClosedLoop(t *testing.T) {
	is := is.New(t)

	cur := protocol.DefaultIntent()
	cur.Controls.Mode = protocol.ClosedLoop
	_, err := Build(cur, TriggerLogging{})
	is.True(errors.Is(err, ErrLoopClosed))
}

func TestRampCyclesCarriesParameters(t *testing.T) {
	is := is.New(t)

	p, err := Build(protocol.DefaultIntent(), StartRampCycles{Cycles: 10, Rate: 2.5})
	is.NoErr(err)
	for _, f := range p.Frames {
		e := f.(protocol.ExpertProcedures)
		is.Equal(e.NumberCycles, 10)
		is.Equal(e.RampRate, 2.5)
	}

	_, err = Build(protocol.DefaultIntent(), StartRampCycles{Cycles: -1})
	is.True(err != nil)
}

func TestNilAction(t *testing.T) {
	is := is.New(t)

	_, err := Build(protocol.DefaultIntent(), nil)
	is.True(err != nil)
}
