package protocol

import (
	"testing"

	"github.com/matryer/is"
)

func TestParseMode(t *testing.T) {
	is := is.New(t)

	for in, want := range map[string]Mode{
		"Standby":     Standby,
		"Open Loop":   OpenLoop,
		"closedloop":  ClosedLoop,
		"2":           ClosedLoop,
		" open loop ": OpenLoop,
	} {
		m, err := ParseMode(in)
		is.NoErr(err)
		is.Equal(m, want)
	}

	_, err := ParseMode("Turbo")
	is.True(err != nil)
	_, err = ParseMode("3")
	is.True(err != nil)
}

func TestModeNextWraps(t *testing.T) {
	is := is.New(t)

	is.Equal(Standby.Next(), OpenLoop)
	is.Equal(ClosedLoop.Next(), Standby)
	is.Equal(ClosedLoop.Unit(), "urad")
}

func TestControlSettingsSet(t *testing.T) {
	is := is.New(t)

	var c ControlSettings
	is.NoErr(c.Set("filter1Numerator[3]", 9))
	is.NoErr(c.Set("filter3Denominator", 2))
	is.NoErr(c.Set("hysteresisCompensation", 1))
	is.Equal(c.Filter1Numerator[3], 9.0)
	is.Equal(c.Filter3Denominator, 2.0)
	is.Equal(c.HysteresisCompensation, High)

	is.True(c.Set("filter2Numerator[2]", 1) != nil)
	is.True(c.Set("filter2Numerator", 1) != nil)
	is.True(c.Set("filter2Denominator[0]", 1) != nil)
	is.True(c.Set("gain", 1) != nil)
}

func TestFieldNamesMatchFields(t *testing.T) {
	is := is.New(t)

	is.Equal(len(FieldNames(GroupControls)), 6)
	is.Equal(len(FieldNames(GroupGeneralSettings)), 9)
	// 4+2+4+2+2+1+2+1+1+1+2+2+2
	is.Equal(len(FieldNames(GroupControlSettings)), 26)
	is.Equal(FieldNames(GroupControlSettings)[0], "prefilterNumerator[0]")
	is.Equal(FieldNames(GroupLogging), nil)
}

func TestGeneralSettingsSetAndFields(t *testing.T) {
	is := is.New(t)

	var g GeneralSettings
	for i, name := range FieldNames(GroupGeneralSettings) {
		is.NoErr(g.Set(name, float64(i%2)))
	}
	for i, f := range g.Fields() {
		is.Equal(f.Value, float64(i%2))
	}
	is.True(g.Set("Write general settings", 1) != nil)
}
