// Package protocol describes the records exchanged with the Sapphire bench.
//
// Every frame on the wire is a JSON object with a single top-level key naming
// its record group:
//
//	{"Controls": {"StartM": 1, "StopM": 0, "SP (V/urad)": 12.5, ...}}
//
// Outbound frames always carry the complete record of their group.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Group names a record group; the value is the top-level key on the wire.
type Group string

const (
	GroupControls         Group = "Controls"
	GroupGeneralSettings  Group = "General settings"
	GroupControlSettings  Group = "Control settings"
	GroupExpertProcedures Group = "Expert procedures"
	GroupLogging          Group = "Logging"
)

// Topics are the groups the bench reports telemetry history for.
var Topics = []Group{GroupControls, GroupGeneralSettings, GroupControlSettings}

// -------------------------- enums --------------------------

// Bit is a 0/1 protocol flag. Pulsed fields go 1 then 0 over two frames.
type Bit int

const (
	Low  Bit = 0
	High Bit = 1
)

func BitOf(b bool) Bit {
	if b {
		return High
	}
	return Low
}

func (b Bit) Bool() bool { return b != Low }

// Mode is the controller operating mode.
type Mode int

const (
	Standby    Mode = 0
	OpenLoop   Mode = 1
	ClosedLoop Mode = 2
)

var modeLabels = map[Mode]string{
	Standby:    "Standby",
	OpenLoop:   "Open Loop",
	ClosedLoop: "Closed Loop",
}

func (m Mode) String() string {
	if s, ok := modeLabels[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) Valid() bool {
	_, ok := modeLabels[m]
	return ok
}

// Unit of the setpoint in this mode.
func (m Mode) Unit() string {
	switch m {
	case OpenLoop:
		return "V"
	case ClosedLoop:
		return "urad"
	}
	return ""
}

// Next cycles Standby -> Open Loop -> Closed Loop -> Standby.
func (m Mode) Next() Mode { return (m + 1) % 3 }

// ParseMode accepts the operator labels ("Open Loop") and the integer codes.
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	for m, label := range modeLabels {
		if strings.EqualFold(s, label) || strings.EqualFold(s, strings.ReplaceAll(label, " ", "")) {
			return m, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		if _, ok := modeLabels[Mode(n)]; ok {
			return Mode(n), nil
		}
	}
	return Standby, fmt.Errorf("unknown mode %q", s)
}

// Reference is the motion-reference sub-mode for setpoints.
type Reference string

const (
	Absolute Reference = "Absolute"
	Relative Reference = "Relative"
)

func ParseReference(s string) (Reference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "absolute", "abs", "a":
		return Absolute, nil
	case "relative", "rel", "r":
		return Relative, nil
	}
	return Absolute, fmt.Errorf("unknown motion reference %q", s)
}

// -------------------------- outbound records --------------------------

// Message is an outbound record group.
type Message interface {
	Group() Group
}

type Controls struct {
	StartMotion                   Bit       `json:"StartM"`
	StopMotion                    Bit       `json:"StopM"`
	Setpoint                      float64   `json:"SP (V/urad)"`
	Mode                          Mode      `json:"Mode"`
	// Reference has its own key; bench firmware must read it here, not from Mode.
	Reference                     Reference `json:"Reference"`
	ResetControlProtection        Bit       `json:"Re contr prot"`
	ResetInterferometerProtection Bit       `json:"Re intf prot"`
}

func (Controls) Group() Group { return GroupControls }

type GeneralSettings struct {
	Write                        Bit     `json:"Write general settings"`
	YawOffset                    float64 `json:"yawOffset"`
	AAROffset                    float64 `json:"AAROffset"`
	ControlInstabilityProtection Bit     `json:"controlInstabilityProtection"`
	MinVoltage                   float64 `json:"minVoltage"`
	MaxVoltage                   float64 `json:"maxVoltage"`
	OpenLoopMaxSpeed             float64 `json:"openLoopMaxSpeed"`
	ClosedLoopMaxSpeed           float64 `json:"closedLoopMaxSpeed"`
	MinPIDLimit                  float64 `json:"minPIDLimit"`
	MaxPIDLimit                  float64 `json:"maxPIDLimit"`
}

func (GeneralSettings) Group() Group { return GroupGeneralSettings }

type ControlSettings struct {
	Write                  Bit        `json:"Write control settings"`
	PrefilterNumerator     [4]float64 `json:"prefilterNumerator"`
	PrefilterDenominator   [2]float64 `json:"prefilterDenominator"`
	Filter1Numerator       [4]float64 `json:"filter1Numerator"`
	Filter1Denominator     [2]float64 `json:"filter1Denominator"`
	Filter2Numerator       [2]float64 `json:"filter2Numerator"`
	Filter2Denominator     float64    `json:"filter2Denominator"`
	Filter3Numerator       [2]float64 `json:"filter3Numerator"`
	Filter3Denominator     float64    `json:"filter3Denominator"`
	HysteresisCompensation Bit        `json:"hysteresisCompensation"`
	CompensationOffset     float64    `json:"compensationOffset"`
	QuadraticParameters    [2]float64 `json:"quadraticParameters"`
	FParameters            [2]float64 `json:"fParameters"`
	KParameters            [2]float64 `json:"kParameters"`
}

func (ControlSettings) Group() Group { return GroupControlSettings }

type ExpertProcedures struct {
	ProfileMotionStart Bit     `json:"Profile motion Start"`
	ProfileMotionStop  Bit     `json:"Profile motion Stop"`
	WaveformID         int     `json:"waveformID"`
	RampCyclesStart    Bit     `json:"Ramp cycles motion Start"`
	RampCyclesStop     Bit     `json:"Ramp cycles motion Stop"`
	NumberCycles       int     `json:"numberCycles"`
	RampRate           float64 `json:"rampRate"`
	Logging            Bit     `json:"Logging"`
}

func (ExpertProcedures) Group() Group { return GroupExpertProcedures }

// Intent is the operator's complete outbound state, one record per group.
// It is a plain value; copies share nothing.
type Intent struct {
	Controls         Controls
	GeneralSettings  GeneralSettings
	ControlSettings  ControlSettings
	ExpertProcedures ExpertProcedures
}

// DefaultIntent matches the bench's power-on expectations.
func DefaultIntent() Intent {
	return Intent{Controls: Controls{Mode: Standby, Reference: Absolute}}
}

// Messages returns the four records in tab order.
func (i Intent) Messages() []Message {
	return []Message{i.Controls, i.GeneralSettings, i.ControlSettings, i.ExpertProcedures}
}
