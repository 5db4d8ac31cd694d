package protocol

// Frame is a decoded inbound frame. The set of variants is closed:
// ControlsReport, GeneralSettingsReport, ControlSettingsReport, LoggingReport.
type Frame interface {
	Group() Group
	frame()
}

// Report is a frame that feeds a telemetry history.
type Report interface {
	Frame
	Fields() []Field
}

// Controls field names as the bench reports them.
const (
	FieldState        = "state"
	FieldYawAngle     = "yawAngle"
	FieldWarningLevel = "warninglevel"
	FieldYawStdDev    = "yawAngleStdDeviation"
	FieldErrorAxis1   = "errorAxis1"
	FieldErrorAxis2   = "errorAxis2"
)

// ControlsReport is the periodic controller status.
type ControlsReport struct {
	State        float64
	YawAngle     float64
	WarningLevel float64
	// HasWarningLevel is false when the bench omitted warninglevel.
	HasWarningLevel bool
	YawStdDev       float64
	ErrorAxis1      float64
	ErrorAxis2      float64
}

func (ControlsReport) Group() Group { return GroupControls }
func (ControlsReport) frame()       {}

func (r ControlsReport) Fields() []Field {
	return []Field{
		{FieldState, r.State},
		{FieldYawAngle, r.YawAngle},
		{FieldWarningLevel, r.WarningLevel},
		{FieldYawStdDev, r.YawStdDev},
		{FieldErrorAxis1, r.ErrorAxis1},
		{FieldErrorAxis2, r.ErrorAxis2},
	}
}

// GeneralSettingsReport echoes the calibration values the bench holds.
type GeneralSettingsReport struct {
	Settings GeneralSettings
}

func (GeneralSettingsReport) Group() Group      { return GroupGeneralSettings }
func (GeneralSettingsReport) frame()            {}
func (r GeneralSettingsReport) Fields() []Field { return r.Settings.Fields() }

// ControlSettingsReport echoes the filter chain the bench holds.
type ControlSettingsReport struct {
	Settings ControlSettings
}

func (ControlSettingsReport) Group() Group      { return GroupControlSettings }
func (ControlSettingsReport) frame()            {}
func (r ControlSettingsReport) Fields() []Field { return r.Settings.Fields() }

// LoggingReport carries a capture of interleaved (yaw angle, output voltage)
// samples. It is exported, not kept in history.
type LoggingReport struct {
	Values []float64
}

func (LoggingReport) Group() Group { return GroupLogging }
func (LoggingReport) frame()       {}

// FieldNames lists the history fields of a topic in report order.
func FieldNames(g Group) []string {
	var fs []Field
	switch g {
	case GroupControls:
		fs = ControlsReport{}.Fields()
	case GroupGeneralSettings:
		fs = GeneralSettings{}.Fields()
	case GroupControlSettings:
		fs = ControlSettings{}.Fields()
	default:
		return nil
	}
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.Name
	}
	return names
}
