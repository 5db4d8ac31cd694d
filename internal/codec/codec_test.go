package codec

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/matryer/is"

	"sapphire/internal/protocol"
)

const controlsLine = `{"Controls": {"state": 3, "yawAngle": 12.5, "warninglevel": 1, "yawAngleStdDeviation": 0.2, "errorAxis1": 0, "errorAxis2": 4}}`

const controlSettingsLine = `{"Control settings": {"prefilterNumerator": [1, 2, 3, 4], "prefilterDenominator": [5, 6],
"filter1Numerator": [7, 8, 9, 10], "filter1Denominator": [11, 12], "filter2Numerator": [13, 14], "filter2Denominator": 15,
"filter3Numerator": [16, 17], "filter3Denominator": 18, "hysteresisCompensation": true, "compensationOffset": 19,
"quadraticParameters": [20, 21], "fParameters": [22, 23], "kParameters": [24, 25]}}`

func TestIsFrame(t *testing.T) {
	is := is.New(t)

	is.True(IsFrame(`  {"Controls": {}}  `))
	is.True(!IsFrame(`boot: ok`))
	is.True(!IsFrame(`{"Controls": {}`))
	is.True(!IsFrame(``))
}

func TestDecodeControls(t *testing.T) {
	is := is.New(t)

	f, err := Decode(controlsLine)
	is.NoErr(err)

	r, ok := f.(protocol.ControlsReport)
	is.True(ok)
	is.Equal(r.State, 3.0)
	is.Equal(r.YawAngle, 12.5)
	is.True(r.HasWarningLevel)
	is.Equal(r.WarningLevel, 1.0)
	is.Equal(r.ErrorAxis2, 4.0)
}

func TestDecodeControlsWithoutWarningLevel(t *testing.T) {
	is := is.New(t)

	f, err := Decode(`{"Controls": {"state": 1, "yawAngle": 2, "yawAngleStdDeviation": 0, "errorAxis1": 0, "errorAxis2": 0}}`)
	is.NoErr(err)
	is.True(!f.(protocol.ControlsReport).HasWarningLevel)
}

func TestDecodeAcceptsSingleQuotes(t *testing.T) {
	is := is.New(t)

	f, err := Decode(strings.ReplaceAll(controlsLine, `"`, `'`))
	is.NoErr(err)
	is.Equal(f.Group(), protocol.GroupControls)
}

func TestDecodeControlSettingsUnpacksArrays(t *testing.T) {
	is := is.New(t)

	f, err := Decode(strings.ReplaceAll(controlSettingsLine, "\n", " "))
	is.NoErr(err)

	s := f.(protocol.ControlSettingsReport).Settings
	is.Equal(s.PrefilterNumerator, [4]float64{1, 2, 3, 4})
	is.Equal(s.Filter2Denominator, 15.0)
	is.Equal(s.HysteresisCompensation, protocol.High)
	is.Equal(s.KParameters, [2]float64{24, 25})
}

func TestDecodeRejectsShortArray(t *testing.T) {
	is := is.New(t)

	line := strings.Replace(strings.ReplaceAll(controlSettingsLine, "\n", " "), `[1, 2, 3, 4]`, `[1, 2, 3]`, 1)
	_, err := Decode(line)
	is.True(errors.Is(err, ErrDecode))
}

func TestDecodeMalformed(t *testing.T) {
	is := is.New(t)

	_, err := Decode(`{"Controls": }`)
	is.True(errors.Is(err, ErrDecode))

	var de *DecodeError
	is.True(errors.As(err, &de))
	is.Equal(de.Line, `{"Controls": }`)
}

func TestDecodeMissingFieldIsDecodeError(t *testing.T) {
	is := is.New(t)

	_, err := Decode(`{"Controls": {"state": 1}}`)
	is.True(errors.Is(err, ErrDecode))
}

func TestDecodeUnknownGroup(t *testing.T) {
	is := is.New(t)

	_, err := Decode(`{"Diagnostics": {"uptime": 5}}`)
	is.True(errors.Is(err, ErrUnknownGroup))
	is.True(!errors.Is(err, ErrDecode))
}

func TestDecodeRequiresSingleKey(t *testing.T) {
	is := is.New(t)

	_, err := Decode(`{"Logging": [1, 2], "Controls": {}}`)
	is.True(errors.Is(err, ErrDecode))
}

func TestDecodeLogging(t *testing.T) {
	is := is.New(t)

	f, err := Decode(`{"Logging": [10, 1.5, 20, 2.5]}`)
	is.NoErr(err)
	is.Equal(f.(protocol.LoggingReport).Values, []float64{10, 1.5, 20, 2.5})
}

func TestGeneralSettingsRoundTrip(t *testing.T) {
	is := is.New(t)

	want := protocol.GeneralSettings{
		Write:                        protocol.High,
		YawOffset:                    -1.25,
		AAROffset:                    3,
		ControlInstabilityProtection: protocol.High,
		MinVoltage:                   -10,
		MaxVoltage:                   150,
		OpenLoopMaxSpeed:             0.5,
		ClosedLoopMaxSpeed:           0.75,
		MinPIDLimit:                  -2,
		MaxPIDLimit:                  2,
	}

	b, err := Encode(want)
	is.NoErr(err)
	is.True(strings.HasSuffix(string(b), "\n"))
	is.True(!strings.Contains(strings.TrimSuffix(string(b), "\n"), "\n"))

	f, err := Decode(string(b))
	is.NoErr(err)

	got := f.(protocol.GeneralSettingsReport).Settings
	want.Write = protocol.Low
	is.Equal(got, want)
}

func TestEncodeCarriesWholeRecord(t *testing.T) {
	is := is.New(t)

	b, err := Encode(protocol.ExpertProcedures{WaveformID: 7})
	is.NoErr(err)

	var top map[string]map[string]json.Number
	is.NoErr(json.Unmarshal(b, &top))
	rec, ok := top["Expert procedures"]
	is.True(ok)
	is.Equal(len(rec), 8)
	is.Equal(rec["waveformID"], json.Number("7"))
}

func TestLatin1NeverFails(t *testing.T) {
	is := is.New(t)

	is.Equal(Latin1([]byte{'{', 0xE9, '}'}), "{é}")
}

func TestFramesContinuesAfterDecodeError(t *testing.T) {
	is := is.New(t)

	in := "boot\r\n{\"Controls\": }\r\n\r\n" + controlsLine + "\n"

	var frames []protocol.Frame
	var errs []error
	err := Frames(strings.NewReader(in), func(f protocol.Frame, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		frames = append(frames, f)
	})
	is.NoErr(err)
	is.Equal(len(errs), 1)
	is.Equal(len(frames), 1)
	is.Equal(frames[0].Group(), protocol.GroupControls)
}
