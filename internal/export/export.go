// Package export writes bench captures and settings snapshots to disk.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"sapphire/internal/protocol"
)

// stampLayout names files by capture time, e.g. 2024-03-01_14-05-09.
const stampLayout = "2006-01-02_15-04-05"

// Sample is one logging capture point.
type Sample struct {
	YawAngle float64 // urad
	Voltage  float64 // V
}

// Pairs splits an interleaved capture: even indices are yaw angle, odd are
// output voltage. A trailing unpaired value is dropped.
func Pairs(values []float64) []Sample {
	out := make([]Sample, 0, len(values)/2)
	for i := 0; i+1 < len(values); i += 2 {
		out = append(out, Sample{YawAngle: values[i], Voltage: values[i+1]})
	}
	return out
}

type Exporter struct {
	dir string
	now func() time.Time
}

func New(dir string) *Exporter {
	return &Exporter{dir: dir, now: time.Now}
}

// maxSameStamp bounds the numbered variants tried for one timestamp.
const maxSameStamp = 100

// create opens a new timestamped file, never an existing one. Captures that
// land in the same second get _2, _3, ... appended.
func (e *Exporter) create(prefix, ext string) (*os.File, string, error) {
	base := filepath.Join(e.dir, prefix+"_"+e.now().Format(stampLayout))
	name := base + ext
	for n := 2; ; n++ {
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, fs.ErrExist) || n > maxSameStamp {
			return nil, "", err
		}
		name = fmt.Sprintf("%s_%d%s", base, n, ext)
	}
}

// WriteLogging writes one capture as CSV and returns the file path.
func (e *Exporter) WriteLogging(samples []Sample) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", e.dir, err)
	}
	f, name, err := e.create("Logging", ".csv")
	if err != nil {
		return "", fmt.Errorf("create logging file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"Yaw angle (urad)", "Output voltage (V)"})
	for _, s := range samples {
		_ = w.Write([]string{
			strconv.FormatFloat(s.YawAngle, 'g', -1, 64),
			strconv.FormatFloat(s.Voltage, 'g', -1, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return name, f.Close()
}

var dumpNames = map[protocol.Group]string{
	protocol.GroupControls:         "Controls_Tab",
	protocol.GroupGeneralSettings:  "General_Settings_Tab",
	protocol.GroupControlSettings:  "Control_Settings_Tab",
	protocol.GroupExpertProcedures: "Expert_Procedures_Tab",
}

// DumpIntent saves each record group to its own JSON file, all sharing one
// timestamp, and returns the paths in tab order.
func (e *Exporter) DumpIntent(in protocol.Intent) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", e.dir, err)
	}
	stamp := e.now().Format(stampLayout)

	var paths []string
	for _, m := range in.Messages() {
		b, err := json.MarshalIndent(map[protocol.Group]protocol.Message{m.Group(): m}, "", "    ")
		if err != nil {
			return paths, fmt.Errorf("encode %s: %w", m.Group(), err)
		}
		name := filepath.Join(e.dir, dumpNames[m.Group()]+"_"+stamp+".json")
		if err := os.WriteFile(name, append(b, '\n'), 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", name, err)
		}
		paths = append(paths, name)
	}
	return paths, nil
}
