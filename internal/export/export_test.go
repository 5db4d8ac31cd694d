package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"

	"sapphire/internal/protocol"
)

func fixed(dir string) *Exporter {
	e := New(dir)
	e.now = func() time.Time { return time.Date(2024, 3, 1, 14, 5, 9, 0, time.UTC) }
	return e
}

func TestPairs(t *testing.T) {
	is := is.New(t)

	is.Equal(Pairs([]float64{10, 1.5, 20, 2.5, 30, 3.5}), []Sample{{10, 1.5}, {20, 2.5}, {30, 3.5}})
	is.Equal(Pairs([]float64{10, 1.5, 20}), []Sample{{10, 1.5}})
	is.Equal(len(Pairs(nil)), 0)
}

func TestWriteLogging(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()

	name, err := fixed(dir).WriteLogging(Pairs([]float64{10, 1.5, 20, 2.5}))
	is.NoErr(err)
	is.Equal(filepath.Base(name), "Logging_2024-03-01_14-05-09.csv")

	b, err := os.ReadFile(name)
	is.NoErr(err)
	is.Equal(string(b), "Yaw angle (urad),Output voltage (V)\n10,1.5\n20,2.5\n")
}

func TestDumpIntent(t *testing.T) {
	is := is.New(t)
	dir := filepath.Join(t.TempDir(), "dumps")

	in := protocol.DefaultIntent()
	in.GeneralSettings.MaxVoltage = 120

	paths, err := fixed(dir).DumpIntent(in)
	is.NoErr(err)
	is.Equal(len(paths), 4)
	is.Equal(filepath.Base(paths[1]), "General_Settings_Tab_2024-03-01_14-05-09.json")

	b, err := os.ReadFile(paths[1])
	is.NoErr(err)
	is.True(strings.Contains(string(b), "\n    \"General settings\""))

	var got map[string]protocol.GeneralSettings
	is.NoErr(json.Unmarshal(b, &got))
	is.Equal(got["General settings"].MaxVoltage, 120.0)
}

func TestCapturesInTheSameSecondKeepSeparateFiles(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	e := fixed(dir)

	first, err := e.WriteLogging(Pairs([]float64{1, 0.1}))
	is.NoErr(err)
	second, err := e.WriteLogging(Pairs([]float64{2, 0.2}))
	is.NoErr(err)
	third, err := e.WriteLogging(Pairs([]float64{3, 0.3}))
	is.NoErr(err)

	is.Equal(filepath.Base(first), "Logging_2024-03-01_14-05-09.csv")
	is.Equal(filepath.Base(second), "Logging_2024-03-01_14-05-09_2.csv")
	is.Equal(filepath.Base(third), "Logging_2024-03-01_14-05-09_3.csv")

	b, err := os.ReadFile(first)
	is.NoErr(err)
	is.True(strings.HasSuffix(string(b), "\n1,0.1\n"))
}
