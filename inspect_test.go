package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/matryer/is"

	"sapphire/internal/journal"
)

func TestCheckCapture(t *testing.T) {
	is := is.New(t)
	capture := strings.Join([]string{
		`{"Controls": {"state": 1, "yawAngle": 2, "warninglevel": 0, "yawAngleStdDeviation": 0, "errorAxis1": 0, "errorAxis2": 0}}`,
		"boot banner",
		`{"Controls": }`,
		`{"Logging": [10, 1.5]}`,
		`{"Controls": {"state": 1, "yawAngle": 3, "yawAngleStdDeviation": 0, "errorAxis1": 0, "errorAxis2": 0}}`,
	}, "\n")

	var out bytes.Buffer
	rejected, err := checkCapture(&out, strings.NewReader(capture))
	is.NoErr(err)
	is.Equal(rejected, 1)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	is.Equal(len(lines), 3)
	is.Equal(strings.Fields(lines[0]), []string{"Controls", "2"})
	is.Equal(strings.Fields(lines[1]), []string{"Logging", "1"})
	is.True(strings.HasPrefix(lines[2], "rejected: "))
}

func TestDumpJournalOldestFirst(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	j, err := journal.Open(":memory:", 0)
	is.NoErr(err)
	defer j.Close()
	is.NoErr(j.Record(ctx, 1, "Controls", `{"Controls":1}`))
	is.NoErr(j.Record(ctx, 2, "Controls", `{"Controls":2}`))
	is.NoErr(j.Record(ctx, 3, "General settings", `{"General settings":3}`))

	var out bytes.Buffer
	is.NoErr(dumpJournal(ctx, &out, j, 2))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	is.Equal(len(lines), 3)
	is.Equal(lines[0], "2 of 3 frames")
	is.True(strings.Contains(lines[1], "#2"))
	is.True(strings.HasSuffix(lines[1], `{"Controls":2}`))
	is.True(strings.HasSuffix(lines[2], `{"General settings":3}`))
}
