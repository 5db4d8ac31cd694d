package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"sapphire/internal/codec"
	"sapphire/internal/journal"
	"sapphire/internal/protocol"
)

// dumpJournal prints the last n journaled frames, oldest first.
func dumpJournal(ctx context.Context, w io.Writer, j *journal.Journal, n int) error {
	total, err := j.Count(ctx)
	if err != nil {
		return err
	}
	entries, err := j.Recent(ctx, n)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d of %d frames\n", len(entries), total)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Fprintf(w, "%s  #%d  %-18s %s\n", e.ReceivedAt.Format(time.RFC3339Nano), e.Index, e.Group, e.Payload)
	}
	return nil
}

// checkCapture decodes every frame of a capture and prints per-group counts
// and each rejected frame. It returns the number rejected.
func checkCapture(w io.Writer, r io.Reader) (int, error) {
	counts := map[protocol.Group]int{}
	var rejected []error
	err := codec.Frames(r, func(f protocol.Frame, err error) {
		if err != nil {
			rejected = append(rejected, err)
			return
		}
		counts[f.Group()]++
	})
	if err != nil {
		return len(rejected), err
	}

	groups := make([]string, 0, len(counts))
	for g := range counts {
		groups = append(groups, string(g))
	}
	sort.Strings(groups)
	for _, g := range groups {
		fmt.Fprintf(w, "%-18s %d\n", g, counts[protocol.Group(g)])
	}
	for _, e := range rejected {
		fmt.Fprintf(w, "rejected: %v\n", e)
	}
	return len(rejected), nil
}
