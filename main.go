// sapphire: Bubble Tea console for the Sapphire piezo rotation bench over a
// serial JSON link.
//
// Run:
//
//	./sapphire -port /dev/ttyUSB0 -baud 921600
//	./sapphire -list-ports
//	./sapphire -replay capture.txt        # inspect a recorded session offline
//	./sapphire -check capture.txt         # count and validate a capture's frames
//	./sapphire -journal frames.db -journal-dump 50
//
// Keys:
//
//	c/x   connect / disconnect
//	m     cycle mode (Standby, Open Loop, Closed Loop)
//	s/t   start motion (prompts setpoint and reference) / stop motion
//	e/i   reset control / interferometer protection
//	g/k   write general / control settings (prompts name=value pairs)
//	r     read back the settings the bench last echoed
//	p/P   profile motion start / stop
//	y/Y   ramp cycles start / stop
//	l     trigger a logging capture (open loop only)
//	w     save the four records to JSON
//	q     quit
//
// Diagnostics go to the -log file; the terminal belongs to the console.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"sapphire/internal/config"
	"sapphire/internal/device"
	"sapphire/internal/journal"
	"sapphire/internal/transport"
	"sapphire/internal/tui"
)

func main() {
	cfg := config.Default()
	flag.StringVar(&cfg.Port, "port", cfg.Port, "serial port of the bench")
	flag.IntVar(&cfg.Baud, "baud", cfg.Baud, "baudrate")
	flag.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "serial read timeout")
	flag.DurationVar(&cfg.OpenTimeout, "open-timeout", cfg.OpenTimeout, "give up opening the port after this long (0 waits forever)")
	flag.IntVar(&cfg.Retention, "retention", cfg.Retention, "samples kept per telemetry field (0 keeps all)")
	flag.IntVar(&cfg.Queue, "queue", cfg.Queue, "line and event queue depth")
	flag.DurationVar(&cfg.StaleAfter, "stale", cfg.StaleAfter, "flag the link stale after this long without telemetry (0 disables)")
	flag.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "directory for logging CSVs and settings dumps")
	flag.StringVar(&cfg.JournalPath, "journal", cfg.JournalPath, "sqlite file journaling every accepted frame (empty disables)")
	flag.IntVar(&cfg.JournalRetention, "journal-retention", cfg.JournalRetention, "frames kept in the journal (0 keeps all)")
	flag.StringVar(&cfg.LogFile, "log", cfg.LogFile, "diagnostic log file")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug|info|warn|error")
	counter := flag.String("counter", string(cfg.Counter), "frames that advance the counter: topics|all")
	listPorts := flag.Bool("list-ports", false, "list serial ports and exit")
	replay := flag.String("replay", "", "ingest a recorded capture before starting")
	check := flag.String("check", "", "decode a recorded capture, report per-group counts and rejects, and exit")
	journalDump := flag.Int("journal-dump", 0, "print the last N frames of the -journal file and exit")
	flag.Parse()

	if *listPorts {
		ports, err := transport.ListPorts()
		if err != nil {
			log.Fatal(err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	if *check != "" {
		f, err := os.Open(*check)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		rejected, err := checkCapture(os.Stdout, f)
		if err != nil {
			log.Fatal(err)
		}
		if rejected > 0 {
			os.Exit(1)
		}
		return
	}

	if *journalDump > 0 {
		if cfg.JournalPath == "" {
			log.Fatal("-journal-dump needs -journal")
		}
		j, err := journal.Open(cfg.JournalPath, 0)
		if err != nil {
			log.Fatal(err)
		}
		defer j.Close()
		if err := dumpJournal(context.Background(), os.Stdout, j, *journalDump); err != nil {
			log.Fatal(err)
		}
		return
	}

	policy, err := config.ParseCounterPolicy(*counter)
	if err != nil {
		log.Fatal(err)
	}
	cfg.Counter = policy
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	var opts []device.Option
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath, cfg.JournalRetention)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.JournalPath).Msg("open journal")
		}
		defer j.Close()
		opts = append(opts, device.WithRecorder(j))
	}

	link := transport.New(transport.SerialOpener, cfg.ReadTimeout, cfg.Queue, logger)
	sess := device.New(cfg, link, logger, opts...)
	defer sess.Disconnect()

	if *replay != "" {
		f, err := os.Open(*replay)
		if err != nil {
			log.Fatal(err)
		}
		rejected, err := sess.Replay(context.Background(), f)
		f.Close()
		if err != nil {
			log.Fatal(err)
		}
		logger.Info().Str("file", *replay).Int("rejected", rejected).Msg("capture replayed")
	}

	logger.Info().Str("port", cfg.Port).Int("baud", cfg.Baud).Msg("starting console")
	p := tea.NewProgram(tui.New(sess, cfg.Port), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logger.Error().Err(err).Msg("console exited")
		log.Fatal(err)
	}
}

func newLogger(cfg config.Config) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("log level: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	logger := zerolog.New(f).Level(level).With().Timestamp().Str("service", "sapphire").Logger()
	return logger, func() { _ = f.Close() }, nil
}
