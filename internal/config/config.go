package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultSerialPort  = "/dev/ttyUSB0"
	DefaultBaud        = 921600
	DefaultReadTimeout = 20 * time.Millisecond
	DefaultOpenTimeout = 5 * time.Second
	DefaultRetention   = 10000
	DefaultQueue       = 256
	DefaultStaleAfter  = 3 * time.Second
	DefaultLogFile     = "sapphire.log"
)

// CounterPolicy decides which inbound frames advance the logical counter.
type CounterPolicy string

const (
	// CountTopicFrames counts only frames that append to a telemetry history.
	CountTopicFrames CounterPolicy = "topics"
	// CountAllFrames counts every well-formed frame, Logging and unknown groups included.
	CountAllFrames CounterPolicy = "all"
)

func ParseCounterPolicy(s string) (CounterPolicy, error) {
	switch CounterPolicy(s) {
	case CountTopicFrames, CountAllFrames:
		return CounterPolicy(s), nil
	}
	return "", fmt.Errorf("counter policy must be %q or %q, got %q", CountTopicFrames, CountAllFrames, s)
}

type Config struct {
	Port        string
	Baud        int
	ReadTimeout time.Duration
	OpenTimeout time.Duration

	// Retention bounds each telemetry history; 0 keeps everything.
	Retention int
	// Queue bounds the reader-to-ingest and ingest-to-UI channels.
	Queue   int
	Counter CounterPolicy

	// StaleAfter flags the link when no telemetry arrived for this long; 0 disables.
	StaleAfter time.Duration

	// OutputDir receives Logging CSVs and settings dumps.
	OutputDir string

	JournalPath      string
	JournalRetention int

	LogFile  string
	LogLevel string
}

func Default() Config {
	return Config{
		Port:        DefaultSerialPort,
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
		OpenTimeout: DefaultOpenTimeout,
		Retention:   DefaultRetention,
		Queue:       DefaultQueue,
		Counter:     CountTopicFrames,
		StaleAfter:  DefaultStaleAfter,
		OutputDir:   ".",
		LogFile:     DefaultLogFile,
		LogLevel:    "info",
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("serial port is required"))
	}
	if c.Baud <= 0 {
		errs = append(errs, fmt.Errorf("baud must be positive, got %d", c.Baud))
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("read timeout must be positive, got %s", c.ReadTimeout))
	}
	if c.OpenTimeout < 0 {
		errs = append(errs, fmt.Errorf("open timeout must not be negative, got %s", c.OpenTimeout))
	}
	if c.Retention < 0 {
		errs = append(errs, fmt.Errorf("retention must not be negative, got %d", c.Retention))
	}
	if c.Queue <= 0 {
		errs = append(errs, fmt.Errorf("queue must be positive, got %d", c.Queue))
	}
	if _, err := ParseCounterPolicy(string(c.Counter)); err != nil {
		errs = append(errs, err)
	}
	if c.JournalRetention < 0 {
		errs = append(errs, fmt.Errorf("journal retention must not be negative, got %d", c.JournalRetention))
	}
	return errors.Join(errs...)
}
