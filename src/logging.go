package core

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// NewLogger builds the charmbracelet/log structured logger used for
// everything but the received-packet CSV trail: scheduler timing
// decisions, config problems, transport errors.
func NewLogger(level string) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	switch level {
	case "debug":
		l.SetLevel(log.DebugLevel)
	case "warn":
		l.SetLevel(log.WarnLevel)
	case "error":
		l.SetLevel(log.ErrorLevel)
	default:
		l.SetLevel(log.InfoLevel)
	}
	return l
}

// PacketLogger writes one CSV row per received frame, grounded on the
// teacher's log.go: either a single fixed file or daily-named files
// rotated at UTC midnight under a directory.
type PacketLogger struct {
	mu        sync.Mutex
	dir       string // empty when using a single fixed file
	fixedPath string
	stamp     *strftime.Strftime

	fp       *os.File
	w        *csv.Writer
	openName string
}

var csvHeader = []string{
	"chan", "utime", "isotime", "source", "heard",
	"level", "error", "fec", "dti", "comment",
}

// NewDailyPacketLogger rotates files named YYYY-MM-DD.log under dir.
func NewDailyPacketLogger(dir string) (*PacketLogger, error) {
	if dir == "" {
		return &PacketLogger{}, nil
	}
	if _, err := os.Stat(dir); err != nil {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return nil, fmt.Errorf("logging: create %s: %w", dir, mkErr)
		}
	}
	stamp, err := strftime.New("%Y-%m-%d.log")
	if err != nil {
		return nil, fmt.Errorf("logging: timestamp format: %w", err)
	}
	return &PacketLogger{dir: dir, stamp: stamp}, nil
}

// NewFixedPacketLogger appends to a single named file.
func NewFixedPacketLogger(path string) (*PacketLogger, error) {
	if path == "" {
		return &PacketLogger{}, nil
	}
	return &PacketLogger{fixedPath: path}, nil
}

// Write appends one row, opening or rotating the underlying file as
// needed. A PacketLogger with no path configured silently discards.
func (pl *PacketLogger) Write(ev *FrameEvent) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.dir == "" && pl.fixedPath == "" {
		return nil
	}

	now := time.Now().UTC()
	if err := pl.ensureOpen(now); err != nil {
		return err
	}

	src := ""
	heard := ""
	if ev.Packet != nil {
		src = ev.Packet.Source()
		if h := ev.Packet.HeardFrom(); h != "" {
			heard = h
		}
	}

	row := []string{
		strconv.Itoa(ev.Channel),
		strconv.FormatInt(now.Unix(), 10),
		now.Format("2006-01-02T15:04:05Z"),
		src,
		heard,
		strconv.Itoa(ev.Level.Rx),
		strconv.Itoa(int(ev.Retries)),
		fecName(ev.FEC),
		"",
		"",
	}
	pl.w.Write(row) //nolint:errcheck
	pl.w.Flush()
	return pl.w.Error()
}

func (pl *PacketLogger) ensureOpen(now time.Time) error {
	path := pl.fixedPath
	name := pl.fixedPath
	if pl.dir != "" {
		name = pl.stamp.FormatString(now)
		path = filepath.Join(pl.dir, name)
	}

	if pl.fp != nil && name == pl.openName {
		return nil
	}
	if pl.fp != nil {
		pl.w.Flush()
		pl.fp.Close()
		pl.fp = nil
	}

	_, statErr := os.Stat(path)
	alreadyThere := statErr == nil

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("logging: open %s: %w", path, err)
	}
	pl.fp = f
	pl.openName = name
	pl.w = csv.NewWriter(f)
	if !alreadyThere {
		pl.w.Write(csvHeader) //nolint:errcheck
		pl.w.Flush()
	}
	return nil
}

// Close flushes and releases the open file, if any.
func (pl *PacketLogger) Close() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.fp == nil {
		return nil
	}
	pl.w.Flush()
	err := pl.fp.Close()
	pl.fp = nil
	return err
}

func fecName(f FECType) string {
	switch f {
	case FECNone:
		return "none"
	case FECFX25:
		return "fx25"
	default:
		return "?"
	}
}
