// Package console implements the console reporter.
// Renders frames to stdout as a field grid or as JSON lines.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"firestige.xyz/groundview/internal/core"
	"firestige.xyz/groundview/internal/log"
	"firestige.xyz/groundview/pkg/plugin"
)

// ConsoleReporter prints frames to a terminal.
type ConsoleReporter struct {
	name          string
	config        Config
	out           io.Writer
	reportedCount atomic.Uint64
}

// Config represents console reporter configuration.
type Config struct {
	Format     string `mapstructure:"format"`      // "json" or "text", default "text"
	ShowUnused bool   `mapstructure:"show_unused"` // list slots with no definition
}

// NewConsoleReporter creates a new console reporter.
func NewConsoleReporter() plugin.Reporter {
	return &ConsoleReporter{
		name:   "console",
		config: Config{Format: "text"},
		out:    os.Stdout,
	}
}

func (r *ConsoleReporter) Name() string {
	return r.name
}

func (r *ConsoleReporter) Init(config map[string]any) error {
	if config == nil {
		return nil
	}
	cfg := r.config
	if err := plugin.DecodeConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.Format != "json" && cfg.Format != "text" {
		return fmt.Errorf("invalid format %q, must be json or text", cfg.Format)
	}
	r.config = cfg
	return nil
}

func (r *ConsoleReporter) Start(ctx context.Context) error {
	log.GetLogger().WithField("format", r.config.Format).Info("console reporter started")
	return nil
}

func (r *ConsoleReporter) Stop(ctx context.Context) error {
	log.GetLogger().WithField("total_reported", r.reportedCount.Load()).Info("console reporter stopped")
	return nil
}

// Report writes one frame.
func (r *ConsoleReporter) Report(ctx context.Context, frame *core.Frame) error {
	if frame == nil {
		return fmt.Errorf("nil frame")
	}

	r.reportedCount.Add(1)

	if r.config.Format == "json" {
		return r.reportJSON(frame)
	}
	return r.reportText(frame)
}

func (r *ConsoleReporter) reportJSON(frame *core.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}
	_, err = fmt.Fprintln(r.out, string(data))
	return err
}

// reportText prints a header line and, for telemetry, one row per slot:
//
//	[15:04:05.000] HK seq=42
//	   0  Command Counter                 7
func (r *ConsoleReporter) reportText(frame *core.Frame) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s seq=%d", frame.ReceivedAt.Format("15:04:05.000"), frame.Title, frame.SequenceCount)
	if frame.AppID != "" {
		fmt.Fprintf(&b, " app=%s", frame.AppID)
	}
	b.WriteByte('\n')

	switch frame.Kind {
	case core.KindEvent:
		fmt.Fprintf(&b, "    %v\n", frame.Event)
	default:
		for i, f := range frame.Fields {
			if !f.Valid && !r.config.ShowUnused {
				continue
			}
			fmt.Fprintf(&b, "  %2d  %-32s %s\n", i, f.Description, f.Text)
		}
	}

	_, err := io.WriteString(r.out, b.String())
	return err
}

// Flush is a no-op, stdout is unbuffered.
func (r *ConsoleReporter) Flush(ctx context.Context) error {
	return nil
}
