// Package jsonl implements a reporter that archives frames as JSON lines in
// a rotated file.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/groundview/internal/config"
	"firestige.xyz/groundview/internal/core"
	"firestige.xyz/groundview/internal/log"
	"firestige.xyz/groundview/pkg/plugin"
)

const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 10
)

// Config represents jsonl reporter configuration.
type Config struct {
	Path       string `mapstructure:"path"` // required
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// JSONLReporter appends one JSON object per frame.
type JSONLReporter struct {
	name   string
	config Config

	mu     sync.Mutex
	file   *lumberjack.Logger
	writer *bufio.Writer

	reportedCount atomic.Uint64
}

// NewJSONLReporter creates a new jsonl reporter.
func NewJSONLReporter() plugin.Reporter {
	return &JSONLReporter{name: "jsonl"}
}

func (r *JSONLReporter) Name() string { return r.name }

func (r *JSONLReporter) Init(raw map[string]any) error {
	cfg := Config{MaxSizeMB: defaultMaxSizeMB, MaxBackups: defaultMaxBackups}
	if err := plugin.DecodeConfig(raw, &cfg); err != nil {
		return err
	}
	if cfg.Path == "" {
		return fmt.Errorf("path is required")
	}

	file, err := log.NewFileWriter(config.FileOutputConfig{
		Enabled: true,
		Path:    cfg.Path,
		Rotation: config.RotationConfig{
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	})
	if err != nil {
		return err
	}

	r.config = cfg
	r.file = file
	r.writer = bufio.NewWriter(file)
	return nil
}

func (r *JSONLReporter) Start(ctx context.Context) error {
	log.GetLogger().WithField("path", r.config.Path).Info("jsonl reporter started")
	return nil
}

// Report encodes frame as one line. Output is buffered until Flush.
func (r *JSONLReporter) Report(ctx context.Context, frame *core.Frame) error {
	if frame == nil {
		return fmt.Errorf("nil frame")
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return core.ErrClosed
	}
	if _, err := r.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", r.config.Path, err)
	}
	r.reportedCount.Add(1)
	return nil
}

func (r *JSONLReporter) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return nil
	}
	return r.writer.Flush()
}

// Stop flushes and closes the file.
func (r *JSONLReporter) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return nil
	}
	err := r.writer.Flush()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	r.writer = nil
	log.GetLogger().WithField("total_reported", r.reportedCount.Load()).Info("jsonl reporter stopped")
	return err
}
