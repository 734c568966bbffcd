package plugin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/groundview/internal/core"
)

type mockReporter struct {
	name    string
	initErr error
	cfg     map[string]any
	frames  []*core.Frame
}

func (m *mockReporter) Name() string { return m.name }

func (m *mockReporter) Init(cfg map[string]any) error {
	m.cfg = cfg
	return m.initErr
}

func (m *mockReporter) Start(ctx context.Context) error { return nil }
func (m *mockReporter) Stop(ctx context.Context) error  { return nil }

func (m *mockReporter) Report(ctx context.Context, frame *core.Frame) error {
	m.frames = append(m.frames, frame)
	return nil
}

func (m *mockReporter) Flush(ctx context.Context) error { return nil }

var _ Reporter = (*mockReporter)(nil)

func TestRegisterAndGetReporter(t *testing.T) {
	reporterReg.Reset()
	t.Cleanup(reporterReg.Reset)

	RegisterReporter("test_rep", func() Reporter { return &mockReporter{name: "test_rep"} })
	RegisterReporter("another", func() Reporter { return &mockReporter{name: "another"} })

	factory, err := GetReporterFactory("test_rep")
	require.NoError(t, err)
	assert.Equal(t, "test_rep", factory().Name())
	assert.Equal(t, []string{"another", "test_rep"}, ReporterNames())
}

func TestGetReporterNotFound(t *testing.T) {
	reporterReg.Reset()
	t.Cleanup(reporterReg.Reset)

	_, err := GetReporterFactory("nope")
	assert.True(t, errors.Is(err, core.ErrPluginNotFound))

	_, err = NewReporter("nope", nil)
	assert.True(t, errors.Is(err, core.ErrPluginNotFound))
}

func TestRegisterTwicePanics(t *testing.T) {
	reporterReg.Reset()
	t.Cleanup(reporterReg.Reset)

	RegisterReporter("dup", func() Reporter { return &mockReporter{} })
	assert.Panics(t, func() {
		RegisterReporter("dup", func() Reporter { return &mockReporter{} })
	})
}

func TestNewReporterInitializes(t *testing.T) {
	reporterReg.Reset()
	t.Cleanup(reporterReg.Reset)

	RegisterReporter("ok", func() Reporter { return &mockReporter{name: "ok"} })
	RegisterReporter("bad", func() Reporter { return &mockReporter{name: "bad", initErr: errors.New("no topic")} })

	r, err := NewReporter("ok", map[string]any{"format": "json"})
	require.NoError(t, err)
	assert.Equal(t, "json", r.(*mockReporter).cfg["format"])

	_, err = NewReporter("bad", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init reporter bad")
}

func TestDecodeConfig(t *testing.T) {
	var cfg struct {
		Brokers      []string      `mapstructure:"brokers"`
		Topic        string        `mapstructure:"topic"`
		BatchSize    int           `mapstructure:"batch_size"`
		BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	}

	err := DecodeConfig(map[string]any{
		"brokers":       "k1:9092,k2:9092",
		"topic":         "frames",
		"batch_size":    "50",
		"batch_timeout": "20ms",
	}, &cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 20*time.Millisecond, cfg.BatchTimeout)

	err = DecodeConfig(map[string]any{"topik": "typo"}, &cfg)
	assert.Error(t, err)
}
