// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/groundview/internal/core"
	"firestige.xyz/groundview/internal/layout"
	"firestige.xyz/groundview/internal/transport"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `groundview:` root key in YAML.
type GlobalConfig struct {
	Mission   MissionConfig    `mapstructure:"mission"`
	Transport TransportConfig  `mapstructure:"transport"`
	Viewer    ViewerConfig     `mapstructure:"viewer"`
	Reporters []ReporterConfig `mapstructure:"reporters"`
	Router    RouterConfig     `mapstructure:"router"`
	Control   ControlConfig    `mapstructure:"control"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Log       LogConfig        `mapstructure:"log"`
}

// ─── Mission ───

// MissionConfig names the topic tree: <namespace>.<spacecraft>.TelemetryPackets.<appid>.
type MissionConfig struct {
	Namespace  string `mapstructure:"namespace"`
	Spacecraft string `mapstructure:"spacecraft"`
}

// ─── Transport ───

// TransportConfig selects the pub/sub implementation.
type TransportConfig struct {
	Type      string                `mapstructure:"type"` // kafka | memory
	Kafka     transport.KafkaConfig `mapstructure:"kafka"`
	QueueSize int                   `mapstructure:"queue_size"` // memory only
}

// ─── Viewer ───

// ViewerConfig describes one telemetry page.
type ViewerConfig struct {
	Title       string        `mapstructure:"title"`
	AppID       string        `mapstructure:"app_id"`
	Definition  string        `mapstructure:"definition"`
	Endian      string        `mapstructure:"endian"`
	Capacity    int           `mapstructure:"capacity"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	// Events renders the page as EVS event messages instead of a field layout.
	Events bool `mapstructure:"events"`
}

// ─── Reporters ───

// ReporterConfig names a reporter plugin and its plugin-specific settings.
type ReporterConfig struct {
	Name   string         `mapstructure:"name"`
	Config map[string]any `mapstructure:"config"`
}

// ─── Router ───

// RouterConfig configures the UDP ingest side.
type RouterConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Listen     string        `mapstructure:"listen"`
	ReadBuffer int           `mapstructure:"read_buffer"`
	SourceTTL  time.Duration `mapstructure:"source_ttl"`
}

// ─── Control ───

// ControlConfig configures the local control socket and the optional
// Kafka command channel.
type ControlConfig struct {
	Socket     string             `mapstructure:"socket"` // empty disables the socket
	Timeout    time.Duration      `mapstructure:"timeout"`
	Node       string             `mapstructure:"node"` // command target name, defaults to the hostname
	CommandTTL time.Duration      `mapstructure:"command_ttl"`
	Kafka      ControlKafkaConfig `mapstructure:"kafka"`
}

// ControlKafkaConfig selects the command topic. Brokers come from
// transport.kafka.brokers.
type ControlKafkaConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Topic       string `mapstructure:"topic"`
	GroupID     string `mapstructure:"group_id"`
	StartOffset string `mapstructure:"start_offset"` // earliest | latest
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level"`  // debug / info / warn / error
	Format     string           `mapstructure:"format"` // json / text / pattern
	Pattern    string           `mapstructure:"pattern"`
	TimeFormat string           `mapstructure:"time_format"`
	Outputs    LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig lists log destinations besides stdout.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

const rootKey = "groundview"

// configRoot is the top-level wrapper matching the YAML structure `groundview: ...`.
type configRoot struct {
	Groundview GlobalConfig `mapstructure:"groundview"`
}

// Load loads configuration from file.
// Env vars use the GROUNDVIEW_ prefix (e.g., GROUNDVIEW_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	// The `groundview.` key prefix maps to GROUNDVIEW_ through the replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func unmarshal(v *viper.Viper) (*GlobalConfig, error) {
	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Groundview

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func key(k string) string { return rootKey + "." + k }

// setDefaults sets default values, all under the "groundview." prefix.
func setDefaults(v *viper.Viper) {
	v.SetDefault(key("mission.namespace"), "GroundSystem")
	v.SetDefault(key("mission.spacecraft"), "Spacecraft1")

	v.SetDefault(key("transport.type"), "kafka")
	v.SetDefault(key("transport.kafka.brokers"), []string{"localhost:9092"})
	v.SetDefault(key("transport.kafka.start_offset"), "latest")
	v.SetDefault(key("transport.kafka.max_wait"), "500ms")
	v.SetDefault(key("transport.kafka.compression"), "none")
	v.SetDefault(key("transport.queue_size"), 64)

	v.SetDefault(key("viewer.title"), "Telemetry Page")
	v.SetDefault(key("viewer.endian"), "L")
	v.SetDefault(key("viewer.capacity"), layout.DefaultCapacity)
	v.SetDefault(key("viewer.stop_timeout"), "2s")

	v.SetDefault(key("router.enabled"), false)
	v.SetDefault(key("router.listen"), ":1235")
	v.SetDefault(key("router.read_buffer"), 65535)
	v.SetDefault(key("router.source_ttl"), "10m")

	v.SetDefault(key("control.socket"), "/tmp/groundview.sock")
	v.SetDefault(key("control.timeout"), "10s")
	v.SetDefault(key("control.command_ttl"), "5m")
	v.SetDefault(key("control.kafka.enabled"), false)
	v.SetDefault(key("control.kafka.topic"), "groundview-commands")
	v.SetDefault(key("control.kafka.start_offset"), "latest")

	v.SetDefault(key("metrics.enabled"), false)
	v.SetDefault(key("metrics.listen"), ":9091")
	v.SetDefault(key("metrics.path"), "/metrics")

	v.SetDefault(key("log.level"), "info")
	v.SetDefault(key("log.format"), "text")
	v.SetDefault(key("log.pattern"), "%time [%level] %msg %field\n")
	v.SetDefault(key("log.time_format"), "2006-01-02 15:04:05.000")
	v.SetDefault(key("log.outputs.file.enabled"), false)
	v.SetDefault(key("log.outputs.file.path"), "/var/log/groundview/groundview.log")
	v.SetDefault(key("log.outputs.file.rotation.max_size_mb"), 100)
	v.SetDefault(key("log.outputs.file.rotation.max_age_days"), 30)
	v.SetDefault(key("log.outputs.file.rotation.max_backups"), 5)
	v.SetDefault(key("log.outputs.file.rotation.compress"), true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	case "pattern":
		if cfg.Log.Pattern == "" {
			return invalid("log.pattern is required when log.format=pattern")
		}
	default:
		return invalid("invalid log format: %s (must be json/text/pattern)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return invalid("log.outputs.file.path is required when file output is enabled")
	}

	// ── Mission ──
	if cfg.Mission.Namespace == "" || cfg.Mission.Spacecraft == "" {
		return invalid("mission.namespace and mission.spacecraft are required")
	}

	// ── Transport ──
	switch cfg.Transport.Type {
	case "kafka":
		if err := cfg.Transport.Kafka.Validate(); err != nil {
			return err
		}
	case "memory":
		if cfg.Transport.QueueSize <= 0 {
			cfg.Transport.QueueSize = 64
		}
	default:
		return invalid("unsupported transport.type: %s (must be kafka/memory)", cfg.Transport.Type)
	}

	// ── Viewer ──
	if _, err := layout.ParseEndianness(cfg.Viewer.Endian); err != nil {
		return invalid("viewer.endian: %v", err)
	}
	if cfg.Viewer.Capacity <= 0 {
		cfg.Viewer.Capacity = layout.DefaultCapacity
	}
	if cfg.Viewer.StopTimeout <= 0 {
		cfg.Viewer.StopTimeout = 2 * time.Second
	}
	if cfg.Viewer.AppID != "" {
		if _, err := transport.ParseAppID(cfg.Viewer.AppID); err != nil {
			return invalid("viewer.app_id: %v", err)
		}
	}
	// Kafka topics match exactly and the router publishes per app id.
	pageEnabled := cfg.Viewer.Events || cfg.Viewer.Definition != ""
	if pageEnabled && cfg.Transport.Type == "kafka" && cfg.Viewer.AppID == "" {
		return invalid("viewer.app_id is required when a page subscribes over transport.type=kafka")
	}

	// ── Reporters ──
	for i, r := range cfg.Reporters {
		if r.Name == "" {
			return invalid("reporters[%d].name is required", i)
		}
	}

	// ── Router ──
	if cfg.Router.Enabled && cfg.Router.Listen == "" {
		return invalid("router.listen is required when router.enabled=true")
	}
	if cfg.Router.SourceTTL <= 0 {
		cfg.Router.SourceTTL = 10 * time.Minute
	}

	// ── Control ──
	if cfg.Control.Timeout <= 0 {
		cfg.Control.Timeout = 10 * time.Second
	}
	if cfg.Control.CommandTTL <= 0 {
		cfg.Control.CommandTTL = 5 * time.Minute
	}
	if cfg.Control.Node == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Control.Node = host
		}
	}
	if ck := cfg.Control.Kafka; ck.Enabled {
		if ck.Topic == "" || ck.GroupID == "" {
			return invalid("control.kafka.topic and control.kafka.group_id are required when the command channel is enabled")
		}
		if len(cfg.Transport.Kafka.Brokers) == 0 {
			return invalid("control.kafka requires transport.kafka.brokers")
		}
		switch ck.StartOffset {
		case "", "earliest", "latest":
		default:
			return invalid("invalid control.kafka.start_offset: %s (must be earliest/latest)", ck.StartOffset)
		}
	}

	return nil
}

// Topic returns the subscription topic for the configured viewer page.
// An empty app id subscribes to every stream of the spacecraft, which only
// the memory transport supports.
func (cfg *GlobalConfig) Topic() string {
	appID := ""
	if cfg.Viewer.AppID != "" {
		id, _ := transport.ParseAppID(cfg.Viewer.AppID)
		appID = transport.FormatAppID(id)
	}
	return transport.TelemetryTopic(cfg.Mission.Namespace, cfg.Mission.Spacecraft, appID)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrConfigInvalid, fmt.Sprintf(format, args...))
}
