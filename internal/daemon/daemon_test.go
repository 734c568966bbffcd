package daemon

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/groundview/internal/command"
	"firestige.xyz/groundview/internal/config"
	"firestige.xyz/groundview/internal/core"
	"firestige.xyz/groundview/pkg/plugin"
)

const frameReporter = "daemon-test-frames"

// frames receives every frame reported by the test reporter.
var frames = make(chan *core.Frame, 16)

type channelReporter struct{}

func (channelReporter) Name() string                { return frameReporter }
func (channelReporter) Init(map[string]any) error   { return nil }
func (channelReporter) Start(context.Context) error { return nil }
func (channelReporter) Stop(context.Context) error  { return nil }
func (channelReporter) Flush(context.Context) error { return nil }

func (channelReporter) Report(_ context.Context, f *core.Frame) error {
	frames <- f
	return nil
}

func init() {
	plugin.RegisterReporter(frameReporter, func() plugin.Reporter { return channelReporter{} })
}

func testConfig(t *testing.T) *config.GlobalConfig {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Transport.Type = "memory"
	cfg.Transport.QueueSize = 16
	cfg.Router.Listen = "127.0.0.1:0"
	cfg.Reporters = []config.ReporterConfig{{Name: frameReporter}}
	cfg.Viewer.StopTimeout = time.Second
	cfg.Control.Socket = ""
	return cfg
}

func writeDefinition(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hk.txt")
	require.NoError(t, os.WriteFile(path, []byte("Counter, 4, 1, B, Dec\n"), 0644))
	return path
}

func TestDaemonRoutesIntoPage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Router.Enabled = true
	cfg.Viewer.AppID = "0x808"
	cfg.Viewer.Definition = writeDefinition(t)

	pidFile := filepath.Join(t.TempDir(), "groundview.pid")
	d := NewWithConfig(cfg, "", pidFile)
	require.NoError(t, d.Start())
	assert.Equal(t, []string{"router", "viewer"}, d.Services())
	assert.FileExists(t, pidFile)

	runDone := make(chan error, 1)
	go func() { runDone <- d.Run() }()

	addr := d.services[0].(*routerService).Addr()
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0x08, 0x08, 0xC0, 0x05, 0x2A})
	require.NoError(t, err)

	select {
	case f := <-frames:
		assert.Equal(t, uint16(5), f.SequenceCount)
		assert.Equal(t, "42", f.Fields[0].Text)
		assert.Equal(t, "GroundSystem.Spacecraft1.TelemetryPackets.0x808", f.Topic)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame reported")
	}

	d.TriggerShutdown()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop within timeout")
	}

	assert.NoFileExists(t, pidFile)
	assert.Empty(t, d.Services())
	assert.NoError(t, d.Stop())
}

func TestDaemonControlSocket(t *testing.T) {
	cfg := testConfig(t)
	cfg.Router.Enabled = true
	cfg.Viewer.Events = true
	cfg.Viewer.Title = "EVS"
	cfg.Control.Socket = filepath.Join(t.TempDir(), "gv.sock")

	d := NewWithConfig(cfg, "", "")
	require.NoError(t, d.Start())
	assert.Equal(t, []string{"control", "router", "viewer"}, d.Services())

	runDone := make(chan error, 1)
	go func() { runDone <- d.Run() }()

	client := command.NewUDSClient(cfg.Control.Socket, 2*time.Second)
	st, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Version, st.Version)
	assert.Equal(t, "memory", st.Transport)
	require.NotNil(t, st.Page)
	assert.Equal(t, "EVS", st.Page.Title)
	assert.Equal(t, "running", st.Page.State)
	assert.Equal(t, "GroundSystem.Spacecraft1.TelemetryPackets", st.Page.Topic)
	require.NotNil(t, st.Router)
	assert.NotEqual(t, "127.0.0.1:0", st.Router.Listen)

	require.NoError(t, client.Shutdown(context.Background()))
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after shutdown command")
	}
	assert.NoFileExists(t, cfg.Control.Socket)
}

func TestDaemonStopsWhenPageFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Viewer.Events = true

	d := NewWithConfig(cfg, "", "")
	require.NoError(t, d.Start())

	runDone := make(chan error, 1)
	go func() { runDone <- d.Run() }()

	require.NoError(t, d.transport.Close())

	select {
	case err := <-runDone:
		assert.True(t, errors.Is(err, core.ErrClosed), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after page failure")
	}
}

func TestDaemonNothingToRun(t *testing.T) {
	d := NewWithConfig(testConfig(t), "", "")
	assert.Error(t, d.Start())
}

func TestDaemonUnknownReporter(t *testing.T) {
	cfg := testConfig(t)
	cfg.Viewer.Events = true
	cfg.Reporters = []config.ReporterConfig{{Name: "does-not-exist"}}

	d := NewWithConfig(cfg, "", "")
	err := d.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPluginNotFound))
}

func TestDaemonBadDefinition(t *testing.T) {
	cfg := testConfig(t)
	cfg.Viewer.Definition = filepath.Join(t.TempDir(), "missing.txt")

	d := NewWithConfig(cfg, "", "")
	assert.Error(t, d.Start())
}

func TestNewLoadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "groundview.yml")
	content := `
groundview:
  transport:
    type: memory
  viewer:
    events: true
  log:
    level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	d, err := New(path, "")
	require.NoError(t, err)
	assert.Equal(t, "memory", d.Config().Transport.Type)
	assert.True(t, ViewerEnabled(d.Config()))

	require.NoError(t, os.WriteFile(path, []byte(content[:len(content)-len("debug\n")]+"warn\n"), 0644))
	require.NoError(t, d.Reload())
	assert.Equal(t, "warn", d.Config().Log.Level)
}

func TestReloadWithoutFile(t *testing.T) {
	d := NewWithConfig(testConfig(t), "", "")
	assert.Error(t, d.Reload())
}

func TestTransportSharesBroker(t *testing.T) {
	tr := NewTransport(config.TransportConfig{Type: "memory", QueueSize: 4})
	defer tr.Close()
	assert.True(t, tr.Shared())

	sub, err := tr.Subscriber()
	require.NoError(t, err)
	require.NoError(t, sub.Subscribe("a.b"))

	pub, err := tr.Publisher()
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), "a.b.c", core.Message{Payload: []byte{1}}))
	require.NoError(t, pub.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := sub.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, msg.Payload)
}
