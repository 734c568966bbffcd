package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/groundview/internal/command"
	"firestige.xyz/groundview/internal/core"
	"firestige.xyz/groundview/internal/daemon"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidatePrintsLayout(t *testing.T) {
	path := writeFile(t, "hk.txt", "# housekeeping\nCommand Counter, 12, 1, B, Dec\nMode, 13, 1, B, Enm, SAFE, NOMINAL\n")

	out, _, err := execute(t, "validate", path, "--endian", "B", "--capacity", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "VALID: 2 of 8 slots defined, big endian")
	assert.Contains(t, out, "Command Counter")
	assert.Contains(t, out, "SAFE|NOMINAL")
}

func TestValidateReportsDefinitionError(t *testing.T) {
	path := writeFile(t, "bad.txt", "Counter, 0, 1, B, Dec\nBroken, 1, 1, z, Dec\n")

	_, stderr, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDefinition))

	var defErr *core.DefinitionError
	require.True(t, errors.As(err, &defErr))
	assert.Equal(t, 2, defErr.Line)
	assert.Contains(t, stderr, "INVALID")
}

func TestValidateRequiresFile(t *testing.T) {
	_, _, err := execute(t, "validate")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "groundview "+daemon.Version)
}

func TestViewRequiresDefinition(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yml")
	_, _, err := execute(t, "view", "-c", missing, "--appid", "0x800")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--file")
}

func TestViewRejectsBadAppID(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yml")
	def := writeFile(t, "hk.txt", "Counter, 4, 1, B, Dec\n")

	_, _, err := execute(t, "view", "-c", missing, "--appid", "zz", "--file", def)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestViewOverKafkaRequiresAppID(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yml")
	def := writeFile(t, "hk.txt", "Counter, 4, 1, B, Dec\n")

	_, _, err := execute(t, "view", "-c", missing, "--file", def)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
	assert.Contains(t, err.Error(), "viewer.app_id")
}

func TestRouteRejectsMemoryTransport(t *testing.T) {
	cfg := writeFile(t, "groundview.yml", "groundview:\n  transport:\n    type: memory\n")
	_, _, err := execute(t, "route", "-c", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "external transport")
}

func TestReplayRejectsMemoryTransport(t *testing.T) {
	cfg := writeFile(t, "groundview.yml", "groundview:\n  transport:\n    type: memory\n")
	_, _, err := execute(t, "replay", "-c", cfg, "capture.pcap")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "external transport")
}

func TestRunWithNothingEnabled(t *testing.T) {
	cfg := writeFile(t, "groundview.yml", "groundview:\n  transport:\n    type: memory\n")
	_, _, err := execute(t, "run", "-c", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to run")
}

func TestStatusAgainstControlSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "gv.sock")
	server := command.NewUDSServer(socket, command.NewCommandHandler(stubController{}))
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop(context.Background())

	missing := filepath.Join(t.TempDir(), "none.yml")
	out, _, err := execute(t, "status", "-c", missing, "--socket", socket)
	require.NoError(t, err)
	assert.Contains(t, out, "GroundSystem.Spacecraft1")
	assert.Contains(t, out, "ES HK on GroundSystem.Spacecraft1.TelemetryPackets.0x800 [running]")
	assert.Contains(t, out, "10.0.0.5:4000")

	out, _, err = execute(t, "reload", "-c", missing, "--socket", socket)
	require.NoError(t, err)
	assert.Contains(t, out, "reloaded")
}

func TestStatusWithoutDaemon(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yml")
	_, _, err := execute(t, "status", "-c", missing, "--socket", filepath.Join(t.TempDir(), "none.sock"))
	assert.Error(t, err)
}

type stubController struct{}

func (stubController) Status() command.Status {
	return command.Status{
		Version:    "test",
		Namespace:  "GroundSystem",
		Spacecraft: "Spacecraft1",
		Transport:  "kafka",
		Services:   []string{"control", "router", "viewer"},
		Page:       &command.PageStatus{Title: "ES HK", Topic: "GroundSystem.Spacecraft1.TelemetryPackets.0x800", State: "running"},
		Router:     &command.RouterStatus{Listen: "[::]:1235", Sources: []string{"10.0.0.5:4000"}},
	}
}

func (stubController) Reload() error    { return nil }
func (stubController) TriggerShutdown() {}
