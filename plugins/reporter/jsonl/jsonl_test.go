package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/groundview/internal/core"
)

func TestJSONLReporter_Init(t *testing.T) {
	r := NewJSONLReporter()
	assert.Error(t, r.Init(nil))
	assert.Error(t, r.Init(map[string]any{"max_size_mb": 5}))
	assert.Error(t, r.Init(map[string]any{"path": "/tmp/x.jsonl", "bogus": 1}))
}

func TestJSONLReporter_WritesLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.jsonl")
	r := NewJSONLReporter()
	require.NoError(t, r.Init(map[string]any{"path": path, "max_size_mb": "5"}))

	ctx := context.Background()
	require.NoError(t, r.Start(ctx))
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Report(ctx, &core.Frame{
			Title:         "HK",
			ReceivedAt:    time.Unix(1700000000, 0).UTC(),
			SequenceCount: uint16(i),
			Kind:          core.KindTelemetry,
			Fields:        []core.DecodedField{{Description: "Counter", Valid: true, Text: "1"}},
		}))
	}
	require.NoError(t, r.Flush(ctx))
	require.NoError(t, r.Stop(ctx))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var seqs []float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		seqs = append(seqs, line["sequence_count"].(float64))
		assert.Equal(t, "telemetry", line["kind"])
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []float64{0, 1, 2}, seqs)
}

func TestJSONLReporter_ReportAfterStop(t *testing.T) {
	r := NewJSONLReporter()
	require.NoError(t, r.Init(map[string]any{"path": filepath.Join(t.TempDir(), "f.jsonl")}))
	require.NoError(t, r.Stop(context.Background()))

	err := r.Report(context.Background(), &core.Frame{})
	assert.True(t, errors.Is(err, core.ErrClosed))
	assert.NoError(t, r.Stop(context.Background()))
	assert.Error(t, r.Report(context.Background(), nil))
}
