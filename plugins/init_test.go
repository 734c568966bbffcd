package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/groundview/pkg/plugin"
)

func TestBuiltinReporters(t *testing.T) {
	assert.Equal(t, []string{"console", "jsonl", "kafka"}, plugin.ReporterNames())

	r, err := plugin.NewReporter("console", map[string]any{"format": "json"})
	require.NoError(t, err)
	assert.Equal(t, "console", r.Name())
}
