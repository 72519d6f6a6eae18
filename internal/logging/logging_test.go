package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestFanoutWithContextAttrs(t *testing.T) {
	var console, file bytes.Buffer
	logger := NewWithWriters(&console, &file, "text", slog.LevelInfo)

	ctx := WithContractID(WithRequestID(context.Background(), "req-1"), "c1")
	logger.InfoContext(ctx, "version uploaded", "version", 3)
	logger.DebugContext(ctx, "hidden")

	assert.Contains(t, console.String(), "request_id=req-1")
	assert.Contains(t, console.String(), "contract_id=c1")
	assert.NotContains(t, console.String(), "hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &rec))
	assert.Equal(t, "version uploaded", rec["msg"])
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "req-1", RequestID(ctx))
}

func TestSetupWritesFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "pact.log")
	logger, cleanup, err := Setup(Config{Level: "info", File: path})
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"hello"`))

	_, _, err = Setup(Config{Level: "nope"})
	assert.Error(t, err)
}
