package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: kodespace\nversion: 2.0.0\n"), 0o600))

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out

	require.NoError(t, app.Run(context.Background(), []string{"kodespace", "check", "--config", path}))
	assert.Equal(t, "kodespace 2.0.0: config ok (storage: clover)\n", out.String())
}

func TestCheckCommand_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: kodespace\nversion: 2.0.0\nlogger:\n  level: loud\n"), 0o600))

	app := newApp()
	app.Writer = &bytes.Buffer{}
	app.ErrWriter = &bytes.Buffer{}

	assert.Error(t, app.Run(context.Background(), []string{"kodespace", "check", "-c", path}))
	assert.Error(t, app.Run(context.Background(), []string{"kodespace", "check", "-c", filepath.Join(t.TempDir(), "nope.yml")}))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out

	require.NoError(t, app.Run(context.Background(), []string{"kodespace", "version"}))
	assert.Equal(t, "0.1.0-dev (commit: unknown, built: unknown)\n", out.String())
}

func TestOrUnknown(t *testing.T) {
	assert.Equal(t, "unknown", orUnknown(""))
	assert.Equal(t, "abc123", orUnknown("abc123"))
}
