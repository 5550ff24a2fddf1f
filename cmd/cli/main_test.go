package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/wormhole/internal/cli"
)

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	args := []string{"-h"}
	out := &bytes.Buffer{}

	err := run(context.Background(), out, args)

	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	args := []string{"--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}

	err := run(context.Background(), out, args)

	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_InvalidConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wormhole.hcl")
	require.NoError(t, os.WriteFile(path, []byte("server {\n  url = \n"), 0o600))

	err := run(context.Background(), &bytes.Buffer{}, []string{path})

	var exitErr *cli.ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, 2, exitErr.Code)
	require.Contains(t, exitErr.Message, "failed to parse")
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	// Nothing listens on the port; the app keeps redialing until cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	out := &bytes.Buffer{}

	err := run(ctx, out, []string{"-url", "ws://127.0.0.1:1/poll", "-render", "none"})

	require.NoError(t, err)
	require.Contains(t, out.String(), "Connection lost, reconnecting.")
}
