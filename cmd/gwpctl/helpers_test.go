package main

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.Bytes()
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	out := <-done
	return string(out), fnErr
}

// withJSON runs fn with --json set.
func withJSON(t *testing.T, fn func()) {
	t.Helper()
	old := jsonOut
	jsonOut = true
	defer func() { jsonOut = old }()
	fn()
}

// skipUnavailable skips tests that need real page mappings.
func skipUnavailable(t *testing.T, err error) {
	t.Helper()
	if errors.Is(err, errUnavailable) {
		t.Skip(err)
	}
}
