package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daybrief/internal/domain/digest"
)

func TestWriteEnvelopeToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digest.json")
	env := &digest.Envelope{
		RunID:  "run-1",
		Status: digest.StatusComplete,
		Digest: digest.Document{Title: "Morning Digest"},
	}

	require.NoError(t, writeEnvelope(env, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded digest.Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, digest.StatusComplete, decoded.Status)
	assert.Equal(t, "Morning Digest", decoded.Digest.Title)
}

func TestRunExitCode(t *testing.T) {
	assert.Equal(t, 0, runExitCode(digest.StatusComplete))
	assert.Equal(t, 0, runExitCode(digest.StatusDegraded), "a degraded run still produced a digest")
	assert.Equal(t, 1, runExitCode(digest.StatusFallback))
}
