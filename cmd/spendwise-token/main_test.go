package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/auth"
	"spendwise/internal/storage"
)

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

func TestIssueAndRevoke(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tokens.db")
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	err := run([]string{"issue", "-owner", "alice", "-label", "laptop", "-backend", "sqlite", "-db", dbPath},
		new(bytes.Buffer), stdout, stderr)
	require.NoError(t, err, stderr.String())
	assert.Contains(t, stdout.String(), "issued for alice")

	raw := lastLine(stdout.String())
	id, _, ok := auth.ParseToken(raw)
	require.True(t, ok, "token %q", raw)

	repo, err := storage.NewSQLiteRepository(dbPath)
	require.NoError(t, err)
	owner, err := auth.NewTokenVerifier(repo).Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)
	require.NoError(t, repo.Close())

	stdout.Reset()
	err = run([]string{"revoke", "-id", id, "-backend", "sqlite", "-db", dbPath}, nil, stdout, stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "revoked")

	err = run([]string{"revoke", "-id", id, "-backend", "sqlite", "-db", dbPath}, nil, stdout, stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestIssueWithPromptedSecret(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tokens.db")
	stdout := new(bytes.Buffer)

	stdin := bytes.NewBufferString("correct-horse-battery\n")
	err := run([]string{"issue", "-owner", "bob", "-prompt", "-backend", "sqlite", "-db", dbPath},
		stdin, stdout, new(bytes.Buffer))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(lastLine(stdout.String()), "_correct-horse-battery"))
}

func TestIssueRejectsWeakSecret(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tokens.db")

	err := run([]string{"issue", "-owner", "bob", "-prompt", "-backend", "sqlite", "-db", dbPath},
		bytes.NewBufferString("short\n"), new(bytes.Buffer), new(bytes.Buffer))
	assert.ErrorIs(t, err, auth.ErrWeakSecret)
}

func TestUsageErrors(t *testing.T) {
	stderr := new(bytes.Buffer)

	err := run(nil, nil, new(bytes.Buffer), stderr)
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "Usage:")

	err = run([]string{"issue"}, nil, new(bytes.Buffer), new(bytes.Buffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required flag: owner")

	err = run([]string{"revoke"}, nil, new(bytes.Buffer), new(bytes.Buffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required flag: id")

	err = run([]string{"issue", "-owner", "x", "-backend", "memory"}, nil, new(bytes.Buffer), new(bytes.Buffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory backend")

	err = run([]string{"explode"}, nil, new(bytes.Buffer), new(bytes.Buffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}
