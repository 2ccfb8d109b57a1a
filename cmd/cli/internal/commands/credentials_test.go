package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgmembers/cmd/cli/internal/credentials"
)

func newGlobals() (*Globals, *bytes.Buffer) {
	var out bytes.Buffer
	return &Globals{Output: "table", Stdout: &out}, &out
}

func seedStore(t *testing.T, dir string, names ...string) *credentials.Store {
	t.Helper()

	store, err := credentials.NewStore(dir)
	require.NoError(t, err)

	for _, name := range names {
		_, err := store.Create(name, name+"@example.com")
		require.NoError(t, err)
	}
	return store
}

func TestCredentialsInitCmd(t *testing.T) {
	t.Run("creates and becomes default", func(t *testing.T) {
		tmpDir := t.TempDir()
		globals, out := newGlobals()

		cmd := &CredentialsInitCmd{Name: "work", Email: "alice@example.com", OutputDir: tmpDir}
		require.NoError(t, cmd.Run(context.Background(), globals))

		assert.Contains(t, out.String(), "Generated credential: work")
		assert.Contains(t, out.String(), "BEGIN PUBLIC KEY")

		store, err := credentials.NewStore(tmpDir)
		require.NoError(t, err)
		cred, err := store.GetDefault()
		require.NoError(t, err)
		assert.Equal(t, "work", cred.Name)
		assert.Equal(t, "alice@example.com", cred.Email)
	})

	t.Run("duplicate", func(t *testing.T) {
		tmpDir := t.TempDir()
		seedStore(t, tmpDir, "work")
		globals, _ := newGlobals()

		cmd := &CredentialsInitCmd{Name: "work", Email: "alice@example.com", OutputDir: tmpDir}
		err := cmd.Run(context.Background(), globals)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})

	t.Run("set default", func(t *testing.T) {
		tmpDir := t.TempDir()
		store := seedStore(t, tmpDir, "first")
		globals, _ := newGlobals()

		cmd := &CredentialsInitCmd{Name: "second", Email: "bob@example.com", SetDefault: true, OutputDir: tmpDir}
		require.NoError(t, cmd.Run(context.Background(), globals))

		cred, err := store.GetDefault()
		require.NoError(t, err)
		assert.Equal(t, "second", cred.Name)
	})
}

func TestCredentialsListCmd(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		globals, out := newGlobals()

		cmd := &CredentialsListCmd{OutputDir: t.TempDir()}
		require.NoError(t, cmd.Run(context.Background(), globals))
		assert.Contains(t, out.String(), "No credentials found.")
	})

	t.Run("table marks the default", func(t *testing.T) {
		tmpDir := t.TempDir()
		seedStore(t, tmpDir, "one", "two")
		globals, out := newGlobals()

		cmd := &CredentialsListCmd{OutputDir: tmpDir}
		require.NoError(t, cmd.Run(context.Background(), globals))

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, lines[0], "NAME")
		assert.Contains(t, out.String(), "one@example.com")
		assert.Contains(t, out.String(), "*")
	})

	t.Run("json", func(t *testing.T) {
		tmpDir := t.TempDir()
		seedStore(t, tmpDir, "one")
		globals, out := newGlobals()
		globals.Output = "json"

		cmd := &CredentialsListCmd{OutputDir: tmpDir}
		require.NoError(t, cmd.Run(context.Background(), globals))

		var creds []credentials.Credential
		require.NoError(t, json.Unmarshal(out.Bytes(), &creds))
		require.Len(t, creds, 1)
		assert.Equal(t, "one", creds[0].Name)
	})
}

func TestCredentialsShowCmd(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		tmpDir := t.TempDir()
		seedStore(t, tmpDir, "work")
		globals, out := newGlobals()

		cmd := &CredentialsShowCmd{Name: "work", OutputDir: tmpDir}
		require.NoError(t, cmd.Run(context.Background(), globals))
		assert.Contains(t, out.String(), "work@example.com")
	})

	t.Run("not found", func(t *testing.T) {
		globals, _ := newGlobals()

		cmd := &CredentialsShowCmd{Name: "nonexistent", OutputDir: t.TempDir()}
		err := cmd.Run(context.Background(), globals)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestCredentialsUpdateCmd(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		tmpDir := t.TempDir()
		store := seedStore(t, tmpDir, "work")
		globals, _ := newGlobals()

		cmd := &CredentialsUpdateCmd{Name: "work", Email: "new@example.com", OutputDir: tmpDir}
		require.NoError(t, cmd.Run(context.Background(), globals))

		cred, err := store.Get("work")
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", cred.Email)
	})

	t.Run("not found", func(t *testing.T) {
		globals, _ := newGlobals()

		cmd := &CredentialsUpdateCmd{Name: "nonexistent", Email: "new@example.com", OutputDir: t.TempDir()}
		err := cmd.Run(context.Background(), globals)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestCredentialsDeleteCmd(t *testing.T) {
	t.Run("force", func(t *testing.T) {
		tmpDir := t.TempDir()
		store := seedStore(t, tmpDir, "work")
		globals, _ := newGlobals()

		cmd := &CredentialsDeleteCmd{Name: "work", Force: true, OutputDir: tmpDir}
		require.NoError(t, cmd.Run(context.Background(), globals))

		_, err := store.Get("work")
		assert.ErrorIs(t, err, credentials.ErrCredentialNotFound)
	})

	t.Run("declined", func(t *testing.T) {
		tmpDir := t.TempDir()
		store := seedStore(t, tmpDir, "work")
		globals, out := newGlobals()

		cmd := &CredentialsDeleteCmd{Name: "work", OutputDir: tmpDir, stdin: strings.NewReader("n\n")}
		require.NoError(t, cmd.Run(context.Background(), globals))
		assert.Contains(t, out.String(), "Aborted.")

		_, err := store.Get("work")
		require.NoError(t, err)
	})

	t.Run("confirmed", func(t *testing.T) {
		tmpDir := t.TempDir()
		store := seedStore(t, tmpDir, "work")
		globals, _ := newGlobals()

		cmd := &CredentialsDeleteCmd{Name: "work", OutputDir: tmpDir, stdin: strings.NewReader("y\n")}
		require.NoError(t, cmd.Run(context.Background(), globals))

		_, err := store.Get("work")
		assert.ErrorIs(t, err, credentials.ErrCredentialNotFound)
	})

	t.Run("not found", func(t *testing.T) {
		globals, _ := newGlobals()

		cmd := &CredentialsDeleteCmd{Name: "nonexistent", Force: true, OutputDir: t.TempDir()}
		err := cmd.Run(context.Background(), globals)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestCredentialsSetDefaultCmd(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		tmpDir := t.TempDir()
		store := seedStore(t, tmpDir, "one", "two")
		globals, _ := newGlobals()

		cmd := &CredentialsSetDefaultCmd{Name: "two", OutputDir: tmpDir}
		require.NoError(t, cmd.Run(context.Background(), globals))

		defaultCred, err := store.GetDefault()
		require.NoError(t, err)
		assert.Equal(t, "two", defaultCred.Name)
	})

	t.Run("not found", func(t *testing.T) {
		globals, _ := newGlobals()

		cmd := &CredentialsSetDefaultCmd{Name: "nonexistent", OutputDir: t.TempDir()}
		err := cmd.Run(context.Background(), globals)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}
