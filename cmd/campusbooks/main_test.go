package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahinestrog/campusbooks/internal/auth"
	"github.com/ahinestrog/campusbooks/internal/config"
)

func executeRootCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func useTempDB(t *testing.T) {
	t.Setenv("CAMPUSBOOKS_DB_PATH", filepath.Join(t.TempDir(), "data", "campusbooks.db"))
}

func Test_Migrate_CreatesDatabase(t *testing.T) {
	useTempDB(t)

	out, err := executeRootCommand(t, "migrate")

	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date")
}

func Test_Roles_GrantAndShow(t *testing.T) {
	// setup
	useTempDB(t)

	// act
	before, err := executeRootCommand(t, "roles", "show", "user-7")
	require.NoError(t, err)
	granted, err := executeRootCommand(t, "roles", "grant", "user-7", "admin")
	require.NoError(t, err)
	after, err := executeRootCommand(t, "roles", "show", "user-7")
	require.NoError(t, err)
	_, badRole := executeRootCommand(t, "roles", "grant", "user-7", "dean")

	// assert
	assert.Equal(t, "user-7 has no role\n", before)
	assert.Equal(t, "user-7 is now admin\n", granted)
	assert.Equal(t, "admin\n", after)
	assert.ErrorContains(t, badRole, "unknown role")
}

func Test_Token_IsAcceptedByVerifier(t *testing.T) {
	// setup
	t.Setenv("AUTH_JWT_SECRET", "dev-secret")

	// act
	out, err := executeRootCommand(t, "token", "prof-9", "--email", "p9@campus.edu", "--ttl", "1h")

	// assert
	require.NoError(t, err)
	id, err := auth.NewVerifier("dev-secret", "").Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{UserID: "prof-9", Email: "p9@campus.edu"}, id)
}

func Test_Token_RequiresSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := executeRootCommand(t, "token", "prof-9")

	assert.ErrorIs(t, err, errMissingSecret)
}

func Test_Serve_RejectsInvalidConfig(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	useTempDB(t)

	_, err := executeRootCommand(t, "serve")

	assert.ErrorContains(t, err, "AUTH_JWT_SECRET")
}

func Test_NewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{ServiceName: "campusbooks", LogLevel: "warn", LogFormat: "json"}

	logger := newLogger(cfg, &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"service":"campusbooks"`)
	assert.Contains(t, buf.String(), "shown")
}
