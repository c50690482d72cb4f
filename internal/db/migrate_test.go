package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreReversible(t *testing.T) {
	files, err := fs.Glob(migrations, migrationsDir+"/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, name := range files {
		contents, err := fs.ReadFile(migrations, name)
		require.NoError(t, err)
		body := string(contents)
		assert.True(t, strings.Contains(body, "-- +goose Up"), name)
		assert.True(t, strings.Contains(body, "-- +goose Down"), name)
	}
}

func TestConnectRejectsInvalidURL(t *testing.T) {
	_, err := Connect(t.Context(), "://not-a-url", 0)
	require.Error(t, err)
}
