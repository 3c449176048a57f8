package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/filevault/migrations"
)

func TestOptionsDSN(t *testing.T) {
	dsn := Options{User: "app", Pass: "p@ss", Host: "db", Port: "3306", Name: "filevault"}.DSN()

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "app", cfg.User)
	assert.Equal(t, "p@ss", cfg.Passwd)
	assert.Equal(t, "db:3306", cfg.Addr)
	assert.Equal(t, "filevault", cfg.DBName)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, "UTC", cfg.Loc.String())
}

func TestEmbeddedSchema(t *testing.T) {
	b, err := fs.ReadFile(migrations.FS, "00001_init.sql")
	require.NoError(t, err)
	schema := string(b)

	assert.True(t, strings.HasPrefix(schema, "-- +goose Up"))
	for _, want := range []string{
		"CREATE TABLE users",
		"CREATE TABLE token_pairs",
		"CREATE TABLE files",
		"UNIQUE KEY uq_token_refresh (refresh_token_hash)",
		"KEY idx_token_user_device (user_id, device_id)",
		"KEY idx_token_revoked_expires (is_revoked, expires_at)",
		"UNIQUE KEY uq_files_storage_name (storage_name)",
	} {
		assert.Contains(t, schema, want)
	}
}
