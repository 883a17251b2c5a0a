package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-bol-filler/internal/naming"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ModeStdio, cfg.Mode)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "1.0.0", cfg.Version)
	assert.Equal(t, "mcp-bol-filler", cfg.ServerName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Equal(t, int64(50*1024*1024), cfg.MaxFileSize)
	assert.Equal(t, "BOL_All.zip", cfg.ArchiveName)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, "derived", cfg.NamePolicy)
	assert.Equal(t, 30*time.Minute, cfg.SourceTTL)

	currentDir, _ := os.Getwd()
	assert.Equal(t, currentDir, cfg.Directory)
}

func validConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.Directory = t.TempDir()
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{name: "valid stdio", modify: func(c *Config) {}},
		{name: "valid server", modify: func(c *Config) { c.Mode = ModeServer }},
		{name: "stdio ignores port", modify: func(c *Config) { c.Port = 0 }},
		{name: "invalid mode", modify: func(c *Config) { c.Mode = "invalid" }, wantErr: "mode must be"},
		{name: "invalid port", modify: func(c *Config) { c.Mode = ModeServer; c.Port = 70000 }, wantErr: "port must be"},
		{name: "empty directory", modify: func(c *Config) { c.Directory = "" }, wantErr: "directory cannot be empty"},
		{name: "zero max size", modify: func(c *Config) { c.MaxFileSize = 0 }, wantErr: "maximum file size"},
		{name: "bad log level", modify: func(c *Config) { c.LogLevel = "trace" }, wantErr: "invalid log level"},
		{name: "bad log format", modify: func(c *Config) { c.LogFormat = "xml" }, wantErr: "invalid log format"},
		{name: "zero workers", modify: func(c *Config) { c.Workers = 0 }, wantErr: "workers"},
		{name: "bad policy", modify: func(c *Config) { c.NamePolicy = "random" }, wantErr: "name policy"},
		{name: "archive not zip", modify: func(c *Config) { c.ArchiveName = "BOL_All.tar" }, wantErr: "archive name"},
		{name: "archive with dir", modify: func(c *Config) { c.ArchiveName = "out/BOL.zip" }, wantErr: "archive name"},
		{name: "zero ttl", modify: func(c *Config) { c.SourceTTL = 0 }, wantErr: "TTL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigValidate_CreatesDirectory(t *testing.T) {
	cfg := validConfig(t)
	cfg.Directory = filepath.Join(cfg.Directory, "nested", "bol")

	require.NoError(t, cfg.Validate())
	assert.DirExists(t, cfg.Directory)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	cfg.Directory = file
	assert.Error(t, cfg.Validate())
}

func TestConfigHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "0.0.0.0"
	cfg.Port = 9000
	assert.Equal(t, "0.0.0.0:9000", cfg.Address())
	assert.True(t, cfg.IsStdioMode())
	assert.False(t, cfg.IsServerMode())
	assert.False(t, cfg.IsDebug())
	assert.Equal(t, naming.PolicyDerived, cfg.Policy())

	cfg.Mode = ModeServer
	cfg.LogLevel = "debug"
	cfg.NamePolicy = "indexed"
	assert.True(t, cfg.IsServerMode())
	assert.True(t, cfg.IsDebug())
	assert.Equal(t, naming.PolicyIndexed, cfg.Policy())
	assert.Contains(t, cfg.String(), "Mode: server")
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load("mcp-bol-filler", []string{"--dir=" + dir})
	require.NoError(t, err)

	assert.Equal(t, ModeStdio, cfg.Mode)
	assert.Equal(t, dir, cfg.Directory)
	assert.Equal(t, int64(DefaultMaxFileSize), cfg.MaxFileSize)
	assert.Equal(t, DefaultArchiveName, cfg.ArchiveName)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, DefaultSourceTTL, cfg.SourceTTL)
}

func TestLoad_Flags(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load("mcp-bol-filler", []string{
		"--mode=server", "--host=0.0.0.0", "--port=9090", "--dir=" + dir,
		"--log-level=debug", "--log-format=json", "--max-file-size=2048",
		"--archive-name=week.zip", "--workers=4", "--name-policy=indexed", "--source-ttl=5m",
	})
	require.NoError(t, err)

	assert.Equal(t, ModeServer, cfg.Mode)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
	assert.Equal(t, int64(2048), cfg.MaxFileSize)
	assert.Equal(t, "week.zip", cfg.ArchiveName)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, naming.PolicyIndexed, cfg.Policy())
	assert.Equal(t, 5*time.Minute, cfg.SourceTTL)
}

func TestLoad_Environment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BOL_MODE", "server")
	t.Setenv("BOL_PORT", "9191")
	t.Setenv("BOL_DIR", dir)
	t.Setenv("BOL_WORKERS", "3")
	t.Setenv("BOL_NAMEPOLICY", "indexed")
	t.Setenv("BOL_SOURCETTL", "90s")
	t.Setenv("BOL_LOGLEVEL", "WARN")

	cfg, err := Load("mcp-bol-filler", nil)
	require.NoError(t, err)
	assert.Equal(t, ModeServer, cfg.Mode)
	assert.Equal(t, 9191, cfg.Port)
	assert.Equal(t, dir, cfg.Directory)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "indexed", cfg.NamePolicy)
	assert.Equal(t, 90*time.Second, cfg.SourceTTL)
	assert.Equal(t, "warn", cfg.LogLevel)

	// Flags win over the environment.
	cfg, err = Load("mcp-bol-filler", []string{"--port=7000", "--workers=2"})
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 2, cfg.Workers)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{name: "invalid mode", args: []string{"--mode=invalid", "--dir=" + dir}},
		{name: "invalid port", args: []string{"--mode=server", "--port=99999", "--dir=" + dir}},
		{name: "invalid workers", args: []string{"--workers=0", "--dir=" + dir}},
		{name: "unknown flag", args: []string{"--nope"}},
		{name: "bad value", args: []string{"--port=abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("mcp-bol-filler", tt.args)
			assert.Error(t, err)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, loadDotEnv(filepath.Join(dir, "missing.env")))

	t.Setenv("BOL_DOTENV_KEEP", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("BOL_DOTENV_ADDED") })
	valid := filepath.Join(dir, "valid.env")
	require.NoError(t, os.WriteFile(valid, []byte("BOL_DOTENV_KEEP=from-file\nBOL_DOTENV_ADDED=yes\n"), 0o644))
	require.NoError(t, loadDotEnv(valid))
	assert.Equal(t, "from-env", os.Getenv("BOL_DOTENV_KEEP"), "environment wins over the file")
	assert.Equal(t, "yes", os.Getenv("BOL_DOTENV_ADDED"))

	malformed := filepath.Join(dir, "malformed.env")
	require.NoError(t, os.WriteFile(malformed, []byte("!!!\n"), 0o644))
	err := loadDotEnv(malformed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed.env")
}

func TestLoad_Version(t *testing.T) {
	for _, arg := range []string{"--version", "-version", "-v"} {
		_, err := Load("mcp-bol-filler", []string{arg})
		assert.ErrorIs(t, err, ErrVersionRequested, arg)
	}
}
