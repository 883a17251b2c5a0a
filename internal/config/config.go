package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/a3tai/mcp-bol-filler/internal/naming"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Log formats
	LogFormatText = "text"
	LogFormatJSON = "json"

	// Default values
	DefaultPort        = 8080
	DefaultHost        = "127.0.0.1"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = LogFormatText
	DefaultMaxFileSize = 50 * 1024 * 1024 // 50MB
	DefaultArchiveName = "BOL_All.zip"
	DefaultWorkers     = 1
	DefaultSourceTTL   = 30 * time.Minute

	// Directory permissions
	DefaultDirPerm = 0o750

	// EnvPrefix prefixes every environment variable, e.g. BOL_PORT.
	EnvPrefix = "BOL"
)

// ErrVersionRequested is returned by Load when --version was given.
var ErrVersionRequested = errors.New("version requested")

// Config holds all configuration for the BOL filler
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// Working directory for templates, spreadsheets and outputs
	Directory string

	// Generation
	MaxFileSize int64 // Maximum template/spreadsheet size in bytes
	ArchiveName string
	Workers     int
	NamePolicy  string

	// Uploaded spreadsheets are kept this long in server mode
	SourceTTL time.Duration

	// Application configuration
	Version    string
	ServerName string
	LogLevel   string
	LogFormat  string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:        ModeStdio, // Default to stdio mode for MCP compatibility
		Host:        DefaultHost,
		Port:        DefaultPort,
		Directory:   currentDir,
		MaxFileSize: DefaultMaxFileSize,
		ArchiveName: DefaultArchiveName,
		Workers:     DefaultWorkers,
		NamePolicy:  string(naming.PolicyDerived),
		SourceTTL:   DefaultSourceTTL,
		Version:     "1.0.0",
		ServerName:  "mcp-bol-filler",
		LogLevel:    DefaultLogLevel,
		LogFormat:   DefaultLogFormat,
	}
}

// LoadFromFlags loads .env, then parses the process arguments and
// environment into a validated configuration
func LoadFromFlags() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	return Load(os.Args[0], os.Args[1:])
}

// loadDotEnv adds the variables of a dotenv file to the environment.
// Variables already set win, and a missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load parses args (without the program name) on top of defaults and BOL_*
// environment variables. Flags take precedence over the environment.
func Load(program string, args []string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setupViperEnvironment(v, cfg)

	flags := pflag.NewFlagSet(program, pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	defineCommandLineFlags(flags, cfg)
	flags.Usage = usage(program, flags)

	if err := checkVersionFlag(args); err != nil {
		return nil, err
	}

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	if err := bindFlagsToViper(v, flags); err != nil {
		return nil, err
	}

	populateConfigFromViper(v, cfg)

	if cfg.Directory != "" {
		if expandedPath, err := filepath.Abs(cfg.Directory); err == nil {
			cfg.Directory = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(v *viper.Viper, cfg *Config) {
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("dir", cfg.Directory)
	v.SetDefault("loglevel", cfg.LogLevel)
	v.SetDefault("logformat", cfg.LogFormat)
	v.SetDefault("maxfilesize", cfg.MaxFileSize)
	v.SetDefault("archivename", cfg.ArchiveName)
	v.SetDefault("workers", cfg.Workers)
	v.SetDefault("namepolicy", cfg.NamePolicy)
	v.SetDefault("sourcettl", cfg.SourceTTL)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(flags *pflag.FlagSet, cfg *Config) {
	flags.String("mode", cfg.Mode, "Run mode: 'stdio' for MCP standard I/O, 'server' for the HTTP API")
	flags.String("host", cfg.Host, "Server host address (server mode only)")
	flags.Int("port", cfg.Port, "Server port (server mode only)")
	flags.String("dir", cfg.Directory, "Working directory for templates, spreadsheets and outputs")
	flags.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flags.String("log-format", cfg.LogFormat, "Log format (text, json)")
	flags.Int64("max-file-size", cfg.MaxFileSize, "Maximum template or spreadsheet size in bytes")
	flags.String("archive-name", cfg.ArchiveName, "File name of the generated archive")
	flags.Int("workers", cfg.Workers, "Number of rows filled concurrently")
	flags.String("name-policy", cfg.NamePolicy, "Output naming: 'derived' or 'indexed' (row number always appended)")
	flags.Duration("source-ttl", cfg.SourceTTL, "How long uploaded spreadsheets are kept (server mode only)")
}

// flagKeys maps flag names to viper keys (and so to BOL_<KEY> variables).
var flagKeys = map[string]string{
	"mode":          "mode",
	"host":          "host",
	"port":          "port",
	"dir":           "dir",
	"log-level":     "loglevel",
	"log-format":    "logformat",
	"max-file-size": "maxfilesize",
	"archive-name":  "archivename",
	"workers":       "workers",
	"name-policy":   "namepolicy",
	"source-ttl":    "sourcettl",
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper(v *viper.Viper, flags *pflag.FlagSet) error {
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// usage returns the custom usage message
func usage(program string, flags *pflag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", program)
		fmt.Fprintf(os.Stderr, "\nBOL filler - fills Bill of Lading templates from spreadsheet rows\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flags.SetOutput(os.Stderr)
		flags.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                  # MCP over stdio, current directory\n", program)
		fmt.Fprintf(os.Stderr, "  %s --dir=/srv/bol                   # MCP over stdio, custom directory\n", program)
		fmt.Fprintf(os.Stderr, "  %s --mode=server --port=8081        # HTTP API\n", program)
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables (also read from .env):\n")
		for _, key := range []string{"mode", "host", "port", "dir", "loglevel", "logformat",
			"maxfilesize", "archivename", "workers", "namepolicy", "sourcettl"} {
			fmt.Fprintf(os.Stderr, "  %s_%s\n", EnvPrefix, strings.ToUpper(key))
		}
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag(args []string) error {
	for _, arg := range args {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return ErrVersionRequested
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(v *viper.Viper, cfg *Config) {
	cfg.Mode = v.GetString("mode")
	cfg.Host = v.GetString("host")
	cfg.Port = v.GetInt("port")
	cfg.Directory = v.GetString("dir")
	cfg.LogLevel = strings.ToLower(v.GetString("loglevel"))
	cfg.LogFormat = strings.ToLower(v.GetString("logformat"))
	cfg.MaxFileSize = v.GetInt64("maxfilesize")
	cfg.ArchiveName = v.GetString("archivename")
	cfg.Workers = v.GetInt("workers")
	cfg.NamePolicy = strings.ToLower(v.GetString("namepolicy"))
	cfg.SourceTTL = v.GetDuration("sourcettl")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Port only matters for the HTTP API
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.Directory == "" {
		return errors.New("directory cannot be empty")
	}

	// Create the working directory if it doesn't exist
	if info, err := os.Stat(c.Directory); os.IsNotExist(err) {
		if err := os.MkdirAll(c.Directory, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", c.Directory, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access directory %s: %w", c.Directory, err)
	} else if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", c.Directory)
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		return fmt.Errorf("invalid log format: %s (must be one of: text, json)", c.LogFormat)
	}

	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}

	if _, err := naming.ParsePolicy(c.NamePolicy); err != nil {
		return err
	}

	if !strings.HasSuffix(strings.ToLower(c.ArchiveName), ".zip") || filepath.Base(c.ArchiveName) != c.ArchiveName {
		return fmt.Errorf("invalid archive name: %q (must be a plain file name ending in .zip)", c.ArchiveName)
	}

	if c.SourceTTL <= 0 {
		return errors.New("source TTL must be positive")
	}

	return nil
}

// Policy returns the parsed name policy
func (c *Config) Policy() naming.Policy {
	p, err := naming.ParsePolicy(c.NamePolicy)
	if err != nil {
		return naming.PolicyDerived
	}
	return p
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, Directory: %s, LogLevel: %s, MaxFileSize: %d, "+
		"Workers: %d, NamePolicy: %s}",
		c.Mode, c.Host, c.Port, c.Directory, c.LogLevel, c.MaxFileSize, c.Workers, c.NamePolicy)
}

// IsServerMode returns true if the HTTP API should be served
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if MCP should be served over stdio
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
