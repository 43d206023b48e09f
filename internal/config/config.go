// Package config provides configuration management for clipforge.
// Configuration is loaded from environment variables with sensible
// defaults; a local .env file is honoured when present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort     = 8877
	DefaultLogLevel = "info"
	DefaultDataDir  = ".clipforge"

	// Environment variable names
	EnvPort     = "CLIPFORGE_PORT"
	EnvLogLevel = "CLIPFORGE_LOG_LEVEL"
	EnvDataDir  = "CLIPFORGE_DATA_DIR"

	EnvFFmpeg       = "CLIPFORGE_FFMPEG"
	EnvFFprobe      = "CLIPFORGE_FFPROBE"
	EnvWhisperBin   = "CLIPFORGE_WHISPER_BIN"
	EnvWhisperModel = "CLIPFORGE_WHISPER_MODEL"

	EnvPlanningBaseURL = "CLIPFORGE_PLANNING_URL"
	EnvPlanningToken   = "CLIPFORGE_PLANNING_TOKEN"

	EnvSessionTTLHours = "CLIPFORGE_SESSION_TTL_HOURS"

	// Database filename
	DBFilename = "clipforge.db"

	// Timeouts and lifecycle defaults
	DefaultSessionTTLHours      = 24
	DefaultProbeTimeoutSec      = 60
	DefaultTranscribeTimeoutSec = 1800 // 30 minutes
	DefaultRenderTimeoutSec     = 900  // 15 minutes
	DefaultPlanningTimeoutSec   = 120
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	OutputDir() string
	WorkDir() string

	FFmpegPath() string
	FFprobePath() string
	WhisperBin() string
	WhisperModel() string

	PlanningBaseURL() string
	PlanningToken() string
	PlanningTimeout() time.Duration

	SessionTTL() time.Duration
	ProbeTimeout() time.Duration
	TranscribeTimeout() time.Duration
	RenderTimeout() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port       int
	logLevel   string
	dataDir    string
	ffmpeg     string
	ffprobe    string
	whisperBin string
	whisperMdl string

	planningBaseURL string
	planningToken   string

	sessionTTL time.Duration
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	// Best-effort .env load; absence is not an error.
	_ = godotenv.Load()

	cfg := &EnvConfig{
		port:       DefaultPort,
		logLevel:   DefaultLogLevel,
		dataDir:    defaultDataDir(),
		ffmpeg:     "ffmpeg",
		ffprobe:    "ffprobe",
		whisperBin: "whisper-cli",
		sessionTTL: DefaultSessionTTLHours * time.Hour,
	}

	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: %q", EnvPort, v)
		}
		cfg.port = port
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.logLevel = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.dataDir = v
	}
	if v := os.Getenv(EnvFFmpeg); v != "" {
		cfg.ffmpeg = v
	}
	if v := os.Getenv(EnvFFprobe); v != "" {
		cfg.ffprobe = v
	}
	if v := os.Getenv(EnvWhisperBin); v != "" {
		cfg.whisperBin = v
	}
	if v := os.Getenv(EnvWhisperModel); v != "" {
		cfg.whisperMdl = v
	}
	if v := os.Getenv(EnvPlanningBaseURL); v != "" {
		cfg.planningBaseURL = v
	}
	if v := os.Getenv(EnvPlanningToken); v != "" {
		cfg.planningToken = v
	}
	if v := os.Getenv(EnvSessionTTLHours); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			return nil, fmt.Errorf("invalid %s: %q", EnvSessionTTLHours, v)
		}
		cfg.sessionTTL = time.Duration(hours) * time.Hour
	}

	return cfg, nil
}

func (c *EnvConfig) Port() int        { return c.port }
func (c *EnvConfig) LogLevel() string { return c.logLevel }
func (c *EnvConfig) DataDir() string  { return c.dataDir }

func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

func (c *EnvConfig) OutputDir() string {
	return filepath.Join(c.dataDir, "renders")
}

func (c *EnvConfig) WorkDir() string {
	return filepath.Join(c.dataDir, "work")
}

func (c *EnvConfig) FFmpegPath() string   { return c.ffmpeg }
func (c *EnvConfig) FFprobePath() string  { return c.ffprobe }
func (c *EnvConfig) WhisperBin() string   { return c.whisperBin }
func (c *EnvConfig) WhisperModel() string { return c.whisperMdl }

func (c *EnvConfig) PlanningBaseURL() string { return c.planningBaseURL }
func (c *EnvConfig) PlanningToken() string   { return c.planningToken }

func (c *EnvConfig) PlanningTimeout() time.Duration {
	return time.Duration(DefaultPlanningTimeoutSec) * time.Second
}

func (c *EnvConfig) SessionTTL() time.Duration { return c.sessionTTL }

func (c *EnvConfig) ProbeTimeout() time.Duration {
	return time.Duration(DefaultProbeTimeoutSec) * time.Second
}

func (c *EnvConfig) TranscribeTimeout() time.Duration {
	return time.Duration(DefaultTranscribeTimeoutSec) * time.Second
}

func (c *EnvConfig) RenderTimeout() time.Duration {
	return time.Duration(DefaultRenderTimeoutSec) * time.Second
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
