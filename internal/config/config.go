package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the live client
type Config struct {
	// Generative live API configuration
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY" required:"true"`
	Model        string `envconfig:"MODEL" default:"gemini-2.0-flash-live-001"`
	Voice        string `envconfig:"VOICE" default:"Zephyr"`         // Zephyr, Puck, Charon, Kore, Fenrir
	SystemPrompt string `envconfig:"SYSTEM_PROMPT" default:""`       // Free-text system instruction

	// Audio configuration
	InputSampleRate  int `envconfig:"INPUT_SAMPLE_RATE" default:"16000"`  // Microphone capture rate
	OutputSampleRate int `envconfig:"OUTPUT_SAMPLE_RATE" default:"24000"` // Response playback rate
	BlockSamples     int `envconfig:"BLOCK_SAMPLES" default:"4096"`       // Microphone block size in samples

	// Video configuration
	VideoEnabled    bool   `envconfig:"VIDEO_ENABLED" default:"false"`
	FramesPerSecond int    `envconfig:"FRAMES_PER_SECOND" default:"2"`
	CameraDevice    string `envconfig:"CAMERA_DEVICE" default:"/dev/video0"`

	// Recording configuration
	RecordingDir  string  `envconfig:"RECORDING_DIR" default:"."`
	UserGain      float64 `envconfig:"USER_GAIN" default:"1.0"`      // Microphone track gain
	AssistantGain float64 `envconfig:"ASSISTANT_GAIN" default:"2.0"` // Response track gain

	// External tools
	FFmpegPath string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FFplayPath string `envconfig:"FFPLAY_PATH" default:"ffplay"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
	MetricsPort    string `envconfig:"METRICS_PORT" default:"9090"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if cfg.InputSampleRate <= 0 || cfg.OutputSampleRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive")
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
