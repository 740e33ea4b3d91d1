package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds boothd configuration, loaded from the environment (.env if
// present).
type Config struct {
	AppEnv   string // APP_ENV
	HTTPPort string // PORT
	LogLevel string // LOG_LEVEL

	// Device identity, assigned at pairing.
	DeviceID  string // DEVICE_ID
	ExpoName  string // EXPO_NAME
	BoothName string // BOOTH_NAME

	// Local session store.
	DB struct {
		Type       string // sqlite or postgres
		Host       string
		Port       int
		User       string
		Password   string
		Name       string
		SQLitePath string
	}

	// Captured media files.
	MediaDir     string // MEDIA_DIR
	MediaBackend string // MEDIA_BACKEND: local or s3

	// S3 archive backend (used when MediaBackend is "s3").
	S3 struct {
		Region          string
		Bucket          string
		AccessKeyID     string
		SecretAccessKey string
	}

	// Remote service.
	CloudBaseURL   string        // CLOUD_API_URL
	UploadTimeout  time.Duration // UPLOAD_TIMEOUT_SECONDS
	HealthInterval time.Duration // HEALTH_INTERVAL_SECONDS

	// Capture.
	FrameRate        int           // FRAME_RATE, nominal software counter rate
	StopPollInterval time.Duration // media handle poll period after capture stop
	StopPollAttempts int           // bounded number of polls before giving up
	FFmpegPath       string        // FFMPEG_PATH
	VideoInput       string        // VIDEO_INPUT_DEVICE
	AudioInput       string        // AUDIO_INPUT_DEVICE

	// Promote automatically after finalize when the device is online.
	AutoPromote bool // AUTO_PROMOTE
}

// Load loads config from the environment, with development defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	uploadTO, _ := strconv.Atoi(getEnv("UPLOAD_TIMEOUT_SECONDS", "300"))
	healthIv, _ := strconv.Atoi(getEnv("HEALTH_INTERVAL_SECONDS", "15"))
	frameRate, _ := strconv.Atoi(getEnv("FRAME_RATE", "30"))
	pollMs, _ := strconv.Atoi(getEnv("STOP_POLL_INTERVAL_MS", "200"))
	pollN, _ := strconv.Atoi(getEnv("STOP_POLL_ATTEMPTS", "15"))

	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		HTTPPort:         getEnv("PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DeviceID:         getEnv("DEVICE_ID", ""),
		ExpoName:         getEnv("EXPO_NAME", "Default Expo"),
		BoothName:        getEnv("BOOTH_NAME", "Default Booth"),
		MediaDir:         getEnv("MEDIA_DIR", "./media"),
		MediaBackend:     getEnv("MEDIA_BACKEND", "local"),
		CloudBaseURL:     getEnv("CLOUD_API_URL", ""),
		UploadTimeout:    time.Duration(uploadTO) * time.Second,
		HealthInterval:   time.Duration(healthIv) * time.Second,
		FrameRate:        frameRate,
		StopPollInterval: time.Duration(pollMs) * time.Millisecond,
		StopPollAttempts: pollN,
		FFmpegPath:       getEnv("FFMPEG_PATH", "ffmpeg"),
		VideoInput:       getEnv("VIDEO_INPUT_DEVICE", ""),
		AudioInput:       getEnv("AUDIO_INPUT_DEVICE", ""),
		AutoPromote:      getEnv("AUTO_PROMOTE", "true") == "true",
	}

	cfg.DB.Type = getEnv("DB_TYPE", "sqlite")
	if cfg.DB.Type == "postgres" {
		cfg.DB.Host = getEnv("DB_HOST", "localhost")
		dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
		if err != nil {
			return nil, fmt.Errorf("config: invalid DB_PORT: %w", err)
		}
		cfg.DB.Port = dbPort
		cfg.DB.User = getEnv("DB_USER", "booth")
		cfg.DB.Password = getEnv("DB_PASSWORD", "")
		cfg.DB.Name = getEnv("DB_NAME", "booth")
	} else {
		cfg.DB.SQLitePath = getEnv("DB_PATH", "./booth.db")
	}

	cfg.S3.Region = getEnv("AWS_REGION", "")
	cfg.S3.Bucket = getEnv("S3_MEDIA_BUCKET", "")
	cfg.S3.AccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.S3.SecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")

	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return errors.New("config: DEVICE_ID is required")
	}
	if c.CloudBaseURL == "" {
		return errors.New("config: CLOUD_API_URL is required")
	}
	if c.MediaBackend == "s3" && (c.S3.Region == "" || c.S3.Bucket == "") {
		return errors.New("config: MEDIA_BACKEND=s3 requires AWS_REGION and S3_MEDIA_BUCKET")
	}
	if c.FrameRate <= 0 {
		return errors.New("config: FRAME_RATE must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
