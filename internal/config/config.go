package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	OutputDirectory     string
	DetectionInterval   time.Duration // Minimum spacing between two detections
	DetectorBackend     string        // "dnn" or "onnx"
	ModelPath           string
	ConfigPath          string
	LabelsPath          string
	ConfidenceThreshold float64
	ONNXLibraryPath     string
	ONNXInputSize       int
	VideoCodec          string
	DefaultFPS          float64 // Used when the source reports no frame rate
	CameraIndex         int
	RelayPath           string
	RelayArgs           []string
	RelayStartupDelay   time.Duration
	RelayStopTimeout    time.Duration
	PreviewWindow       bool
	PreviewAddr         string // Empty disables the browser preview
	Password            string
	DatabasePath        string // Empty disables the SQLite archive
	ExportCSV           bool
	LogDirectory        string
	LogLevel            string
}

// Load reads the optional .env file and then the environment.
func Load() *Config {
	// A missing .env file is not an error
	_ = godotenv.Load()

	return &Config{
		OutputDirectory:     getEnv("OUTPUT_DIR", "."),
		DetectionInterval:   getEnvAsDuration("DETECTION_INTERVAL", time.Second),
		DetectorBackend:     strings.ToLower(getEnv("DETECTOR_BACKEND", "dnn")),
		ModelPath:           getEnv("MODEL_PATH", filepath.Join(".", "models", "frozen_inference_graph.pb")),
		ConfigPath:          getEnv("CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt")),
		LabelsPath:          getEnv("LABELS_PATH", ""),
		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.5),
		ONNXLibraryPath:     getEnv("ONNX_LIBRARY_PATH", ""),
		ONNXInputSize:       getEnvAsInt("ONNX_INPUT_SIZE", 640),
		VideoCodec:          getEnv("VIDEO_CODEC", "mp4v"),
		DefaultFPS:          getEnvAsFloat("DEFAULT_FPS", 30),
		CameraIndex:         getEnvAsInt("CAMERA_INDEX", 0),
		RelayPath:           getEnv("RELAY_PATH", ""),
		RelayArgs:           strings.Fields(getEnv("RELAY_ARGS", "")),
		RelayStartupDelay:   getEnvAsDuration("RELAY_STARTUP_DELAY", 5*time.Second),
		RelayStopTimeout:    getEnvAsDuration("RELAY_STOP_TIMEOUT", 5*time.Second),
		PreviewWindow:       getEnvAsBool("PREVIEW_WINDOW", true),
		PreviewAddr:         getEnv("PREVIEW_ADDR", ""),
		Password:            getEnv("PASSWORD", ""),
		DatabasePath:        getEnv("DB_PATH", filepath.Join(".", "data", "detections.db")),
		ExportCSV:           getEnvAsBool("EXPORT_CSV", false),
		LogDirectory:        getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("1500ms") and plain seconds ("2").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil && seconds > 0 {
		return time.Duration(seconds * float64(time.Second))
	}
	return defaultValue
}
