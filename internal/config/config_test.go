package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var keys = []string{
	"OUTPUT_DIR", "DETECTION_INTERVAL", "DETECTOR_BACKEND", "MODEL_PATH", "CONFIG_PATH",
	"LABELS_PATH", "CONFIDENCE_THRESHOLD", "ONNX_LIBRARY_PATH", "ONNX_INPUT_SIZE",
	"VIDEO_CODEC", "DEFAULT_FPS", "CAMERA_INDEX", "RELAY_PATH", "RELAY_ARGS",
	"RELAY_STARTUP_DELAY", "RELAY_STOP_TIMEOUT", "PREVIEW_WINDOW", "PREVIEW_ADDR",
	"PASSWORD", "DB_PATH", "EXPORT_CSV", "LOG_DIR", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	if cfg.DetectionInterval != time.Second {
		t.Errorf("DetectionInterval = %v, want 1s", cfg.DetectionInterval)
	}
	if cfg.DetectorBackend != "dnn" {
		t.Errorf("DetectorBackend = %q, want dnn", cfg.DetectorBackend)
	}
	if cfg.VideoCodec != "mp4v" {
		t.Errorf("VideoCodec = %q, want mp4v", cfg.VideoCodec)
	}
	if cfg.DefaultFPS != 30 {
		t.Errorf("DefaultFPS = %v, want 30", cfg.DefaultFPS)
	}
	if cfg.RelayStartupDelay != 5*time.Second {
		t.Errorf("RelayStartupDelay = %v, want 5s", cfg.RelayStartupDelay)
	}
	if !cfg.PreviewWindow {
		t.Error("PreviewWindow should default to true")
	}
	if cfg.PreviewAddr != "" {
		t.Errorf("PreviewAddr = %q, want empty", cfg.PreviewAddr)
	}
	if len(cfg.RelayArgs) != 0 {
		t.Errorf("RelayArgs = %v, want none", cfg.RelayArgs)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DETECTION_INTERVAL", "250ms")
	t.Setenv("DETECTOR_BACKEND", "ONNX")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.35")
	t.Setenv("CAMERA_INDEX", "2")
	t.Setenv("RELAY_ARGS", "--port 1935  --verbose")
	t.Setenv("PREVIEW_WINDOW", "false")
	t.Setenv("EXPORT_CSV", "true")
	t.Setenv("RELAY_STOP_TIMEOUT", "3")

	cfg := Load()

	if cfg.DetectionInterval != 250*time.Millisecond {
		t.Errorf("DetectionInterval = %v, want 250ms", cfg.DetectionInterval)
	}
	if cfg.DetectorBackend != "onnx" {
		t.Errorf("DetectorBackend = %q, want onnx", cfg.DetectorBackend)
	}
	if cfg.ConfidenceThreshold != 0.35 {
		t.Errorf("ConfidenceThreshold = %v, want 0.35", cfg.ConfidenceThreshold)
	}
	if cfg.CameraIndex != 2 {
		t.Errorf("CameraIndex = %d, want 2", cfg.CameraIndex)
	}
	if len(cfg.RelayArgs) != 3 || cfg.RelayArgs[2] != "--verbose" {
		t.Errorf("RelayArgs = %v", cfg.RelayArgs)
	}
	if cfg.PreviewWindow {
		t.Error("PreviewWindow should be false")
	}
	if !cfg.ExportCSV {
		t.Error("ExportCSV should be true")
	}
	if cfg.RelayStopTimeout != 3*time.Second {
		t.Errorf("RelayStopTimeout = %v, want 3s", cfg.RelayStopTimeout)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("DETECTION_INTERVAL", "soon")
	t.Setenv("DEFAULT_FPS", "fast")
	t.Setenv("PREVIEW_WINDOW", "maybe")

	cfg := Load()

	if cfg.DetectionInterval != time.Second {
		t.Errorf("DetectionInterval = %v, want fallback 1s", cfg.DetectionInterval)
	}
	if cfg.DefaultFPS != 30 {
		t.Errorf("DefaultFPS = %v, want fallback 30", cfg.DefaultFPS)
	}
	if !cfg.PreviewWindow {
		t.Error("PreviewWindow should fall back to true")
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("VIDEO_CODEC=avc1\nOUTPUT_DIR=/srv/out\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)
	// godotenv never overrides variables that are already present, even when empty.
	os.Unsetenv("VIDEO_CODEC")
	os.Unsetenv("OUTPUT_DIR")

	cfg := Load()

	if cfg.VideoCodec != "avc1" {
		t.Errorf("VideoCodec = %q, want avc1 from .env", cfg.VideoCodec)
	}
	if cfg.OutputDirectory != "/srv/out" {
		t.Errorf("OutputDirectory = %q, want /srv/out", cfg.OutputDirectory)
	}
}
