package ai

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"videodetect/internal/config"
	"videodetect/internal/frame"
	"videodetect/internal/logger"
	"videodetect/internal/model"
	"videodetect/internal/services/camera"
)

// DetectionThreshold is the default minimum confidence for a detection.
const DetectionThreshold = 0.5

// backend runs one model over an image and reports raw detections in pixel
// coordinates of that image.
type backend interface {
	infer(img gocv.Mat) ([]model.Detection, error)
	Close() error
}

// Detector runs a model backend over frames and draws what it finds.
type Detector struct {
	backend   backend
	name      string
	threshold float64
	logger    *logger.Logger
}

// New creates the detector selected by cfg.DetectorBackend.
func New(cfg *config.Config, logger *logger.Logger) (*Detector, error) {
	labels := []string(nil)
	if cfg.LabelsPath != "" {
		var err error
		if labels, err = LoadLabels(cfg.LabelsPath); err != nil {
			return nil, err
		}
	}

	var b backend
	var err error
	switch cfg.DetectorBackend {
	case "dnn", "":
		if labels == nil {
			labels = SSDLabels()
		}
		b, err = newDNN(cfg.ModelPath, cfg.ConfigPath, labels)
	case "onnx":
		if labels == nil {
			labels = COCOLabels
		}
		b, err = newONNX(cfg.ONNXLibraryPath, cfg.ModelPath, cfg.ONNXInputSize, labels)
	default:
		return nil, fmt.Errorf("unknown detector backend %q", cfg.DetectorBackend)
	}
	if err != nil {
		return nil, err
	}

	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = DetectionThreshold
	}

	logger.Info("Detection network %s initialized (threshold %.2f)", cfg.DetectorBackend, threshold)
	return newDetector(b, cfg.DetectorBackend, threshold, logger), nil
}

func newDetector(b backend, name string, threshold float64, logger *logger.Logger) *Detector {
	return &Detector{backend: b, name: name, threshold: threshold, logger: logger}
}

// Detect runs the model on f. With no detections f itself is returned;
// otherwise the returned frame is a new annotated copy owned by the caller.
func (d *Detector) Detect(ctx context.Context, f frame.Frame) (frame.Frame, []model.Detection, error) {
	if err := ctx.Err(); err != nil {
		return f, nil, err
	}

	img, err := camera.Mat(f)
	if err != nil {
		return f, nil, err
	}
	if img.Empty() {
		return f, nil, fmt.Errorf("frame %d is empty", f.Seq)
	}

	raw, err := d.backend.infer(*img)
	if err != nil {
		return f, nil, fmt.Errorf("%s inference on frame %d: %w", d.name, f.Seq, err)
	}

	detections := make([]model.Detection, 0, len(raw))
	for _, det := range raw {
		if !(det.Confidence >= d.threshold) {
			continue
		}
		det.Confidence = math.Min(math.Max(det.Confidence, 0), 1)
		det.Box = clampBox(det.Box, f.Width, f.Height)
		detections = append(detections, det)
		d.logger.Debug("Detected %s (%.2f) on frame %d", det.Label, det.Confidence, f.Seq)
	}
	if len(detections) == 0 {
		return f, detections, nil
	}

	annotated, err := Annotate(*img, detections)
	if err != nil {
		return f, nil, err
	}
	out := camera.NewFrame(&annotated)
	out.Seq = f.Seq
	return out, detections, nil
}

// Close releases the model.
func (d *Detector) Close() error {
	return d.backend.Close()
}

// Annotate draws boxes and captions onto a copy of img.
func Annotate(img gocv.Mat, detections []model.Detection) (gocv.Mat, error) {
	red := color.RGBA{R: 255, G: 0, B: 0, A: 0}

	out := img.Clone()
	for _, detection := range detections {
		b := detection.Box
		rect := image.Rect(int(b.XMin), int(b.YMin), int(b.XMax), int(b.YMax))
		if err := gocv.Rectangle(&out, rect, red, 2); err != nil {
			out.Close()
			return gocv.Mat{}, fmt.Errorf("failed to draw rectangle: %w", err)
		}

		label := fmt.Sprintf("%s (%.2f)", detection.Label, detection.Confidence)
		pt := image.Pt(int(b.XMin), int(math.Max(b.YMin-5, 10)))
		if err := gocv.PutText(&out, label, pt, gocv.FontHersheySimplex, 0.5, red, 1); err != nil {
			out.Close()
			return gocv.Mat{}, fmt.Errorf("failed to draw text: %w", err)
		}
	}
	return out, nil
}

// clampBox keeps b inside a width x height image with ordered corners.
func clampBox(b model.Box, width, height int) model.Box {
	clamp := func(v float64, limit int) float64 {
		return math.Min(math.Max(v, 0), float64(limit))
	}
	x1, x2 := clamp(b.XMin, width), clamp(b.XMax, width)
	y1, y2 := clamp(b.YMin, height), clamp(b.YMax, height)
	return model.Box{
		XMin: math.Min(x1, x2),
		YMin: math.Min(y1, y2),
		XMax: math.Max(x1, x2),
		YMax: math.Max(y1, y2),
	}
}
