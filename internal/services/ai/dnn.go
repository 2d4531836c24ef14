package ai

import (
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"

	"videodetect/internal/model"
)

const ssdInputSize = 300

// dnn runs an SSD-style network through OpenCV's DNN module.
type dnn struct {
	net    gocv.Net
	labels []string
}

func newDNN(modelPath, configPath string, labels []string) (*dnn, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network")
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	return &dnn{net: net, labels: labels}, nil
}

func (d *dnn) infer(img gocv.Mat) ([]model.Detection, error) {
	blob := gocv.BlobFromImage(img, 1.0/127.5, image.Pt(ssdInputSize, ssdInputSize), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("unexpected output type: %w", err)
	}
	return parseSSD(data, img.Cols(), img.Rows(), d.labels), nil
}

func (d *dnn) Close() error {
	return d.net.Close()
}

// parseSSD decodes rows of [batch, class, confidence, x1, y1, x2, y2] with
// corners relative to the image size.
func parseSSD(data []float32, width, height int, labels []string) []model.Detection {
	var results []model.Detection
	for i := 0; i+7 <= len(data); i += 7 {
		row := data[i : i+7]
		confidence := float64(row[2])
		if confidence <= 0 {
			continue
		}
		results = append(results, model.Detection{
			Label:      classLabel(labels, int(row[1])),
			Confidence: confidence,
			Box: model.Box{
				XMin: float64(row[3]) * float64(width),
				YMin: float64(row[4]) * float64(height),
				XMax: float64(row[5]) * float64(width),
				YMax: float64(row[6]) * float64(height),
			},
		})
	}
	return results
}
