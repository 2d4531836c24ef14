package ai

import (
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"videodetect/internal/model"
)

// ortEnv guards the process-wide ONNX Runtime initialization.
var ortEnv struct {
	once sync.Once
	err  error
}

func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// onnx runs an end-to-end YOLO export (boxes already NMS-filtered) whose
// output rows are [x1, y1, x2, y2, score, class] in input pixels.
type onnx struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	inputSize  int
	numBoxes   int64
	labels     []string
}

func newONNX(libPath, modelPath string, inputSize int, labels []string) (*onnx, error) {
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("onnx: expected one image input, got %d", len(inputs))
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: model has no outputs")
	}

	dims := outputs[0].Dimensions
	if len(dims) != 3 || dims[2] != 6 || dims[1] <= 0 {
		return nil, fmt.Errorf("onnx: expected [1, N, 6] output tensor, got %v", dims)
	}
	if in := inputs[0].Dimensions; len(in) == 4 && in[2] > 0 {
		inputSize = int(in[2])
	}
	if inputSize <= 0 {
		return nil, fmt.Errorf("onnx: unknown input size")
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &onnx{
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		inputSize:  inputSize,
		numBoxes:   dims[1],
		labels:     labels,
	}, nil
}

func (o *onnx) infer(img gocv.Mat) ([]model.Detection, error) {
	size := image.Pt(o.inputSize, o.inputSize)
	blob := gocv.BlobFromImage(img, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	pixels, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("onnx: unexpected blob type: %w", err)
	}
	data := make([]float32, len(pixels))
	copy(data, pixels)

	s := int64(o.inputSize)
	input, err := ort.NewTensor(ort.NewShape(1, 3, s, s), data)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, o.numBoxes, 6))
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := o.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}

	scaleX := float64(img.Cols()) / float64(o.inputSize)
	scaleY := float64(img.Rows()) / float64(o.inputSize)
	return parseYOLO(output.GetData(), scaleX, scaleY, o.labels), nil
}

func (o *onnx) Close() error {
	return o.session.Destroy()
}

// parseYOLO decodes [x1, y1, x2, y2, score, class] rows and rescales the
// corners from model input space to frame pixels.
func parseYOLO(data []float32, scaleX, scaleY float64, labels []string) []model.Detection {
	var results []model.Detection
	for i := 0; i+6 <= len(data); i += 6 {
		row := data[i : i+6]
		score := float64(row[4])
		if score <= 0 {
			continue
		}
		results = append(results, model.Detection{
			Label:      classLabel(labels, int(row[5])),
			Confidence: score,
			Box: model.Box{
				XMin: float64(row[0]) * scaleX,
				YMin: float64(row[1]) * scaleY,
				XMax: float64(row[2]) * scaleX,
				YMax: float64(row[3]) * scaleY,
			},
		})
	}
	return results
}
