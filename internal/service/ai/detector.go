package ai

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"peoplecounter/internal/config"
	"peoplecounter/internal/logger"
	"peoplecounter/internal/model"
)

// transpose is swapped out in tests.
var transpose = gocv.Transpose

// DNNDetector runs a YOLO model through the OpenCV DNN module.
// gocv.Net is not safe for concurrent use, so Detect calls are serialized.
type DNNDetector struct {
	net           gocv.Net
	mu            sync.Mutex
	modelPath     string
	configPath    string
	inputSize     int
	confThreshold float32
	nmsThreshold  float32
	pixelCoords   bool // ONNX exports emit boxes in input pixels, Darknet emits 0..1
	logger        *logger.Logger
}

// NewDNNDetector loads the network. Any failure is returned as model.ErrModel and the
// caller is expected to abort startup.
func NewDNNDetector(cfg *config.Config, logger *logger.Logger) (*DNNDetector, error) {
	d := &DNNDetector{
		modelPath:     cfg.ModelPath,
		configPath:    cfg.ModelConfigPath,
		inputSize:     cfg.InputSize,
		confThreshold: float32(cfg.ConfidenceThreshold),
		nmsThreshold:  float32(cfg.NMSThreshold),
		pixelCoords:   strings.EqualFold(filepath.Ext(cfg.ModelPath), ".onnx"),
		logger:        logger,
	}
	if d.inputSize <= 0 {
		d.inputSize = 640
	}

	if err := d.initializeNet(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, model.ErrModel)
	}
	return d, nil
}

// initializeNet loads the network from the model (and optional config) file.
func (d *DNNDetector) initializeNet() error {
	if _, err := os.Stat(d.modelPath); err != nil {
		return fmt.Errorf("model file not found: %s", d.modelPath)
	}

	if d.configPath != "" {
		if _, err := os.Stat(d.configPath); err != nil {
			return fmt.Errorf("config file not found: %s", d.configPath)
		}
	}

	net := gocv.ReadNet(d.modelPath, d.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network from %s", d.modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	d.net = net
	d.logger.Info("Detection network loaded from %s", d.modelPath)
	return nil
}

// Detect runs the network on img and returns detections above the confidence threshold.
func (d *DNNDetector) Detect(ctx context.Context, img image.Image) ([]model.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %v: %w", err, model.ErrModel)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("image is empty: %w", model.ErrUnreadableMedia)
	}

	blob := gocv.BlobFromImage(
		mat,
		1.0/255.0,
		image.Pt(d.inputSize, d.inputSize),
		gocv.NewScalar(0, 0, 0, 0),
		true,
		false,
	)
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.net.SetInput(blob, "")
	outputs := d.net.ForwardLayers(getOutputLayers(d.net))
	defer func() {
		for i := range outputs {
			outputs[i].Close()
		}
	}()
	if len(outputs) == 0 {
		return nil, fmt.Errorf("network produced no output: %w", model.ErrModel)
	}

	detections, err := d.processOutputs(outputs, mat.Cols(), mat.Rows())
	if err != nil {
		return nil, fmt.Errorf("decode network output: %v: %w", err, model.ErrModel)
	}
	return detections, nil
}

// processOutputs decodes YOLO output tensors. Two layouts are supported:
// v5 style [N, 5+classes] rows with objectness, and v8 style [4+classes, N] without it.
func (d *DNNDetector) processOutputs(outputs []gocv.Mat, originalWidth, originalHeight int) ([]model.Detection, error) {
	var (
		boxes  []image.Rectangle
		scores []float32
		ids    []int
	)

	scaleX, scaleY := float32(originalWidth), float32(originalHeight)
	if d.pixelCoords {
		scaleX /= float32(d.inputSize)
		scaleY /= float32(d.inputSize)
	}

	for _, output := range outputs {
		rows, classOffset, err := yoloRows(output)
		if err != nil {
			rows.Close()
			return nil, err
		}
		if rows.Empty() {
			rows.Close()
			continue
		}

		for i := 0; i < rows.Rows(); i++ {
			objectness := float32(1)
			if classOffset == 5 {
				objectness = rows.GetFloatAt(i, 4)
				if objectness < d.confThreshold {
					continue
				}
			}

			maxClassScore := float32(0)
			classID := 0
			for j := classOffset; j < rows.Cols(); j++ {
				if score := rows.GetFloatAt(i, j); score > maxClassScore {
					maxClassScore = score
					classID = j - classOffset
				}
			}

			confidence := objectness * maxClassScore
			if confidence < d.confThreshold {
				continue
			}

			centerX := rows.GetFloatAt(i, 0) * scaleX
			centerY := rows.GetFloatAt(i, 1) * scaleY
			width := rows.GetFloatAt(i, 2) * scaleX
			height := rows.GetFloatAt(i, 3) * scaleY

			x := max(0, min(int(centerX-width/2), originalWidth))
			y := max(0, min(int(centerY-height/2), originalHeight))
			w := max(0, min(int(width), originalWidth-x))
			h := max(0, min(int(height), originalHeight-y))

			boxes = append(boxes, image.Rect(x, y, x+w, y+h))
			scores = append(scores, confidence)
			ids = append(ids, classID)
		}
		rows.Close()
	}

	if len(boxes) == 0 {
		return []model.Detection{}, nil
	}

	keep := gocv.NMSBoxes(boxes, scores, d.confThreshold, d.nmsThreshold)
	detections := make([]model.Detection, 0, len(keep))
	for _, idx := range keep {
		detections = append(detections, model.Detection{
			ClassID:    ids[idx],
			Label:      ClassLabel(ids[idx]),
			Confidence: float64(scores[idx]),
			Box:        boxes[idx],
		})
	}
	return detections, nil
}

// yoloRows flattens an output tensor into one detection per row and reports where
// the class scores start. The returned Mat must be closed by the caller, also on error.
func yoloRows(output gocv.Mat) (gocv.Mat, int, error) {
	sizes := output.Size()
	if len(sizes) == 3 && sizes[1] < sizes[2] {
		// v8: [1, 4+classes, N]
		flat := output.Reshape(1, sizes[1])
		defer flat.Close()

		rows := gocv.NewMat()
		if err := transpose(flat, &rows); err != nil {
			return rows, 4, fmt.Errorf("transpose output %v: %w", sizes, err)
		}
		return rows, 4, nil
	}

	cols := sizes[len(sizes)-1]
	if cols <= 5 {
		return gocv.NewMat(), 5, nil
	}
	return output.Reshape(1, output.Total()/cols), 5, nil
}

// Close releases the network.
func (d *DNNDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.net.Empty() {
		return d.net.Close()
	}
	return nil
}

func getOutputLayers(net gocv.Net) []string {
	layerNames := net.GetLayerNames()
	unconnectedOutLayers := net.GetUnconnectedOutLayers()

	var outputLayers []string
	for _, i := range unconnectedOutLayers {
		if i-1 < len(layerNames) {
			outputLayers = append(outputLayers, layerNames[i-1])
		}
	}

	return outputLayers
}
