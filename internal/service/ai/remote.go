package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"peoplecounter/internal/logger"
	"peoplecounter/internal/model"
)

// RemoteDetector delegates inference to an HTTP model service.
type RemoteDetector struct {
	inferenceURL string
	client       *http.Client
	logger       *logger.Logger
}

type remoteDetection struct {
	ClassID    int       `json:"class_id"`
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"` // x1, y1, x2, y2 in pixels
}

type remoteResponse struct {
	Detections []remoteDetection `json:"detections"`
}

// NewRemoteDetector creates a detector that posts frames to inferenceURL.
func NewRemoteDetector(inferenceURL string, timeout time.Duration, logger *logger.Logger) *RemoteDetector {
	return &RemoteDetector{
		inferenceURL: inferenceURL,
		client:       &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// CheckHealth verifies that the inference service answers on its health endpoint.
func (d *RemoteDetector) CheckHealth(ctx context.Context) error {
	healthURL := strings.TrimSuffix(d.inferenceURL, "/predict") + "/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %v: %w", err, model.ErrModel)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("inference service unreachable: %v: %w", err, model.ErrModel)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy, status %d: %w", resp.StatusCode, model.ErrModel)
	}
	return nil
}

// Detect sends img as a JPEG multipart upload and decodes the returned boxes.
func (d *RemoteDetector) Detect(ctx context.Context, img image.Image) ([]model.Detection, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := jpeg.Encode(part, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.inferenceURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("send request: %v: %w", err, model.ErrModel)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference failed with status %d: %s: %w", resp.StatusCode, bytes.TrimSpace(msg), model.ErrModel)
	}

	var parsed remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode inference response: %v: %w", err, model.ErrModel)
	}

	detections := make([]model.Detection, 0, len(parsed.Detections))
	for _, det := range parsed.Detections {
		if len(det.BBox) < 4 {
			d.logger.Warning("Skipping detection without bbox from %s", d.inferenceURL)
			continue
		}
		label := det.Class
		if label == "" {
			label = ClassLabel(det.ClassID)
		}
		detections = append(detections, model.Detection{
			ClassID:    det.ClassID,
			Label:      label,
			Confidence: clamp01(det.Confidence),
			Box:        image.Rect(int(det.BBox[0]), int(det.BBox[1]), int(det.BBox[2]), int(det.BBox[3])),
		})
	}
	return detections, nil
}

func clamp01(v float64) float64 {
	return max(0, min(v, 1))
}

// Close drops idle connections to the inference service.
func (d *RemoteDetector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
