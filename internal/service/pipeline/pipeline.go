// Package pipeline turns a media file into a people count, an average confidence and an
// annotated image.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"peoplecounter/internal/config"
	"peoplecounter/internal/logger"
	"peoplecounter/internal/model"
)

// Detector is the black-box detection capability.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]model.Detection, error)
}

// MediaDecoder loads pixel grids from files.
type MediaDecoder interface {
	DecodeImage(path string) (image.Image, error)
	ExtractFirstFrame(path string) (image.Image, error)
	EncodeJPEG(img image.Image) ([]byte, error)
}

// Annotator renders detections over an image and returns the encoded result.
type Annotator interface {
	Annotate(img image.Image, detections []model.Detection) ([]byte, error)
}

// Outcome is the result of one pipeline run.
type Outcome struct {
	PeopleCount        int
	Confidence         float64
	ProcessingTime     float64 // seconds
	AnnotatedImagePath string
}

// Pipeline orchestrates frame extraction, detection, aggregation and rendering.
type Pipeline struct {
	detector   Detector
	media      MediaDecoder
	annotator  Annotator
	uploadDir  string
	resultsDir string
	timeout    time.Duration
	logger     *logger.Logger
}

// New creates a pipeline. Frames extracted from videos are written to cfg.UploadDir and
// annotated images to cfg.ResultsDir.
func New(detector Detector, media MediaDecoder, annotator Annotator, cfg *config.Config, logger *logger.Logger) *Pipeline {
	return &Pipeline{
		detector:   detector,
		media:      media,
		annotator:  annotator,
		uploadDir:  cfg.UploadDir,
		resultsDir: cfg.ResultsDir,
		timeout:    cfg.ProcessingTimeout,
		logger:     logger,
	}
}

// Analyze runs the pipeline on filePath. token must be unique per request; it names the
// transient frame file and the annotated output. Nothing but the annotated image outlives
// the call, and on error not even that.
func (p *Pipeline) Analyze(ctx context.Context, filePath string, isVideo bool, token string) (*Outcome, error) {
	start := time.Now()
	if token == "" {
		token = uuid.NewString()
	}

	img, err := p.resolveImage(ctx, filePath, isVideo, token)
	if err != nil {
		return nil, err
	}

	detections, err := withTimeout(ctx, p.timeout, "detection", func(ctx context.Context) ([]model.Detection, error) {
		return p.detector.Detect(ctx, img)
	})
	if err != nil {
		if errors.Is(err, model.ErrTimeout) || errors.Is(err, model.ErrUnreadableMedia) || errors.Is(err, model.ErrModel) ||
			errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("detect: %v: %w", err, model.ErrModel)
	}

	people, confidence := SummarizePeople(detections)

	annotated, err := p.annotator.Annotate(img, people)
	if err != nil {
		return nil, fmt.Errorf("render annotated image: %v: %w", err, model.ErrStorageIO)
	}

	outputPath, err := p.writeResult(annotated, start, token)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		PeopleCount:        len(people),
		Confidence:         confidence,
		ProcessingTime:     time.Since(start).Seconds(),
		AnnotatedImagePath: outputPath,
	}
	p.logger.Info("Analyzed %s: %d people (confidence %.2f) in %.3fs",
		filepath.Base(filePath), outcome.PeopleCount, outcome.Confidence, outcome.ProcessingTime)
	return outcome, nil
}

// SummarizePeople keeps the person detections and returns them with their mean
// confidence, which is 0 when there are none.
func SummarizePeople(detections []model.Detection) ([]model.Detection, float64) {
	people := make([]model.Detection, 0, len(detections))
	sum := 0.0
	for _, det := range detections {
		if !det.IsPerson() {
			continue
		}
		people = append(people, det)
		sum += det.Confidence
	}

	if len(people) == 0 {
		return people, 0
	}
	return people, max(0, min(sum/float64(len(people)), 1))
}

// resolveImage decodes the upload. For videos the first frame is written to a transient
// file, decoded from there and removed before returning.
func (p *Pipeline) resolveImage(ctx context.Context, filePath string, isVideo bool, token string) (image.Image, error) {
	if !isVideo {
		return withTimeout(ctx, p.timeout, "image decoding", func(context.Context) (image.Image, error) {
			return p.media.DecodeImage(filePath)
		})
	}

	frame, err := withTimeout(ctx, p.timeout, "frame extraction", func(context.Context) (image.Image, error) {
		return p.media.ExtractFirstFrame(filePath)
	})
	if err != nil {
		return nil, err
	}

	data, err := p.media.EncodeJPEG(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %v: %w", err, model.ErrStorageIO)
	}

	framePath := filepath.Join(p.uploadDir, "frame_"+token+".jpg")
	if err := writeExclusive(p.uploadDir, framePath, data); err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(framePath); err != nil && !os.IsNotExist(err) {
			p.logger.Error("Failed to remove frame %s: %v", framePath, err)
		}
	}()

	return p.media.DecodeImage(framePath)
}

// writeResult stores the annotated image under a name unique to this invocation.
func (p *Pipeline) writeResult(data []byte, start time.Time, token string) (string, error) {
	name := fmt.Sprintf("result_%s_%s.jpg", start.Format("20060102_150405"), token)
	path := filepath.Join(p.resultsDir, name)
	if err := writeExclusive(p.resultsDir, path, data); err != nil {
		return "", err
	}
	return path, nil
}

// writeExclusive creates dir if needed and writes data to a file that must not exist yet.
// A partially written file is removed.
func writeExclusive(dir, path string, data []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %v: %w", dir, err, model.ErrStorageIO)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %v: %w", path, err, model.ErrStorageIO)
	}

	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(path)
		return fmt.Errorf("write %s: %v: %w", path, errors.Join(werr, cerr), model.ErrStorageIO)
	}
	return nil
}
