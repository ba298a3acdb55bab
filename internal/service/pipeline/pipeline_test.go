package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"peoplecounter/internal/config"
	"peoplecounter/internal/logger"
	"peoplecounter/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubDetector struct {
	detections []model.Detection
	err        error
	delay      time.Duration
	block      chan struct{}
}

func (d *stubDetector) Detect(ctx context.Context, img image.Image) ([]model.Detection, error) {
	if d.block != nil {
		<-d.block
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	return d.detections, d.err
}

type stubMedia struct {
	mu         sync.Mutex
	decoded    []string
	frameErr   error
	decodeErr  error
	framesSeen []string
}

func (m *stubMedia) DecodeImage(path string) (image.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decoded = append(m.decoded, path)
	if m.decodeErr != nil {
		return nil, m.decodeErr
	}
	if strings.HasPrefix(filepath.Base(path), "frame_") {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("frame missing: %w", model.ErrUnreadableMedia)
		}
		m.framesSeen = append(m.framesSeen, path)
	}
	return image.NewRGBA(image.Rect(0, 0, 64, 48)), nil
}

func (m *stubMedia) ExtractFirstFrame(path string) (image.Image, error) {
	if m.frameErr != nil {
		return nil, m.frameErr
	}
	return image.NewRGBA(image.Rect(0, 0, 64, 48)), nil
}

func (m *stubMedia) EncodeJPEG(img image.Image) ([]byte, error) {
	return []byte("frame-bytes"), nil
}

type stubAnnotator struct {
	mu    sync.Mutex
	boxes [][]model.Detection
}

func (a *stubAnnotator) Annotate(img image.Image, detections []model.Detection) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.boxes = append(a.boxes, detections)
	return []byte("annotated"), nil
}

func person(conf float64) model.Detection {
	return model.Detection{ClassID: model.PersonClassID, Label: "person", Confidence: conf, Box: image.Rect(1, 1, 10, 20)}
}

func newTestPipeline(t *testing.T, det Detector, media MediaDecoder, ann Annotator) (*Pipeline, *config.Config) {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.UploadDir = filepath.Join(root, "uploads")
	cfg.ResultsDir = filepath.Join(root, "static", "results")
	cfg.ProcessingTimeout = 2 * time.Second
	return New(det, media, ann, cfg, logger.Discard()), cfg
}

func writeInput(t *testing.T, dir, name string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("input"), 0644))
	return path
}

func TestAnalyze_ImageCountsPeople(t *testing.T) {
	det := &stubDetector{detections: []model.Detection{
		person(0.9),
		person(0.8),
		{ClassID: 2, Label: "car", Confidence: 0.99},
		person(0.7),
	}}
	ann := &stubAnnotator{}
	p, cfg := newTestPipeline(t, det, &stubMedia{}, ann)
	input := writeInput(t, cfg.UploadDir, "upload_a.jpg")

	out, err := p.Analyze(context.Background(), input, false, "tok-a")
	require.NoError(t, err)

	assert.Equal(t, 3, out.PeopleCount)
	assert.InDelta(t, 0.8, out.Confidence, 1e-9)
	assert.GreaterOrEqual(t, out.ProcessingTime, 0.0)
	assert.Equal(t, cfg.ResultsDir, filepath.Dir(out.AnnotatedImagePath))
	assert.Regexp(t, `^result_\d{8}_\d{6}_tok-a\.jpg$`, filepath.Base(out.AnnotatedImagePath))

	data, err := os.ReadFile(out.AnnotatedImagePath)
	require.NoError(t, err)
	assert.Equal(t, "annotated", string(data))

	require.Len(t, ann.boxes, 1)
	assert.Len(t, ann.boxes[0], 3, "only person boxes are drawn")
}

func TestAnalyze_NoPeople(t *testing.T) {
	det := &stubDetector{detections: []model.Detection{{ClassID: 16, Label: "dog", Confidence: 0.9}}}
	p, cfg := newTestPipeline(t, det, &stubMedia{}, &stubAnnotator{})
	input := writeInput(t, cfg.UploadDir, "upload_b.png")

	out, err := p.Analyze(context.Background(), input, false, "tok-b")
	require.NoError(t, err)
	assert.Equal(t, 0, out.PeopleCount)
	assert.Equal(t, 0.0, out.Confidence)
	assert.FileExists(t, out.AnnotatedImagePath)
}

func TestAnalyze_ProcessingTimeIncludesDetection(t *testing.T) {
	det := &stubDetector{detections: []model.Detection{person(0.5)}, delay: 50 * time.Millisecond}
	p, cfg := newTestPipeline(t, det, &stubMedia{}, &stubAnnotator{})
	input := writeInput(t, cfg.UploadDir, "upload_c.jpg")

	out, err := p.Analyze(context.Background(), input, false, "tok-c")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.ProcessingTime, 0.05)
}

func TestAnalyze_VideoUsesTransientFrame(t *testing.T) {
	media := &stubMedia{}
	p, cfg := newTestPipeline(t, &stubDetector{detections: []model.Detection{person(0.6)}}, media, &stubAnnotator{})
	input := writeInput(t, cfg.UploadDir, "upload_d.mp4")

	out, err := p.Analyze(context.Background(), input, true, "tok-d")
	require.NoError(t, err)
	assert.Equal(t, 1, out.PeopleCount)

	framePath := filepath.Join(cfg.UploadDir, "frame_tok-d.jpg")
	assert.Equal(t, []string{framePath}, media.framesSeen)
	assert.NoFileExists(t, framePath)
}

func TestAnalyze_CorruptVideo(t *testing.T) {
	media := &stubMedia{frameErr: fmt.Errorf("no frames: %w", model.ErrUnreadableMedia)}
	p, cfg := newTestPipeline(t, &stubDetector{}, media, &stubAnnotator{})
	input := writeInput(t, cfg.UploadDir, "upload_e.mp4")

	_, err := p.Analyze(context.Background(), input, true, "tok-e")
	assert.ErrorIs(t, err, model.ErrUnreadableMedia)

	assert.NoFileExists(t, filepath.Join(cfg.UploadDir, "frame_tok-e.jpg"))
	entries, _ := os.ReadDir(cfg.ResultsDir)
	assert.Empty(t, entries)
}

func TestAnalyze_UnreadableImage(t *testing.T) {
	media := &stubMedia{decodeErr: fmt.Errorf("empty: %w", model.ErrUnreadableMedia)}
	p, cfg := newTestPipeline(t, &stubDetector{}, media, &stubAnnotator{})
	input := writeInput(t, cfg.UploadDir, "upload_f.jpg")

	_, err := p.Analyze(context.Background(), input, false, "tok-f")
	assert.ErrorIs(t, err, model.ErrUnreadableMedia)
}

func TestAnalyze_DetectorFailureIsModelError(t *testing.T) {
	p, cfg := newTestPipeline(t, &stubDetector{err: errors.New("tensor shape mismatch")}, &stubMedia{}, &stubAnnotator{})
	input := writeInput(t, cfg.UploadDir, "upload_g.jpg")

	_, err := p.Analyze(context.Background(), input, false, "tok-g")
	assert.ErrorIs(t, err, model.ErrModel)

	entries, _ := os.ReadDir(cfg.ResultsDir)
	assert.Empty(t, entries)
}

func TestAnalyze_Timeout(t *testing.T) {
	release := make(chan struct{})
	det := &stubDetector{block: release}
	p, cfg := newTestPipeline(t, det, &stubMedia{}, &stubAnnotator{})
	p.timeout = 30 * time.Millisecond
	input := writeInput(t, cfg.UploadDir, "upload_h.jpg")

	_, err := p.Analyze(context.Background(), input, false, "tok-h")
	close(release)
	assert.ErrorIs(t, err, model.ErrTimeout)
}

func TestAnalyze_ConcurrentOutputsAreUnique(t *testing.T) {
	p, cfg := newTestPipeline(t, &stubDetector{detections: []model.Detection{person(0.9)}}, &stubMedia{}, &stubAnnotator{})

	const n = 8
	paths := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		input := writeInput(t, cfg.UploadDir, fmt.Sprintf("upload_%d.mp4", i))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := p.Analyze(context.Background(), input, true, fmt.Sprintf("tok-%d", i))
			if assert.NoError(t, err) {
				paths[i] = out.AnnotatedImagePath
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, path := range paths {
		assert.False(t, seen[path], "duplicate output %s", path)
		seen[path] = true
		assert.FileExists(t, path)
	}

	frames, err := filepath.Glob(filepath.Join(cfg.UploadDir, "frame_*"))
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestAnalyze_ExistingOutputIsNotOverwritten(t *testing.T) {
	p, cfg := newTestPipeline(t, &stubDetector{}, &stubMedia{}, &stubAnnotator{})
	input := writeInput(t, cfg.UploadDir, "upload_i.jpg")

	out, err := p.Analyze(context.Background(), input, false, "tok-i")
	require.NoError(t, err)

	err = writeExclusive(cfg.ResultsDir, out.AnnotatedImagePath, []byte("other"))
	assert.ErrorIs(t, err, model.ErrStorageIO)

	data, err := os.ReadFile(out.AnnotatedImagePath)
	require.NoError(t, err)
	assert.Equal(t, "annotated", string(data))
}

func TestSummarizePeople(t *testing.T) {
	people, conf := SummarizePeople(nil)
	assert.Empty(t, people)
	assert.Equal(t, 0.0, conf)

	people, conf = SummarizePeople([]model.Detection{person(0.4), {ClassID: 1, Confidence: 1}, person(0.6)})
	assert.Len(t, people, 2)
	assert.InDelta(t, 0.5, conf, 1e-9)
}
