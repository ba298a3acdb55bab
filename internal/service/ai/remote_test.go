package ai

import (
	"context"
	"image"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peoplecounter/internal/logger"
	"peoplecounter/internal/model"
)

const testInferenceURL = "http://inference.local/predict"

func newMockedDetector(t *testing.T) *RemoteDetector {
	t.Helper()

	d := NewRemoteDetector(testInferenceURL, 5*time.Second, logger.Discard())
	httpmock.ActivateNonDefault(d.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return d
}

func TestRemoteDetector_Detect(t *testing.T) {
	d := newMockedDetector(t)

	httpmock.RegisterResponder(http.MethodPost, testInferenceURL,
		func(req *http.Request) (*http.Response, error) {
			if err := req.ParseMultipartForm(1 << 20); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
			}
			if _, _, err := req.FormFile("file"); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, "no file"), nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"detections": []map[string]any{
					{"class_id": 0, "class": "person", "confidence": 0.91, "bbox": []float64{1, 2, 30, 60}},
					{"class_id": 2, "confidence": 1.4, "bbox": []float64{5, 5, 10, 10}},
					{"class_id": 0, "confidence": 0.5},
				},
			})
		})

	dets, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 32, 32)))
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.True(t, dets[0].IsPerson())
	assert.Equal(t, image.Rect(1, 2, 30, 60), dets[0].Box)
	assert.InDelta(t, 0.91, dets[0].Confidence, 1e-9)

	assert.Equal(t, "car", dets[1].Label)
	assert.Equal(t, 1.0, dets[1].Confidence)
}

func TestRemoteDetector_ServerErrorIsModelError(t *testing.T) {
	d := newMockedDetector(t)
	httpmock.RegisterResponder(http.MethodPost, testInferenceURL,
		httpmock.NewStringResponder(http.StatusInternalServerError, "CUDA out of memory"))

	_, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	assert.ErrorIs(t, err, model.ErrModel)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestRemoteDetector_CheckHealth(t *testing.T) {
	d := newMockedDetector(t)
	httpmock.RegisterResponder(http.MethodGet, "http://inference.local/health",
		httpmock.NewStringResponder(http.StatusOK, `{"status":"ok"}`))

	assert.NoError(t, d.CheckHealth(context.Background()))

	httpmock.Reset()
	httpmock.RegisterResponder(http.MethodGet, "http://inference.local/health",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "loading"))
	assert.ErrorIs(t, d.CheckHealth(context.Background()), model.ErrModel)
}

func TestClassLabel(t *testing.T) {
	assert.Equal(t, "person", ClassLabel(model.PersonClassID))
	assert.Equal(t, "toothbrush", ClassLabel(79))
	assert.Equal(t, "unknown_80", ClassLabel(80))
}
