package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"

	"github.com/purab107/yoga-app/internal/analysis"
	"github.com/purab107/yoga-app/internal/model"
	"github.com/purab107/yoga-app/internal/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubExtractor struct {
	frames []video.Frame
	err    error
	calls  int
}

func (s *stubExtractor) ExtractFrames(string, int) ([]video.Frame, error) {
	s.calls++
	return s.frames, s.err
}

func (s *stubExtractor) ExtractKeyFrames(string, int) ([]video.Frame, error) {
	s.calls++
	return s.frames, s.err
}

func (s *stubExtractor) Info(string) (video.Info, error) {
	return video.Info{TotalFrames: len(s.frames), FPS: 30}, nil
}

type stubClassifier struct {
	pred model.Prediction
}

func (s *stubClassifier) Load() error { return nil }

func (s *stubClassifier) Predict(image.Image) (model.Prediction, error) {
	return s.pred, nil
}

func testFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	return img
}

func setup(t *testing.T, ex *stubExtractor) (http.Handler, string) {
	t.Helper()
	dir := t.TempDir()
	cl := &stubClassifier{pred: model.Prediction{
		PoseClass:  "Tadasana",
		Confidence: 0.92,
		IsCorrect:  true,
		Feedback:   "Perfect Tadasana! Excellent form.",
		AllProbabilities: map[string]float64{
			"Tadasana": 0.92,
		},
	}}
	svc := analysis.NewService(ex, cl, zap.NewNop(), analysis.Config{UploadDir: dir, SampleRate: 10})
	return NewHandler(svc, zap.NewNop(), 32<<20).Routes(), dir
}

func multipartBody(t *testing.T, field, filename, contentType string, data []byte, values map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	if contentType != "" {
		hdr.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)

	for k, v := range values {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func post(t *testing.T, h http.Handler, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func assertNoScratch(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRoot(t *testing.T) {
	h, _ := setup(t, &stubExtractor{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["message"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPoses(t *testing.T) {
	h, _ := setup(t, &stubExtractor{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/poses", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, model.PoseLabels, body["poses"])
}

func TestPreflight(t *testing.T) {
	h, _ := setup(t, &stubExtractor{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/analyze-pose", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestAnalyzePoseRejectsTextFile(t *testing.T) {
	ex := &stubExtractor{frames: []video.Frame{{Image: testFrame()}}}
	h, dir := setup(t, ex)

	body, ct := multipartBody(t, "video", "clip.txt", "text/plain", []byte("hello"), nil)
	rec := post(t, h, "/analyze-pose", body, ct)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "File must be a video")
	assert.Zero(t, ex.calls)
	assertNoScratch(t, dir)
}

func TestAnalyzePoseMissingFile(t *testing.T) {
	h, _ := setup(t, &stubExtractor{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("expected_pose", "Tadasana"))
	require.NoError(t, mw.Close())

	rec := post(t, h, "/analyze-pose", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzePoseSuccess(t *testing.T) {
	ex := &stubExtractor{frames: []video.Frame{{Index: 0, Image: testFrame()}, {Index: 10, Image: testFrame()}}}
	h, dir := setup(t, ex)

	body, ct := multipartBody(t, "video", "flow.mp4", "video/mp4", []byte("fake"), map[string]string{
		"expected_pose": "Tadasana",
	})
	rec := post(t, h, "/analyze-pose", body, ct)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))

	assert.Equal(t, "flow.mp4", report["video_name"])
	assert.Equal(t, "Tadasana", report["expected_pose"])
	assert.Equal(t, float64(2), report["total_frames_analyzed"])
	assert.Equal(t, float64(2), report["correct_frames"])
	assert.Equal(t, float64(100), report["accuracy_percentage"])
	assert.Equal(t, "Expected: Tadasana. Excellent! Your form is nearly perfect. Keep it up!", report["overall_feedback"])

	frames := report["frame_results"].([]any)
	require.Len(t, frames, 2)
	first := frames[0].(map[string]any)
	assert.Equal(t, "Tadasana", first["pose_detected"])
	assert.Contains(t, first["image"], "data:image/jpeg;base64,")
	assertNoScratch(t, dir)
}

func TestAnalyzePoseWithoutExpectedPose(t *testing.T) {
	ex := &stubExtractor{frames: []video.Frame{{Image: testFrame()}}}
	h, _ := setup(t, ex)

	body, ct := multipartBody(t, "video", "flow.webm", "", []byte("fake"), nil)
	rec := post(t, h, "/analyze-pose", body, ct)

	require.Equal(t, http.StatusOK, rec.Code)
	var report map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Nil(t, report["expected_pose"])
}

func TestAnalyzePoseExtractionFailure(t *testing.T) {
	ex := &stubExtractor{err: errors.New("could not open video")}
	h, dir := setup(t, ex)

	body, ct := multipartBody(t, "video", "broken.mov", "video/quicktime", []byte("garbage"), nil)
	rec := post(t, h, "/analyze-pose", body, ct)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["detail"], "Error processing video")
	assert.Contains(t, resp["detail"], "could not open video")
	assertNoScratch(t, dir)
}

func TestAnalyzePoseBadKeyFrames(t *testing.T) {
	h, _ := setup(t, &stubExtractor{})

	body, ct := multipartBody(t, "video", "flow.mp4", "video/mp4", []byte("fake"), map[string]string{
		"key_frames": "many",
	})
	rec := post(t, h, "/analyze-pose", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeWebcamFrame(t *testing.T) {
	h, _ := setup(t, &stubExtractor{})

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, testFrame()))
	body, ct := multipartBody(t, "frame", "frame.png", "image/png", img.Bytes(), nil)
	rec := post(t, h, "/analyze-webcam-frame", body, ct)

	require.Equal(t, http.StatusOK, rec.Code)
	var pred model.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pred))
	assert.Equal(t, "Tadasana", pred.PoseClass)
	assert.True(t, pred.IsCorrect)
	assert.Equal(t, 0.92, pred.AllProbabilities["Tadasana"])
}

func TestAnalyzeWebcamFrameUndecodable(t *testing.T) {
	h, _ := setup(t, &stubExtractor{})

	body, ct := multipartBody(t, "frame", "frame.jpg", "image/jpeg", []byte("nope"), nil)
	rec := post(t, h, "/analyze-webcam-frame", body, ct)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error processing frame")
}
