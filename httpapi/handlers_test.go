package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"telegram-image-reply-bot/imgcache"
	"telegram-image-reply-bot/stats"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeSource struct {
	img []byte
	err error
}

func (s fakeSource) GetImage(context.Context) ([]byte, error) {
	return s.img, s.err
}

type fakeCache struct{}

func (fakeCache) Stats() imgcache.Stats {
	return imgcache.Stats{Initialized: true, Count: 2, Generation: 2, Hashes: 2}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))

	return buf.Bytes()
}

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Handler().ServeHTTP(rec, req)

	return rec
}

func TestImageHandlerServesImageWithDetectedType(t *testing.T) {
	t.Parallel()

	img := pngBytes(t)
	st := stats.NewStats()
	s := New("", fakeSource{img: img}, fakeCache{}, st)

	rec := serve(t, s, "/image")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, img, rec.Body.Bytes())
	assert.Equal(t, uint64(1), st.Snapshot().ImagesSent)
}

func TestImageHandlerReportsUnavailable(t *testing.T) {
	t.Parallel()

	st := stats.NewStats()
	s := New("", fakeSource{err: imgcache.ErrEmptyCache}, fakeCache{}, st)

	rec := serve(t, s, "/image")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, http.StatusServiceUnavailable, body["status"])
	assert.Equal(t, uint64(1), st.Snapshot().ImageFailures)
}

func TestStatsHandler(t *testing.T) {
	t.Parallel()

	s := New("", fakeSource{}, fakeCache{}, stats.NewStats())

	rec := serve(t, s, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status int `json:"status"`
		Data   struct {
			Bot     map[string]any `json:"bot"`
			Cache   map[string]any `json:"cache"`
			Process map[string]any `json:"process"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, http.StatusOK, body.Status)
	assert.EqualValues(t, 2, body.Data.Cache["count"])
	assert.Contains(t, body.Data.Bot, "images_sent")
	assert.Contains(t, body.Data.Process, "cpu_usage")
}

func TestInfoAndNotFound(t *testing.T) {
	t.Parallel()

	s := New("", fakeSource{}, fakeCache{}, stats.NewStats())

	assert.Equal(t, http.StatusOK, serve(t, s, "/").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, s, "/nope").Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	s := New("127.0.0.1:0", fakeSource{}, fakeCache{}, stats.NewStats())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	require.NoError(t, <-done)
}
