package handlers

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"bytes"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagefetch/pkg/coordinator"
	"imagefetch/pkg/decoder"
	"imagefetch/pkg/filter"
	"imagefetch/pkg/imagecache"
	"imagefetch/pkg/models"
	"imagefetch/pkg/runner"
	"imagefetch/pkg/utils"
)

type blockingRunner struct {
	release chan struct{}
	resp    *models.Response
}

func (r *blockingRunner) Run(ctx context.Context, req *models.Request, creds []models.Credential, progress runner.ProgressFunc) (*models.Response, error) {
	<-r.release
	resp := *r.resp
	resp.Request = req
	return &resp, nil
}

func pngPayload(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func setupCoordinatorTestApp(t *testing.T, runnerImpl runner.RequestRunner) (*fiber.App, *CoordinatorHandler) {
	t.Helper()
	log := utils.NewLogger(utils.Config{})
	cache := imagecache.New(imagecache.Options{MemoryCapacity: 1 << 20, PreferredMemoryUsageAfterPurge: 1 << 19, Log: log})
	reg := filter.NewRegistry("dev", log)
	require.NoError(t, reg.Register(filter.Registration{Name: "grayscale", Filter: filter.Grayscale()}))

	coord := coordinator.New(coordinator.Config{
		MaxConcurrent: 1,
		Cache:         cache,
		Runner:        runnerImpl,
		Decoder:       decoder.New(decoder.Options{}),
		Executor:      coordinator.AsyncExecutor{},
		Log:           log,
	})

	handler := NewCoordinatorHandler(coord, reg, log)
	app := fiber.New()
	app.Post("/download", handler.Download)
	app.Get("/result/:receiptId", handler.Result)
	app.Post("/cancel/:receiptId", handler.Cancel)
	app.Get("/status", handler.Status)

	return app, handler
}

func TestDownloadCacheHitReturnsSynchronously(t *testing.T) {
	log := utils.NewLogger(utils.Config{})
	cache := imagecache.New(imagecache.Options{MemoryCapacity: 1 << 20, PreferredMemoryUsageAfterPurge: 1 << 19, Log: log})
	cache.Add(models.NewImage(image.NewRGBA(image.Rect(0, 0, 2, 2)), 1), "https://h/x", "")

	reg := filter.NewRegistry("dev", log)
	coord := coordinator.New(coordinator.Config{
		MaxConcurrent: 1,
		Cache:         cache,
		Runner:        &blockingRunner{release: make(chan struct{})},
		Decoder:       decoder.New(decoder.Options{}),
		Executor:      coordinator.DirectExecutor{},
		Log:           log,
	})
	handler := NewCoordinatorHandler(coord, reg, log)
	app := fiber.New()
	app.Post("/download", handler.Download)

	body, _ := json.Marshal(downloadRequest{URL: "https://h/x"})
	req := httptest.NewRequest("POST", "/download", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var out downloadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Cached)
	assert.Empty(t, out.ReceiptID)
}

func TestDownloadThenResultPollsUntilComplete(t *testing.T) {
	runnerImpl := &blockingRunner{release: make(chan struct{}), resp: &models.Response{StatusCode: 200, MIMEType: "image/png", Body: pngPayload(t, 3, 3)}}
	app, _ := setupCoordinatorTestApp(t, runnerImpl)

	body, _ := json.Marshal(downloadRequest{URL: "https://h/y"})
	req := httptest.NewRequest("POST", "/download", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	var out downloadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.ReceiptID)

	pollReq := httptest.NewRequest("GET", "/result/"+out.ReceiptID, nil)
	pollResp, err := app.Test(pollReq)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, pollResp.StatusCode)

	close(runnerImpl.release)

	deadline := time.Now().Add(time.Second)
	for {
		pollReq := httptest.NewRequest("GET", "/result/"+out.ReceiptID, nil)
		pollResp, err := app.Test(pollReq)
		require.NoError(t, err)
		if pollResp.StatusCode == 200 {
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(pollResp.Body).Decode(&payload))
			assert.NotEmpty(t, payload["image"])
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("result never became ready")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStatusReportsCoordinatorCounters(t *testing.T) {
	runnerImpl := &blockingRunner{release: make(chan struct{}), resp: &models.Response{StatusCode: 200, MIMEType: "image/png"}}
	app, _ := setupCoordinatorTestApp(t, runnerImpl)
	defer close(runnerImpl.release)

	req := httptest.NewRequest("GET", "/status", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out, "activeCount")
	assert.Contains(t, out, "queueLength")
}
