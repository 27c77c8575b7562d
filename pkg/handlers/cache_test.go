package handlers

import (
	"encoding/json"
	"image"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagefetch/pkg/imagecache"
	"imagefetch/pkg/models"
	"imagefetch/pkg/utils"
)

func setupCacheTestApp(t *testing.T) (*fiber.App, *imagecache.Cache) {
	t.Helper()
	log := utils.NewLogger(utils.Config{})
	cache := imagecache.New(imagecache.Options{MemoryCapacity: 1 << 20, PreferredMemoryUsageAfterPurge: 1 << 19, Log: log})
	handler := NewCacheHandler(cache, log)

	app := fiber.New()
	app.Get("/cache/status", handler.GetCacheStatus)
	app.Get("/cache/images", handler.ListCachedImages)
	app.Delete("/cache/image", handler.DeleteCachedImage)
	app.Post("/cache/purge", handler.PurgeCache)

	return app, cache
}

func TestGetCacheStatusReportsItemCount(t *testing.T) {
	app, cache := setupCacheTestApp(t)
	cache.Add(models.NewImage(image.NewRGBA(image.Rect(0, 0, 2, 2)), 1), "https://h/x", "")

	req := httptest.NewRequest("GET", "/cache/status", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.EqualValues(t, 1, out["itemCount"])
}

func TestDeleteCachedImageRequiresKeyOrURL(t *testing.T) {
	app, _ := setupCacheTestApp(t)

	req := httptest.NewRequest("DELETE", "/cache/image", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestDeleteCachedImageByKeyRemovesEntry(t *testing.T) {
	app, cache := setupCacheTestApp(t)
	cache.Add(models.NewImage(image.NewRGBA(image.Rect(0, 0, 2, 2)), 1), "https://h/x", "")

	req := httptest.NewRequest("DELETE", "/cache/image?key=https://h/x", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.False(t, cache.Contains("https://h/x"))
}

func TestPurgeCacheClearsAllEntries(t *testing.T) {
	app, cache := setupCacheTestApp(t)
	cache.Add(models.NewImage(image.NewRGBA(image.Rect(0, 0, 2, 2)), 1), "https://h/x", "")

	req := httptest.NewRequest("POST", "/cache/purge", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 0, cache.Len())
}
