// pkg/handlers/cache.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"imagefetch/pkg/imagecache"
	"imagefetch/pkg/utils"
)

// CacheHandler handles cache inspection and management HTTP requests.
type CacheHandler struct {
	log   *utils.Logger
	cache *imagecache.Cache
}

// NewCacheHandler creates a new cache handler.
func NewCacheHandler(cache *imagecache.Cache, log *utils.Logger) *CacheHandler {
	return &CacheHandler{cache: cache, log: log}
}

// GetCacheStatus returns cache size statistics.
func (h *CacheHandler) GetCacheStatus(c *fiber.Ctx) error {
	h.log.WithFunc().Debug("getting cache status")

	return c.JSON(fiber.Map{
		"itemCount":   h.cache.Len(),
		"memoryUsage": h.cache.MemoryUsage(),
	})
}

// ListCachedImages returns every cache key currently stored.
func (h *CacheHandler) ListCachedImages(c *fiber.Ctx) error {
	h.log.WithFunc().Debug("listing cached images")

	return c.JSON(fiber.Map{
		"keys": h.cache.Keys(),
	})
}

// DeleteCachedImage removes a specific cache key (or every filtered variant
// of a URL, if url is given without a filter).
func (h *CacheHandler) DeleteCachedImage(c *fiber.Ctx) error {
	key := c.Query("key")
	url := c.Query("url")

	h.log.WithFunc().WithField("key", key).WithField("url", url).Debug("deleting cached image")

	switch {
	case key != "":
		if !h.cache.Remove(key) {
			return HTTPError(c, fiber.StatusNotFound, "key not found")
		}
	case url != "":
		if !h.cache.RemovePrefix(url) {
			return HTTPError(c, fiber.StatusNotFound, "no cached entries for url")
		}
	default:
		return HTTPError(c, fiber.StatusBadRequest, "key or url query parameter is required")
	}

	return c.JSON(fiber.Map{"status": "deleted"})
}

// PurgeCache clears every cache entry, mirroring the memory-warning purge
// path an embedding application would trigger on its own low-memory signal.
func (h *CacheHandler) PurgeCache(c *fiber.Ctx) error {
	h.log.WithFunc().Info("purging cache")

	h.cache.Clear()
	return c.JSON(fiber.Map{"status": "purged"})
}
