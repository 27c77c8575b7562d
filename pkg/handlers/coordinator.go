// pkg/handlers/coordinator.go
package handlers

import (
	"bytes"
	"encoding/base64"
	"image/jpeg"

	"github.com/gofiber/fiber/v2"

	"imagefetch/pkg/coordinator"
	"imagefetch/pkg/filter"
	"imagefetch/pkg/models"
	"imagefetch/pkg/utils"
)

// CoordinatorHandler exposes the Download Coordinator over HTTP: submit a
// download, poll or cancel it by receipt.
type CoordinatorHandler struct {
	coord    *coordinator.Coordinator
	registry *filter.Registry
	log      *utils.Logger

	// pendingResults tracks in-flight receipts so a client can poll for
	// completion instead of holding the HTTP connection open. Keyed by
	// receipt ID.
	pendingResults *resultStore
}

// NewCoordinatorHandler builds a CoordinatorHandler.
func NewCoordinatorHandler(coord *coordinator.Coordinator, registry *filter.Registry, log *utils.Logger) *CoordinatorHandler {
	return &CoordinatorHandler{
		coord:          coord,
		registry:       registry,
		log:            log,
		pendingResults: newResultStore(),
	}
}

type downloadRequest struct {
	URL    string `json:"url"`
	Filter string `json:"filter,omitempty"`
}

type downloadResponse struct {
	ReceiptID string `json:"receiptId,omitempty"`
	Cached    bool   `json:"cached"`
}

// Download handles POST /download. If the image is already cached the
// response is returned synchronously with cached=true; otherwise a
// receiptId is returned for polling GET /result/:receiptId or cancelling
// via POST /cancel/:receiptId.
func (h *CoordinatorHandler) Download(c *fiber.Ctx) error {
	var body downloadRequest
	if err := c.BodyParser(&body); err != nil {
		return HTTPError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if body.URL == "" {
		return HTTPError(c, fiber.StatusBadRequest, "url is required")
	}

	var f filter.Filter
	if body.Filter != "" {
		var ok bool
		f, ok = h.registry.Get(body.Filter)
		if !ok {
			return HTTPError(c, fiber.StatusBadRequest, "unknown filter: "+body.Filter)
		}
	}

	req := models.NewRequest(body.URL)
	var receipt *models.Receipt
	receipt = h.coord.Download(req, "", f, func(image *models.Image, err error) {
		h.pendingResults.set(receiptIDOrSynthetic(receipt, body.URL), image, err)
	})

	if receipt == nil {
		// Cache hit: completion has been handed to the coordinator's executor
		// (it has already run only under a synchronous executor).
		return c.JSON(downloadResponse{Cached: true})
	}

	h.pendingResults.reserve(receipt.ReceiptID)
	return c.JSON(downloadResponse{ReceiptID: receipt.ReceiptID})
}

func receiptIDOrSynthetic(receipt *models.Receipt, url string) string {
	if receipt == nil {
		return "sync:" + url
	}
	return receipt.ReceiptID
}

// Result handles GET /result/:receiptId, returning 202 while pending, 200
// with a base64-encoded JPEG once resolved, or the failure otherwise.
func (h *CoordinatorHandler) Result(c *fiber.Ctx) error {
	receiptID := c.Params("receiptId")
	result, ok := h.pendingResults.get(receiptID)
	if !ok {
		return HTTPError(c, fiber.StatusNotFound, "unknown receipt")
	}
	if !result.done {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "pending"})
	}
	if result.err != nil {
		return HTTPError(c, fiber.StatusUnprocessableEntity, result.err.Error())
	}

	encoded, err := encodeJPEGBase64(result.image)
	if err != nil {
		return HTTPError(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"image": encoded, "width": result.image.Width(), "height": result.image.Height()})
}

// Cancel handles POST /cancel/:receiptId.
func (h *CoordinatorHandler) Cancel(c *fiber.Ctx) error {
	receiptID := c.Params("receiptId")
	url := c.Query("url")
	if url == "" {
		return HTTPError(c, fiber.StatusBadRequest, "url query parameter is required")
	}
	h.coord.Cancel(&models.Receipt{Request: models.NewRequest(url), ReceiptID: receiptID})
	return c.JSON(fiber.Map{"status": "cancelled"})
}

// Status handles GET /status, exposing coordinator concurrency counters
// for operational visibility.
func (h *CoordinatorHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"activeCount": h.coord.ActiveCount(),
		"queueLength": h.coord.QueueLength(),
	})
}

func encodeJPEGBase64(img *models.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img.Raw(), &jpeg.Options{Quality: 90}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
