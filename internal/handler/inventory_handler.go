package handler

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inventory-ledger/internal/middleware"
	"github.com/inventory-ledger/internal/repository"
	"github.com/inventory-ledger/internal/service"
	"github.com/inventory-ledger/pkg/response"
)

// InventoryHandler handles ledger API requests
type InventoryHandler struct {
	inventoryService *service.InventoryService
	bundleService    *service.BundleService
	maxImportBytes   int64
}

// NewInventoryHandler creates a new InventoryHandler
func NewInventoryHandler(inventoryService *service.InventoryService, bundleService *service.BundleService, maxImportBytes int64) *InventoryHandler {
	return &InventoryHandler{
		inventoryService: inventoryService,
		bundleService:    bundleService,
		maxImportBytes:   maxImportBytes,
	}
}

// List returns the items matching the query filters
// GET /api/inventory?codice_articolo=&descrizione=&locazione=
func (h *InventoryHandler) List(c *gin.Context) {
	items, err := h.inventoryService.List(c.Request.Context(), repository.ItemFilter{
		Codice:      c.Query("codice_articolo"),
		Descrizione: c.Query("descrizione"),
		Locazione:   c.Query("locazione"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, items)
}

// Get returns one item
// GET /api/inventory/:id
func (h *InventoryHandler) Get(c *gin.Context) {
	id, ok := parseItemID(c)
	if !ok {
		return
	}

	item, err := h.inventoryService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, item)
}

// Create adds an item
// POST /api/inventory
func (h *InventoryHandler) Create(c *gin.Context) {
	payload, file, release, err := bindItemPayload(c)
	defer release()
	if err != nil {
		respondError(c, err)
		return
	}

	item, err := h.inventoryService.Add(c.Request.Context(), payload, file, middleware.GetUser(c).Username)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, item)
}

// Update applies movements and field changes to an item
// PUT /api/inventory/:id
func (h *InventoryHandler) Update(c *gin.Context) {
	id, ok := parseItemID(c)
	if !ok {
		return
	}

	payload, file, release, err := bindItemPayload(c)
	defer release()
	if err != nil {
		respondError(c, err)
		return
	}

	item, err := h.inventoryService.Update(c.Request.Context(), id, payload, file, middleware.GetUser(c).Username)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, item)
}

// Delete removes an item
// DELETE /api/inventory/:id
func (h *InventoryHandler) Delete(c *gin.Context) {
	id, ok := parseItemID(c)
	if !ok {
		return
	}

	if err := h.inventoryService.Delete(c.Request.Context(), id, middleware.GetUser(c).Username); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}

// ExportCSV downloads the ledger as CSV
// GET /api/inventory/export
func (h *InventoryHandler) ExportCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.inventoryService.ExportCSV(c.Request.Context(), &buf); err != nil {
		respondError(c, err)
		return
	}

	response.Attachment(c, "inventario.csv", "text/csv; charset=utf-8", buf.Bytes())
}

// ExportBundle downloads the ledger and its attachments as a ZIP bundle
// GET /api/inventory/export/bundle
func (h *InventoryHandler) ExportBundle(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.bundleService.Export(c.Request.Context(), &buf); err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("inventario-bundle-%s.zip", time.Now().UTC().Format("20060102-150405"))
	response.Attachment(c, filename, "application/zip", buf.Bytes())
}

// Import replaces the ledger with an uploaded bundle
// POST /api/inventory/import
func (h *InventoryHandler) Import(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "no file uploaded")
		return
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		response.BadRequest(c, "the bundle must be a .zip file")
		return
	}
	if h.maxImportBytes > 0 && header.Size > h.maxImportBytes {
		response.BadRequest(c, "the bundle is too large")
		return
	}

	f, err := header.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.bundleService.Import(c.Request.Context(), data, middleware.GetUser(c).Username)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, result)
}

// RegisterRoutes registers inventory routes
func (h *InventoryHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	inventory := rg.Group("/inventory")
	inventory.Use(authMiddleware)
	{
		inventory.GET("", h.List)
		inventory.POST("", h.Create)
		inventory.GET("/export", h.ExportCSV)
		inventory.GET("/export/bundle", h.ExportBundle)
		inventory.POST("/import", h.Import)
		inventory.GET("/:id", h.Get)
		inventory.PUT("/:id", h.Update)
		inventory.DELETE("/:id", h.Delete)
	}
}

// parseItemID reads the :id parameter. Anything that is not a positive
// integer cannot name an item and is answered with 404.
func parseItemID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.NotFound(c, "item not found")
		return 0, false
	}
	return uint(id), true
}
