package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/inventory-ledger/internal/service"
	"github.com/inventory-ledger/internal/storage"
	"github.com/inventory-ledger/pkg/response"
)

// FileHandler serves attachments through signed file tokens
type FileHandler struct {
	inventoryService *service.InventoryService
	uploads          *storage.Uploads
}

// NewFileHandler creates a new FileHandler
func NewFileHandler(inventoryService *service.InventoryService, uploads *storage.Uploads) *FileHandler {
	return &FileHandler{
		inventoryService: inventoryService,
		uploads:          uploads,
	}
}

// Download streams the attachment a file token points at
// GET /api/files/:token
func (h *FileHandler) Download(c *gin.Context) {
	name, err := h.inventoryService.ResolveFile(c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}

	f, err := h.uploads.Open(name)
	if err != nil {
		response.NotFound(c, "file not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", response.ContentDisposition("inline", name))
	http.ServeContent(c.Writer, c.Request, name, info.ModTime(), f)
}

// RegisterRoutes registers file routes
func (h *FileHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	rg.GET("/files/:token", authMiddleware, h.Download)
}
