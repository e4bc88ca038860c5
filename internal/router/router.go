// Package router assembles the HTTP route table.
package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/inventory-ledger/internal/events"
	"github.com/inventory-ledger/internal/handler"
	"github.com/inventory-ledger/internal/middleware"
	"github.com/inventory-ledger/internal/service"
	"github.com/inventory-ledger/internal/storage"
	"github.com/sirupsen/logrus"
)

// Deps are the collaborators the routes are built from
type Deps struct {
	Logger           *logrus.Logger
	SessionService   *service.SessionService
	AuthService      *service.AuthService
	InventoryService *service.InventoryService
	BundleService    *service.BundleService
	Uploads          *storage.Uploads
	Hub              *events.Hub
	Version          string
	MaxUploadBytes   int64
}

// SetupRouter builds the gin engine with every API route
func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20

	// Global middleware
	r.Use(middleware.RequestLoggerMiddleware(d.Logger))
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{
		`^/api/inventory/export`,
		`^/api/inventory/events`,
		`^/api/files/`,
	})))
	r.Use(middleware.BodyLimit(d.MaxUploadBytes))

	authMiddleware := middleware.SessionAuth(d.SessionService)

	authHandler := handler.NewAuthHandler(d.AuthService)
	inventoryHandler := handler.NewInventoryHandler(d.InventoryService, d.BundleService, d.MaxUploadBytes)
	fileHandler := handler.NewFileHandler(d.InventoryService, d.Uploads)
	eventsHandler := handler.NewEventsHandler(d.Hub, d.Logger)

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"version": d.Version,
				"time":    time.Now().UTC().Format(time.RFC3339),
			})
		})

		authHandler.RegisterRoutes(api, authMiddleware)
		eventsHandler.RegisterRoutes(api, authMiddleware)
		inventoryHandler.RegisterRoutes(api, authMiddleware)
		fileHandler.RegisterRoutes(api, authMiddleware)
	}

	return r
}
