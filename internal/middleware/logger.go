package middleware

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/inventory-ledger/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// HeaderRequestID carries the request id back to the client
	HeaderRequestID = "X-Request-ID"
	// ContextKeyRequestID is the key for the request id in gin context
	ContextKeyRequestID = "request_id"
)

// InitLogger builds the application logger. Entries go to stdout and to a
// rotated app.log file in the configured directory.
func InitLogger(cfg config.LogConfig) (*logrus.Logger, error) {
	absLogDir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		absLogDir = cfg.Dir
	}

	// Create logs directory if not exists
	if err := os.MkdirAll(absLogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", absLogDir, err)
	}

	appLogFile := &lumberjack.Logger{
		Filename:   filepath.Join(absLogDir, "app.log"),
		MaxSize:    10, // 10 MB
		MaxBackups: 30, // Keep 30 old files
		MaxAge:     30, // 30 days
		Compress:   true,
		LocalTime:  true,
	}

	logger := logrus.New()
	logger.SetOutput(io.MultiWriter(os.Stdout, appLogFile))

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}

	logger.WithField("dir", absLogDir).Info("Logger initialized")
	return logger, nil
}

// redactedParams are query parameters that carry credentials
var redactedParams = []string{"token"}

// redactQuery returns the raw query of u with credential parameters masked.
func redactQuery(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	q := u.Query()
	masked := false
	for _, name := range redactedParams {
		if _, ok := q[name]; ok {
			q.Set(name, "[REDACTED]")
			masked = true
		}
	}
	if !masked {
		return u.RawQuery
	}
	return q.Encode()
}

// RequestLoggerMiddleware logs every request once it has been handled
func RequestLoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)

		path := c.Request.URL.Path
		query := redactQuery(c.Request.URL)

		// Process request
		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"status":     status,
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency":    time.Since(start),
			"length":     c.Writer.Size(),
		})
		if user := GetUser(c); user != nil {
			entry = entry.WithField("username", user.Username)
		}
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			entry.Error("HTTP request")
		case status >= 400:
			entry.Warn("HTTP request")
		default:
			entry.Info("HTTP request")
		}
	}
}
