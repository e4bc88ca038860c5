package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inventory-ledger/internal/config"
	"github.com/inventory-ledger/internal/database/dbtest"
	"github.com/inventory-ledger/internal/models"
	"github.com/inventory-ledger/internal/repository"
	"github.com/inventory-ledger/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupAuthRouter(t *testing.T) (*gin.Engine, string, *bytes.Buffer) {
	t.Helper()
	db := dbtest.New(t)
	users := repository.NewUserRepository(db)
	user := &models.User{Username: "mario", PasswordHash: "x"}
	require.NoError(t, users.Create(context.Background(), user))

	var logs bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&logs)
	logger.SetFormatter(&logrus.JSONFormatter{})

	sessions := service.NewSessionService(repository.NewTokenRepository(db), users, time.Hour, logger)
	session, err := sessions.Issue(context.Background(), user)
	require.NoError(t, err)

	r := gin.New()
	r.Use(RequestLoggerMiddleware(logger))
	r.GET("/protected", SessionAuth(sessions), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": GetUser(c).Username, "token": GetToken(c)})
	})
	return r, session.Token, &logs
}

func TestSessionAuth(t *testing.T) {
	r, token, logs := setupAuthRouter(t)

	tests := []struct {
		name    string
		header  string
		query   string
		upgrade bool
		status  int
	}{
		{"valid bearer", "Bearer " + token, "", false, http.StatusOK},
		{"lower-case scheme", "bearer " + token, "", false, http.StatusOK},
		{"missing header", "", "", false, http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, "", false, http.StatusUnauthorized},
		{"unknown token", "Bearer nope", "", false, http.StatusUnauthorized},
		{"query token ignored for plain requests", "", "?token=" + token, false, http.StatusUnauthorized},
		{"query token on websocket upgrade", "", "?token=" + token, true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.upgrade {
				req.Header.Set("Connection", "Upgrade")
				req.Header.Set("Upgrade", "websocket")
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"username":"mario"`)
			}
		})
	}

	assert.Contains(t, logs.String(), `"username":"mario"`)
	assert.Contains(t, logs.String(), `"level":"warning"`)
}

func TestRequestLoggerKeepsClientRequestID(t *testing.T) {
	r, _, logs := setupAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
	assert.Contains(t, logs.String(), `"request_id":"abc-123"`)
}

func TestRequestLoggerRedactsQueryToken(t *testing.T) {
	r, token, logs := setupAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/protected?token="+token+"&since=5", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, logs.String(), token)
	assert.Contains(t, logs.String(), "REDACTED")
	assert.Contains(t, logs.String(), "since=5")
}

func TestRedactQuery(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"username=mario", "username=mario"},
		{"token=abc", "token=%5BREDACTED%5D"},
		{"b=2&token=abc&a=1", "a=1&b=2&token=%5BREDACTED%5D"},
	}
	for _, tt := range tests {
		u := &url.URL{Path: "/x", RawQuery: tt.raw}
		assert.Equal(t, tt.want, redactQuery(u), tt.raw)
	}
}

func TestInitLogger(t *testing.T) {
	dir := t.TempDir()
	logger, err := InitLogger(config.LogConfig{Dir: dir, Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger, err = InitLogger(config.LogConfig{Dir: dir, Level: "nonsense"})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.FileExists(t, filepath.Join(dir, "app.log"))
}
