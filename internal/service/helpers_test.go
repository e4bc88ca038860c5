package service

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/inventory-ledger/internal/database/dbtest"
	"github.com/inventory-ledger/internal/events"
	"github.com/inventory-ledger/internal/models"
	"github.com/inventory-ledger/internal/repository"
	"github.com/inventory-ledger/internal/storage"
	"github.com/inventory-ledger/pkg/filetoken"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db        *gorm.DB
	users     *repository.UserRepository
	tokens    *repository.TokenRepository
	items     *repository.InventoryRepository
	uploads   *storage.Uploads
	codec     *filetoken.Codec
	hub       *events.Hub
	sessions  *SessionService
	auth      *AuthService
	inventory *InventoryService
	bundles   *BundleService
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := quietLogger()

	db := dbtest.New(t)
	uploads, err := storage.NewUploads(filepath.Join(t.TempDir(), "uploads"), []string{"png", "jpg", "pdf"})
	require.NoError(t, err)

	env := &testEnv{
		db:      db,
		users:   repository.NewUserRepository(db),
		tokens:  repository.NewTokenRepository(db),
		items:   repository.NewInventoryRepository(db),
		uploads: uploads,
		codec:   filetoken.NewCodec("test-secret", "file-download", time.Hour),
		hub:     events.NewHub(16),
	}
	env.sessions = NewSessionService(env.tokens, env.users, time.Hour, log)
	env.auth = NewAuthService(env.users, env.sessions, log)
	env.inventory = NewInventoryService(env.items, uploads, env.codec, env.hub, log)
	env.bundles = NewBundleService(env.items, uploads, env.hub, log)
	return env
}

func (e *testEnv) createUser(t *testing.T, username string) *models.User {
	t.Helper()
	user, err := e.auth.Register(context.Background(), &RegisterRequest{
		Username:        username,
		Password:        "Segreta123",
		ConfirmPassword: "Segreta123",
	})
	require.NoError(t, err)
	return user
}
