package repositories

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/geopost/config"
	"github.com/cppla/geopost/models"
)

// newTestDB opens an isolated in-memory SQLite database with the real schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := config.AppConfig{
		DatabaseURI: "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared",
		LogLevel:    "silent",
	}
	db, err := config.InitDatabase(cfg, zap.NewNop(), models.All()...)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func mustCreateUser(t *testing.T, repo UserRepository, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, PasswordHash: "pbkdf2:sha256:1$salt$00"}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}
