// Package databasetest opens throwaway SQLite-backed stores for tests.
package databasetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/thereayou/dealroom-chat/internal/database"
	"github.com/thereayou/dealroom-chat/internal/models"
)

// New returns a migrated in-memory database private to t.
func New(t testing.TB) *database.Database {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := database.NewDatabase(db)
	require.NoError(t, store.Migrate())
	return store
}

func User(t testing.TB, store *database.Database, name string, role models.Role) models.User {
	t.Helper()

	u := models.User{
		ID:          uuid.New(),
		Email:       name + "@example.com",
		DisplayName: name,
		Role:        role,
	}
	require.NoError(t, store.SaveUser(context.Background(), &u))
	return u
}

func Subject(t testing.TB, store *database.Database, name string) models.Subject {
	t.Helper()

	s := models.Subject{ID: uuid.New(), Name: name}
	require.NoError(t, store.SaveSubject(context.Background(), &s))
	return s
}

// Clock hands out strictly increasing times, one step apart.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{now: start.UTC(), step: step}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}
