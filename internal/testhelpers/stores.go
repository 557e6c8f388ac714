package testhelpers

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/akmatori/incidentd/internal/database"
	"github.com/akmatori/incidentd/internal/queue"
)

// NewTestDB opens a migrated in-memory sqlite database
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	// every pooled connection would otherwise see its own empty database
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrate(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// NewTestRedis starts a miniredis server and returns a queue client bound to it
func NewTestRedis(t *testing.T) (*queue.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := queue.NewClientFromRedis(
		redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		zap.NewNop(),
	)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

// Env bundles the stores a pipeline test needs
type Env struct {
	DB     *gorm.DB
	Redis  *queue.Client
	Mini   *miniredis.Miniredis
	Queues *queue.Set
}

// NewEnv creates a sqlite database, a miniredis server and the queue set
func NewEnv(t *testing.T) *Env {
	t.Helper()
	client, mr := NewTestRedis(t)
	return &Env{
		DB:     NewTestDB(t),
		Redis:  client,
		Mini:   mr,
		Queues: queue.NewSet(client),
	}
}
