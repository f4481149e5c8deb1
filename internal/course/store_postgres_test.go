package course_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/platform/database"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("course"),
		postgres.WithUsername("course"),
		postgres.WithPassword("course"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("ConnectionString() error = %v", err)
	}
	db, err := database.New(ctx, url, database.Options{MaxConns: 4})
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(db.Close)

	runStoreTests(t, func(t *testing.T) course.Store {
		resetTables(t, db.Pool)
		store, err := course.NewPostgresStore(db.Pool)
		if err != nil {
			t.Fatalf("NewPostgresStore() error = %v", err)
		}
		return store
	})

	t.Run("PostgresEventLogger", func(t *testing.T) {
		resetTables(t, db.Pool)
		logger := course.NewPostgresEventLogger(db.Pool)
		if err := logger.LogEvent(course.Event{TopicID: 7, EventType: course.EventTopicCompleted}); err != nil {
			t.Fatalf("LogEvent() error = %v", err)
		}

		var n int
		if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM events WHERE topic_id = 7`).Scan(&n); err != nil {
			t.Fatalf("count events: %v", err)
		}
		if n != 1 {
			t.Errorf("events = %d, want 1", n)
		}
	})
}

func TestNewPostgresStore_NilPool(t *testing.T) {
	if _, err := course.NewPostgresStore(nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func resetTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(context.Background(),
		`TRUNCATE quiz_questions, topics, events RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
