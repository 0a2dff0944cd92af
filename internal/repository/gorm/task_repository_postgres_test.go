//go:build integration
// +build integration

package gorm

import (
	"context"
	"testing"
	"time"

	"hubrunner/domain/task"
	"hubrunner/internal/dbconn"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresURL(t *testing.T) string {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("hubrunner"),
		postgres.WithUsername("hubrunner"),
		postgres.WithPassword("hubrunner"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	url, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return url
}

// TestTaskRepository_Postgres - history snapshot round trips through postgres
func TestTaskRepository_Postgres(t *testing.T) {
	url := setupPostgresURL(t)

	db, err := dbconn.Open(dbconn.WithURL(url))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sdb, err := db.DB(); err == nil {
			sdb.Close()
		}
	})

	require.NoError(t, Migrate(db))
	repo := NewTaskRepository(db)

	require.NoError(t, repo.ReplaceAll(context.Background(), []task.Task{
		terminalTask("tsk_1", 1, task.StatusSuccess),
		terminalTask("tsk_2", 2, task.StatusFailed),
	}))

	tasks, err := repo.FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "tsk_2", tasks[0].ID)
	assert.Equal(t, "https://cdn/out.png", tasks[1].Result[0].FileURL)
}
