package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tarsy-coach/coachcore/pkg/job"
	"github.com/tarsy-coach/coachcore/pkg/session"
	"github.com/tarsy-coach/coachcore/pkg/store/pgstore"
)

// newTestClient opens a *pgstore.Client against a real PostgreSQL instance
// and runs pgstore's migrations, grounded on the teacher's
// test/database.NewTestClient: an external CI_DATABASE_URL service
// container when set, otherwise a local testcontainers-go postgres
// instance torn down via t.Cleanup.
func newTestClient(t *testing.T) *pgstore.Client {
	t.Helper()
	ctx := context.Background()

	cfg := pgstore.Config{
		Database:        "test",
		User:            "test",
		Password:        "test",
		SSLMode:         "disable",
		MaxConns:        5,
		MaxConnLifetime: time.Minute,
	}

	if ciURL := os.Getenv("CI_DATABASE_URL"); ciURL != "" {
		t.Log("using external PostgreSQL from CI_DATABASE_URL")
		poolCfg, err := pgxpool.ParseConfig(ciURL)
		require.NoError(t, err)
		cfg.Host = poolCfg.ConnConfig.Host
		cfg.Port = int(poolCfg.ConnConfig.Port)
		cfg.User = poolCfg.ConnConfig.User
		cfg.Password = poolCfg.ConnConfig.Password
		cfg.Database = poolCfg.ConnConfig.Database
	} else {
		t.Log("using testcontainers for PostgreSQL")
		pgContainer, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase(cfg.Database),
			postgres.WithUsername(cfg.User),
			postgres.WithPassword(cfg.Password),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)
		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		host, err := pgContainer.Host(ctx)
		require.NoError(t, err)
		port, err := pgContainer.MappedPort(ctx, "5432/tcp")
		require.NoError(t, err)
		cfg.Host = host
		cfg.Port = port.Int()
	}

	client, err := pgstore.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

func TestJobStore_ClaimTransitionReap(t *testing.T) {
	client := newTestClient(t)
	store := pgstore.NewJobStore(client.Pool)
	ctx := context.Background()

	j := &job.Job{
		ID:        uuid.NewString(),
		TenantID:  "tenant-a",
		UserID:    "user-a",
		Kind:      job.KindCoachingMessage,
		TopicID:   "topic-1",
		Status:    job.StatusPending,
		CreatedAt: time.Now().UTC(),
		TTLAt:     time.Now().Add(time.Hour).UTC(),
	}
	require.NoError(t, store.Create(ctx, j))

	claimed, err := store.ClaimNextPending(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, j.ID, claimed.ID)
	require.Equal(t, job.StatusProcessing, claimed.Status)

	msg := "done"
	final := true
	done, err := store.Transition(ctx, j.ID, job.StatusProcessing, job.Mutation{
		To:            job.StatusCompleted,
		OutputMessage: &msg,
		IsFinal:       &final,
	})
	require.NoError(t, err)
	require.Equal(t, job.StatusCompleted, done.Status)

	_, err = store.Transition(ctx, j.ID, job.StatusProcessing, job.Mutation{To: job.StatusFailed})
	require.ErrorIs(t, err, job.ErrConflict)

	require.NoError(t, store.SoftDelete(ctx, j.ID, time.Now().UTC()))
	_, err = store.Get(ctx, j.ID)
	require.ErrorIs(t, err, job.ErrNotFound)

	require.NoError(t, store.Restore(ctx, j.ID))
	restored, err := store.Get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, j.ID, restored.ID)

	n, err := store.ReapExpired(ctx, time.Now().Add(2*time.Hour).UTC())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestSessionStore_ActiveUniquenessAndCAS(t *testing.T) {
	client := newTestClient(t)
	store := pgstore.NewSessionStore(client.Pool)
	ctx := context.Background()

	now := time.Now().UTC()
	first := &session.Session{
		ID:             uuid.NewString(),
		TenantID:       "tenant-a",
		UserID:         "user-a",
		TopicID:        "topic-1",
		Status:         session.StatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
		Version:        1,
	}
	require.NoError(t, store.Create(ctx, first))

	second := &session.Session{
		ID:             uuid.NewString(),
		TenantID:       "tenant-a",
		UserID:         "user-a",
		TopicID:        "topic-1",
		Status:         session.StatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
		Version:        1,
	}
	require.ErrorIs(t, store.Create(ctx, second), session.ErrConflict)

	active, err := store.GetActiveByTopic(ctx, "tenant-a", "user-a", "topic-1")
	require.NoError(t, err)
	require.Equal(t, first.ID, active.ID)

	active.Turn = 1
	updated, err := store.CompareAndSwap(ctx, active, 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, updated.Version)

	_, err = store.CompareAndSwap(ctx, active, 1)
	require.ErrorIs(t, err, session.ErrConflict)
}
