package logger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioinfoflow/bioinfoflow/domain/logger"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/persistence/memory"
)

func scopedContext(runID, stepName string) context.Context {
	ctx := context.WithValue(context.Background(), logger.RunIDKey, runID)
	return context.WithValue(ctx, logger.StepNameKey, stepName)
}

func TestService_FlushesOnBatchSize(t *testing.T) {
	repo := memory.NewLogRepository()
	svc := logger.NewService(repo, 2, time.Hour)
	defer svc.Close()

	ctx := scopedContext("run-1", "align")
	svc.Info(ctx, "starting", nil)
	svc.Info(ctx, "still running", nil)

	require.Eventually(t, func() bool {
		entries, err := repo.GetLogs("run-1", 0, 0)
		return err == nil && len(entries) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestService_FlushLogsIsExplicit(t *testing.T) {
	repo := memory.NewLogRepository()
	svc := logger.NewService(repo, 100, time.Hour)
	defer svc.Close()

	ctx := scopedContext("run-2", "align")
	svc.Warn(ctx, "slow step", map[string]interface{}{"seconds": 12})

	entries, err := repo.GetLogs("run-2", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, entries, "below batch size, nothing flushed yet")

	require.NoError(t, svc.FlushLogs())

	entries, err = repo.GetLogs("run-2", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, logger.LevelWarn, entries[0].Level())
	assert.Equal(t, "slow step", entries[0].Message())
}

func TestService_GetStepLogsFiltersByStep(t *testing.T) {
	repo := memory.NewLogRepository()
	svc := logger.NewService(repo, 100, time.Hour)
	defer svc.Close()

	svc.Info(scopedContext("run-3", "align"), "align message", nil)
	svc.Info(scopedContext("run-3", "report"), "report message", nil)
	require.NoError(t, svc.FlushLogs())

	entries, err := repo.GetStepLogs("run-3", "align", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "align message", entries[0].Message())
}

func TestScopeFromContext_MissingKeysDoNotPanic(t *testing.T) {
	repo := memory.NewLogRepository()
	svc := logger.NewService(repo, 1, time.Hour)
	defer svc.Close()

	assert.NotPanics(t, func() {
		svc.Info(context.Background(), "no scope set", nil)
	})
}
