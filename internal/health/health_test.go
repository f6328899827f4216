package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_AllHealthy(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("storage", func(ctx context.Context) Status { return StatusOK })
	c.Register("sessions", func(ctx context.Context) Status { return StatusOK })

	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_OneDown(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("storage", func(ctx context.Context) Status { return StatusOK })
	c.Register("generator", func(ctx context.Context) Status { return StatusDown })

	assert.False(t, c.IsReady(context.Background()))
}

func TestChecker_Degraded_StillReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("storage", func(ctx context.Context) Status { return StatusDegraded })

	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_NoChecks(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_RunAllReportsEachCheck(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("storage", func(ctx context.Context) Status { return StatusOK })
	c.Register("sessions", func(ctx context.Context) Status { return StatusDegraded })

	results := c.RunAll(context.Background())
	assert.Equal(t, map[string]Status{
		"storage":  StatusOK,
		"sessions": StatusDegraded,
	}, results)
}

func TestStorageCheck(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, StatusOK, StorageCheck(dir)(context.Background()))

	assert.Equal(t, StatusDown, StorageCheck(filepath.Join(dir, "missing"))(context.Background()))

	file := filepath.Join(dir, "not_a_dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.Equal(t, StatusDown, StorageCheck(file)(context.Background()))
}

func TestPingCheck(t *testing.T) {
	ok := PingCheck(func(ctx context.Context) error { return nil })
	assert.Equal(t, StatusOK, ok(context.Background()))

	down := PingCheck(func(ctx context.Context) error { return errors.New("refused") })
	assert.Equal(t, StatusDown, down(context.Background()))
}
