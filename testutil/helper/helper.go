package helper

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
)

// GivenUniqueID generates a unique UUID for testing.
func GivenUniqueID(t testing.TB) uuid.UUID {
	id, err := uuid.NewV7()
	require.NoError(t, err, "error in arranging test data")

	return id
}

// GivenFixedClock returns a fixed point in time with microsecond precision, which every supported driver keeps.
func GivenFixedClock() time.Time {
	return time.Date(2025, time.March, 14, 9, 26, 53, 589000000, time.UTC)
}

// GivenLoadedEntity loads an entity through its type's loader.
func GivenLoadedEntity(t testing.TB, ctx context.Context, entityType *snapshot.EntityType, id any) *snapshot.Row { //nolint:revive
	entity, err := entityType.Load(ctx, id)
	require.NoError(t, err, "error in loading %s#%v", entityType.Name, id)

	row, ok := entity.(*snapshot.Row)
	require.True(t, ok, "loaded entity is not a *snapshot.Row")

	return row
}

// NewSpyLogger wires a LogHandlerSpy into a *slog.Logger at debug level.
func NewSpyLogger(logToStdout bool) (*slog.Logger, *LogHandlerSpy) {
	spy := NewLogHandlerSpy(logToStdout)

	return slog.New(spy), spy
}
