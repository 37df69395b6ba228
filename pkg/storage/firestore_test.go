package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/raterudder/energystats/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirestoreProvider(t *testing.T) {
	// Requires a running emulator, e.g.
	// gcloud emulators firestore start --host-port=127.0.0.1:8087
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	projectID := "test-project-id"

	// Use a random database for isolation
	randDB := fmt.Sprintf("test-db-%d", time.Now().UnixNano())
	f := &FirestoreProvider{
		projectID: projectID,
		database:  randDB,
	}

	ctx := context.Background()
	require.NoError(t, f.Init(ctx))
	defer f.Close()

	t.Run("Validate", func(t *testing.T) {
		require.NoError(t, f.Validate())
	})

	t.Run("Missing State", func(t *testing.T) {
		_, ok, err := f.GetState(ctx, "never-saved")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("EmptySiteID", func(t *testing.T) {
		_, _, err := f.GetState(ctx, "")
		assert.ErrorContains(t, err, "siteID cannot be empty")
		assert.ErrorContains(t, f.SetState(ctx, "", types.PersistedState{}), "siteID cannot be empty")
	})

	t.Run("RoundTrip", func(t *testing.T) {
		state := testState()
		require.NoError(t, f.SetState(ctx, "test-site", state))

		got, ok, err := f.GetState(ctx, "test-site")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, state, got)
	})
}
