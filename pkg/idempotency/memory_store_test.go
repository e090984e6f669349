package idempotency_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekit/admission/pkg/idempotency"
)

func silentLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestMemoryStore_ProceedThenReplay(t *testing.T) {
	store := idempotency.NewMemoryStore(silentLogger(), nil)

	outcome, result, err := store.Begin(context.Background(), "key-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.OutcomeProceed, outcome)
	assert.Nil(t, result)

	stored := idempotency.Result{StatusCode: 201, Body: []byte(`{"id":"ord_1"}`)}
	require.NoError(t, store.Complete(context.Background(), "key-1", stored))

	outcome, result, err = store.Begin(context.Background(), "key-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.OutcomeReplay, outcome)
	require.NotNil(t, result)
	assert.Equal(t, 201, result.StatusCode)
	assert.Equal(t, []byte(`{"id":"ord_1"}`), result.Body)
}

func TestMemoryStore_ConflictOnFingerprintMismatch(t *testing.T) {
	store := idempotency.NewMemoryStore(silentLogger(), nil)

	outcome, _, err := store.Begin(context.Background(), "key-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.OutcomeProceed, outcome)

	// Conflict regardless of completion state.
	outcome, _, err = store.Begin(context.Background(), "key-1", "fp-2")
	require.NoError(t, err)
	assert.Equal(t, idempotency.OutcomeConflict, outcome)

	require.NoError(t, store.Complete(context.Background(), "key-1", idempotency.Result{StatusCode: 200}))

	outcome, _, err = store.Begin(context.Background(), "key-1", "fp-2")
	require.NoError(t, err)
	assert.Equal(t, idempotency.OutcomeConflict, outcome)
}

func TestMemoryStore_InProgressWhileRunning(t *testing.T) {
	store := idempotency.NewMemoryStore(silentLogger(), nil)

	outcome, _, err := store.Begin(context.Background(), "key-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.OutcomeProceed, outcome)

	outcome, _, err = store.Begin(context.Background(), "key-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.OutcomeInProgress, outcome)
}

func TestMemoryStore_ExpiredRecordBehavesAsAbsent(t *testing.T) {
	now := time.Unix(1740730536, 0)
	store := idempotency.NewMemoryStore(silentLogger(), &idempotency.MemoryStoreOpts{
		TTL:          24 * time.Hour,
		TimeProvider: func() time.Time { return now },
	})

	outcome, _, err := store.Begin(context.Background(), "key-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.OutcomeProceed, outcome)
	require.NoError(t, store.Complete(context.Background(), "key-1", idempotency.Result{StatusCode: 200}))

	now = now.Add(24*time.Hour + time.Second)

	// Even a mismatched fingerprint gets Proceed once the record expired.
	outcome, _, err = store.Begin(context.Background(), "key-1", "fp-2")
	require.NoError(t, err)
	assert.Equal(t, idempotency.OutcomeProceed, outcome)
}

func TestMemoryStore_ConcurrentBegin_ExactlyOneProceeds(t *testing.T) {
	const callers = 50
	store := idempotency.NewMemoryStore(silentLogger(), nil)

	var wg sync.WaitGroup
	outcomes := make([]idempotency.Outcome, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, _, err := store.Begin(context.Background(), "shared", "fp-1")
			assert.NoError(t, err)
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	proceeds := 0
	for _, outcome := range outcomes {
		switch outcome {
		case idempotency.OutcomeProceed:
			proceeds++
		case idempotency.OutcomeInProgress:
		default:
			t.Fatalf("unexpected outcome %q", outcome)
		}
	}
	assert.Equal(t, 1, proceeds)
}

func TestMemoryStore_CompleteWithoutRecordIsSilent(t *testing.T) {
	store := idempotency.NewMemoryStore(silentLogger(), nil)

	assert.NoError(t, store.Complete(context.Background(), "missing", idempotency.Result{StatusCode: 200}))
}

func TestMemoryStore_CompleteNeverMovesBackward(t *testing.T) {
	store := idempotency.NewMemoryStore(silentLogger(), nil)

	_, _, err := store.Begin(context.Background(), "key-1", "fp-1")
	require.NoError(t, err)
	require.NoError(t, store.Complete(context.Background(), "key-1", idempotency.Result{StatusCode: 201, Body: []byte("first")}))

	// A second complete does not overwrite the stored result.
	require.NoError(t, store.Complete(context.Background(), "key-1", idempotency.Result{StatusCode: 500, Body: []byte("second")}))

	outcome, result, err := store.Begin(context.Background(), "key-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.OutcomeReplay, outcome)
	require.NotNil(t, result)
	assert.Equal(t, 201, result.StatusCode)
	assert.Equal(t, []byte("first"), result.Body)
}

func TestMemoryStore_InputValidation(t *testing.T) {
	store := idempotency.NewMemoryStore(silentLogger(), nil)

	_, _, err := store.Begin(context.Background(), "", "fp")
	assert.ErrorIs(t, err, idempotency.ErrEmptyKey)

	_, _, err = store.Begin(context.Background(), "key", "")
	assert.ErrorIs(t, err, idempotency.ErrEmptyFingerprint)

	assert.ErrorIs(t, store.Complete(context.Background(), "", idempotency.Result{}), idempotency.ErrEmptyKey)
}
