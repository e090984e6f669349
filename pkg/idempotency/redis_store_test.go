package idempotency_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekit/admission/pkg/idempotency"
)

var fixedTime = time.Unix(1740730536, 0)

func marshalRecord(t *testing.T, record idempotency.Record) string {
	t.Helper()
	payload, err := json.Marshal(record)
	require.NoError(t, err)
	return string(payload)
}

func inProgressRecord(t *testing.T, key, fingerprint string) string {
	t.Helper()
	return marshalRecord(t, idempotency.Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      idempotency.StatusInProgress,
		CreatedAt:   fixedTime,
	})
}

func completedRecord(t *testing.T, key, fingerprint string, result idempotency.Result) string {
	t.Helper()
	return marshalRecord(t, idempotency.Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      idempotency.StatusCompleted,
		Result:      &result,
		CreatedAt:   fixedTime,
	})
}

func newRedisStore(redisClient *redis.Client) idempotency.Store {
	return idempotency.NewRedisStore(redisClient, silentLogger(), &idempotency.RedisStoreOpts{
		TTL:          24 * time.Hour,
		TimeProvider: func() time.Time { return fixedTime },
	})
}

func TestRedisStore_Begin_FreshKeyProceeds(t *testing.T) {
	redisMock, mock := redismock.NewClientMock()
	store := newRedisStore(redisMock)

	mock.ExpectSetNX("idempotency:key-1", inProgressRecord(t, "key-1", "fp-1"), 24*time.Hour).SetVal(true)

	outcome, result, err := store.Begin(context.Background(), "key-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.OutcomeProceed, outcome)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Begin_ReplaysCompletedRecord(t *testing.T) {
	redisMock, mock := redismock.NewClientMock()
	store := newRedisStore(redisMock)

	stored := idempotency.Result{StatusCode: 201, Body: []byte(`{"id":"ord_1"}`)}
	mock.ExpectSetNX("idempotency:key-1", inProgressRecord(t, "key-1", "fp-1"), 24*time.Hour).SetVal(false)
	mock.ExpectGet("idempotency:key-1").SetVal(completedRecord(t, "key-1", "fp-1", stored))

	outcome, result, err := store.Begin(context.Background(), "key-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.OutcomeReplay, outcome)
	require.NotNil(t, result)
	assert.Equal(t, 201, result.StatusCode)
	assert.Equal(t, []byte(`{"id":"ord_1"}`), result.Body)
}

func TestRedisStore_Begin_InProgressRecord(t *testing.T) {
	redisMock, mock := redismock.NewClientMock()
	store := newRedisStore(redisMock)

	mock.ExpectSetNX("idempotency:key-1", inProgressRecord(t, "key-1", "fp-1"), 24*time.Hour).SetVal(false)
	mock.ExpectGet("idempotency:key-1").SetVal(inProgressRecord(t, "key-1", "fp-1"))

	outcome, result, err := store.Begin(context.Background(), "key-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.OutcomeInProgress, outcome)
	assert.Nil(t, result)
}

func TestRedisStore_Begin_ConflictOnFingerprintMismatch(t *testing.T) {
	redisMock, mock := redismock.NewClientMock()
	store := newRedisStore(redisMock)

	mock.ExpectSetNX("idempotency:key-1", inProgressRecord(t, "key-1", "fp-2"), 24*time.Hour).SetVal(false)
	mock.ExpectGet("idempotency:key-1").SetVal(inProgressRecord(t, "key-1", "fp-1"))

	outcome, _, err := store.Begin(context.Background(), "key-1", "fp-2")
	require.NoError(t, err)
	assert.Equal(t, idempotency.OutcomeConflict, outcome)
}

func TestRedisStore_Begin_RetriesWhenRecordExpiresMidCheck(t *testing.T) {
	redisMock, mock := redismock.NewClientMock()
	store := newRedisStore(redisMock)

	payload := inProgressRecord(t, "key-1", "fp-1")
	mock.ExpectSetNX("idempotency:key-1", payload, 24*time.Hour).SetVal(false)
	mock.ExpectGet("idempotency:key-1").RedisNil()
	mock.ExpectSetNX("idempotency:key-1", payload, 24*time.Hour).SetVal(true)

	outcome, _, err := store.Begin(context.Background(), "key-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.OutcomeProceed, outcome)
}

func TestRedisStore_Begin_StoreFailure(t *testing.T) {
	redisMock, mock := redismock.NewClientMock()
	store := newRedisStore(redisMock)

	mock.ExpectSetNX("idempotency:key-1", inProgressRecord(t, "key-1", "fp-1"), 24*time.Hour).
		SetErr(fmt.Errorf("connection refused"))

	_, _, err := store.Begin(context.Background(), "key-1", "fp-1")
	assert.Error(t, err)
}

func TestRedisStore_Complete_TransitionsToCompleted(t *testing.T) {
	redisMock, mock := redismock.NewClientMock()
	store := newRedisStore(redisMock)

	stored := idempotency.Result{StatusCode: 201, Body: []byte(`{"id":"ord_1"}`)}
	mock.ExpectGet("idempotency:key-1").SetVal(inProgressRecord(t, "key-1", "fp-1"))
	mock.ExpectSetXX("idempotency:key-1", completedRecord(t, "key-1", "fp-1", stored), redis.KeepTTL).SetVal(true)

	err := store.Complete(context.Background(), "key-1", stored)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Complete_RecordExpiredMidCompletionIsSilent(t *testing.T) {
	redisMock, mock := redismock.NewClientMock()
	store := newRedisStore(redisMock)

	// The record expires between the read and the write. SETXX refuses to
	// recreate it, so nothing is left behind without a TTL.
	stored := idempotency.Result{StatusCode: 201, Body: []byte(`{"id":"ord_1"}`)}
	mock.ExpectGet("idempotency:key-1").SetVal(inProgressRecord(t, "key-1", "fp-1"))
	mock.ExpectSetXX("idempotency:key-1", completedRecord(t, "key-1", "fp-1", stored), redis.KeepTTL).SetVal(false)

	err := store.Complete(context.Background(), "key-1", stored)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Complete_MissingRecordIsSilent(t *testing.T) {
	redisMock, mock := redismock.NewClientMock()
	store := newRedisStore(redisMock)

	mock.ExpectGet("idempotency:missing").RedisNil()

	assert.NoError(t, store.Complete(context.Background(), "missing", idempotency.Result{StatusCode: 200}))
}

func TestRedisStore_Complete_AlreadyCompletedIsSilent(t *testing.T) {
	redisMock, mock := redismock.NewClientMock()
	store := newRedisStore(redisMock)

	stored := idempotency.Result{StatusCode: 201}
	mock.ExpectGet("idempotency:key-1").SetVal(completedRecord(t, "key-1", "fp-1", stored))

	assert.NoError(t, store.Complete(context.Background(), "key-1", idempotency.Result{StatusCode: 500}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
