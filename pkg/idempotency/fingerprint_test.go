package idempotency_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gatekit/admission/pkg/idempotency"
)

func TestFingerprint_StableForSameRequest(t *testing.T) {
	body := []byte(`{"amount":100}`)
	first := idempotency.Fingerprint("POST", "/v1/orders", body)
	second := idempotency.Fingerprint("POST", "/v1/orders", body)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestFingerprint_MethodIsCaseInsensitive(t *testing.T) {
	body := []byte(`{"amount":100}`)
	assert.Equal(t,
		idempotency.Fingerprint("post", "/v1/orders", body),
		idempotency.Fingerprint("POST", "/v1/orders", body),
	)
}

func TestFingerprint_IgnoresTrailingSlash(t *testing.T) {
	assert.Equal(t,
		idempotency.Fingerprint("POST", "/v1/orders/", nil),
		idempotency.Fingerprint("POST", "/v1/orders", nil),
	)
}

func TestFingerprint_DistinguishesRequests(t *testing.T) {
	base := idempotency.Fingerprint("POST", "/v1/orders", []byte(`{"amount":100}`))

	assert.NotEqual(t, base, idempotency.Fingerprint("PUT", "/v1/orders", []byte(`{"amount":100}`)))
	assert.NotEqual(t, base, idempotency.Fingerprint("POST", "/v1/refunds", []byte(`{"amount":100}`)))
	assert.NotEqual(t, base, idempotency.Fingerprint("POST", "/v1/orders", []byte(`{"amount":200}`)))
}
