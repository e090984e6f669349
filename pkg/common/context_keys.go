package common

type contextKey string

const (
	TraceIdKey              contextKey = "trace_id"
	AccountIdContextKey     contextKey = "account_id"
	FingerprintIdContextKey contextKey = "fingerprint_id"
)
