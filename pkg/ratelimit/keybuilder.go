package ratelimit

import (
	"fmt"
	"strings"
)

// KeyBuilder renders rate limit keys. Authenticated traffic is keyed by
// account, anonymous traffic by client fingerprint, both scoped to the
// endpoint path so limits are per-endpoint.
type KeyBuilder struct{}

func NewKeyBuilder() *KeyBuilder {
	return &KeyBuilder{}
}

func (b *KeyBuilder) ForAccount(accountID, path string) string {
	return fmt.Sprintf("account:%s:endpoint:%s", accountID, normalizePath(path))
}

func (b *KeyBuilder) ForFingerprint(fingerprintID, path string) string {
	return fmt.Sprintf("fp:%s:endpoint:%s", fingerprintID, normalizePath(path))
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	path = strings.ToLower(path)
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
