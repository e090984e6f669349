package fingerprint

import (
	"encoding/base64"
	"errors"
	"strings"
)

// Fingerprint identifies a client without relying on authentication. It is
// the rate limit identity for anonymous traffic.
type Fingerprint struct {
	AccountID string
	IP        string
	UserAgent string
}

func NewFromID(id string) (*Fingerprint, error) {
	decoded, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(string(decoded), "|")
	if len(parts) != 3 {
		return nil, errors.New("invalid fingerprint ID format")
	}
	return &Fingerprint{
		AccountID: parts[0],
		IP:        parts[1],
		UserAgent: parts[2],
	}, nil
}

func (f Fingerprint) ID() string {
	raw := f.AccountID + "|" + f.IP + "|" + f.UserAgent
	return base64.StdEncoding.EncodeToString([]byte(raw))
}
