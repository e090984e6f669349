package fingerprint

import (
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
)

//go:generate mockery --name=Tracker --dir=. --output=./mocks --filename=tracker_mock.go --case=underscore --with-expecter
type Tracker interface {
	MakeFingerprint(ctx *fiber.Ctx) Fingerprint
}

type tracker struct{}

func NewTracker() Tracker {
	return &tracker{}
}

func (p *tracker) MakeFingerprint(ctx *fiber.Ctx) Fingerprint {
	return Fingerprint{
		AccountID: strings.ToLower(strings.TrimSpace(p.getAccountID(ctx))),
		IP:        p.getIP(ctx),
		UserAgent: strings.ToLower(strings.TrimSpace(ctx.Get(fiber.HeaderUserAgent))),
	}
}

func (p *tracker) getAccountID(ctx *fiber.Ctx) string {
	if id := ctx.Get("X-Account-ID"); id != "" {
		return id
	}
	return ""
}

// getIP prefers proxy headers over the connection address, first hop wins.
func (p *tracker) getIP(ctx *fiber.Ctx) string {
	ipHeaders := []string{
		"X-Real-IP",
		"X-Forwarded-For",
		"True-Client-IP",
		"CF-Connecting-IP",
	}
	for _, header := range ipHeaders {
		if value := ctx.Get(header); value != "" {
			first := strings.TrimSpace(strings.Split(value, ",")[0])
			if net.ParseIP(first) != nil {
				return first
			}
		}
	}
	return ctx.IP()
}
