// Origin policy for the loopback server.
//
// DESIGN: Browsers attach Origin to every cross-site POST and to every
// websocket handshake, and do not apply CORS to websockets. The Origin
// header is therefore the only thing separating the extension from an
// arbitrary page, and it is matched on parsed scheme and host, never by
// prefix. Three levels:
//   - trustExtension: a configured extension id, or no Origin at all (a
//     local process, which could read the settings file anyway). May read
//     API keys and change settings.
//   - trustPage: loopback pages and configured allowed_origins. May run
//     prompts and completions and read the redacted settings.
//   - trustNone: everything else. Rejected before routing.
package gateway

import (
	"context"
	"net/url"
	"strings"

	"github.com/samber/lo"

	"github.com/cosense-ai/cosense-gateway/internal/errs"
	"github.com/cosense-ai/cosense-gateway/internal/router"
)

type trust int

const (
	trustNone trust = iota
	trustPage
	trustExtension
)

func (t trust) String() string {
	switch t {
	case trustExtension:
		return "extension"
	case trustPage:
		return "page"
	}
	return "none"
}

// originTrust classifies the Origin header of a request.
func (g *Gateway) originTrust(origin string) trust {
	if origin == "" {
		return trustExtension
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || u.Path != "" || u.User != nil {
		return trustNone
	}

	switch strings.ToLower(u.Scheme) {
	case "chrome-extension", "moz-extension":
		if lo.Contains(g.config.Server.ExtensionIDs, u.Host) {
			return trustExtension
		}
		return trustNone
	case "http", "https":
		switch u.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return trustPage
		}
	}

	for _, allowed := range g.config.Server.AllowedOrigins {
		if strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return trustPage
		}
	}
	return trustNone
}

type trustKey struct{}

func withTrust(ctx context.Context, t trust) context.Context {
	return context.WithValue(ctx, trustKey{}, t)
}

// trustFromContext returns trustNone when the security middleware did not run.
func trustFromContext(ctx context.Context) trust {
	t, _ := ctx.Value(trustKey{}).(trust)
	return t
}

// permit rejects privileged message types from non-extension callers.
func permit(t trust, msgType router.MessageType) error {
	if msgType.Privileged() && t < trustExtension {
		return errs.Forbidden("%s is only accepted from the extension", msgType)
	}
	return nil
}
