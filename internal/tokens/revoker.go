package tokens

import (
	"context"
	"time"
)

// Revoker tracks access tokens that were invalidated before their natural
// expiry. Logout denylists exactly the token presented on the request; every
// other token stays usable until it expires on its own.
type Revoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
