package tokens_test

import (
	"context"
	"testing"
	"time"

	"github.com/expensehub/expensehub/internal/tokens"
)

func TestMemoryRevoker(t *testing.T) {
	ctx := context.Background()
	r := tokens.NewMemoryRevoker()

	revoked, err := r.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if revoked {
		t.Fatal("unknown jti reported revoked")
	}

	if err := r.Revoke(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	revoked, err = r.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if !revoked {
		t.Fatal("revoked jti not reported revoked")
	}

	// another jti stays valid
	revoked, _ = r.IsRevoked(ctx, "jti-2")
	if revoked {
		t.Fatal("revocation leaked to a different jti")
	}
}

func TestMemoryRevokerExpiry(t *testing.T) {
	ctx := context.Background()
	r := tokens.NewMemoryRevoker()

	if err := r.Revoke(ctx, "jti-old", -time.Minute); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	revoked, err := r.IsRevoked(ctx, "jti-old")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if revoked {
		t.Fatal("entry with non-positive ttl must not be denylisted")
	}

	if err := r.Revoke(ctx, "jti-short", 10*time.Millisecond); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	revoked, _ = r.IsRevoked(ctx, "jti-short")
	if revoked {
		t.Fatal("expired denylist entry still reported revoked")
	}
}
