package security_test

import (
	"testing"

	"github.com/expensehub/expensehub/internal/security"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := security.HashPassword("s3cret-password")

	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	if hash == "s3cret-password" {
		t.Fatal("hash must not equal the plaintext")
	}

	if err := security.CheckPassword(hash, "s3cret-password"); err != nil {
		t.Fatalf("CheckPassword rejected the correct password: %v", err)
	}

	if err := security.CheckPassword(hash, "wrong-password"); err == nil {
		t.Fatal("CheckPassword accepted a wrong password")
	}
}
