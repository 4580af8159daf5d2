package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashToken_Format(t *testing.T) {
	t.Parallel()

	hash, err := HashToken("operator-token-0123456789")
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}

	// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Fatalf("Hash should have 6 parts, got: %d", len(parts))
	}
	if parts[1] != "argon2id" {
		t.Errorf("Expected argon2id algorithm, got: %s", parts[1])
	}
	if parts[2] != "v=19" {
		t.Errorf("Expected v=19, got: %s", parts[2])
	}
	if parts[3] != "m=65536,t=3,p=4" {
		t.Errorf("Expected m=65536,t=3,p=4, got: %s", parts[3])
	}
}

func TestHashToken_Salted(t *testing.T) {
	t.Parallel()

	token := "the_same_token_12345"

	hash1, err := HashToken(token)
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}
	hash2, err := HashToken(token)
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}

	if hash1 == hash2 {
		t.Error("Same token should produce different hashes due to random salt")
	}

	match1, _ := VerifyToken(token, hash1)
	match2, _ := VerifyToken(token, hash2)
	if !match1 || !match2 {
		t.Error("Both hashes should verify correctly")
	}
}

func TestVerifyToken(t *testing.T) {
	t.Parallel()

	hash, err := HashToken("correct-token")
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"correct", "correct-token", true},
		{"wrong", "wrong-token", false},
		{"empty", "", false},
		{"prefix only", "correct", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := VerifyToken(tt.token, hash)
			if err != nil {
				t.Fatalf("VerifyToken error: %v", err)
			}
			if got != tt.want {
				t.Errorf("VerifyToken(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestVerifyToken_InvalidHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		hash    string
		wantErr error
	}{
		{"empty", "", ErrInvalidHash},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA", ErrInvalidHash},
		{"bad version", "$argon2id$v=18$m=65536,t=3,p=4$c2FsdA$aGFzaA", ErrIncompatibleVersion},
		{"bad params", "$argon2id$v=19$garbage$c2FsdA$aGFzaA", ErrInvalidHash},
		{"bad salt", "$argon2id$v=19$m=65536,t=3,p=4$!!!$aGFzaA", ErrInvalidHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := VerifyToken("token", tt.hash)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifyToken error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
