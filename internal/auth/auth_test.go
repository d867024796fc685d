package auth

import (
	"testing"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid password", "password123", false},
		{"empty password", "", false},
		{"long password", "a" + string(make([]byte, 70)), false}, // bcrypt max is 72 bytes
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("HashPassword() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && hash == "" {
				t.Error("HashPassword() returned empty hash")
			}
		})
	}
}

func TestVerifyPassword(t *testing.T) {
	password := "testpassword123"
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		want     bool
	}{
		{"correct password", hash, password, true},
		{"wrong password", hash, "wrongpassword", false},
		{"empty password", hash, "", false},
		{"invalid hash", "invalidhash", password, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyPassword(tt.hash, tt.password); got != tt.want {
				t.Errorf("VerifyPassword() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateAccessToken(t *testing.T) {
	tests := []struct {
		name       string
		userID     uint
		username   string
		roles      []string
		secret     string
		ttlMinutes int
		wantErr    bool
	}{
		{"valid token", 1, "alice", []string{"user"}, "test-secret", 15, false},
		{"admin roles", 2, "root", []string{"admin"}, "test-secret", 15, false},
		{"zero user id", 0, "", nil, "test-secret", 15, false},
		{"empty secret", 1, "alice", []string{"user"}, "", 15, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateAccessToken(tt.userID, tt.username, tt.roles, tt.secret, tt.ttlMinutes)
			if (err != nil) != tt.wantErr {
				t.Errorf("GenerateAccessToken() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && token == "" {
				t.Error("GenerateAccessToken() returned empty token")
			}
		})
	}
}

func TestParseAccessToken(t *testing.T) {
	secret := "test-access-secret"
	token, err := GenerateAccessToken(42, "alice", []string{"user"}, secret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	tests := []struct {
		name    string
		token   string
		secret  string
		wantUID uint
		wantErr bool
	}{
		{"valid token", token, secret, 42, false},
		{"wrong secret", token, "wrong-secret", 0, true},
		{"invalid token", "invalid.token.here", secret, 0, true},
		{"empty token", "", secret, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ParseAccessToken(tt.token, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseAccessToken() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if claims.UserID != tt.wantUID {
					t.Errorf("ParseAccessToken() UserID = %v, want %v", claims.UserID, tt.wantUID)
				}
				if claims.Username != "alice" {
					t.Errorf("ParseAccessToken() Username = %v, want alice", claims.Username)
				}
				if len(claims.Roles) != 1 || claims.Roles[0] != "user" {
					t.Errorf("ParseAccessToken() Roles = %v, want [user]", claims.Roles)
				}
			}
		})
	}
}

func TestParseAccessToken_Expired(t *testing.T) {
	secret := "test-secret"
	// Generate token with -1 minute TTL (already expired)
	token, err := GenerateAccessToken(1, "alice", []string{"user"}, secret, -1)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseAccessToken(token, secret)
	if err == nil {
		t.Error("ParseAccessToken() should return error for expired token")
	}
	if claims != nil {
		t.Error("ParseAccessToken() should return nil claims for expired token")
	}
}

func TestParseRefreshToken(t *testing.T) {
	secret := "test-refresh-secret"
	token, err := GenerateRefreshToken(7, "bob", secret, 7)
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}

	claims, err := ParseRefreshToken(token, secret)
	if err != nil {
		t.Fatalf("ParseRefreshToken() error = %v", err)
	}
	if claims.UserID != 7 || claims.Username != "bob" {
		t.Errorf("ParseRefreshToken() claims = %v/%v, want 7/bob", claims.UserID, claims.Username)
	}
}

func TestTokenKinds_SecretsNotInterchangeable(t *testing.T) {
	accessSecret := "access-secret"
	refreshSecret := "refresh-secret"

	at, err := GenerateAccessToken(1, "alice", []string{"user"}, accessSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	rt, err := GenerateRefreshToken(1, "alice", refreshSecret, 7)
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}

	if _, err := ParseAccessToken(at, refreshSecret); err == nil {
		t.Error("ParseAccessToken() should reject access token signed with access secret when verified with refresh secret")
	}
	if _, err := ParseRefreshToken(rt, accessSecret); err == nil {
		t.Error("ParseRefreshToken() should reject refresh token when verified with access secret")
	}
}

func TestHashRefreshToken(t *testing.T) {
	token, err := GenerateRefreshToken(1, "alice", "secret", 7)
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}
	hash := HashRefreshToken(token)

	if hash == "" {
		t.Fatal("HashRefreshToken() returned empty hash")
	}
	if hash == token {
		t.Error("HashRefreshToken() must not return the token itself")
	}
	// sha256 hex = 64 chars
	if len(hash) != 64 {
		t.Errorf("HashRefreshToken() hash length = %d, want 64", len(hash))
	}

	if !VerifyRefreshHash(hash, token) {
		t.Error("VerifyRefreshHash() should accept the original token")
	}
	if VerifyRefreshHash(hash, token+"x") {
		t.Error("VerifyRefreshHash() should reject a different token")
	}
	if VerifyRefreshHash("", token) {
		t.Error("VerifyRefreshHash() should reject when no hash is stored")
	}
}
