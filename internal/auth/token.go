package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"spendwise/internal/store"
)

// Personal API tokens look like "sw_<id>_<secret>". Only the bcrypt hash of
// the secret is stored; the id locates the row.
const (
	TokenPrefix     = "sw"
	MinSecretLength = 16
)

var ErrWeakSecret = fmt.Errorf("secret must be at least %d characters", MinSecretLength)

// TokenVerifier checks personal API tokens against a TokenStore.
type TokenVerifier struct {
	tokens store.TokenStore
	now    func() time.Time
}

func NewTokenVerifier(tokens store.TokenStore) *TokenVerifier {
	return &TokenVerifier{tokens: tokens, now: time.Now}
}

func (v *TokenVerifier) Verify(ctx context.Context, raw string) (string, error) {
	id, secret, ok := ParseToken(raw)
	if !ok {
		return "", ErrInvalidToken
	}
	t, err := v.tokens.GetToken(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("lookup token: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(t.SecretHash, []byte(secret)); err != nil {
		return "", ErrInvalidToken
	}
	if err := v.tokens.TouchToken(ctx, id, v.now().UTC()); err != nil {
		slog.WarnContext(ctx, "Failed to record token use", "token_id", id, "error", err)
	}
	return t.Owner, nil
}

// ParseToken splits a raw token into its id and secret.
func ParseToken(raw string) (id, secret string, ok bool) {
	rest, found := strings.CutPrefix(raw, TokenPrefix+"_")
	if !found {
		return "", "", false
	}
	id, secret, found = strings.Cut(rest, "_")
	if !found || id == "" || secret == "" {
		return "", "", false
	}
	return id, secret, true
}

// IssueToken creates a token for owner and returns the raw value, which is
// shown once and never stored. An empty secret is replaced by 32 random bytes.
func IssueToken(ctx context.Context, tokens store.TokenStore, owner, label, secret string) (string, store.APIToken, error) {
	if strings.TrimSpace(owner) == "" {
		return "", store.APIToken{}, errors.New("owner is required")
	}
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return "", store.APIToken{}, fmt.Errorf("generate secret: %w", err)
		}
		secret = base64.RawURLEncoding.EncodeToString(buf)
	}
	if len(secret) < MinSecretLength {
		return "", store.APIToken{}, ErrWeakSecret
	}
	if len(secret) > 72 {
		return "", store.APIToken{}, errors.New("secret must be at most 72 bytes")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", store.APIToken{}, fmt.Errorf("hash secret: %w", err)
	}

	// Underscores separate the token parts, so the id must not contain any.
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	t := store.APIToken{
		ID:         id,
		Owner:      owner,
		Label:      label,
		SecretHash: hash,
		CreatedAt:  time.Now().UTC(),
	}
	if err := tokens.CreateToken(ctx, t); err != nil {
		return "", store.APIToken{}, fmt.Errorf("store token: %w", err)
	}
	return TokenPrefix + "_" + id + "_" + secret, t, nil
}
