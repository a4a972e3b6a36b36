package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/CrAsH90548/Abschlussprojekt2026/internal/store"
)

var ErrInvalidResetToken = errors.New("invalid or expired reset token")

// ResetTokens issues and verifies the single-use links in password reset
// mails. The token carries a fingerprint of the current password hash, so
// changing the password invalidates every outstanding token for that account.
type ResetTokens struct {
	secret []byte
	ttl    time.Duration
}

func NewResetTokens(secret []byte, ttl time.Duration) ResetTokens {
	return ResetTokens{secret: secret, ttl: ttl}
}

type resetClaims struct {
	Fingerprint string `json:"pwf"`
	jwt.RegisteredClaims
}

func (rt ResetTokens) Issue(user *store.User) (string, error) {
	now := time.Now()
	claims := resetClaims{
		Fingerprint: fingerprint(user.PasswordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(rt.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(rt.secret)
}

// Verify checks signature, expiry and the password fingerprint, then returns
// the account the token belongs to.
func (rt ResetTokens) Verify(token string, lookup func(uuid.UUID) (*store.User, error)) (*store.User, error) {
	var claims resetClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidResetToken
		}
		return rt.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidResetToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidResetToken
	}
	user, err := lookup(userID)
	if err != nil {
		return nil, ErrInvalidResetToken
	}
	if claims.Fingerprint != fingerprint(user.PasswordHash) {
		return nil, ErrInvalidResetToken
	}
	return user, nil
}

func fingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:8])
}
