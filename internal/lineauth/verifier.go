package lineauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/linecrm/linecrm/internal/security"
)

// ErrInvalidIDToken is returned for ID tokens that fail verification.
var ErrInvalidIDToken = errors.New("lineauth: invalid id token")

// IDTokenClaims are the claims LINE puts in an ID token.
type IDTokenClaims struct {
	Name    string   `json:"name"`
	Picture string   `json:"picture"`
	Email   string   `json:"email"`
	Nonce   string   `json:"nonce"`
	AMR     []string `json:"amr"`
	jwt.RegisteredClaims
}

// Verifier checks ID token signatures and claims.
// HS256 tokens are keyed with the channel secret; ES256 tokens with LINE's JWKS.
type Verifier struct {
	channelID     string
	channelSecret string
	issuer        string
	keys          *JWKSCache
	leeway        time.Duration
	now           func() time.Time
}

// NewVerifier builds a verifier for one channel.
func NewVerifier(channelID, channelSecret, issuer string, keys *JWKSCache) *Verifier {
	return &Verifier{
		channelID:     channelID,
		channelSecret: channelSecret,
		issuer:        issuer,
		keys:          keys,
		leeway:        30 * time.Second,
		now:           time.Now,
	}
}

// Verify parses raw and checks signature, iss, aud, exp and nonce.
func (v *Verifier) Verify(ctx context.Context, raw, nonce string) (*IDTokenClaims, error) {
	claims := &IDTokenClaims{}
	_, errParse := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if v.channelSecret == "" {
				return nil, errors.New("no channel secret configured")
			}
			return []byte(v.channelSecret), nil
		case *jwt.SigningMethodECDSA:
			if v.keys == nil {
				return nil, errors.New("no jwks configured")
			}
			return v.keys.Keyfunc(ctx, t)
		default:
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
	},
		jwt.WithValidMethods([]string{"HS256", "ES256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.channelID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if errParse != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, errParse)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidIDToken)
	}
	if nonce != "" && !security.ConstantTimeEqual(claims.Nonce, nonce) {
		return nil, fmt.Errorf("%w: nonce mismatch", ErrInvalidIDToken)
	}
	return claims, nil
}
