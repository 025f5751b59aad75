// Package identity mints and validates agent session tokens. A token
// carries exactly one ExecutionContext; the gate trusts nothing about
// the caller beyond what the signature proves.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oversight-labs/opsgate/pkg/contracts"
)

const issuer = "opsgate/identity"

var (
	ErrEmptySecret  = errors.New("identity: signing secret is empty")
	ErrInvalidToken = errors.New("identity: token is invalid")
)

// SessionClaims binds an execution context to a JWT.
type SessionClaims struct {
	jwt.RegisteredClaims
	AgentID     string `json:"agent_id"`
	Role        string `json:"role"`
	Environment string `json:"environment"`
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id,omitempty"`
	TenantID    string `json:"tenant_id,omitempty"`
}

// TokenManager signs and validates session tokens with an HS256 shared
// secret.
type TokenManager struct {
	secret []byte
	now    func() time.Time
}

func NewTokenManager(secret []byte) (*TokenManager, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	return &TokenManager{secret: secret, now: time.Now}, nil
}

// WithClock overrides the manager's time source. Test hook.
func (tm *TokenManager) WithClock(now func() time.Time) *TokenManager {
	tm.now = now
	return tm
}

// Issue creates a signed token for the context. The context must be
// valid; a gate never signs what it would later refuse to evaluate.
func (tm *TokenManager) Issue(ectx contracts.ExecutionContext, ttl time.Duration) (string, error) {
	if err := ectx.Validate(); err != nil {
		return "", fmt.Errorf("identity: refusing to sign: %w", err)
	}

	now := tm.now().UTC()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ectx.AgentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
		AgentID:     ectx.AgentID,
		Role:        ectx.Role.String(),
		Environment: string(ectx.Environment),
		SessionID:   ectx.SessionID,
		UserID:      ectx.UserID,
		TenantID:    ectx.TenantID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// Parse validates a token and reconstructs its execution context.
func (tm *TokenManager) Parse(tokenString string) (contracts.ExecutionContext, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("identity: unexpected signing method %v", t.Header["alg"])
		}
		return tm.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(func() time.Time { return tm.now() }),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return contracts.ExecutionContext{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return contracts.ExecutionContext{}, ErrInvalidToken
	}

	role, err := contracts.ParseRole(claims.Role)
	if err != nil {
		return contracts.ExecutionContext{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	ectx := contracts.ExecutionContext{
		AgentID:     claims.AgentID,
		Role:        role,
		Environment: contracts.Environment(claims.Environment),
		SessionID:   claims.SessionID,
		UserID:      claims.UserID,
		TenantID:    claims.TenantID,
	}
	if err := ectx.Validate(); err != nil {
		return contracts.ExecutionContext{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return ectx, nil
}
