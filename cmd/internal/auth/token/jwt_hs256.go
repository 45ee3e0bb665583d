package token

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// Token type claim values. A token only works in the role it was minted for.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is the identity envelope carried by a verified token.
type Claims struct {
	UserID    string
	TokenID   string
	TokenType string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
}

// Pair is an issued access+refresh token pair for one user.
type Pair struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// Manager issues and verifies the bearer token pair.
type Manager interface {
	// IssuePair mints a fresh access+refresh pair bound to userID.
	IssuePair(userID string, now time.Time) (Pair, error)

	// Refresh verifies a refresh token and mints a new access token for
	// its user. The refresh token itself is returned unchanged by the API
	// layer; without a revocation list, rotating it would not invalidate
	// the old one.
	Refresh(refreshToken string, now time.Time) (access string, exp time.Time, err error)

	// VerifyAccess verifies an access token and returns its claims.
	VerifyAccess(tokenStr string, now time.Time) (Claims, error)
}

type hs256Manager struct {
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clockSkew  time.Duration
	secret     []byte
}

// jwtClaims is the wire layout. user_id and token_type match the claim
// names the original frontend's tooling expects when decoding for display.
type jwtClaims struct {
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// NewHS256Manager builds a Manager that signs with HMAC-SHA256.
func NewHS256Manager(cfg Config) (Manager, error) {
	if len(cfg.Secret) < MinSecretBytes {
		return nil, ErrConfig
	}
	if cfg.Issuer == "" || cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 || cfg.ClockSkew < 0 {
		return nil, ErrConfig
	}

	return &hs256Manager{
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		clockSkew:  cfg.ClockSkew,
		secret:     cfg.Secret,
	}, nil
}

func (m *hs256Manager) IssuePair(userID string, now time.Time) (Pair, error) {
	if userID == "" {
		return Pair{}, ErrInvalidToken
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	access, accessExp, err := m.sign(userID, TypeAccess, m.accessTTL, now)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := m.sign(userID, TypeRefresh, m.refreshTTL, now)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: refresh,
		RefreshExp:   refreshExp,
	}, nil
}

func (m *hs256Manager) Refresh(refreshToken string, now time.Time) (string, time.Time, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	claims, err := m.verify(refreshToken, TypeRefresh, now)
	if err != nil {
		return "", time.Time{}, err
	}

	return m.signAccess(claims.UserID, now)
}

func (m *hs256Manager) VerifyAccess(tokenStr string, now time.Time) (Claims, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return m.verify(tokenStr, TypeAccess, now)
}

func (m *hs256Manager) signAccess(userID string, now time.Time) (string, time.Time, error) {
	return m.sign(userID, TypeAccess, m.accessTTL, now)
}

func (m *hs256Manager) sign(userID, tokenType string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	exp := now.Add(ttl)

	jti, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", time.Time{}, err
	}

	claims := jwtClaims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti.String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *hs256Manager) verify(tokenStr, wantType string, now time.Time) (Claims, error) {
	if tokenStr == "" {
		return Claims{}, ErrInvalidToken
	}

	var claims jwtClaims
	parsed, err := jwt.ParseWithClaims(
		tokenStr,
		&claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	if claims.TokenType != wantType || claims.UserID == "" {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{
		UserID:    claims.UserID,
		TokenID:   claims.ID,
		TokenType: claims.TokenType,
		Issuer:    claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}

	return out, nil
}
