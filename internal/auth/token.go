package auth

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token families. Access and refresh tokens are signed with separate
// secrets so compromise of one family does not compromise the other.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Fingerprint mismatch policies.
const (
	PolicyWarn   = "warn"
	PolicyReject = "reject"
)

// Claims 自定义 JWT 负载
type Claims struct {
	UserID uint   `json:"user_id"`
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`
	Device string `json:"device,omitempty"`
	jwt.RegisteredClaims
}

// SessionKey returns the rotation-tracking id carried in the jti claim.
func (c *Claims) SessionKey() string {
	return c.ID
}

// TokenConfig collects the issuing policy for a TokenIssuer.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	Audience      string

	AccessTTL          time.Duration // 默认 15 分钟
	RefreshTTL         time.Duration // 默认 7 天
	RefreshRememberTTL time.Duration // 默认 30 天

	// FingerprintPolicy 控制设备指纹不匹配时的行为，默认 warn
	FingerprintPolicy string
}

func (c *TokenConfig) withDefaults() TokenConfig {
	out := *c
	if out.Issuer == "" {
		out.Issuer = "taig-sub000"
	}
	if out.Audience == "" {
		out.Audience = "taig-api"
	}
	if out.AccessTTL <= 0 {
		out.AccessTTL = 15 * time.Minute
	}
	if out.RefreshTTL <= 0 {
		out.RefreshTTL = 7 * 24 * time.Hour
	}
	if out.RefreshRememberTTL <= 0 {
		out.RefreshRememberTTL = 30 * 24 * time.Hour
	}
	if out.FingerprintPolicy == "" {
		out.FingerprintPolicy = PolicyWarn
	}
	return out
}

// TokenIssuer mints and validates the access/refresh token pair and owns
// the access-token revocation set.
type TokenIssuer struct {
	cfg       TokenConfig
	blacklist TokenBlacklist

	now func() time.Time
}

func NewTokenIssuer(cfg TokenConfig, blacklist TokenBlacklist) *TokenIssuer {
	if blacklist == nil {
		blacklist = NewMemoryBlacklist()
	}
	return &TokenIssuer{
		cfg:       cfg.withDefaults(),
		blacklist: blacklist,
		now:       time.Now,
	}
}

// AccessTTL returns the configured access-token lifetime.
func (ti *TokenIssuer) AccessTTL() time.Duration {
	return ti.cfg.AccessTTL
}

// RefreshTTL returns the refresh-token lifetime for the given remember-me flag.
func (ti *TokenIssuer) RefreshTTL(rememberMe bool) time.Duration {
	if rememberMe {
		return ti.cfg.RefreshRememberTTL
	}
	return ti.cfg.RefreshTTL
}

// IssueAccessToken mints a short-lived access token. The session key is
// carried as jti so the session list and logout can identify the current
// session from the bearer token alone.
func (ti *TokenIssuer) IssueAccessToken(userID uint, status, sessionKey, deviceHash string) (string, error) {
	now := ti.now()
	claims := &Claims{
		UserID: userID,
		Type:   TokenTypeAccess,
		Status: status,
		Device: deviceHash,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.cfg.Issuer,
			Audience:  jwt.ClaimStrings{ti.cfg.Audience},
			ID:        sessionKey,
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.cfg.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(ti.cfg.AccessSecret))
}

// IssueRefreshToken mints a refresh token with a freshly generated
// session key. Returns the token, its session key and its expiry.
func (ti *TokenIssuer) IssueRefreshToken(userID uint, deviceHash string, rememberMe bool) (string, string, time.Time, error) {
	now := ti.now()
	sessionKey := uuid.NewString()
	expiresAt := now.Add(ti.RefreshTTL(rememberMe))

	claims := &Claims{
		UserID: userID,
		Type:   TokenTypeRefresh,
		Device: deviceHash,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.cfg.Issuer,
			Audience:  jwt.ClaimStrings{ti.cfg.Audience},
			ID:        sessionKey,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(ti.cfg.RefreshSecret))
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, sessionKey, expiresAt, nil
}

// VerifyAccessToken validates signature, issuer/audience, expiry, token
// type and revocation-set membership. Device mismatch is handled per the
// configured policy (warn by default).
func (ti *TokenIssuer) VerifyAccessToken(ctx context.Context, tokenStr, deviceHash string) (*Claims, error) {
	claims, err := ti.parse(tokenStr, ti.cfg.AccessSecret, TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	revoked, err := ti.blacklist.Contains(ctx, tokenStr)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	if err := ti.checkDevice(claims, deviceHash); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefreshToken validates a refresh token the same way, minus the
// blacklist check: refresh tokens are revoked through the session store.
func (ti *TokenIssuer) VerifyRefreshToken(tokenStr, deviceHash string) (*Claims, error) {
	claims, err := ti.parse(tokenStr, ti.cfg.RefreshSecret, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	if err := ti.checkDevice(claims, deviceHash); err != nil {
		return nil, err
	}
	return claims, nil
}

// RevokeAccessToken adds an access token to the revocation set with TTL
// equal to its remaining lifetime.
func (ti *TokenIssuer) RevokeAccessToken(ctx context.Context, tokenStr string) error {
	ttl := ti.cfg.AccessTTL

	// 尽量取真实剩余时间；解析失败就按完整 TTL 拉黑
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(ti.cfg.AccessSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err == nil {
		if claims, ok := token.Claims.(*Claims); ok && claims.ExpiresAt != nil {
			ttl = time.Until(claims.ExpiresAt.Time)
		}
	}

	return ti.blacklist.Add(ctx, tokenStr, ttl)
}

func (ti *TokenIssuer) parse(tokenStr, secret, wantType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ti.cfg.Issuer),
		jwt.WithAudience(ti.cfg.Audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != wantType {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// checkDevice 比较令牌内的设备指纹与当前请求的指纹。
// 任意一边为空视为无指纹，直接放行。
func (ti *TokenIssuer) checkDevice(claims *Claims, deviceHash string) error {
	if claims.Device == "" || deviceHash == "" || claims.Device == deviceHash {
		return nil
	}
	if ti.cfg.FingerprintPolicy == PolicyReject {
		return ErrDeviceMismatch
	}
	// IP/UA 漂移很常见，默认只告警不拦截
	log.Printf("[auth] device fingerprint mismatch for user %d (token=%s... current=%s...)",
		claims.UserID, shortHash(claims.Device), shortHash(deviceHash))
	return nil
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
