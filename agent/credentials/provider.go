package credentials

import (
	"context"
	"crypto/rsa"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/skillbridge/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Provider exchanges the host identity for a bearer token scoped to a skill.
type Provider interface {
	// Token returns a bearer token whose audience is the skill app id.
	Token(ctx context.Context, audience string) (string, error)
	// Invalidate drops any cached token for audience, e.g. after a 401.
	Invalidate(audience string)
}

// Config configures a JWTProvider.
type Config struct {
	// AppID is the host's application identity, used as issuer and appid claim.
	AppID string
	// Secret signs HS256 tokens. Ignored when PrivateKeyPEM is set.
	Secret string
	// PrivateKeyPEM signs RS256 tokens.
	PrivateKeyPEM string
	// TTL is the lifetime of minted tokens (default 1h).
	TTL time.Duration
	// RefreshSkew renews a cached token this long before it expires (default 5m).
	RefreshSkew time.Duration
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

// JWTProvider mints signed JWT bearer tokens and caches them per audience.
// The cache belongs to the instance; there is no process-wide state.
type JWTProvider struct {
	cfg    Config
	method jwt.SigningMethod
	key    any
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cachedToken
	group singleflight.Group

	logger *zap.Logger
}

// NewJWTProvider validates cfg and returns a provider.
func NewJWTProvider(cfg Config, logger *zap.Logger) (*JWTProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AppID == "" {
		return nil, types.NewError(types.ErrInvalidConfiguration, "host app id is required for skill credentials")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = 5 * time.Minute
	}
	if cfg.RefreshSkew >= cfg.TTL {
		cfg.RefreshSkew = cfg.TTL / 2
	}

	p := &JWTProvider{
		cfg:    cfg,
		now:    time.Now,
		cache:  make(map[string]cachedToken),
		logger: logger.With(zap.String("component", "skill_credentials")),
	}

	switch {
	case cfg.PrivateKeyPEM != "":
		key, err := parseRSAPrivateKey(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidConfiguration, "invalid RSA signing key").WithCause(err)
		}
		p.method, p.key = jwt.SigningMethodRS256, key
	case cfg.Secret != "":
		p.method, p.key = jwt.SigningMethodHS256, []byte(cfg.Secret)
	default:
		return nil, types.NewError(types.ErrInvalidConfiguration, "either a signing secret or an RSA private key is required")
	}
	return p, nil
}

// Token implements Provider.
func (p *JWTProvider) Token(ctx context.Context, audience string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if tok, ok := p.cached(audience); ok {
		return tok, nil
	}

	v, err, shared := p.group.Do(audience, func() (any, error) {
		if tok, ok := p.cached(audience); ok {
			return tok, nil
		}
		return p.mint(audience)
	})
	if err != nil {
		return "", err
	}
	if shared {
		p.logger.Debug("token refresh shared", zap.String("audience", audience))
	}
	return v.(string), nil
}

// Invalidate implements Provider.
func (p *JWTProvider) Invalidate(audience string) {
	p.mu.Lock()
	delete(p.cache, audience)
	p.mu.Unlock()
	p.logger.Debug("token invalidated", zap.String("audience", audience))
}

func (p *JWTProvider) cached(audience string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.cache[audience]
	if !ok || !p.now().Add(p.cfg.RefreshSkew).Before(c.expiresAt) {
		return "", false
	}
	return c.value, true
}

func (p *JWTProvider) mint(audience string) (string, error) {
	now := p.now()
	exp := now.Add(p.cfg.TTL)

	claims := jwt.MapClaims{
		"iss":   p.cfg.AppID,
		"aud":   audience,
		"appid": p.cfg.AppID,
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   exp.Unix(),
		"jti":   uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(p.method, claims).SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("sign skill token: %w", err)
	}

	p.mu.Lock()
	p.cache[audience] = cachedToken{value: signed, expiresAt: exp}
	p.mu.Unlock()

	p.logger.Debug("token minted",
		zap.String("audience", audience),
		zap.Time("expires_at", exp),
	)
	return signed, nil
}

func parseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	return jwt.ParseRSAPrivateKeyFromPEM([]byte(pemData))
}

// StaticProvider always returns the same token. Useful for skills protected by
// a pre-shared key and for tests.
type StaticProvider string

// Token implements Provider.
func (s StaticProvider) Token(context.Context, string) (string, error) { return string(s), nil }

// Invalidate implements Provider.
func (StaticProvider) Invalidate(string) {}
