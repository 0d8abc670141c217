package credentials

import (
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates bearer tokens minted by a JWTProvider. Skills and test
// doubles use it to authenticate the host.
type Verifier struct {
	hmacSecret []byte
	rsaKey     *rsa.PublicKey
	parserOpts []jwt.ParserOption
}

// NewVerifier builds a verifier for tokens issued by issuer for audience.
// Either secret (HS256) or publicKeyPEM (RS256) must be provided.
func NewVerifier(issuer, audience, secret, publicKeyPEM string) (*Verifier, error) {
	v := &Verifier{hmacSecret: []byte(secret)}
	if publicKeyPEM != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse RSA public key: %w", err)
		}
		v.rsaKey = key
	}
	if len(v.hmacSecret) == 0 && v.rsaKey == nil {
		return nil, fmt.Errorf("verifier needs a secret or a public key")
	}

	v.parserOpts = []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "RS256"})}
	if issuer != "" {
		v.parserOpts = append(v.parserOpts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		v.parserOpts = append(v.parserOpts, jwt.WithAudience(audience))
	}
	return v, nil
}

// VerifyHeader validates an `Authorization: Bearer <token>` header value and
// returns the token claims.
func (v *Verifier) VerifyHeader(header string) (jwt.MapClaims, error) {
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, fmt.Errorf("missing or malformed Authorization header")
	}
	return v.Verify(strings.TrimPrefix(header, "Bearer "))
}

// Verify validates a raw token.
func (v *Verifier) Verify(raw string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(raw, v.keyFunc, v.parserOpts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	switch token.Method.Alg() {
	case "HS256":
		if len(v.hmacSecret) == 0 {
			return nil, fmt.Errorf("HMAC secret not configured")
		}
		return v.hmacSecret, nil
	case "RS256":
		if v.rsaKey == nil {
			return nil, fmt.Errorf("RSA public key not configured")
		}
		return v.rsaKey, nil
	default:
		return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
	}
}
