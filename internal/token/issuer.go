package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/immxrtalbeast/videocall/internal/domain"
)

const DefaultTTL = time.Hour

// Claims is the payload of an issued access token.
type Claims struct {
	jwt.RegisteredClaims
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

// Issuer signs HS256 access tokens for development setups that have no
// external token service.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration, now func() time.Time) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("issuer secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: now}, nil
}

// Issue signs a token granting identity access to room.
func (i *Issuer) Issue(room, identity string) (domain.Token, error) {
	req := domain.NewTokenRequest(room, identity)
	if err := req.Validate(); err != nil {
		return domain.Token{}, err
	}

	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   req.Identity,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Room:     req.Room,
		Identity: req.Identity,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return domain.Token{}, domain.WrapError(domain.KindInternal, "sign token", err)
	}
	return domain.Token{Value: signed, ExpiresAt: &exp}, nil
}

// Verify checks the signature and lifetime of raw.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, domain.WrapError(domain.KindRejected, "invalid access token", err)
	}
	if claims.Room == "" || claims.Identity == "" {
		return nil, domain.NewError(domain.KindRejected, "access token lacks room or identity")
	}
	return &claims, nil
}
