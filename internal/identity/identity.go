package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

// Role of the caller.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleTechnician Role = "technician"
	RoleAdmin      Role = "admin"
)

// Identity is the resolved caller. Customers act through UserID, technicians
// through ProfileID (technicians.id).
type Identity struct {
	UserID    int64
	Role      Role
	ProfileID int64
}

func (i Identity) IsCustomer() bool   { return i.Role == RoleCustomer }
func (i Identity) IsTechnician() bool { return i.Role == RoleTechnician && i.ProfileID > 0 }
func (i Identity) IsAdmin() bool      { return i.Role == RoleAdmin }

// Claims carried by access tokens.
type Claims struct {
	UserID    int64  `json:"user_id"`
	Role      string `json:"role"`
	ProfileID int64  `json:"profile_id,omitempty"`
	jwt.StandardClaims
}

var ErrInvalidToken = errors.New("identity: invalid token")

// Parser validates HS256 access tokens issued by the auth service.
type Parser struct {
	secret []byte
}

func NewParser(secret string) *Parser {
	return &Parser{secret: []byte(secret)}
}

// Parse resolves an Identity from a bearer token.
func (p *Parser) Parse(token string) (Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	id := Identity{UserID: claims.UserID, Role: Role(claims.Role), ProfileID: claims.ProfileID}
	switch id.Role {
	case RoleCustomer, RoleAdmin:
	case RoleTechnician:
		if id.ProfileID == 0 {
			return Identity{}, ErrInvalidToken
		}
	default:
		return Identity{}, ErrInvalidToken
	}
	if id.UserID == 0 {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}

// Sign issues a token for id. Used by tooling and tests; production tokens come from the auth service.
func (p *Parser) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    id.UserID,
		Role:      string(id.Role),
		ProfileID: id.ProfileID,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
