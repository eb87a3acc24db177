package auth

import (
	"errors"
	"strings"

	"taskmarket-ledger/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ginActorKey = "actor"

// Claims is the token shape issued by the auth collaborator.
type Claims struct {
	Role                     Role   `json:"role"`
	KYCVerified              bool   `json:"kyc_verified"`
	AdvertiserApprovalStatus string `json:"advertiser_approval_status"`
	Name                     string `json:"name"`
	Email                    string `json:"email"`
	jwt.RegisteredClaims
}

func (c *Claims) Actor() *Actor {
	return &Actor{
		ID:                       c.Subject,
		Role:                     c.Role,
		KYCVerified:              c.KYCVerified,
		AdvertiserApprovalStatus: c.AdvertiserApprovalStatus,
		Name:                     c.Name,
		Email:                    c.Email,
	}
}

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(raw, secret, issuer string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// SignToken issues a token for actor. Used by tooling and tests; production
// tokens come from the auth collaborator.
func SignToken(actor Actor, secret string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = actor.ID
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Role:                     actor.Role,
		KYCVerified:              actor.KYCVerified,
		AdvertiserApprovalStatus: actor.AdvertiserApprovalStatus,
		Name:                     actor.Name,
		Email:                    actor.Email,
		RegisteredClaims:         claims,
	}).SignedString([]byte(secret))
}

// Authenticate resolves the bearer token into an Actor stored on both the gin
// and the request context.
func Authenticate(secret, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			_ = c.Error(errutil.Unauthorized("missing bearer token", nil))
			c.Abort()
			return
		}

		claims, err := ParseToken(raw, secret, issuer)
		if err != nil {
			_ = c.Error(errutil.Unauthorized("invalid token", err))
			c.Abort()
			return
		}

		SetActor(c, claims.Actor())
		c.Next()
	}
}

// RequireRole aborts with Forbidden unless the authenticated actor holds one of roles.
func RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := Require(ActorFromGin(c), roles...); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// SetActor stores actor on both the gin and the request context.
func SetActor(c *gin.Context, actor *Actor) {
	c.Set(ginActorKey, actor)
	c.Request = c.Request.WithContext(WithActor(c.Request.Context(), actor))
}

func ActorFromGin(c *gin.Context) *Actor {
	if v, ok := c.Get(ginActorKey); ok {
		if a, ok := v.(*Actor); ok {
			return a
		}
	}
	return nil
}
