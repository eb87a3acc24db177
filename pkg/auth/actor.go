package auth

import (
	"context"

	"taskmarket-ledger/pkg/errutil"
)

type Role string

const (
	RoleTasker     Role = "tasker"
	RoleAdvertiser Role = "advertiser"
	RoleAdmin      Role = "admin"
)

const AdvertiserApproved = "approved"

// Actor is the authenticated principal supplied by the auth collaborator.
// The ledger trusts it as-is.
type Actor struct {
	ID                       string `json:"id"`
	Role                     Role   `json:"role"`
	KYCVerified              bool   `json:"kyc_verified"`
	AdvertiserApprovalStatus string `json:"advertiser_approval_status"`
	Name                     string `json:"name"`
	Email                    string `json:"email"`
}

func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

type actorKey struct{}

func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func FromContext(ctx context.Context) (*Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(*Actor)
	return a, ok && a != nil
}

// Require returns NotAuthorized unless actor is present and holds one of roles.
func Require(actor *Actor, roles ...Role) error {
	if actor == nil || actor.ID == "" {
		return errutil.Unauthorized("authentication required", nil)
	}
	if len(roles) == 0 {
		return nil
	}
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return errutil.Forbidden("insufficient role", nil)
}

// RequireApprovedAdvertiser guards funding operations.
func RequireApprovedAdvertiser(actor *Actor) error {
	if err := Require(actor, RoleAdvertiser); err != nil {
		return err
	}
	if actor.AdvertiserApprovalStatus != AdvertiserApproved {
		return errutil.Forbidden("advertiser account is not approved", nil)
	}
	return nil
}
