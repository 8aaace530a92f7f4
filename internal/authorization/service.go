// Package authorization centralizes the role and ownership checks for
// acting on refund cases and payout requests.
package authorization

import (
	"context"

	"github.com/bwmarrin/snowflake"
	refunddomain "github.com/smallbiznis/escrow/internal/refund/domain"
	withdrawaldomain "github.com/smallbiznis/escrow/internal/withdrawal/domain"
)

// Role is the caller's claimed role, taken from the identity
// collaborator's token.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleShop     Role = "shop"
	RoleAdmin    Role = "admin"
)

// Capability is what the actor may do on a given record.
type Capability string

const (
	CapabilityCustomer Capability = "customer"
	CapabilityShop     Capability = "shop"
	CapabilityAdmin    Capability = "admin"
	CapabilityDenied   Capability = "denied"
)

type Service interface {
	// CanActOnRefund maps an actor onto its capability for one refund
	// case: the requesting customer, the owning shop, an admin, or
	// denied.
	CanActOnRefund(ctx context.Context, record *refunddomain.RefundRequest, actorID snowflake.ID, role Role) Capability
	// CanActOnWithdrawal does the same for one payout request.
	CanActOnWithdrawal(ctx context.Context, record *withdrawaldomain.WithdrawalRequest, actorID snowflake.ID, role Role) Capability
}

// Require converts a capability check into an error for handler use.
func Require(got Capability, want ...Capability) error {
	for _, capability := range want {
		if got == capability {
			return nil
		}
	}
	return ErrForbidden
}
