package authorization

import (
	"context"

	"github.com/bwmarrin/snowflake"
	refunddomain "github.com/smallbiznis/escrow/internal/refund/domain"
	withdrawaldomain "github.com/smallbiznis/escrow/internal/withdrawal/domain"
	"go.uber.org/zap"
)

type ServiceImpl struct {
	log *zap.Logger
}

func NewService(log *zap.Logger) Service {
	return &ServiceImpl{log: log.Named("authorization.service")}
}

func (s *ServiceImpl) CanActOnRefund(ctx context.Context, record *refunddomain.RefundRequest, actorID snowflake.ID, role Role) Capability {
	if record == nil || actorID == 0 {
		return CapabilityDenied
	}
	switch role {
	case RoleAdmin:
		return CapabilityAdmin
	case RoleShop:
		if record.ShopID == actorID {
			return CapabilityShop
		}
	case RoleCustomer:
		if record.CustomerID == actorID {
			return CapabilityCustomer
		}
	}
	s.log.Debug("refund action denied",
		zap.String("refund_id", record.ID.String()),
		zap.String("actor_id", actorID.String()),
		zap.String("role", string(role)),
	)
	return CapabilityDenied
}

func (s *ServiceImpl) CanActOnWithdrawal(ctx context.Context, record *withdrawaldomain.WithdrawalRequest, actorID snowflake.ID, role Role) Capability {
	if record == nil || actorID == 0 {
		return CapabilityDenied
	}
	switch role {
	case RoleAdmin:
		return CapabilityAdmin
	case RoleShop:
		if record.OwnerID == actorID {
			return CapabilityShop
		}
	case RoleCustomer:
		if record.OwnerID == actorID {
			return CapabilityCustomer
		}
	}
	s.log.Debug("withdrawal action denied",
		zap.String("withdrawal_id", record.ID.String()),
		zap.String("actor_id", actorID.String()),
		zap.String("role", string(role)),
	)
	return CapabilityDenied
}
