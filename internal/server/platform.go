package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	platformdomain "github.com/smallbiznis/escrow/internal/platform/domain"
)

type updatePlatformConfigRequest struct {
	CommissionRate           *int64 `json:"commission_rate"`
	HoldingDays              *int   `json:"holding_days"`
	MinWithdrawalAmount      *int64 `json:"min_withdrawal_amount"`
	MaxWithdrawalAmount      *int64 `json:"max_withdrawal_amount"`
	AutoApproveWithdrawals   *bool  `json:"auto_approve_withdrawals"`
	AutoApproveThreshold     *int64 `json:"auto_approve_threshold"`
	SellerRefundResponseHour *int   `json:"seller_refund_response_hours"`
	MaxRefundDays            *int   `json:"max_refund_days"`
}

// @Summary      Get Platform Config
// @Tags         admin
// @Produce      json
// @Router       /admin/platform-config [get]
func (s *Server) GetPlatformConfig(c *gin.Context) {
	if _, err := adminFromRequest(c); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.platformSvc.Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// @Summary      Update Platform Config
// @Description  Update the singleton settlement configuration
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request body updatePlatformConfigRequest true "Update Platform Config Request"
// @Router       /admin/platform-config [put]
func (s *Server) UpdatePlatformConfig(c *gin.Context) {
	caller, err := adminFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updatePlatformConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.platformSvc.Update(c.Request.Context(), platformdomain.Update{
		CommissionRate:           req.CommissionRate,
		HoldingDays:              req.HoldingDays,
		MinWithdrawalAmount:      req.MinWithdrawalAmount,
		MaxWithdrawalAmount:      req.MaxWithdrawalAmount,
		AutoApproveWithdrawals:   req.AutoApproveWithdrawals,
		AutoApproveThreshold:     req.AutoApproveThreshold,
		SellerRefundResponseHour: req.SellerRefundResponseHour,
		MaxRefundDays:            req.MaxRefundDays,
		UpdatedBy:                caller.ID.String(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		actorID := caller.ID.String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), "admin", &actorID, "platform_config.update", "platform_config", nil, map[string]any{
			"commission_rate": resp.CommissionRate,
			"holding_days":    resp.HoldingDays,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
