package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/escrow/internal/authorization"
	walletdomain "github.com/smallbiznis/escrow/internal/wallet/domain"
	withdrawaldomain "github.com/smallbiznis/escrow/internal/withdrawal/domain"
)

type createWithdrawalRequest struct {
	Amount        int64  `json:"amount"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountHolder string `json:"account_holder"`
}

type rejectWithdrawalRequest struct {
	Reason string `json:"reason"`
}

type payoutResultRequest struct {
	Result string `json:"result"`
	Reason string `json:"reason"`
}

// @Summary      Create Withdrawal Request
// @Description  Request a payout of available balance to a bank account
// @Tags         withdrawals
// @Accept       json
// @Produce      json
// @Param        request body createWithdrawalRequest true "Create Withdrawal Request"
// @Router       /withdrawals [post]
func (s *Server) CreateWithdrawalRequest(c *gin.Context) {
	caller, err := actorFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var ownerType walletdomain.OwnerType
	switch caller.Role {
	case authorization.RoleShop:
		ownerType = walletdomain.OwnerShop
	case authorization.RoleCustomer:
		ownerType = walletdomain.OwnerCustomer
	default:
		AbortWithError(c, authorization.ErrForbidden)
		return
	}

	var req createWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.withdrawalSvc.Create(c.Request.Context(), withdrawaldomain.CreateRequest{
		OwnerType:     ownerType,
		OwnerID:       caller.ID,
		Amount:        req.Amount,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		AccountHolder: req.AccountHolder,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// @Summary      Approve Withdrawal
// @Tags         withdrawals
// @Produce      json
// @Param        id   path  string  true  "Withdrawal ID"
// @Router       /withdrawals/{id}/approve [post]
func (s *Server) ApproveWithdrawal(c *gin.Context) {
	caller, err := adminFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.withdrawalSvc.Approve(c.Request.Context(), id, caller.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// @Summary      Reject Withdrawal
// @Tags         withdrawals
// @Accept       json
// @Produce      json
// @Param        id      path  string                  true  "Withdrawal ID"
// @Param        request body  rejectWithdrawalRequest true  "Rejection"
// @Router       /withdrawals/{id}/reject [post]
func (s *Server) RejectWithdrawal(c *gin.Context) {
	caller, err := adminFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req rejectWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.withdrawalSvc.Reject(c.Request.Context(), id, caller.ID, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// @Summary      Cancel Withdrawal
// @Description  The owner withdraws a request that has not been approved yet
// @Tags         withdrawals
// @Produce      json
// @Param        id   path  string  true  "Withdrawal ID"
// @Router       /withdrawals/{id}/cancel [post]
func (s *Server) CancelWithdrawal(c *gin.Context) {
	caller, err := actorFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.withdrawalSvc.Cancel(c.Request.Context(), id, caller.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ReportPayoutResult maps the external payout processor's report onto
// the request lifecycle: processing, completed, or failed.
func (s *Server) ReportPayoutResult(c *gin.Context) {
	if _, err := adminFromRequest(c); err != nil {
		AbortWithError(c, err)
		return
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req payoutResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var resp *withdrawaldomain.WithdrawalRequest
	switch strings.ToLower(strings.TrimSpace(req.Result)) {
	case "processing":
		resp, err = s.withdrawalSvc.MarkProcessing(c.Request.Context(), id)
	case "completed":
		resp, err = s.withdrawalSvc.MarkCompleted(c.Request.Context(), id)
	case "failed":
		resp, err = s.withdrawalSvc.MarkFailed(c.Request.Context(), id, req.Reason)
	default:
		AbortWithError(c, newValidationError("result", "invalid_result", "result must be processing, completed or failed"))
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// @Summary      Get Withdrawal
// @Tags         withdrawals
// @Produce      json
// @Param        id   path  string  true  "Withdrawal ID"
// @Router       /withdrawals/{id} [get]
func (s *Server) GetWithdrawalRequest(c *gin.Context) {
	caller, err := actorFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	record, err := s.withdrawalSvc.FindByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	capability := s.authzSvc.CanActOnWithdrawal(c.Request.Context(), record, caller.ID, caller.Role)
	if err := authorization.Require(capability,
		authorization.CapabilityAdmin,
		authorization.CapabilityShop,
		authorization.CapabilityCustomer,
	); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}

// @Summary      List Withdrawals
// @Tags         withdrawals
// @Produce      json
// @Param        status    query  string  false  "Status"
// @Param        after_id  query  string  false  "After ID"
// @Param        limit     query  int     false  "Limit"
// @Router       /withdrawals [get]
func (s *Server) ListWithdrawalRequests(c *gin.Context) {
	caller, err := actorFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filter := withdrawaldomain.ListFilter{
		Status: withdrawaldomain.Status(strings.TrimSpace(c.Query("status"))),
	}
	filter.AfterID, _ = parseOptionalID(c.Query("after_id"))
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))

	if caller.Role != authorization.RoleAdmin {
		filter.OwnerID = caller.ID
	}

	resp, err := s.withdrawalSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
