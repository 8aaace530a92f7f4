package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/escrow/internal/authorization"
	refunddomain "github.com/smallbiznis/escrow/internal/refund/domain"
)

type createRefundRequest struct {
	OrderID     string   `json:"order_id"`
	Reason      string   `json:"reason"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Amount      int64    `json:"amount"`
	Attachments []string `json:"attachments"`
}

type refundDecisionRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

// @Summary      Create Refund Request
// @Description  File a dispute case against a paid order
// @Tags         refunds
// @Accept       json
// @Produce      json
// @Param        request body createRefundRequest true "Create Refund Request"
// @Router       /refunds [post]
func (s *Server) CreateRefundRequest(c *gin.Context) {
	caller, err := actorFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderID, err := parseID(req.OrderID)
	if err != nil {
		AbortWithError(c, newValidationError("order_id", "invalid_order_id", "invalid order id"))
		return
	}

	var role refunddomain.RequesterRole
	switch caller.Role {
	case authorization.RoleCustomer:
		role = refunddomain.RequesterCustomer
	case authorization.RoleShop:
		role = refunddomain.RequesterShop
	default:
		AbortWithError(c, refunddomain.ErrInvalidRequester)
		return
	}

	resp, err := s.refundSvc.Create(c.Request.Context(), refunddomain.CreateRequest{
		OrderID:       orderID,
		RequesterID:   caller.ID,
		RequesterRole: role,
		Reason:        strings.TrimSpace(req.Reason),
		Description:   strings.TrimSpace(req.Description),
		Type:          refunddomain.RefundType(strings.ToLower(strings.TrimSpace(req.Type))),
		Amount:        req.Amount,
		Attachments:   req.Attachments,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// @Summary      Shop Response
// @Description  The owning shop approves or rejects a pending case
// @Tags         refunds
// @Accept       json
// @Produce      json
// @Param        id      path  string                true  "Refund ID"
// @Param        request body  refundDecisionRequest true  "Decision"
// @Router       /refunds/{id}/shop-response [post]
func (s *Server) ShopRespondRefund(c *gin.Context) {
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

	record, err := s.refundSvc.FindByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	capability := s.authzSvc.CanActOnRefund(c.Request.Context(), record, caller.ID, caller.Role)
	if err := authorization.Require(capability, authorization.CapabilityShop); err != nil {
		AbortWithError(c, err)
		return
	}

	var req refundDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.refundSvc.ShopRespond(c.Request.Context(), id, caller.ID, req.Approve, req.Note)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// @Summary      Admin Response
// @Description  An admin resolves an escalated case; approval moves the money
// @Tags         refunds
// @Accept       json
// @Produce      json
// @Param        id      path  string                true  "Refund ID"
// @Param        request body  refundDecisionRequest true  "Decision"
// @Router       /refunds/{id}/admin-response [post]
func (s *Server) AdminRespondRefund(c *gin.Context) {
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

	var req refundDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.refundSvc.AdminRespond(c.Request.Context(), id, caller.ID, req.Approve, req.Note)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// @Summary      Get Refund Request
// @Tags         refunds
// @Produce      json
// @Param        id   path  string  true  "Refund ID"
// @Router       /refunds/{id} [get]
func (s *Server) GetRefundRequest(c *gin.Context) {
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

	record, err := s.refundSvc.FindByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	capability := s.authzSvc.CanActOnRefund(c.Request.Context(), record, caller.ID, caller.Role)
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

// @Summary      List Refund Requests
// @Tags         refunds
// @Produce      json
// @Param        status    query  string  false  "Status"
// @Param        after_id  query  string  false  "After ID"
// @Param        limit     query  int     false  "Limit"
// @Router       /refunds [get]
func (s *Server) ListRefundRequests(c *gin.Context) {
	caller, err := actorFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filter := refunddomain.ListFilter{
		Status: refunddomain.Status(strings.TrimSpace(c.Query("status"))),
	}
	filter.AfterID, _ = parseOptionalID(c.Query("after_id"))
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))

	switch caller.Role {
	case authorization.RoleAdmin:
	case authorization.RoleShop:
		filter.ShopID = caller.ID
	default:
		AbortWithError(c, authorization.ErrForbidden)
		return
	}

	resp, err := s.refundSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
