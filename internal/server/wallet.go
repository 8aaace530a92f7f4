package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/escrow/internal/authorization"
	walletdomain "github.com/smallbiznis/escrow/internal/wallet/domain"
)

func parseOwnerType(raw string) (walletdomain.OwnerType, error) {
	ownerType := walletdomain.OwnerType(strings.ToLower(strings.TrimSpace(raw)))
	switch ownerType {
	case walletdomain.OwnerShop, walletdomain.OwnerCustomer, walletdomain.OwnerPlatform:
		return ownerType, nil
	}
	return "", walletdomain.ErrInvalidOwner
}

// canViewWallet allows admins to read any wallet and owners to read
// their own.
func canViewWallet(caller actor, ownerType walletdomain.OwnerType, ownerID int64) bool {
	if caller.Role == authorization.RoleAdmin {
		return true
	}
	return int64(caller.ID) == ownerID
}

// @Summary      Get Wallet Summary
// @Tags         wallets
// @Produce      json
// @Param        owner_type  path  string  true  "Owner Type"
// @Param        owner_id    path  string  true  "Owner ID"
// @Router       /wallets/{owner_type}/{owner_id}/summary [get]
func (s *Server) GetWalletSummary(c *gin.Context) {
	caller, err := actorFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ownerType, err := parseOwnerType(c.Param("owner_type"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	ownerID, err := parseID(c.Param("owner_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !canViewWallet(caller, ownerType, int64(ownerID)) {
		AbortWithError(c, authorization.ErrForbidden)
		return
	}

	resp, err := s.walletSvc.Summary(c.Request.Context(), ownerType, ownerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// @Summary      List Wallet Entries
// @Tags         wallets
// @Produce      json
// @Param        owner_type  path   string  true   "Owner Type"
// @Param        owner_id    path   string  true   "Owner ID"
// @Param        after_id    query  string  false  "After ID"
// @Param        limit       query  int     false  "Limit"
// @Router       /wallets/{owner_type}/{owner_id}/entries [get]
func (s *Server) ListWalletEntries(c *gin.Context) {
	caller, err := actorFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ownerType, err := parseOwnerType(c.Param("owner_type"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	ownerID, err := parseID(c.Param("owner_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !canViewWallet(caller, ownerType, int64(ownerID)) {
		AbortWithError(c, authorization.ErrForbidden)
		return
	}

	afterID, _ := parseOptionalID(c.Query("after_id"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	resp, err := s.walletSvc.Entries(c.Request.Context(), ownerType, ownerID, afterID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
