package handler

import (
	"net/http"

	"github.com/Panchu11/obscura/internal/api/dto"
	"github.com/Panchu11/obscura/internal/ledger/storage"
	"github.com/gin-gonic/gin"
)

// PlatformBalances handles GET /api/v1/platform
func (h *LedgerHandler) PlatformBalances(c *gin.Context) {
	ctx := c.Request.Context()

	platform, err := h.ledger.PlatformBalance(ctx)
	if err != nil {
		respondError(c, h.logger, "platform_balance", err)
		return
	}
	escrow, err := h.ledger.EscrowBalance(ctx)
	if err != nil {
		respondError(c, h.logger, "escrow_balance", err)
		return
	}
	stake, err := h.ledger.StakeBalance(ctx)
	if err != nil {
		respondError(c, h.logger, "stake_balance", err)
		return
	}

	c.JSON(http.StatusOK, dto.PlatformBalancesResponse{
		Owner:    h.ledger.Owner(),
		Platform: platform.String(),
		Escrow:   escrow.String(),
		Stake:    stake.String(),
		FeeBps:   h.ledger.Fees().BasisPoints,
		MinStake: h.ledger.MinStake().String(),
	})
}

// WithdrawPlatformFees handles POST /api/v1/platform/withdraw
func (h *LedgerHandler) WithdrawPlatformFees(c *gin.Context) {
	amount, err := h.ledger.WithdrawPlatformFees(c.Request.Context(), callerAddress(c))
	if err != nil {
		respondError(c, h.logger, "withdraw_platform_fees", err)
		return
	}

	c.JSON(http.StatusOK, dto.WithdrawResponse{Owner: h.ledger.Owner(), Amount: amount.String()})
}

// AccountBalance handles GET /api/v1/accounts/:address/balance
func (h *LedgerHandler) AccountBalance(c *gin.Context) {
	address := c.Param("address")
	amount, err := h.ledger.Balance(c.Request.Context(), address)
	if err != nil {
		respondError(c, h.logger, "balance", err)
		return
	}

	c.JSON(http.StatusOK, dto.BalanceResponse{Account: address, Amount: amount.String()})
}

// ListEvents handles GET /api/v1/events
// Replays the ledger's notification history after a sequence number
func (h *LedgerHandler) ListEvents(c *gin.Context) {
	var req dto.ListEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "Invalid query parameters")
		return
	}

	evs, err := h.ledger.ListEvents(c.Request.Context(), req.AfterSeq, storage.NormalizeLimit(req.PageSize))
	if err != nil {
		respondError(c, h.logger, "list_events", err)
		return
	}

	resp := dto.ListEventsResponse{Events: make([]dto.EventDTO, len(evs)), NextAfterSeq: req.AfterSeq}
	for i := range evs {
		resp.Events[i] = dto.FromEvent(&evs[i])
	}
	if len(evs) > 0 {
		resp.NextAfterSeq = evs[len(evs)-1].Seq
	}

	c.JSON(http.StatusOK, resp)
}
