package events

// Settlement event types written to the outbox.
const (
	EventTransactionCompleted = "transaction.completed"
	EventBalanceReleased      = "balance.released"
	EventRefundRequested      = "refund.requested"
	EventRefundEscalated      = "refund.escalated"
	EventRefundResolved       = "refund.resolved"
	EventWithdrawalApproved   = "withdrawal.approved"
	EventWithdrawalCompleted  = "withdrawal.completed"
	EventWithdrawalFailed     = "withdrawal.failed"
)

// TransactionCompletedPayload announces a captured payment split.
type TransactionCompletedPayload struct {
	TransactionID string `json:"transaction_id"`
	TotalAmount   int64  `json:"total_amount"`
	Commission    int64  `json:"commission"`
	ShopAmount    int64  `json:"shop_amount"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p TransactionCompletedPayload) ToMap() map[string]any {
	return map[string]any{
		"transaction_id": p.TransactionID,
		"total_amount":   p.TotalAmount,
		"commission":     p.Commission,
		"shop_amount":    p.ShopAmount,
	}
}

// BalanceReleasedPayload announces one order's escrow release.
type BalanceReleasedPayload struct {
	OrderID string `json:"order_id"`
	ShopID  string `json:"shop_id"`
	Amount  int64  `json:"amount"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p BalanceReleasedPayload) ToMap() map[string]any {
	return map[string]any{
		"order_id": p.OrderID,
		"shop_id":  p.ShopID,
		"amount":   p.Amount,
	}
}
