package domain

import "sort"

// OrderShare is one order's computed slice of a split.
type OrderShare struct {
	OrderID    int64
	Amount     int64
	Commission int64
	ShopShare  int64
}

// ComputeSplit divides a transaction between platform commission and
// per-order shop shares using integer arithmetic. The total commission
// is half-up rounded once on the transaction total; each order starts
// from the floored commission and the leftover rounding units are
// assigned one by one in ascending order-id, so the remainder always
// lands on the platform side and the distribution is deterministic.
func ComputeSplit(rate int64, orders []OrderShare) (totalCommission int64, totalShop int64, out []OrderShare) {
	out = make([]OrderShare, len(orders))
	copy(out, orders)
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })

	var total int64
	var floorSum int64
	for i := range out {
		total += out[i].Amount
		out[i].Commission = out[i].Amount * rate / 100
		floorSum += out[i].Commission
	}

	totalCommission = (total*rate + 50) / 100
	remainder := totalCommission - floorSum
	for i := 0; remainder > 0 && i < len(out); i++ {
		out[i].Commission++
		remainder--
	}

	for i := range out {
		out[i].ShopShare = out[i].Amount - out[i].Commission
		totalShop += out[i].ShopShare
	}
	return totalCommission, totalShop, out
}
