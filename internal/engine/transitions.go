package engine

import (
	"orderflow/internal/domain"
)

// ensureOrderTransition enforces the lifecycle table. Dependency guards on
// blocked are checked separately since they need the store.
func ensureOrderTransition(from, to domain.OrderStatus, allowAny bool) error {
	if allowAny {
		return nil
	}
	switch from {
	case domain.OrderPending:
		if to == domain.OrderInProgress || to == domain.OrderCompleted || to == domain.OrderBlocked || to == domain.OrderCancelled {
			return nil
		}
	case domain.OrderInProgress:
		if to == domain.OrderPending || to == domain.OrderCompleted || to == domain.OrderBlocked || to == domain.OrderCancelled {
			return nil
		}
	case domain.OrderBlocked:
		if to == domain.OrderPending || to == domain.OrderCancelled {
			return nil
		}
	}
	return invalidState("invalid execution order status transition %s -> %s", from, to)
}

// itemStatusFor returns the item status that mirrors an order status, if any.
func itemStatusFor(s domain.OrderStatus) (domain.ItemStatus, bool) {
	switch s {
	case domain.OrderPending:
		return domain.ItemPending, true
	case domain.OrderBlocked:
		return domain.ItemBlocked, true
	}
	return "", false
}
