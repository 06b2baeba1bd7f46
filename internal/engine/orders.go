package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orderflow/internal/config"
	"orderflow/internal/domain"
	"orderflow/internal/events"
	"orderflow/internal/repo"
)

const entityOrder = "execution_order"

type CreateItemOptions struct {
	QuotationItemID string
	ProductID       string
	Description     string
	Quantity        int
	AssignedTo      string
}

type CreateOrderOptions struct {
	OpportunityID               string
	ContractID                  string
	ParentOrderID               string
	OrderType                   domain.OrderType
	RequiresCompanyRegistration bool
	Title                       string
	Notes                       string
	PlannedStartDate            string
	PlannedEndDate              string
	AssignedTo                  string
	AssignedTeam                string
	Items                       []CreateItemOptions
	ActorID                     string
}

func (o CreateOrderOptions) validate() error {
	if strings.TrimSpace(o.OpportunityID) == "" {
		return invalidState("opportunity_id is required")
	}
	if !o.OrderType.Valid() {
		return invalidState("invalid order_type %q", o.OrderType)
	}
	for i, it := range o.Items {
		if strings.TrimSpace(it.Description) == "" {
			return invalidState("item %d: description is required", i)
		}
		if it.Quantity < 0 {
			return invalidState("item %d: quantity must not be negative", i)
		}
	}
	return nil
}

// CreateOrder creates an execution order and its items. When the order
// requires company registration it is linked to the opportunity's
// registration order, gated by a pending edge and created blocked.
func (e Engine) CreateOrder(ctx context.Context, opts CreateOrderOptions) (domain.ExecutionOrder, error) {
	if opts.OrderType == "" {
		opts.OrderType = domain.OrderTypeMain
	}
	if err := opts.validate(); err != nil {
		return domain.ExecutionOrder{}, err
	}
	plannedStart, err := parseDate("planned_start_date", opts.PlannedStartDate)
	if err != nil {
		return domain.ExecutionOrder{}, err
	}
	plannedEnd, err := parseDate("planned_end_date", opts.PlannedEndDate)
	if err != nil {
		return domain.ExecutionOrder{}, err
	}
	if plannedStart != nil && plannedEnd != nil && *plannedEnd < *plannedStart {
		return domain.ExecutionOrder{}, invalidState("planned_end_date %s is before planned_start_date %s", *plannedEnd, *plannedStart)
	}
	if _, err := e.Opportunities.GetOpportunity(ctx, opts.OpportunityID); err != nil {
		return domain.ExecutionOrder{}, storeErr("load opportunity", err)
	}
	if opts.ContractID != "" {
		c, err := e.Contracts.GetContract(ctx, opts.ContractID)
		if err != nil {
			return domain.ExecutionOrder{}, storeErr("load contract", err)
		}
		if c.OpportunityID != opts.OpportunityID {
			return domain.ExecutionOrder{}, invalidState("contract %s belongs to another opportunity", c.ID)
		}
	}

	now := e.timestamp()
	o := domain.ExecutionOrder{
		ID:                          uuid.NewString(),
		OpportunityID:               opts.OpportunityID,
		ContractID:                  optionalString(opts.ContractID),
		ParentOrderID:               optionalString(opts.ParentOrderID),
		OrderType:                   opts.OrderType,
		Status:                      domain.OrderPending,
		RequiresCompanyRegistration: opts.RequiresCompanyRegistration,
		Title:                       opts.Title,
		Notes:                       opts.Notes,
		PlannedStartDate:            plannedStart,
		PlannedEndDate:              plannedEnd,
		AssignedTo:                  optionalString(opts.AssignedTo),
		AssignedTeam:                optionalString(opts.AssignedTeam),
		CreatedBy:                   actorOrSystem(opts.ActorID),
		CreatedAt:                   now,
		UpdatedAt:                   now,
	}
	if o.AssignedTo != nil || o.AssignedTeam != nil {
		o.AssignedAt = &now
	}

	err = e.inTx(ctx, func(s *txScope) error {
		if o.ParentOrderID != nil {
			parent, err := e.Repo.GetOrderTx(ctx, s.tx, *o.ParentOrderID)
			if err != nil {
				return storeErr("load parent order", err)
			}
			if parent.OpportunityID != o.OpportunityID {
				return invalidState("parent order %s belongs to another opportunity", parent.ID)
			}
		}
		orderNo, err := e.Numbers.Generate(ctx, s.tx, config.KindExecutionOrder)
		if err != nil {
			return fatal("allocate order number", err)
		}
		o.OrderNo = orderNo

		var edge *domain.ExecutionOrderDependency
		if o.RequiresCompanyRegistration {
			reg, err := e.Repo.FindRegistrationOrderTx(ctx, s.tx, o.OpportunityID)
			switch {
			case errors.Is(err, repo.ErrNotFound):
				e.log().Warn("no company registration order for opportunity; order created without gate",
					zap.String("opportunity_id", o.OpportunityID), zap.String("order_no", o.OrderNo))
			case err != nil:
				return fatal("find registration order", err)
			default:
				o.CompanyRegistrationOrderID = &reg.ID
				edge = &domain.ExecutionOrderDependency{
					ID:                  uuid.NewString(),
					ExecutionOrderID:    o.ID,
					PrerequisiteOrderID: reg.ID,
					DependencyType:      domain.DependencyCompanyRegistration,
					Status:              domain.DependencyPending,
					CreatedAt:           now,
				}
				if reg.Status == domain.OrderCompleted {
					edge.Status = domain.DependencySatisfied
					edge.SatisfiedAt = &now
				} else {
					o.Status = domain.OrderBlocked
				}
			}
		}

		if err := e.Repo.InsertOrder(ctx, s.tx, o); err != nil {
			return storeErr("insert execution order", err)
		}
		itemStatus, _ := itemStatusFor(o.Status)
		for _, in := range opts.Items {
			qty := in.Quantity
			if qty == 0 {
				qty = 1
			}
			it := domain.ExecutionOrderItem{
				ID:               uuid.NewString(),
				ExecutionOrderID: o.ID,
				QuotationItemID:  optionalString(in.QuotationItemID),
				ProductID:        optionalString(in.ProductID),
				Description:      in.Description,
				Quantity:         qty,
				Status:           itemStatus,
				AssignedTo:       optionalString(in.AssignedTo),
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := e.Repo.InsertItem(ctx, s.tx, it); err != nil {
				return fatal("insert execution order item", err)
			}
			o.Items = append(o.Items, it)
		}
		if err := e.record(ctx, s, events.OrderCreated, entityOrder, o.ID, opts.ActorID, events.EventPayload{
			"order_no":       o.OrderNo,
			"opportunity_id": o.OpportunityID,
			"order_type":     o.OrderType,
			"status":         o.Status,
			"items":          len(o.Items),
		}); err != nil {
			return err
		}
		if edge != nil {
			if err := e.Repo.InsertDependency(ctx, s.tx, *edge); err != nil {
				return storeErr("insert dependency", err)
			}
			if err := e.record(ctx, s, events.DependencyAdded, entityOrder, o.ID, opts.ActorID, events.EventPayload{
				"dependency_id":         edge.ID,
				"prerequisite_order_id": edge.PrerequisiteOrderID,
				"dependency_type":       edge.DependencyType,
				"status":                edge.Status,
			}); err != nil {
				return err
			}
		} else if o.RequiresCompanyRegistration {
			if err := e.record(ctx, s, events.OrderRegistrationMissing, entityOrder, o.ID, opts.ActorID, events.EventPayload{
				"opportunity_id": o.OpportunityID,
			}); err != nil {
				return err
			}
		}
		s.after(func() { e.Metrics.OrderCreated(string(o.OrderType), string(o.Status)) })
		return nil
	})
	if err != nil {
		return domain.ExecutionOrder{}, err
	}
	e.log().Info("execution order created",
		zap.String("order_id", o.ID), zap.String("order_no", o.OrderNo), zap.String("status", string(o.Status)))
	return o, nil
}

// GetOrder returns an order with its items.
func (e Engine) GetOrder(ctx context.Context, id string) (domain.ExecutionOrder, error) {
	o, err := e.Repo.GetOrder(ctx, id)
	if err != nil {
		return o, storeErr("load execution order", err)
	}
	items, err := e.Repo.ListItems(ctx, id)
	if err != nil {
		return o, fatal("list items", err)
	}
	o.Items = items
	return o, nil
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type ListOrdersOptions struct {
	OpportunityID string
	Status        string
	Limit         int
	// Cursor is the NextCursor of a previous page.
	Cursor string
}

type OrderPage struct {
	Orders     []domain.ExecutionOrder `json:"orders"`
	NextCursor string                  `json:"next_cursor,omitempty"`
	// StatusCounts totals the opportunity's orders per status. Only the first
	// page of an opportunity listing carries it.
	StatusCounts map[string]int `json:"status_counts,omitempty"`
}

// ListOrders pages through orders of one opportunity and/or one status,
// newest first.
func (e Engine) ListOrders(ctx context.Context, opts ListOrdersOptions) (OrderPage, error) {
	if opts.OpportunityID == "" && opts.Status == "" {
		return OrderPage{}, invalidState("opportunity_id or status filter is required")
	}
	if opts.Status != "" && !domain.OrderStatus(opts.Status).Valid() {
		return OrderPage{}, invalidState("invalid status %q", opts.Status)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	f := repo.OrderFilters{OpportunityID: opts.OpportunityID, Status: opts.Status, Limit: limit + 1}
	if opts.Cursor != "" {
		createdAt, id, ok := strings.Cut(opts.Cursor, "|")
		if !ok || createdAt == "" || id == "" {
			return OrderPage{}, invalidState("invalid cursor")
		}
		f.CursorCreatedAt, f.CursorID = createdAt, id
	}
	orders, err := e.Repo.ListOrders(ctx, f)
	if err != nil {
		return OrderPage{}, fatal("list execution orders", err)
	}
	page := OrderPage{Orders: orders}
	if len(orders) > limit {
		page.Orders = orders[:limit]
		last := page.Orders[limit-1]
		page.NextCursor = last.CreatedAt + "|" + last.ID
	}
	if page.Orders == nil {
		page.Orders = []domain.ExecutionOrder{}
	}
	if opts.OpportunityID != "" && opts.Cursor == "" {
		page.StatusCounts, err = e.Repo.CountOrdersByStatus(ctx, opts.OpportunityID)
		if err != nil {
			return OrderPage{}, fatal("count execution orders", err)
		}
	}
	return page, nil
}

type AssignOptions struct {
	OrderID      string
	AssignedTo   string
	AssignedTeam string
	ActorID      string
}

// AssignOrder records the assignee and starts work. No order can be assigned
// while any prerequisite is unmet; a blocked one whose prerequisites are all
// satisfied is released first.
func (e Engine) AssignOrder(ctx context.Context, opts AssignOptions) (domain.ExecutionOrder, error) {
	if strings.TrimSpace(opts.AssignedTo) == "" {
		return domain.ExecutionOrder{}, invalidState("assigned_to is required")
	}
	var o domain.ExecutionOrder
	err := e.inTx(ctx, func(s *txScope) error {
		var err error
		o, err = e.Repo.GetOrderTx(ctx, s.tx, opts.OrderID)
		if err != nil {
			return storeErr("load execution order", err)
		}
		if o.Status.Terminal() {
			return invalidState("execution order %s is %s", o.OrderNo, o.Status)
		}
		now := e.timestamp()
		unmet, err := e.Repo.CountUnsatisfiedTx(ctx, s.tx, o.ID)
		if err != nil {
			return fatal("count dependencies", err)
		}
		if unmet > 0 {
			e.Metrics.AssignmentRejected()
			return invalidState("execution order %s is blocked by %d unmet dependencies", o.OrderNo, unmet)
		}
		if o.Status == domain.OrderBlocked {
			if err := e.moveStatus(ctx, s, &o, domain.OrderPending, now, opts.ActorID); err != nil {
				return err
			}
		}
		from := o.Status
		o.AssignedTo = &opts.AssignedTo
		o.AssignedTeam = optionalString(opts.AssignedTeam)
		o.AssignedAt = &now
		if o.Status == domain.OrderPending {
			today := e.today()
			o.Status = domain.OrderInProgress
			o.ActualStartDate = &today
		}
		o.UpdatedAt = now
		if err := e.Repo.UpdateOrder(ctx, s.tx, o); err != nil {
			return storeErr("update execution order", err)
		}
		e.transitionMetric(s, from, o.Status)
		return e.record(ctx, s, events.OrderAssigned, entityOrder, o.ID, opts.ActorID, events.EventPayload{
			"assigned_to":   opts.AssignedTo,
			"assigned_team": opts.AssignedTeam,
			"from":          from,
			"to":            o.Status,
		})
	})
	if err != nil {
		return domain.ExecutionOrder{}, err
	}
	return o, nil
}

// moveStatus persists a bare status change (with item alignment) and records it.
func (e Engine) moveStatus(ctx context.Context, s *txScope, o *domain.ExecutionOrder, to domain.OrderStatus, now, actorID string) error {
	from := o.Status
	if err := e.Repo.SetOrderStatus(ctx, s.tx, o.ID, to, now); err != nil {
		return storeErr("update execution order status", err)
	}
	if err := e.alignItems(ctx, s, o.ID, from, to, now); err != nil {
		return err
	}
	o.Status = to
	o.UpdatedAt = now
	e.transitionMetric(s, from, to)
	return e.record(ctx, s, events.OrderStatusChanged, entityOrder, o.ID, actorID, events.EventPayload{"from": from, "to": to})
}

func (e Engine) alignItems(ctx context.Context, s *txScope, orderID string, from, to domain.OrderStatus, now string) error {
	fromItem, ok := itemStatusFor(from)
	if !ok {
		return nil
	}
	toItem, ok := itemStatusFor(to)
	if !ok || fromItem == toItem {
		return nil
	}
	if err := e.Repo.MoveItemsStatus(ctx, s.tx, orderID, fromItem, toItem, now); err != nil {
		return fatal("update item status", err)
	}
	return nil
}

type StatusUpdateOptions struct {
	OrderID       string
	Status        string
	ActualEndDate string
	ActorID       string
}

// StatusUpdate is the result of UpdateStatus. Released lists the dependent
// orders unblocked by a completion.
type StatusUpdate struct {
	Order    domain.ExecutionOrder `json:"order"`
	Released []string              `json:"released_order_ids"`
}

// UpdateStatus moves an order to a new status. Completing an order satisfies
// every edge that names it as prerequisite and releases dependents whose
// edges are now all satisfied, in the same transaction. Cancelling it blocks
// the pending edges that point at it.
func (e Engine) UpdateStatus(ctx context.Context, opts StatusUpdateOptions) (StatusUpdate, error) {
	to := domain.OrderStatus(opts.Status)
	if !to.Valid() {
		return StatusUpdate{}, invalidState("invalid status %q", opts.Status)
	}
	endDate, err := parseDate("actual_end_date", opts.ActualEndDate)
	if err != nil {
		return StatusUpdate{}, err
	}
	var res StatusUpdate
	err = e.inTx(ctx, func(s *txScope) error {
		o, err := e.Repo.GetOrderTx(ctx, s.tx, opts.OrderID)
		if err != nil {
			return storeErr("load execution order", err)
		}
		if o.Status == to {
			res.Order = o
			res.Order.Items, err = e.Repo.ListItemsTx(ctx, s.tx, o.ID)
			if err != nil {
				return fatal("list items", err)
			}
			return nil
		}
		if err := ensureOrderTransition(o.Status, to, e.Config.Lifecycle.AllowAnyTransition); err != nil {
			return err
		}
		unmet, err := e.Repo.CountUnsatisfiedTx(ctx, s.tx, o.ID)
		if err != nil {
			return fatal("count dependencies", err)
		}
		if to == domain.OrderBlocked && unmet == 0 {
			return invalidState("execution order %s has no unmet dependencies to block on", o.OrderNo)
		}
		if unmet > 0 && to != domain.OrderBlocked && to != domain.OrderCancelled {
			return invalidState("execution order %s is blocked by %d unmet dependencies", o.OrderNo, unmet)
		}

		from := o.Status
		now := e.timestamp()
		o.Status = to
		o.UpdatedAt = now
		switch to {
		case domain.OrderInProgress:
			if o.ActualStartDate == nil {
				today := e.today()
				o.ActualStartDate = &today
			}
		case domain.OrderCompleted:
			if endDate == nil {
				today := e.today()
				endDate = &today
			}
			o.ActualEndDate = endDate
		}
		if err := e.Repo.UpdateOrder(ctx, s.tx, o); err != nil {
			return storeErr("update execution order", err)
		}
		if err := e.alignItems(ctx, s, o.ID, from, to, now); err != nil {
			return err
		}
		e.transitionMetric(s, from, to)
		if err := e.record(ctx, s, events.OrderStatusChanged, entityOrder, o.ID, opts.ActorID, events.EventPayload{"from": from, "to": to}); err != nil {
			return err
		}

		switch to {
		case domain.OrderCompleted:
			if o.OrderType == domain.OrderTypeCompanyRegistration {
				if err := e.completeRegistrationRecord(ctx, s, o.ID, now, opts.ActorID); err != nil {
					return err
				}
			}
			rel, err := e.releaseDependents(ctx, s, o.ID, opts.ActorID)
			if err != nil {
				return err
			}
			res.Released = rel.Released
		case domain.OrderCancelled:
			n, err := e.Repo.BlockDependenciesOn(ctx, s.tx, o.ID)
			if err != nil {
				return fatal("block dependent edges", err)
			}
			if n > 0 {
				if err := e.record(ctx, s, events.DependencyBlocked, entityOrder, o.ID, opts.ActorID, events.EventPayload{"edges": n}); err != nil {
					return err
				}
			}
		}
		o.Items, err = e.Repo.ListItemsTx(ctx, s.tx, o.ID)
		if err != nil {
			return fatal("list items", err)
		}
		res.Order = o
		return nil
	})
	if err != nil {
		return StatusUpdate{}, err
	}
	if res.Released == nil {
		res.Released = []string{}
	}
	return res, nil
}

func actorOrSystem(actorID string) string {
	if actorID == "" {
		return "system"
	}
	return actorID
}
