package engine

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orderflow/internal/domain"
	"orderflow/internal/events"
	"orderflow/internal/repo"
)

// ReleaseResult reports one cascade step.
type ReleaseResult struct {
	SatisfiedEdges int      `json:"satisfied_edges"`
	Released       []string `json:"released_order_ids"`
}

// ReleaseDependentOrders satisfies every edge naming a completed order as
// prerequisite and moves dependents with no remaining unmet edge from
// blocked to pending. Repeated calls change nothing.
func (e Engine) ReleaseDependentOrders(ctx context.Context, completedOrderID, actorID string) (ReleaseResult, error) {
	var res ReleaseResult
	err := e.inTx(ctx, func(s *txScope) error {
		o, err := e.Repo.GetOrderTx(ctx, s.tx, completedOrderID)
		if err != nil {
			return storeErr("load execution order", err)
		}
		if o.Status != domain.OrderCompleted {
			return invalidState("execution order %s is %s, not completed", o.OrderNo, o.Status)
		}
		res, err = e.releaseDependents(ctx, s, o.ID, actorID)
		return err
	})
	if err != nil {
		return ReleaseResult{}, err
	}
	return res, nil
}

// releaseDependents is one hop of the cascade. Released orders become pending,
// not completed, so nothing further down is touched.
func (e Engine) releaseDependents(ctx context.Context, s *txScope, prerequisiteID, actorID string) (ReleaseResult, error) {
	res := ReleaseResult{Released: []string{}}
	edges, err := e.Repo.ListDependentEdgesTx(ctx, s.tx, prerequisiteID)
	if err != nil {
		return res, fatal("list dependent edges", err)
	}
	now := e.timestamp()
	var dependents []string
	seen := map[string]bool{}
	for _, edge := range edges {
		changed, err := e.Repo.SatisfyDependency(ctx, s.tx, edge.ID, now)
		if err != nil {
			return res, fatal("satisfy dependency", err)
		}
		if changed {
			res.SatisfiedEdges++
			if err := e.record(ctx, s, events.DependencySatisfied, entityOrder, edge.ExecutionOrderID, actorID, events.EventPayload{
				"dependency_id":         edge.ID,
				"prerequisite_order_id": prerequisiteID,
			}); err != nil {
				return res, err
			}
		}
		if !seen[edge.ExecutionOrderID] {
			seen[edge.ExecutionOrderID] = true
			dependents = append(dependents, edge.ExecutionOrderID)
		}
	}

	for _, id := range dependents {
		// Take the row lock before re-reading so a concurrent completion of
		// another prerequisite sees our satisfied edge or waits for it.
		if err := e.Repo.LockOrder(ctx, s.tx, id); err != nil {
			return res, storeErr("lock dependent order", err)
		}
		dep, err := e.Repo.GetOrderTx(ctx, s.tx, id)
		if err != nil {
			return res, storeErr("load dependent order", err)
		}
		if dep.Status != domain.OrderBlocked {
			continue
		}
		unmet, err := e.Repo.CountUnsatisfiedTx(ctx, s.tx, id)
		if err != nil {
			return res, fatal("count dependencies", err)
		}
		if unmet > 0 {
			continue
		}
		if err := e.Repo.SetOrderStatus(ctx, s.tx, id, domain.OrderPending, now); err != nil {
			return res, storeErr("release dependent order", err)
		}
		if err := e.alignItems(ctx, s, id, domain.OrderBlocked, domain.OrderPending, now); err != nil {
			return res, err
		}
		if err := e.record(ctx, s, events.OrderReleased, entityOrder, id, actorID, events.EventPayload{
			"prerequisite_order_id": prerequisiteID,
		}); err != nil {
			return res, err
		}
		e.transitionMetric(s, domain.OrderBlocked, domain.OrderPending)
		res.Released = append(res.Released, id)
	}

	edgeCount, satisfied, released := len(edges), res.SatisfiedEdges, len(res.Released)
	s.after(func() {
		e.Metrics.Cascade(edgeCount, satisfied, released)
		if released > 0 {
			e.log().Info("dependent orders released",
				zap.String("prerequisite_order_id", prerequisiteID), zap.Int("released", released))
		}
	})
	return res, nil
}

// CheckAllDependenciesSatisfied reports whether every edge of the order is
// satisfied. An order without edges is trivially satisfied.
func (e Engine) CheckAllDependenciesSatisfied(ctx context.Context, orderID string) (bool, error) {
	summary, err := e.CheckDependencies(ctx, orderID)
	if err != nil {
		return false, err
	}
	return summary.AllSatisfied, nil
}

// CheckDependencies summarizes the prerequisites of an order.
func (e Engine) CheckDependencies(ctx context.Context, orderID string) (domain.DependencySummary, error) {
	if _, err := e.Repo.GetOrder(ctx, orderID); err != nil {
		return domain.DependencySummary{}, storeErr("load execution order", err)
	}
	edges, err := e.Repo.ListDependencies(ctx, orderID)
	if err != nil {
		return domain.DependencySummary{}, fatal("list dependencies", err)
	}
	summary := domain.DependencySummary{OrderID: orderID, Total: len(edges), Edges: edges}
	for _, edge := range edges {
		if edge.Status != domain.DependencySatisfied {
			summary.PendingCount++
		}
	}
	summary.AllSatisfied = summary.PendingCount == 0
	if summary.Edges == nil {
		summary.Edges = []domain.ExecutionOrderDependency{}
	}
	return summary, nil
}

// Dependents returns the edges that name orderID as prerequisite.
func (e Engine) Dependents(ctx context.Context, orderID string) ([]domain.ExecutionOrderDependency, error) {
	if _, err := e.Repo.GetOrder(ctx, orderID); err != nil {
		return nil, storeErr("load execution order", err)
	}
	edges, err := e.Repo.ListDependentEdges(ctx, orderID)
	if err != nil {
		return nil, fatal("list dependent edges", err)
	}
	if edges == nil {
		edges = []domain.ExecutionOrderDependency{}
	}
	return edges, nil
}

type AddDependencyOptions struct {
	OrderID             string
	PrerequisiteOrderID string
	DependencyType      domain.DependencyType
	ActorID             string
}

// AddDependency gates an order on another one. A pending or in-progress order
// that gains an unmet prerequisite becomes blocked.
func (e Engine) AddDependency(ctx context.Context, opts AddDependencyOptions) (domain.ExecutionOrderDependency, error) {
	if !opts.DependencyType.Valid() {
		return domain.ExecutionOrderDependency{}, invalidState("invalid dependency_type %q", opts.DependencyType)
	}
	if opts.OrderID == opts.PrerequisiteOrderID {
		return domain.ExecutionOrderDependency{}, invalidState("an execution order cannot depend on itself")
	}
	var edge domain.ExecutionOrderDependency
	err := e.inTx(ctx, func(s *txScope) error {
		o, err := e.Repo.GetOrderTx(ctx, s.tx, opts.OrderID)
		if err != nil {
			return storeErr("load execution order", err)
		}
		prereq, err := e.Repo.GetOrderTx(ctx, s.tx, opts.PrerequisiteOrderID)
		if err != nil {
			return storeErr("load prerequisite order", err)
		}
		if o.Status.Terminal() {
			return invalidState("execution order %s is %s", o.OrderNo, o.Status)
		}
		if prereq.Status == domain.OrderCancelled {
			return invalidState("prerequisite order %s is cancelled", prereq.OrderNo)
		}
		cycle, err := e.wouldCycle(ctx, s.tx, o.ID, prereq.ID)
		if err != nil {
			return err
		}
		if cycle {
			return invalidState("dependency %s -> %s would create a cycle", o.OrderNo, prereq.OrderNo)
		}

		now := e.timestamp()
		edge = domain.ExecutionOrderDependency{
			ID:                  uuid.NewString(),
			ExecutionOrderID:    o.ID,
			PrerequisiteOrderID: prereq.ID,
			DependencyType:      opts.DependencyType,
			Status:              domain.DependencyPending,
			CreatedAt:           now,
		}
		if prereq.Status == domain.OrderCompleted {
			edge.Status = domain.DependencySatisfied
			edge.SatisfiedAt = &now
		}
		if err := e.Repo.InsertDependency(ctx, s.tx, edge); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return conflict("execution order %s already depends on %s", o.OrderNo, prereq.OrderNo)
			}
			return fatal("insert dependency", err)
		}
		if err := e.record(ctx, s, events.DependencyAdded, entityOrder, o.ID, opts.ActorID, events.EventPayload{
			"dependency_id":         edge.ID,
			"prerequisite_order_id": prereq.ID,
			"dependency_type":       edge.DependencyType,
			"status":                edge.Status,
		}); err != nil {
			return err
		}
		if opts.DependencyType == domain.DependencyCompanyRegistration &&
			prereq.OrderType == domain.OrderTypeCompanyRegistration && o.CompanyRegistrationOrderID == nil {
			o.CompanyRegistrationOrderID = &prereq.ID
			o.UpdatedAt = now
			if err := e.Repo.UpdateOrder(ctx, s.tx, o); err != nil {
				return storeErr("link registration order", err)
			}
		}
		if edge.Status != domain.DependencySatisfied && o.Status != domain.OrderBlocked {
			return e.moveStatus(ctx, s, &o, domain.OrderBlocked, now, opts.ActorID)
		}
		return nil
	})
	if err != nil {
		return domain.ExecutionOrderDependency{}, err
	}
	return edge, nil
}

// wouldCycle walks the prerequisites of prereqID looking for orderID.
func (e Engine) wouldCycle(ctx context.Context, tx *sql.Tx, orderID, prereqID string) (bool, error) {
	visited := map[string]bool{}
	stack := []string{prereqID}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == orderID {
			return true, nil
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		edges, err := e.Repo.ListDependenciesTx(ctx, tx, cur)
		if err != nil {
			return false, fatal("walk dependencies", err)
		}
		for _, edge := range edges {
			stack = append(stack, edge.PrerequisiteOrderID)
		}
	}
	return false, nil
}
