package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"orderflow/internal/domain"
	"orderflow/internal/events"
	"orderflow/internal/repo"
)

const entityRegistration = "company_registration"

type RegistrationOptions struct {
	OrderID       string
	CompanyName   string
	NIB           string
	NPWP          string
	AktaNumber    string
	SKKemenkumham string
	ActorID       string
}

// CreateCompanyRegistrationInfo attaches the registration record to a
// company_registration order. Each order carries at most one record.
func (e Engine) CreateCompanyRegistrationInfo(ctx context.Context, opts RegistrationOptions) (domain.CompanyRegistrationInfo, error) {
	if strings.TrimSpace(opts.CompanyName) == "" {
		return domain.CompanyRegistrationInfo{}, invalidState("company_name is required")
	}
	var info domain.CompanyRegistrationInfo
	err := e.inTx(ctx, func(s *txScope) error {
		o, err := e.Repo.GetOrderTx(ctx, s.tx, opts.OrderID)
		if err != nil {
			return storeErr("load execution order", err)
		}
		if o.OrderType != domain.OrderTypeCompanyRegistration {
			return invalidState("execution order %s is a %s order, not company_registration", o.OrderNo, o.OrderType)
		}
		if o.Status == domain.OrderCancelled {
			return invalidState("execution order %s is cancelled", o.OrderNo)
		}
		_, err = e.Repo.GetRegistrationTx(ctx, s.tx, o.ID)
		switch {
		case err == nil:
			return conflict("execution order %s already has a registration record", o.OrderNo)
		case !errors.Is(err, repo.ErrNotFound):
			return fatal("load registration", err)
		}
		now := e.timestamp()
		info = domain.CompanyRegistrationInfo{
			ID:                 uuid.NewString(),
			ExecutionOrderID:   o.ID,
			CompanyName:        opts.CompanyName,
			NIB:                optionalString(opts.NIB),
			NPWP:               optionalString(opts.NPWP),
			AktaNumber:         optionalString(opts.AktaNumber),
			SKKemenkumham:      optionalString(opts.SKKemenkumham),
			RegistrationStatus: domain.RegistrationInProgress,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if o.Status == domain.OrderCompleted {
			info.RegistrationStatus = domain.RegistrationCompleted
			info.CompletedAt = &now
		}
		if err := e.Repo.InsertRegistration(ctx, s.tx, info); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return conflict("execution order %s already has a registration record", o.OrderNo)
			}
			return fatal("insert registration", err)
		}
		return e.record(ctx, s, events.RegistrationCreated, entityOrder, o.ID, opts.ActorID, events.EventPayload{
			"registration_id": info.ID,
			"company_name":    info.CompanyName,
		})
	})
	if err != nil {
		return domain.CompanyRegistrationInfo{}, err
	}
	return info, nil
}

// GetCompanyRegistrationInfo returns the registration record of an order.
func (e Engine) GetCompanyRegistrationInfo(ctx context.Context, orderID string) (domain.CompanyRegistrationInfo, error) {
	info, err := e.Repo.GetRegistration(ctx, orderID)
	if err != nil {
		return info, storeErr("load registration", err)
	}
	return info, nil
}

// RegistrationCompletion is the outcome of CompleteCompanyRegistration.
type RegistrationCompletion struct {
	Registration domain.CompanyRegistrationInfo `json:"registration"`
	Order        domain.ExecutionOrder          `json:"order"`
	Released     []string                       `json:"released_order_ids"`
}

// CompleteCompanyRegistration completes the record and its order, then
// releases the orders gated on it. Everything commits together.
func (e Engine) CompleteCompanyRegistration(ctx context.Context, orderID, actorID string) (RegistrationCompletion, error) {
	var res RegistrationCompletion
	err := e.inTx(ctx, func(s *txScope) error {
		if _, err := e.Repo.GetRegistrationTx(ctx, s.tx, orderID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return invalidState("execution order %s has no registration record", orderID)
			}
			return fatal("load registration", err)
		}
		o, err := e.Repo.GetOrderTx(ctx, s.tx, orderID)
		if err != nil {
			return storeErr("load execution order", err)
		}
		if o.Status.Terminal() {
			return invalidState("execution order %s is already %s", o.OrderNo, o.Status)
		}
		unmet, err := e.Repo.CountUnsatisfiedTx(ctx, s.tx, o.ID)
		if err != nil {
			return fatal("count dependencies", err)
		}
		if unmet > 0 {
			return invalidState("execution order %s is blocked by %d unmet dependencies", o.OrderNo, unmet)
		}

		now := e.timestamp()
		if err := e.completeRegistrationRecord(ctx, s, o.ID, now, actorID); err != nil {
			return err
		}
		from := o.Status
		today := e.today()
		o.Status = domain.OrderCompleted
		o.ActualEndDate = &today
		o.UpdatedAt = now
		if err := e.Repo.UpdateOrder(ctx, s.tx, o); err != nil {
			return storeErr("update execution order", err)
		}
		e.transitionMetric(s, from, o.Status)
		if err := e.record(ctx, s, events.OrderStatusChanged, entityOrder, o.ID, actorID, events.EventPayload{"from": from, "to": o.Status}); err != nil {
			return err
		}
		rel, err := e.releaseDependents(ctx, s, o.ID, actorID)
		if err != nil {
			return err
		}
		o.Items, err = e.Repo.ListItemsTx(ctx, s.tx, o.ID)
		if err != nil {
			return fatal("list items", err)
		}
		res.Order = o
		res.Released = rel.Released
		res.Registration, err = e.Repo.GetRegistrationTx(ctx, s.tx, o.ID)
		if err != nil {
			return fatal("reload registration", err)
		}
		return nil
	})
	if err != nil {
		return RegistrationCompletion{}, err
	}
	return res, nil
}

// completeRegistrationRecord marks the record completed if the order has one.
// An already completed record keeps its original completed_at.
func (e Engine) completeRegistrationRecord(ctx context.Context, s *txScope, orderID, now, actorID string) error {
	changed, err := e.Repo.CompleteRegistration(ctx, s.tx, orderID, now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fatal("complete registration", err)
	}
	if !changed {
		return nil
	}
	return e.record(ctx, s, events.RegistrationCompleted, entityRegistration, orderID, actorID, nil)
}
