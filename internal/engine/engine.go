package engine

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"orderflow/internal/config"
	"orderflow/internal/domain"
	"orderflow/internal/events"
	"orderflow/internal/idgen"
	"orderflow/internal/metrics"
	"orderflow/internal/repo"
)

const dateLayout = "2006-01-02"

// OrderNumberGenerator allocates unique order numbers inside a transaction.
type OrderNumberGenerator interface {
	Generate(ctx context.Context, tx *sql.Tx, kind string) (string, error)
}

type OpportunityLookup interface {
	GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error)
}

type ContractLookup interface {
	GetContract(ctx context.Context, id string) (domain.Contract, error)
}

// Engine is the lifecycle controller for execution orders.
type Engine struct {
	DB            *sql.DB
	Repo          repo.Repo
	Events        events.Writer
	Publisher     events.Publisher
	Config        *config.Config
	Numbers       OrderNumberGenerator
	Opportunities OpportunityLookup
	Contracts     ContractLookup
	Metrics       *metrics.Collector
	Logger        *zap.Logger
	Now           func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:            db,
		Repo:          r,
		Events:        events.Writer{DB: db},
		Publisher:     events.NopPublisher{},
		Config:        cfg,
		Numbers:       idgen.New(r, idgen.ConfigFrom(cfg)),
		Opportunities: r,
		Contracts:     r,
		Logger:        zap.NewNop(),
		Now:           time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) today() string {
	return e.now().UTC().Format(dateLayout)
}

func (e Engine) log() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

// txScope collects what must happen once the transaction has committed.
type txScope struct {
	tx          *sql.Tx
	events      []domain.Event
	afterCommit []func()
}

func (s *txScope) after(fn func()) {
	s.afterCommit = append(s.afterCommit, fn)
}

// inTx runs fn in one transaction. Any error rolls everything back; events
// are published and metrics recorded only after a successful commit.
func (e Engine) inTx(ctx context.Context, fn func(s *txScope) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fatal("begin transaction", err)
	}
	defer tx.Rollback()

	s := &txScope{tx: tx}
	if err := fn(s); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fatal("commit transaction", err)
	}
	for _, fn := range s.afterCommit {
		fn()
	}
	if len(s.events) > 0 && e.Publisher != nil {
		if err := e.Publisher.Publish(ctx, s.events...); err != nil {
			e.log().Warn("publish events failed", zap.Int("count", len(s.events)), zap.Error(err))
		}
	}
	return nil
}

func (e Engine) record(ctx context.Context, s *txScope, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.Now
	}
	evt, err := w.Append(ctx, s.tx, evtType, entityKind, entityID, actorID, payload)
	if err != nil {
		return fatal("record event "+evtType, err)
	}
	s.events = append(s.events, evt)
	return nil
}

func (e Engine) transitionMetric(s *txScope, from, to domain.OrderStatus) {
	s.after(func() { e.Metrics.Transition(string(from), string(to)) })
}

// OrderEvents returns the audit trail of an order, newest first.
func (e Engine) OrderEvents(ctx context.Context, orderID string, limit int) ([]domain.Event, error) {
	if _, err := e.Repo.GetOrder(ctx, orderID); err != nil {
		return nil, storeErr("load order", err)
	}
	evts, err := e.Events.List(ctx, entityOrder, orderID, limit)
	if err != nil {
		return nil, fatal("list events", err)
	}
	return evts, nil
}

func parseDate(field, v string) (*string, error) {
	if v == "" {
		return nil, nil
	}
	if _, err := time.Parse(dateLayout, v); err != nil {
		return nil, invalidState("%s must be YYYY-MM-DD: %q", field, v)
	}
	return &v, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
