package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"orderflow/internal/config"
	"orderflow/internal/db"
	"orderflow/internal/domain"
	"orderflow/internal/engine"
	"orderflow/internal/events"
	"orderflow/internal/idgen"
	"orderflow/internal/metrics"
	"orderflow/internal/migrate"
)

const opportunityID = "opp-1"

type testEnv struct {
	Engine   engine.Engine
	Ctx      context.Context
	Recorder *events.Recorder
	Metrics  *metrics.Collector
	Logs     *observer.ObservedLogs
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err, "open db")
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn), "migrate")

	cfg := config.Default()
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC) }
	gen := idgen.New(eng.Repo, idgen.ConfigFrom(cfg))
	gen.Now = eng.Now
	eng.Numbers = gen
	rec := &events.Recorder{}
	eng.Publisher = rec
	eng.Metrics = metrics.NewCollector()
	core, logs := observer.New(zapcore.DebugLevel)
	eng.Logger = zap.New(core)

	ctx := context.Background()
	require.NoError(t, eng.Repo.InsertOpportunity(ctx, domain.Opportunity{ID: opportunityID, Name: "PT Maju", CreatedAt: "2025-05-01T00:00:00Z"}))
	return testEnv{Engine: eng, Ctx: ctx, Recorder: rec, Metrics: eng.Metrics, Logs: logs}
}

func (env testEnv) createOrder(t *testing.T, opts engine.CreateOrderOptions) domain.ExecutionOrder {
	t.Helper()
	if opts.OpportunityID == "" {
		opts.OpportunityID = opportunityID
	}
	if opts.ActorID == "" {
		opts.ActorID = "tester"
	}
	o, err := env.Engine.CreateOrder(env.Ctx, opts)
	require.NoError(t, err)
	return o
}

// registrationSetup creates a registration order R with its record and a
// main order O that requires registration.
func (env testEnv) registrationSetup(t *testing.T) (domain.ExecutionOrder, domain.ExecutionOrder) {
	t.Helper()
	r := env.createOrder(t, engine.CreateOrderOptions{OrderType: domain.OrderTypeCompanyRegistration, Title: "Register PT"})
	_, err := env.Engine.CreateCompanyRegistrationInfo(env.Ctx, engine.RegistrationOptions{OrderID: r.ID, CompanyName: "PT Maju Jaya", ActorID: "tester"})
	require.NoError(t, err)
	o := env.createOrder(t, engine.CreateOrderOptions{
		OrderType:                   domain.OrderTypeMain,
		RequiresCompanyRegistration: true,
		Title:                       "Install",
		Items:                       []engine.CreateItemOptions{{Description: "Panel", Quantity: 2}, {Description: "Cabling"}},
	})
	return r, o
}

func assertKind(t *testing.T, err error, kind engine.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, engine.KindOf(err), "error: %v", err)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestCreateOrderWithoutRegistrationIsPending(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t, engine.CreateOrderOptions{OrderType: domain.OrderTypeOneTime})

	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Equal(t, "EO-20250601-0001", o.OrderNo)
	assert.Nil(t, o.CompanyRegistrationOrderID)

	summary, err := env.Engine.CheckDependencies(env.Ctx, o.ID)
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.True(t, summary.AllSatisfied)
}

func TestCreateOrderBlockedByRegistration(t *testing.T) {
	env := newTestEnv(t)
	r, o := env.registrationSetup(t)

	assert.Equal(t, domain.OrderBlocked, o.Status)
	require.NotNil(t, o.CompanyRegistrationOrderID)
	assert.Equal(t, r.ID, *o.CompanyRegistrationOrderID)
	require.Len(t, o.Items, 2)
	for _, it := range o.Items {
		assert.Equal(t, domain.ItemBlocked, it.Status)
	}
	assert.Equal(t, 1, o.Items[1].Quantity)

	summary, err := env.Engine.CheckDependencies(env.Ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, summary.Edges, 1)
	edge := summary.Edges[0]
	assert.Equal(t, r.ID, edge.PrerequisiteOrderID)
	assert.Equal(t, domain.DependencyCompanyRegistration, edge.DependencyType)
	assert.Equal(t, domain.DependencyPending, edge.Status)
	assert.Nil(t, edge.SatisfiedAt)

	ok, err := env.Engine.CheckAllDependenciesSatisfied(env.Ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAssignBlockedOrderRejected(t *testing.T) {
	env := newTestEnv(t)
	_, o := env.registrationSetup(t)

	_, err := env.Engine.AssignOrder(env.Ctx, engine.AssignOptions{OrderID: o.ID, AssignedTo: "budi", ActorID: "tester"})
	assertKind(t, err, engine.KindInvalidState)
	assert.Equal(t, float64(1), counterValue(t, env.Metrics.Registry(), "orderflow_assignments_rejected_total"))

	got, err := env.Engine.GetOrder(env.Ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderBlocked, got.Status)
	assert.Nil(t, got.AssignedTo)
}

func TestAssignStartsWork(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t, engine.CreateOrderOptions{})

	got, err := env.Engine.AssignOrder(env.Ctx, engine.AssignOptions{OrderID: o.ID, AssignedTo: "budi", AssignedTeam: "field", ActorID: "tester"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderInProgress, got.Status)
	require.NotNil(t, got.ActualStartDate)
	assert.Equal(t, "2025-06-01", *got.ActualStartDate)
	require.NotNil(t, got.AssignedTeam)
	assert.Equal(t, "field", *got.AssignedTeam)

	_, err = env.Engine.AssignOrder(env.Ctx, engine.AssignOptions{OrderID: o.ID, ActorID: "tester"})
	assertKind(t, err, engine.KindInvalidState)
}

func TestCompleteRegistrationReleasesDependents(t *testing.T) {
	env := newTestEnv(t)
	r, o := env.registrationSetup(t)

	res, err := env.Engine.CompleteCompanyRegistration(env.Ctx, r.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, res.Order.Status)
	require.NotNil(t, res.Order.ActualEndDate)
	assert.Equal(t, "2025-06-01", *res.Order.ActualEndDate)
	assert.Equal(t, domain.RegistrationCompleted, res.Registration.RegistrationStatus)
	assert.NotNil(t, res.Registration.CompletedAt)
	assert.Equal(t, []string{o.ID}, res.Released)

	got, err := env.Engine.GetOrder(env.Ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, got.Status)
	for _, it := range got.Items {
		assert.Equal(t, domain.ItemPending, it.Status)
	}
	summary, err := env.Engine.CheckDependencies(env.Ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, summary.AllSatisfied)
	assert.NotNil(t, summary.Edges[0].SatisfiedAt)

	assigned, err := env.Engine.AssignOrder(env.Ctx, engine.AssignOptions{OrderID: o.ID, AssignedTo: "budi", ActorID: "tester"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderInProgress, assigned.Status)

	assert.Subset(t, env.Recorder.Types(), []string{
		events.RegistrationCompleted, events.DependencySatisfied, events.OrderReleased, events.OrderAssigned,
	})
	assert.Equal(t, float64(1), counterValue(t, env.Metrics.Registry(), "orderflow_orders_released_total"))
}

func TestCompleteRegistrationWithoutRecord(t *testing.T) {
	env := newTestEnv(t)
	r := env.createOrder(t, engine.CreateOrderOptions{OrderType: domain.OrderTypeCompanyRegistration})

	_, err := env.Engine.CompleteCompanyRegistration(env.Ctx, r.ID, "tester")
	assertKind(t, err, engine.KindInvalidState)

	got, err := env.Engine.GetOrder(env.Ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, got.Status)
}

func TestCompleteRegistrationTwiceRejected(t *testing.T) {
	env := newTestEnv(t)
	r, _ := env.registrationSetup(t)
	_, err := env.Engine.CompleteCompanyRegistration(env.Ctx, r.ID, "tester")
	require.NoError(t, err)

	_, err = env.Engine.CompleteCompanyRegistration(env.Ctx, r.ID, "tester")
	assertKind(t, err, engine.KindInvalidState)
}

func TestRecompletedRegistrationKeepsCompletedAt(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Lifecycle.AllowAnyTransition = true
	r, _ := env.registrationSetup(t)
	first, err := env.Engine.CompleteCompanyRegistration(env.Ctx, r.ID, "tester")
	require.NoError(t, err)
	require.NotNil(t, first.Registration.CompletedAt)

	_, err = env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: r.ID, Status: "pending"})
	require.NoError(t, err)
	env.Engine.Now = func() time.Time { return time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC) }
	_, err = env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: r.ID, Status: "completed"})
	require.NoError(t, err)

	info, err := env.Engine.GetCompanyRegistrationInfo(env.Ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, info.CompletedAt)
	assert.Equal(t, *first.Registration.CompletedAt, *info.CompletedAt)

	completions := 0
	for _, typ := range env.Recorder.Types() {
		if typ == events.RegistrationCompleted {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
}

func TestCreateRegistrationInfoRules(t *testing.T) {
	env := newTestEnv(t)
	r := env.createOrder(t, engine.CreateOrderOptions{OrderType: domain.OrderTypeCompanyRegistration})
	main := env.createOrder(t, engine.CreateOrderOptions{})

	info, err := env.Engine.CreateCompanyRegistrationInfo(env.Ctx, engine.RegistrationOptions{OrderID: r.ID, CompanyName: "PT A", NIB: "123", ActorID: "tester"})
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationInProgress, info.RegistrationStatus)
	require.NotNil(t, info.NIB)
	assert.Nil(t, info.NPWP)

	_, err = env.Engine.CreateCompanyRegistrationInfo(env.Ctx, engine.RegistrationOptions{OrderID: r.ID, CompanyName: "PT B"})
	assertKind(t, err, engine.KindConflict)

	_, err = env.Engine.CreateCompanyRegistrationInfo(env.Ctx, engine.RegistrationOptions{OrderID: main.ID, CompanyName: "PT C"})
	assertKind(t, err, engine.KindInvalidState)

	_, err = env.Engine.CreateCompanyRegistrationInfo(env.Ctx, engine.RegistrationOptions{OrderID: "missing", CompanyName: "PT D"})
	assertKind(t, err, engine.KindNotFound)

	got, err := env.Engine.GetCompanyRegistrationInfo(env.Ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "PT A", got.CompanyName)
}

func TestCreateOrderWithoutRegistrationOrderWarns(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t, engine.CreateOrderOptions{RequiresCompanyRegistration: true})

	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Nil(t, o.CompanyRegistrationOrderID)
	assert.Contains(t, env.Recorder.Types(), events.OrderRegistrationMissing)
	assert.Equal(t, 1, env.Logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestCreateOrderAfterRegistrationCompleted(t *testing.T) {
	env := newTestEnv(t)
	r, _ := env.registrationSetup(t)
	_, err := env.Engine.CompleteCompanyRegistration(env.Ctx, r.ID, "tester")
	require.NoError(t, err)

	late := env.createOrder(t, engine.CreateOrderOptions{RequiresCompanyRegistration: true})
	assert.Equal(t, domain.OrderPending, late.Status)
	summary, err := env.Engine.CheckDependencies(env.Ctx, late.ID)
	require.NoError(t, err)
	require.Len(t, summary.Edges, 1)
	assert.Equal(t, domain.DependencySatisfied, summary.Edges[0].Status)
}

func TestNoPrematureUnblock(t *testing.T) {
	env := newTestEnv(t)
	r, o := env.registrationSetup(t)
	visa := env.createOrder(t, engine.CreateOrderOptions{OrderType: domain.OrderTypeVisaKitas})
	_, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{
		OrderID: o.ID, PrerequisiteOrderID: visa.ID, DependencyType: domain.DependencyVisaKitas, ActorID: "tester",
	})
	require.NoError(t, err)

	res, err := env.Engine.CompleteCompanyRegistration(env.Ctx, r.ID, "tester")
	require.NoError(t, err)
	assert.Empty(t, res.Released)
	got, err := env.Engine.GetOrder(env.Ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderBlocked, got.Status)

	upd, err := env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: visa.ID, Status: "completed", ActualEndDate: "2025-05-30", ActorID: "tester"})
	require.NoError(t, err)
	require.NotNil(t, upd.Order.ActualEndDate)
	assert.Equal(t, "2025-05-30", *upd.Order.ActualEndDate)
	assert.Equal(t, []string{o.ID}, upd.Released)

	got, err = env.Engine.GetOrder(env.Ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, got.Status)
}

func TestReleaseIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	r, o := env.registrationSetup(t)
	_, err := env.Engine.CompleteCompanyRegistration(env.Ctx, r.ID, "tester")
	require.NoError(t, err)
	before, err := env.Engine.CheckDependencies(env.Ctx, o.ID)
	require.NoError(t, err)

	env.Engine.Now = func() time.Time { return time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC) }
	res, err := env.Engine.ReleaseDependentOrders(env.Ctx, r.ID, "tester")
	require.NoError(t, err)
	assert.Zero(t, res.SatisfiedEdges)
	assert.Empty(t, res.Released)

	after, err := env.Engine.CheckDependencies(env.Ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Edges[0].SatisfiedAt, after.Edges[0].SatisfiedAt)

	_, err = env.Engine.ReleaseDependentOrders(env.Ctx, o.ID, "tester")
	assertKind(t, err, engine.KindInvalidState)
}

func TestCascadeIsOneHop(t *testing.T) {
	env := newTestEnv(t)
	a := env.createOrder(t, engine.CreateOrderOptions{Title: "A"})
	b := env.createOrder(t, engine.CreateOrderOptions{Title: "B"})
	c := env.createOrder(t, engine.CreateOrderOptions{Title: "C"})
	_, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{OrderID: b.ID, PrerequisiteOrderID: a.ID, DependencyType: domain.DependencyMaterialApproval})
	require.NoError(t, err)
	_, err = env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{OrderID: c.ID, PrerequisiteOrderID: b.ID, DependencyType: domain.DependencySBUQuota})
	require.NoError(t, err)

	upd, err := env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: a.ID, Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, upd.Released)

	gotB, err := env.Engine.GetOrder(env.Ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, gotB.Status)
	gotC, err := env.Engine.GetOrder(env.Ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderBlocked, gotC.Status)
}

func TestAddDependencyRules(t *testing.T) {
	env := newTestEnv(t)
	a := env.createOrder(t, engine.CreateOrderOptions{})
	b := env.createOrder(t, engine.CreateOrderOptions{})
	c := env.createOrder(t, engine.CreateOrderOptions{})

	_, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{OrderID: a.ID, PrerequisiteOrderID: a.ID, DependencyType: domain.DependencySBUQuota})
	assertKind(t, err, engine.KindInvalidState)

	_, err = env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{OrderID: a.ID, PrerequisiteOrderID: b.ID, DependencyType: "unknown"})
	assertKind(t, err, engine.KindInvalidState)

	_, err = env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{OrderID: a.ID, PrerequisiteOrderID: b.ID, DependencyType: domain.DependencySBUQuota})
	require.NoError(t, err)
	_, err = env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{OrderID: a.ID, PrerequisiteOrderID: b.ID, DependencyType: domain.DependencySBUQuota})
	assertKind(t, err, engine.KindConflict)

	_, err = env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{OrderID: b.ID, PrerequisiteOrderID: c.ID, DependencyType: domain.DependencySBUQuota})
	require.NoError(t, err)
	_, err = env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{OrderID: c.ID, PrerequisiteOrderID: a.ID, DependencyType: domain.DependencySBUQuota})
	assertKind(t, err, engine.KindInvalidState)

	_, err = env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{OrderID: a.ID, PrerequisiteOrderID: "missing", DependencyType: domain.DependencySBUQuota})
	assertKind(t, err, engine.KindNotFound)

	dependents, err := env.Engine.Dependents(env.Ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, dependents, 1)
	assert.Equal(t, a.ID, dependents[0].ExecutionOrderID)
}

func TestLateDependencyGatesStartedOrder(t *testing.T) {
	env := newTestEnv(t)
	a := env.createOrder(t, engine.CreateOrderOptions{Title: "Material approval"})
	b := env.createOrder(t, engine.CreateOrderOptions{Title: "Install"})
	started, err := env.Engine.AssignOrder(env.Ctx, engine.AssignOptions{OrderID: b.ID, AssignedTo: "budi", ActorID: "tester"})
	require.NoError(t, err)
	require.Equal(t, domain.OrderInProgress, started.Status)

	_, err = env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{OrderID: b.ID, PrerequisiteOrderID: a.ID, DependencyType: domain.DependencyMaterialApproval})
	require.NoError(t, err)
	got, err := env.Engine.GetOrder(env.Ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderBlocked, got.Status)

	for _, to := range []string{"pending", "in_progress", "completed"} {
		_, err = env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: b.ID, Status: to})
		assertKind(t, err, engine.KindInvalidState)
	}
	_, err = env.Engine.AssignOrder(env.Ctx, engine.AssignOptions{OrderID: b.ID, AssignedTo: "budi", ActorID: "tester"})
	assertKind(t, err, engine.KindInvalidState)

	env.Engine.Config.Lifecycle.AllowAnyTransition = true
	for _, to := range []string{"pending", "in_progress", "completed"} {
		_, err = env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: b.ID, Status: to})
		assertKind(t, err, engine.KindInvalidState)
	}

	upd, err := env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: a.ID, Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, upd.Released)
	done, err := env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: b.ID, Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, done.Order.Status)
}

func TestStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t, engine.CreateOrderOptions{})

	_, err := env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: o.ID, Status: "bogus"})
	assertKind(t, err, engine.KindInvalidState)
	_, err = env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: o.ID, Status: "blocked"})
	assertKind(t, err, engine.KindInvalidState)
	_, err = env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: o.ID, Status: "completed", ActualEndDate: "01/06/2025"})
	assertKind(t, err, engine.KindInvalidState)

	upd, err := env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: o.ID, Status: "in_progress"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderInProgress, upd.Order.Status)
	upd, err = env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: o.ID, Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, upd.Order.Status)

	_, err = env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: o.ID, Status: "pending"})
	assertKind(t, err, engine.KindInvalidState)

	same, err := env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: o.ID, Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, same.Order.Status)

	_, err = env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: "missing", Status: "completed"})
	assertKind(t, err, engine.KindNotFound)
}

func TestAllowAnyTransition(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Lifecycle.AllowAnyTransition = true
	o := env.createOrder(t, engine.CreateOrderOptions{})

	_, err := env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: o.ID, Status: "cancelled"})
	require.NoError(t, err)
	upd, err := env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: o.ID, Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, upd.Order.Status)
}

func TestCancelledPrerequisiteBlocksEdges(t *testing.T) {
	env := newTestEnv(t)
	r, o := env.registrationSetup(t)

	_, err := env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: r.ID, Status: "cancelled", ActorID: "tester"})
	require.NoError(t, err)

	summary, err := env.Engine.CheckDependencies(env.Ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DependencyBlocked, summary.Edges[0].Status)
	got, err := env.Engine.GetOrder(env.Ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderBlocked, got.Status)

	upd, err := env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: o.ID, Status: "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, upd.Order.Status)
}

func TestConcurrentPrerequisiteCompletion(t *testing.T) {
	env := newTestEnv(t)
	p1 := env.createOrder(t, engine.CreateOrderOptions{})
	p2 := env.createOrder(t, engine.CreateOrderOptions{})
	dep := env.createOrder(t, engine.CreateOrderOptions{})
	for _, p := range []domain.ExecutionOrder{p1, p2} {
		_, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{OrderID: dep.ID, PrerequisiteOrderID: p.ID, DependencyType: domain.DependencyMaterialApproval})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, p := range []domain.ExecutionOrder{p1, p2} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = env.Engine.UpdateStatus(env.Ctx, engine.StatusUpdateOptions{OrderID: id, Status: "completed"})
		}(i, p.ID)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	got, err := env.Engine.GetOrder(env.Ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, got.Status)
}

func TestListOrders(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		env.createOrder(t, engine.CreateOrderOptions{})
	}
	_, err := env.Engine.ListOrders(env.Ctx, engine.ListOrdersOptions{})
	assertKind(t, err, engine.KindInvalidState)
	_, err = env.Engine.ListOrders(env.Ctx, engine.ListOrdersOptions{Status: "nope"})
	assertKind(t, err, engine.KindInvalidState)

	page, err := env.Engine.ListOrders(env.Ctx, engine.ListOrdersOptions{OpportunityID: opportunityID, Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Orders, 3)
	require.NotEmpty(t, page.NextCursor)

	next, err := env.Engine.ListOrders(env.Ctx, engine.ListOrdersOptions{OpportunityID: opportunityID, Limit: 3, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, next.Orders, 2)
	assert.Empty(t, next.NextCursor)

	seen := map[string]bool{}
	for _, o := range append(page.Orders, next.Orders...) {
		assert.False(t, seen[o.ID], "duplicate %s", o.ID)
		seen[o.ID] = true
	}

	assert.Equal(t, map[string]int{"pending": 5}, page.StatusCounts)
	assert.Nil(t, next.StatusCounts)

	pending, err := env.Engine.ListOrders(env.Ctx, engine.ListOrdersOptions{Status: "pending"})
	require.NoError(t, err)
	assert.Len(t, pending.Orders, 5)
	assert.Nil(t, pending.StatusCounts)
}

func TestCreateOrderValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateOrder(env.Ctx, engine.CreateOrderOptions{OpportunityID: "nope"})
	assertKind(t, err, engine.KindNotFound)
	_, err = env.Engine.CreateOrder(env.Ctx, engine.CreateOrderOptions{OpportunityID: opportunityID, OrderType: "weird"})
	assertKind(t, err, engine.KindInvalidState)
	_, err = env.Engine.CreateOrder(env.Ctx, engine.CreateOrderOptions{OpportunityID: opportunityID, PlannedStartDate: "2025-06-10", PlannedEndDate: "2025-06-01"})
	assertKind(t, err, engine.KindInvalidState)
	_, err = env.Engine.CreateOrder(env.Ctx, engine.CreateOrderOptions{OpportunityID: opportunityID, Items: []engine.CreateItemOptions{{Quantity: 1}}})
	assertKind(t, err, engine.KindInvalidState)
}

func TestOrderEventsTrail(t *testing.T) {
	env := newTestEnv(t)
	r, o := env.registrationSetup(t)
	_, err := env.Engine.CompleteCompanyRegistration(env.Ctx, r.ID, "tester")
	require.NoError(t, err)

	trail, err := env.Engine.OrderEvents(env.Ctx, o.ID, 10)
	require.NoError(t, err)
	var types []string
	for _, e := range trail {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{events.OrderReleased, events.DependencySatisfied, events.DependencyAdded, events.OrderCreated}, types)
	assert.Equal(t, "tester", trail[0].ActorID)
}
