package orderflowsdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/config"
	"orderflow/internal/db"
	"orderflow/internal/domain"
	"orderflow/internal/engine"
	"orderflow/internal/migrate"
	"orderflow/internal/server"
	orderflowsdk "orderflow/sdk/go"
)

func newClient(t *testing.T) *orderflowsdk.Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, config.Default())
	require.NoError(t, e.Repo.InsertOpportunity(context.Background(), domain.Opportunity{ID: "opp-1", Name: "PT Maju", CreatedAt: "2025-05-01T00:00:00Z"}))

	handler, err := server.New(server.Config{Engine: e, Auth: server.AuthConfig{JWTSecret: "sdk-secret"}})
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	token, err := server.IssueToken("sdk-secret", "sdk-user", nil, time.Hour)
	require.NoError(t, err)
	return orderflowsdk.New(ts.URL, token)
}

func TestRegistrationRoundTrip(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	reg, err := c.CreateOrder(ctx, orderflowsdk.CreateOrder{OpportunityID: "opp-1", OrderType: "company_registration"})
	require.NoError(t, err)
	_, err = c.CreateRegistration(ctx, reg.ID, "PT Maju Jaya")
	require.NoError(t, err)

	main, err := c.CreateOrder(ctx, orderflowsdk.CreateOrder{
		OpportunityID:               "opp-1",
		RequiresCompanyRegistration: true,
		Items:                       []orderflowsdk.CreateItem{{Description: "Survey", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "blocked", main.Status)

	_, err = c.AssignOrder(ctx, main.ID, "budi", "")
	var apiErr *orderflowsdk.APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_state", apiErr.Code)

	deps, err := c.Dependencies(ctx, main.ID)
	require.NoError(t, err)
	assert.False(t, deps.AllSatisfied)

	dependents, err := c.Dependents(ctx, reg.ID)
	require.NoError(t, err)
	require.Len(t, dependents, 1)
	assert.Equal(t, main.ID, dependents[0].ExecutionOrderID)

	done, err := c.CompleteRegistration(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{main.ID}, done.Released)

	assigned, err := c.AssignOrder(ctx, main.ID, "budi", "field")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", assigned.Status)

	res, err := c.UpdateStatus(ctx, main.ID, "completed", "2025-07-01")
	require.NoError(t, err)
	require.NotNil(t, res.Order.ActualEndDate)
	assert.Equal(t, "2025-07-01", *res.Order.ActualEndDate)

	info, err := c.GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", info.RegistrationStatus)

	events, err := c.OrderEvents(ctx, main.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, events)

	page, err := c.ListOrders(ctx, "opp-1", "completed", 10, "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestNotFoundAndAuth(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	_, err := c.GetOrder(ctx, "missing")
	var apiErr *orderflowsdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	c.BearerToken = ""
	_, err = c.ListOrders(ctx, "opp-1", "", 0, "")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
