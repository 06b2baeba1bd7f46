package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"orderflow/internal/config"
	"orderflow/internal/domain"
	"orderflow/internal/engine"
	"orderflow/internal/events"
)

func TestOpenUsesWorkspaceConfig(t *testing.T) {
	ws := t.TempDir()
	yml := "order_numbers:\n  prefixes:\n    execution_order: WO\n  width: 3\n"
	require.NoError(t, os.WriteFile(filepath.Join(ws, "orderflow.yml"), []byte(yml), 0o644))

	ctx := context.Background()
	rt, err := Open(ctx, Options{Workspace: ws, Logger: zap.NewNop()})
	require.NoError(t, err)
	defer rt.Close()

	require.NoError(t, rt.Engine.Repo.InsertOpportunity(ctx, domain.Opportunity{ID: "opp", Name: "x", CreatedAt: "2025-01-01T00:00:00Z"}))
	o, err := rt.Engine.CreateOrder(ctx, engine.CreateOrderOptions{OpportunityID: "opp"})
	require.NoError(t, err)
	assert.Regexp(t, `^WO-\d{8}-001$`, o.OrderNo)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "orderflow.yml"), []byte("order_numbers:\n  width: 1\n"), 0o644))
	_, err := Open(context.Background(), Options{Workspace: ws})
	assert.Error(t, err)
}

func TestNewPublisher(t *testing.T) {
	ctx := context.Background()
	p, closeFn, err := NewPublisher(ctx, config.Default(), config.RedisConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, events.NopPublisher{}, p)
	assert.NoError(t, closeFn())

	off := false
	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{
		{URL: "http://127.0.0.1:9/a"},
		{URL: "http://127.0.0.1:9/b"},
		{URL: "http://127.0.0.1:9/c", Enabled: &off},
	}
	p, closeFn, err = NewPublisher(ctx, cfg, config.RedisConfig{}, zap.NewNop())
	require.NoError(t, err)
	async, ok := p.(*events.AsyncPublisher)
	require.True(t, ok)
	fan, ok := async.Next.(events.Fanout)
	require.True(t, ok)
	assert.Len(t, fan, 2)
	assert.NoError(t, closeFn())
}
