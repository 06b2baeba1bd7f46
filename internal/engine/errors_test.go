package engine

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"orderflow/internal/domain"
	"orderflow/internal/repo"
)

func TestErrorStatus(t *testing.T) {
	cases := map[ErrorKind]int{
		KindNotFound:        http.StatusNotFound,
		KindInvalidState:    http.StatusBadRequest,
		KindConflict:        http.StatusBadRequest,
		KindUnauthenticated: http.StatusUnauthorized,
		KindFatal:           http.StatusInternalServerError,
	}
	for kind, status := range cases {
		err := &Error{Kind: kind, Message: "x"}
		assert.Equal(t, status, err.Status(), string(kind))
	}
}

func TestStoreErrTranslation(t *testing.T) {
	err := storeErr("load", fmt.Errorf("execution order x: %w", repo.ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, errors.Is(err, repo.ErrNotFound))

	err = storeErr("load", errors.New("disk on fire"))
	assert.Equal(t, KindFatal, KindOf(err))
	assert.Contains(t, err.Error(), "disk on fire")

	biz := invalidState("nope")
	assert.Same(t, biz, storeErr("load", biz))
	assert.NoError(t, storeErr("load", nil))
}

func TestEnsureOrderTransition(t *testing.T) {
	ok := [][2]domain.OrderStatus{
		{domain.OrderPending, domain.OrderInProgress},
		{domain.OrderPending, domain.OrderBlocked},
		{domain.OrderInProgress, domain.OrderPending},
		{domain.OrderBlocked, domain.OrderPending},
		{domain.OrderBlocked, domain.OrderCancelled},
	}
	for _, tc := range ok {
		assert.NoError(t, ensureOrderTransition(tc[0], tc[1], false), "%s -> %s", tc[0], tc[1])
	}
	bad := [][2]domain.OrderStatus{
		{domain.OrderBlocked, domain.OrderInProgress},
		{domain.OrderBlocked, domain.OrderCompleted},
		{domain.OrderCompleted, domain.OrderPending},
		{domain.OrderCancelled, domain.OrderPending},
	}
	for _, tc := range bad {
		err := ensureOrderTransition(tc[0], tc[1], false)
		assert.Equal(t, KindInvalidState, KindOf(err), "%s -> %s", tc[0], tc[1])
		assert.NoError(t, ensureOrderTransition(tc[0], tc[1], true))
	}
}
