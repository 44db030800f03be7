package checkout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/types"
)

func TestDispatch_CheckoutCompleted_RunsSettlement(t *testing.T) {
	store := newFakeProductStore(&types.Product{ID: 7})
	dispatcher := NewDispatcher(NewSettler(store, nil), nil)

	outcome := dispatcher.Dispatch(context.Background(), checkoutCompletedEvent(t, "7"))

	assert.Equal(t, OutcomeSettled, outcome.Kind)
	assert.True(t, store.products[7].Sold)
}

func TestDispatch_UnhandledType_SkipsWithoutTouchingStore(t *testing.T) {
	store := newFakeProductStore(&types.Product{ID: 7})
	dispatcher := NewDispatcher(NewSettler(store, nil), nil)

	payload := []byte(`{
		"id": "evt_other",
		"type": "invoice.paid",
		"data": {"object": {"id": "in_1", "metadata": {"productId": "7"}}}
	}`)
	event, err := ParseEvent(payload)
	require.NoError(t, err)

	outcome := dispatcher.Dispatch(context.Background(), event)

	assert.Equal(t, OutcomeSkipped, outcome.Kind)
	assert.Equal(t, SkipUnhandledType, outcome.Reason)
	assert.False(t, store.products[7].Sold)
	assert.Zero(t, store.markSoldCalls)
}
