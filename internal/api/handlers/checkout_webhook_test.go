package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/checkout"
	"storefront/internal/external"
	"storefront/internal/types"
)

const testWebhookSecret = "whsec_test_secret"

// ---------------------------------------------------------------------------
// Mock Implementations
// ---------------------------------------------------------------------------

// mockWebhookVerifier implements external.WebhookVerifier for testing.
type mockWebhookVerifier struct {
	shouldFail bool
	err        error
}

func (m *mockWebhookVerifier) Verify(payload []byte, header string, secret string) error {
	if m.shouldFail {
		if m.err != nil {
			return m.err
		}
		return errors.New("signature verification failed")
	}
	return nil
}

// memProductStore implements checkout.ProductStore with the same
// compare-and-swap semantics as the SQL repository.
type memProductStore struct {
	mu       sync.Mutex
	products map[int64]*types.Product
	getErr   error
	markErr  error
}

func newMemProductStore(products ...*types.Product) *memProductStore {
	m := make(map[int64]*types.Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return &memProductStore{products: m}
}

func (s *memProductStore) GetByID(ctx context.Context, id int64) (*types.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	p, ok := s.products[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProduct, "product not found", nil)
	}
	cp := *p
	return &cp, nil
}

func (s *memProductStore) MarkSold(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return false, s.markErr
	}
	p, ok := s.products[id]
	if !ok || p.Sold {
		return false, nil
	}
	p.Sold = true
	return true, nil
}

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

// buildCheckoutEvent creates a JSON-encoded checkout.session.completed event.
// metadata may be nil for an event without a productId.
func buildCheckoutEvent(eventType, eventID string, metadata map[string]string) []byte {
	obj := map[string]interface{}{
		"id": "cs_test_1",
	}
	if metadata != nil {
		obj["metadata"] = metadata
	}
	event := map[string]interface{}{
		"id":      eventID,
		"type":    eventType,
		"created": time.Now().Unix(),
		"data": map[string]interface{}{
			"object": obj,
		},
	}
	b, _ := json.Marshal(event)
	return b
}

// signPayload produces a provider-format signature header
// (t=<unix>,v1=<hex hmac-sha256 of "<unix>.<payload>">).
func signPayload(payload []byte, secret string, at time.Time) string {
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// newTestWebhookHandler wires a handler over an in-memory store.
func newTestWebhookHandler(verifier external.WebhookVerifier, store checkout.ProductStore) *CheckoutWebhookHandler {
	settler := checkout.NewSettler(store, nil)
	dispatcher := checkout.NewDispatcher(settler, nil)
	return NewCheckoutWebhookHandler(verifier, dispatcher, testWebhookSecret, nil)
}

// doWebhookRequest performs an HTTP request to the webhook handler.
func doWebhookRequest(handler *CheckoutWebhookHandler, body []byte, sigHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/checkout/webhook", bytes.NewReader(body))
	if sigHeader != "" {
		req.Header.Set("Stripe-Signature", sigHeader)
	}
	rr := httptest.NewRecorder()
	handler.Handle(rr, req)
	return rr
}

func assertAck(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body=%s)", rr.Code, rr.Body.String())
	}
	var ack webhookAck
	if err := json.Unmarshal(rr.Body.Bytes(), &ack); err != nil {
		t.Fatalf("unmarshaling ack: %v", err)
	}
	if !ack.Received {
		t.Fatal("expected received=true in ack body")
	}
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, wantStatus int, wantCode types.ErrorCode) {
	t.Helper()
	if rr.Code != wantStatus {
		t.Fatalf("expected %d, got %d (body=%s)", wantStatus, rr.Code, rr.Body.String())
	}
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling error body: %v", err)
	}
	if resp.Error.Code != string(wantCode) {
		t.Fatalf("expected error code %q, got %q", wantCode, resp.Error.Code)
	}
}

// ---------------------------------------------------------------------------
// Tests: Signature Verification
// ---------------------------------------------------------------------------

func TestWebhookHandle_MissingSignature(t *testing.T) {
	handler := newTestWebhookHandler(&mockWebhookVerifier{}, newMemProductStore())

	body := buildCheckoutEvent(checkout.EventCheckoutCompleted, "evt_1", map[string]string{"productId": "42"})
	rr := doWebhookRequest(handler, body, "")

	assertErrorCode(t, rr, http.StatusBadRequest, types.ErrCodeWebhookSignatureMissing)
}

func TestWebhookHandle_InvalidSignature(t *testing.T) {
	handler := newTestWebhookHandler(&mockWebhookVerifier{shouldFail: true}, newMemProductStore())

	body := buildCheckoutEvent(checkout.EventCheckoutCompleted, "evt_1", map[string]string{"productId": "42"})
	rr := doWebhookRequest(handler, body, "t=1,v1=bad")

	assertErrorCode(t, rr, http.StatusBadRequest, types.ErrCodeWebhookSignatureInvalid)
}

func TestWebhookHandle_EmptyBody(t *testing.T) {
	handler := newTestWebhookHandler(&mockWebhookVerifier{}, newMemProductStore())

	rr := doWebhookRequest(handler, nil, "t=1,v1=abc")

	assertErrorCode(t, rr, http.StatusBadRequest, types.ErrCodeWebhookBodyMissing)
}

// TestWebhookHandle_RealVerifier exercises the production StripeVerifier with
// a genuine HMAC signature over the exact body bytes: a correctly signed
// request settles, and flipping a single byte after signing is rejected.
func TestWebhookHandle_RealVerifier(t *testing.T) {
	store := newMemProductStore(&types.Product{ID: 42})
	handler := newTestWebhookHandler(&external.StripeVerifier{}, store)

	body := buildCheckoutEvent(checkout.EventCheckoutCompleted, "evt_real", map[string]string{"productId": "42"})
	sig := signPayload(body, testWebhookSecret, time.Now())

	rr := doWebhookRequest(handler, body, sig)
	assertAck(t, rr)
	if !store.products[42].Sold {
		t.Fatal("expected product 42 to be sold after settlement")
	}

	// Tamper with the body after signing.
	tampered := bytes.Replace(body, []byte(`"productId":"42"`), []byte(`"productId":"43"`), 1)
	rr = doWebhookRequest(handler, tampered, sig)
	assertErrorCode(t, rr, http.StatusBadRequest, types.ErrCodeWebhookSignatureInvalid)
}

// TestWebhookHandle_SignedReplay drives the full pipeline twice with the
// same signed payload: the first delivery settles product 42, the replay is
// acknowledged without changing store state.
func TestWebhookHandle_SignedReplay(t *testing.T) {
	store := newMemProductStore(&types.Product{ID: 42})
	settler := checkout.NewSettler(store, nil)
	dispatcher := checkout.NewDispatcher(settler, nil)
	handler := NewCheckoutWebhookHandler(&external.StripeVerifier{}, dispatcher, "whsec_test", nil)

	body := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"evt_1","metadata":{"productId":"42"}}}}`)
	sig := signPayload(body, "whsec_test", time.Now())

	assertAck(t, doWebhookRequest(handler, body, sig))
	if !store.products[42].Sold {
		t.Fatal("expected product 42 sold after first delivery")
	}

	assertAck(t, doWebhookRequest(handler, body, sig))
	if !store.products[42].Sold {
		t.Fatal("expected product 42 to remain sold after replay")
	}
}

func TestWebhookHandle_WrongSecret(t *testing.T) {
	handler := newTestWebhookHandler(&external.StripeVerifier{}, newMemProductStore())

	body := buildCheckoutEvent(checkout.EventCheckoutCompleted, "evt_1", map[string]string{"productId": "42"})
	sig := signPayload(body, "whsec_other_secret", time.Now())

	rr := doWebhookRequest(handler, body, sig)
	assertErrorCode(t, rr, http.StatusBadRequest, types.ErrCodeWebhookSignatureInvalid)
}

// ---------------------------------------------------------------------------
// Tests: Event Processing
// ---------------------------------------------------------------------------

func TestWebhookHandle_SettlesAndAcks(t *testing.T) {
	store := newMemProductStore(&types.Product{ID: 42})
	handler := newTestWebhookHandler(&mockWebhookVerifier{}, store)

	body := buildCheckoutEvent(checkout.EventCheckoutCompleted, "evt_1", map[string]string{"productId": "42"})
	rr := doWebhookRequest(handler, body, "t=1,v1=ok")

	assertAck(t, rr)
	if !store.products[42].Sold {
		t.Fatal("expected product to be marked sold")
	}
}

func TestWebhookHandle_DuplicateDelivery_AcksBoth(t *testing.T) {
	store := newMemProductStore(&types.Product{ID: 42})
	handler := newTestWebhookHandler(&mockWebhookVerifier{}, store)

	body := buildCheckoutEvent(checkout.EventCheckoutCompleted, "evt_1", map[string]string{"productId": "42"})

	assertAck(t, doWebhookRequest(handler, body, "t=1,v1=ok"))
	assertAck(t, doWebhookRequest(handler, body, "t=1,v1=ok"))

	if !store.products[42].Sold {
		t.Fatal("expected product to remain sold")
	}
}

func TestWebhookHandle_NoProductID_Acks(t *testing.T) {
	handler := newTestWebhookHandler(&mockWebhookVerifier{}, newMemProductStore())

	body := buildCheckoutEvent(checkout.EventCheckoutCompleted, "evt_1", nil)
	rr := doWebhookRequest(handler, body, "t=1,v1=ok")

	assertAck(t, rr)
}

func TestWebhookHandle_UnhandledEventType_Acks(t *testing.T) {
	store := newMemProductStore(&types.Product{ID: 42})
	handler := newTestWebhookHandler(&mockWebhookVerifier{}, store)

	body := buildCheckoutEvent("invoice.paid", "evt_1", map[string]string{"productId": "42"})
	rr := doWebhookRequest(handler, body, "t=1,v1=ok")

	assertAck(t, rr)
	if store.products[42].Sold {
		t.Fatal("unhandled event type must not settle")
	}
}

func TestWebhookHandle_UnknownProduct_AcksToStopRedelivery(t *testing.T) {
	handler := newTestWebhookHandler(&mockWebhookVerifier{}, newMemProductStore())

	body := buildCheckoutEvent(checkout.EventCheckoutCompleted, "evt_1", map[string]string{"productId": "99"})
	rr := doWebhookRequest(handler, body, "t=1,v1=ok")

	assertAck(t, rr)
}

func TestWebhookHandle_StoreFailure_Returns500(t *testing.T) {
	store := newMemProductStore(&types.Product{ID: 42})
	store.markErr = errors.New("connection reset")
	handler := newTestWebhookHandler(&mockWebhookVerifier{}, store)

	body := buildCheckoutEvent(checkout.EventCheckoutCompleted, "evt_1", map[string]string{"productId": "42"})
	rr := doWebhookRequest(handler, body, "t=1,v1=ok")

	assertErrorCode(t, rr, http.StatusInternalServerError, types.ErrCodeInternalDB)
}

func TestWebhookHandle_InvalidJSON(t *testing.T) {
	handler := newTestWebhookHandler(&mockWebhookVerifier{}, newMemProductStore())

	rr := doWebhookRequest(handler, []byte(`{"id": "evt`), "t=1,v1=ok")

	assertErrorCode(t, rr, http.StatusBadRequest, types.ErrCodeValidationInvalidJSON)
}

func TestWebhookHandle_OversizeBody(t *testing.T) {
	handler := newTestWebhookHandler(&mockWebhookVerifier{}, newMemProductStore())

	big := []byte(strings.Repeat("a", maxWebhookBodySize+1))
	rr := doWebhookRequest(handler, big, "t=1,v1=ok")

	assertErrorCode(t, rr, http.StatusBadRequest, types.ErrCodeWebhookBodyMissing)
}
