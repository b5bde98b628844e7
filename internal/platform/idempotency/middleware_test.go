package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Bashir-Janbalat/store-app-be/internal/platform/auth"
)

var fixedTime = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

func newOrderRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{CustomerID: "cus_1", Email: "ada@example.com"}))
}

func TestMiddleware_OptionalKeyPassesThrough(t *testing.T) {
	middleware := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))

	calls := 0
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), newOrderRequest("", `{}`))
	}
	if calls != 2 {
		t.Fatalf("expected handler to run for each request without a key, got %d", calls)
	}
}

func TestMiddleware_RequiredKey(t *testing.T) {
	middleware := Middleware(NewMemoryStore(), WithRequiredKey())
	handler := middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be invoked when header is missing")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest("", `{}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency_key_required")
}

func TestMiddleware_ReplaysStoredResponse(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"orderId":"ord_1"}`))
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, newOrderRequest("abc-123", `{"billingAddressId":"addr_1"}`))
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, newOrderRequest("abc-123", `{"billingAddressId":"addr_1"}`))

	if calls != 1 {
		t.Fatalf("expected handler to be called once, got %d", calls)
	}
	if rr2.Code != http.StatusCreated {
		t.Fatalf("expected replayed status 201, got %d", rr2.Code)
	}
	if rr2.Header().Get(replayHeaderName) != "true" {
		t.Fatalf("expected replay header")
	}
	if rr2.Body.String() != rr1.Body.String() {
		t.Fatalf("expected identical body, got %q vs %q", rr2.Body.String(), rr1.Body.String())
	}
}

func TestMiddleware_ConflictingFingerprintReturnsConflict(t *testing.T) {
	handler := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), newOrderRequest("abc-123", `{"a":1}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest("abc-123", `{"a":2}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddleware_PendingReservationReturnsConflict(t *testing.T) {
	store := &stubStore{reservation: Reservation{State: ReservationStatePending}}
	handler := Middleware(store)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run while another request holds the key")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest("abc-123", `{}`))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddleware_ServerErrorReleasesKey(t *testing.T) {
	store := &stubStore{reservation: Reservation{State: ReservationStateNew}}
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest("abc-123", `{}`))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected handler status to pass through, got %d", rr.Code)
	}
	if store.saved {
		t.Fatalf("expected server error not to be stored")
	}
	if !store.released {
		t.Fatalf("expected reservation to be released")
	}
}

func TestMiddleware_SaveFailureStillReturnsResponse(t *testing.T) {
	store := &stubStore{reservation: Reservation{State: ReservationStateNew}, saveErr: errors.New("boom")}
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest("abc-123", `{}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if !store.released {
		t.Fatalf("expected reservation to be released after save failure")
	}
}

func TestDeduper_RunsOnce(t *testing.T) {
	deduper := NewDeduper(NewMemoryStore(), time.Hour, func() time.Time { return fixedTime })
	calls := 0
	work := func(context.Context) error {
		calls++
		return nil
	}

	ran, err := deduper.Once(context.Background(), "stripe:evt_1", work)
	if err != nil || !ran {
		t.Fatalf("expected first call to run, got ran=%v err=%v", ran, err)
	}
	ran, err = deduper.Once(context.Background(), "stripe:evt_1", work)
	if err != nil || ran {
		t.Fatalf("expected replay to be skipped, got ran=%v err=%v", ran, err)
	}
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
}

func TestDeduper_FailureAllowsRetry(t *testing.T) {
	deduper := NewDeduper(NewMemoryStore(), time.Hour, func() time.Time { return fixedTime })
	failing := errors.New("downstream")

	if _, err := deduper.Once(context.Background(), "stripe:evt_2", func(context.Context) error { return failing }); !errors.Is(err, failing) {
		t.Fatalf("expected failure to surface, got %v", err)
	}
	ran, err := deduper.Once(context.Background(), "stripe:evt_2", func(context.Context) error { return nil })
	if err != nil || !ran {
		t.Fatalf("expected retry to run, got ran=%v err=%v", ran, err)
	}
}

type stubStore struct {
	reservation Reservation
	saveErr     error
	saved       bool
	released    bool
}

func (s *stubStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Reservation, error) {
	return s.reservation, nil
}

func (s *stubStore) SaveResponse(context.Context, string, string, Response, time.Time, time.Duration) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = true
	return nil
}

func (s *stubStore) Release(context.Context, string, string) error {
	s.released = true
	return nil
}

func (s *stubStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func assertErrorResponse(t *testing.T, body []byte, expected string) {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if payload["error"] != expected {
		t.Fatalf("expected error code %s, got %v", expected, payload["error"])
	}
}
