package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"loancalc/internal/core"
	"loancalc/internal/services"
	"loancalc/internal/session"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []core.Comparison
	err       error
}

func (f *fakePublisher) PublishComparisonExport(_ context.Context, _ string, cmp core.Comparison) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, cmp)
	return nil
}

// downCalculator only answers Ping; readiness checks use nothing else.
type downCalculator struct{ Calculator }

func (downCalculator) Ping(context.Context) error { return errors.New("store unreachable") }

func newTestServer(t *testing.T, pub services.ExportPublisher, opts Options) *Server {
	t.Helper()
	store := session.NewMemoryStore(100, time.Hour)
	svc := services.NewCalculatorService(store, pub, core.USD)
	if opts.RateLimitPerMinute == 0 {
		opts.RateLimitPerMinute = 1000
	}
	srv := NewServer(":0", svc, opts)
	t.Cleanup(func() { srv.rateLimiter.Stop() })
	return srv
}

// browser replays the session cookie like a real client would.
type browser struct {
	srv    *Server
	cookie *http.Cookie
}

func (b *browser) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	rr := httptest.NewRecorder()
	b.srv.Handler.ServeHTTP(rr, req)
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookieName {
			b.cookie = c
		}
	}
	return rr
}

func (b *browser) update(id, field, value string) *httptest.ResponseRecorder {
	return b.do(http.MethodPost, "/calculators/"+id, url.Values{"field": {field}, "value": {value}})
}

func TestIndexSetsSessionCookie(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	b := &browser{srv: srv}

	rr := b.do(http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Repayment Ledger", "No loans yet", `id="notice"`, `<option value="USD" selected>`} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if b.cookie == nil || !session.ValidID(b.cookie.Value) || !b.cookie.HttpOnly {
		t.Fatalf("expected a valid HttpOnly session cookie, got %+v", b.cookie)
	}
	if rr.Header().Get("Content-Security-Policy") == "" || rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected security and trace headers, got %v", rr.Header())
	}

	// the cookie is reused, not reissued
	first := b.cookie.Value
	rr = b.do(http.MethodGet, "/", nil)
	if len(rr.Result().Cookies()) != 0 || b.cookie.Value != first {
		t.Fatalf("session cookie should be stable")
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	down := NewServer(":0", downCalculator{}, Options{})
	t.Cleanup(func() { down.rateLimiter.Stop() })
	rr := httptest.NewRecorder()
	down.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the store is down, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "store unreachable") {
		t.Fatalf("readyz body should name the failure: %s", rr.Body.String())
	}
}

func TestLedgerScenario(t *testing.T) {
	b := &browser{srv: newTestServer(t, nil, Options{})}

	rr := b.do(http.MethodPost, "/calculators", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("add status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if !strings.Contains(body, `id="entry-1"`) || !strings.Contains(body, "$13,500.00") {
		t.Fatalf("first entry not rendered: %s", body)
	}
	if strings.Contains(body, "Lowest total repayment") {
		t.Fatalf("a single entry must not be highlighted")
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "ledger:changed") {
		t.Fatalf("missing ledger:changed trigger: %q", rr.Header().Get("HX-Trigger"))
	}

	rr = b.do(http.MethodPost, "/calculators", nil)
	if !strings.Contains(rr.Body.String(), `class="summary cheapest" id="summary-1"`) {
		t.Fatalf("tie should mark the earliest entry: %s", rr.Body.String())
	}

	rr = b.update("2", "loanAmount", "20000")
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	body = rr.Body.String()
	for _, want := range []string{
		`class="summary cheapest" id="summary-1" hx-swap-oob="true"`,
		`class="summary" id="summary-2" hx-swap-oob="true"`,
		"$27,000.00",
		`id="error-2-loanAmount" hx-swap-oob="true"></p>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("update response missing %q", want)
		}
	}
	if strings.Contains(body, `id="error-1-`) || strings.Contains(body, "<input") {
		t.Fatalf("update must only refresh summaries and the edited entry's errors: %s", body)
	}

	rr = b.update("1", "loanAmount", "40000")
	body = rr.Body.String()
	if !strings.Contains(body, "$46,000.00") || !strings.Contains(body, `class="summary cheapest" id="summary-2"`) {
		t.Fatalf("minimum should flip to entry 2: %s", body)
	}

	rr = b.update("1", "loanAmount", "500")
	body = rr.Body.String()
	if rr.Code != http.StatusOK {
		t.Fatalf("out-of-range values are recorded, not rejected; status=%d", rr.Code)
	}
	if !strings.Contains(body, "Loan amount must be between 1000 and 100000") {
		t.Fatalf("missing validation message: %s", body)
	}
	if !strings.Contains(body, `<dd class="interest">-</dd>`) {
		t.Fatalf("invalid entry should show placeholders: %s", body)
	}
	if strings.Contains(body, "cheapest") {
		t.Fatalf("one valid entry must not be highlighted: %s", body)
	}

	rr = b.do(http.MethodDelete, "/calculators/1/delete", nil)
	body = rr.Body.String()
	if rr.Code != http.StatusOK || strings.Contains(body, `id="entry-1"`) || !strings.Contains(body, `id="entry-2"`) {
		t.Fatalf("remove failed: status=%d body=%s", rr.Code, body)
	}

	rr = b.do(http.MethodPost, "/calculators", nil)
	if !strings.Contains(rr.Body.String(), `id="entry-3"`) {
		t.Fatalf("ids must not be reused after removal: %s", rr.Body.String())
	}

	// removal through the POST fallback
	rr = b.do(http.MethodPost, "/calculators/3/delete", nil)
	if rr.Code != http.StatusOK || strings.Contains(rr.Body.String(), `id="entry-3"`) {
		t.Fatalf("POST remove failed: status=%d", rr.Code)
	}
}

func TestUpdateFieldInputHandling(t *testing.T) {
	b := &browser{srv: newTestServer(t, nil, Options{})}
	b.do(http.MethodPost, "/calculators", nil)

	tests := []struct {
		name   string
		id     string
		field  string
		value  string
		status int
	}{
		{"empty input is ignored", "1", "loanAmount", "", http.StatusNoContent},
		{"non numeric", "1", "loanAmount", "abc", http.StatusBadRequest},
		{"not a number", "1", "loanAmount", "NaN", http.StatusBadRequest},
		{"infinite", "1", "annualInterestRate", "Inf", http.StatusBadRequest},
		{"unknown field", "1", "principal", "5", http.StatusUnprocessableEntity},
		{"missing entry", "99", "loanAmount", "2000", http.StatusNotFound},
		{"bad id", "x", "loanAmount", "2000", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := b.update(tt.id, tt.field, tt.value)
			if rr.Code != tt.status {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.status, rr.Body.String())
			}
			if tt.status >= 400 && rr.Header().Get("HX-Retarget") != "#notice" {
				t.Fatalf("errors should be retargeted to the notice area")
			}
		})
	}

	rr := b.do(http.MethodGet, "/ui/ledger", nil)
	if !strings.Contains(rr.Body.String(), `value="10000"`) {
		t.Fatalf("rejected input must keep the previous value: %s", rr.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	b := &browser{srv: newTestServer(t, nil, Options{})}
	tests := []struct {
		method, path, allow string
	}{
		{http.MethodGet, "/calculators", "POST"},
		{http.MethodGet, "/calculators/1/delete", "DELETE, POST"},
		{http.MethodPut, "/currency", "POST"},
		{http.MethodPost, "/ui/ledger", "GET, HEAD"},
	}
	for _, tt := range tests {
		rr := b.do(tt.method, tt.path, nil)
		if rr.Code != http.StatusMethodNotAllowed || rr.Header().Get("Allow") != tt.allow {
			t.Errorf("%s %s: status=%d allow=%q", tt.method, tt.path, rr.Code, rr.Header().Get("Allow"))
		}
	}

	if rr := b.do(http.MethodGet, "/nope", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path status=%d", rr.Code)
	}
}

func TestSetCurrency(t *testing.T) {
	b := &browser{srv: newTestServer(t, nil, Options{})}
	b.do(http.MethodPost, "/calculators", nil)

	rr := b.do(http.MethodPost, "/currency", url.Values{"currency": {"eur"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("currency status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "€13,500.00") || !strings.Contains(body, `<option value="EUR" selected>`) {
		t.Fatalf("currency not applied: %s", body)
	}

	rr = b.do(http.MethodPost, "/currency", url.Values{"currency": {"GBP"}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown currency, got %d", rr.Code)
	}

	rr = b.do(http.MethodGet, "/ui/ledger", nil)
	if !strings.Contains(rr.Body.String(), "€1,500.00") {
		t.Fatalf("currency should persist in the session: %s", rr.Body.String())
	}
}

func TestExport(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		b := &browser{srv: newTestServer(t, nil, Options{})}
		b.do(http.MethodPost, "/calculators", nil)
		rr := b.do(http.MethodPost, "/export", nil)
		if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "not configured") {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		if strings.Contains(rr.Body.String(), "Export comparison") {
			t.Fatalf("notice should not re-render the ledger")
		}
	})

	t.Run("nothing to export", func(t *testing.T) {
		b := &browser{srv: newTestServer(t, &fakePublisher{}, Options{})}
		rr := b.do(http.MethodPost, "/export", nil)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rr.Code)
		}
	})

	t.Run("publishes valid entries", func(t *testing.T) {
		pub := &fakePublisher{}
		b := &browser{srv: newTestServer(t, pub, Options{})}
		rr := b.do(http.MethodPost, "/calculators", nil)
		if !strings.Contains(rr.Body.String(), "Export comparison") {
			t.Fatalf("export button should be shown when enabled")
		}
		b.do(http.MethodPost, "/calculators", nil)
		b.update("2", "loanTerm", "31")

		rr = b.do(http.MethodPost, "/export", nil)
		if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Comparison of 1 loan queued") {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		if !strings.Contains(rr.Header().Get("HX-Trigger"), "comparison:exported") {
			t.Fatalf("missing export trigger")
		}
		if len(pub.published) != 1 || len(pub.published[0].Lines) != 1 || pub.published[0].Lines[0].ID != 1 {
			t.Fatalf("unexpected published comparison: %+v", pub.published)
		}
	})

	t.Run("publisher failure", func(t *testing.T) {
		b := &browser{srv: newTestServer(t, &fakePublisher{err: errors.New("broker down")}, Options{})}
		b.do(http.MethodPost, "/calculators", nil)
		rr := b.do(http.MethodPost, "/export", nil)
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rr.Code)
		}
	})
}

func TestSessionsAreIsolated(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	alice := &browser{srv: srv}
	bob := &browser{srv: srv}

	alice.do(http.MethodPost, "/calculators", nil)
	alice.do(http.MethodPost, "/calculators", nil)

	rr := bob.do(http.MethodGet, "/ui/ledger", nil)
	if !strings.Contains(rr.Body.String(), "No loans yet") {
		t.Fatalf("second browser should start empty: %s", rr.Body.String())
	}
	rr = bob.do(http.MethodPost, "/calculators", nil)
	if !strings.Contains(rr.Body.String(), `id="entry-1"`) {
		t.Fatalf("ids are per session: %s", rr.Body.String())
	}
}

func TestMalformedCookieIsReplaced(t *testing.T) {
	b := &browser{srv: newTestServer(t, nil, Options{}), cookie: &http.Cookie{Name: sessionCookieName, Value: "not-a-uuid"}}
	b.do(http.MethodGet, "/", nil)
	if !session.ValidID(b.cookie.Value) {
		t.Fatalf("expected a fresh session id, got %q", b.cookie.Value)
	}
}

func TestRateLimitAppliesToMutationsOnly(t *testing.T) {
	b := &browser{srv: newTestServer(t, nil, Options{RateLimitPerMinute: 2})}

	for i := 0; i < 2; i++ {
		if rr := b.do(http.MethodPost, "/calculators", nil); rr.Code != http.StatusOK {
			t.Fatalf("request %d status=%d", i, rr.Code)
		}
	}
	rr := b.do(http.MethodPost, "/calculators", nil)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", rr.Code)
	}
	for i := 0; i < 3; i++ {
		if rr := b.do(http.MethodGet, "/ui/ledger", nil); rr.Code != http.StatusOK {
			t.Fatalf("reads must not be limited, got %d", rr.Code)
		}
	}
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	for _, path := range []string{"/static/app.css", "/static/app.js"} {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if !strings.Contains(rr.Header().Get("Cache-Control"), "max-age=3600") {
			t.Fatalf("%s missing cache header", path)
		}
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
