package services

import (
	"context"
	"errors"
	"fmt"
	"hash/maphash"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"loancalc/internal/core"
	"loancalc/internal/session"
)

var (
	// ErrExportDisabled is returned by Export when no publisher is configured.
	ErrExportDisabled = errors.New("comparison export is disabled")
	// ErrNothingToExport is returned by Export when no entry is valid.
	ErrNothingToExport = errors.New("no valid entries to export")
)

// ExportPublisher sends a finished comparison to the export pipeline.
type ExportPublisher interface {
	PublishComparisonExport(ctx context.Context, sessionID string, cmp core.Comparison) error
}

// LedgerView is a read-only snapshot of one session, ready for rendering.
type LedgerView struct {
	SessionID     string
	Currency      core.Currency
	Rows          []core.Row
	MinimumID     int
	ExportEnabled bool
}

// HasMinimum reports whether a minimum-repayment entry is marked.
func (v LedgerView) HasMinimum() bool { return v.MinimumID != 0 }

// lockStripes bounds the number of mutexes guarding session mutations.
const lockStripes = 64

// CalculatorService routes ledger operations for a session id into that
// session's state and writes the result back to the store.
type CalculatorService struct {
	store           session.Store
	publisher       ExportPublisher
	defaultCurrency core.Currency
	now             func() time.Time

	seed  maphash.Seed
	locks [lockStripes]sync.Mutex
	loads singleflight.Group
}

// NewCalculatorService wires a store and an optional publisher. A nil
// publisher disables comparison export.
func NewCalculatorService(store session.Store, publisher ExportPublisher, defaultCurrency core.Currency) *CalculatorService {
	if defaultCurrency == "" {
		defaultCurrency = core.DefaultCurrency
	}
	return &CalculatorService{
		store:           store,
		publisher:       publisher,
		defaultCurrency: defaultCurrency,
		now:             time.Now,
		seed:            maphash.MakeSeed(),
	}
}

// ExportEnabled reports whether Export can publish.
func (s *CalculatorService) ExportEnabled() bool { return s.publisher != nil }

// View returns the current state of a session, creating an empty one for
// an unknown id. Concurrent views of the same session share one load.
func (s *CalculatorService) View(ctx context.Context, sid string) (LedgerView, error) {
	v, err, _ := s.loads.Do("view:"+sid, func() (any, error) {
		st, err := s.load(ctx, sid)
		if err != nil {
			return nil, err
		}
		return s.view(sid, st), nil
	})
	if err != nil {
		return LedgerView{}, err
	}
	return v.(LedgerView), nil
}

// AddEntry appends an entry with default values.
func (s *CalculatorService) AddEntry(ctx context.Context, sid string) (core.Entry, LedgerView, error) {
	var added core.Entry
	view, err := s.mutate(ctx, sid, "add", func(st *session.State) error {
		added = st.Ledger.Add()
		return nil
	})
	if err != nil {
		return core.Entry{}, LedgerView{}, err
	}
	return added, view, nil
}

// RemoveEntry deletes an entry and its validation state.
func (s *CalculatorService) RemoveEntry(ctx context.Context, sid string, id int) (LedgerView, error) {
	return s.mutate(ctx, sid, "remove", func(st *session.State) error {
		return st.Ledger.Remove(id)
	})
}

// UpdateField sets one field of an entry. An out-of-range value is kept and
// recorded as a field error; it is not returned as an error.
func (s *CalculatorService) UpdateField(ctx context.Context, sid string, id int, f core.Field, v float64) (LedgerView, error) {
	var msg string
	view, err := s.mutate(ctx, sid, "update", func(st *session.State) error {
		if _, err := st.Ledger.Update(id, f, v); err != nil {
			return err
		}
		msg = st.Ledger.FieldErrors(id)[f]
		return nil
	})
	if err != nil {
		return LedgerView{}, err
	}
	if msg != "" {
		slog.InfoContext(ctx, "Field rejected", "session_id", sid, "entry_id", id, "field", string(f), "value", v, "reason", msg)
	}
	return view, nil
}

// SetCurrency changes the display currency of a session.
func (s *CalculatorService) SetCurrency(ctx context.Context, sid string, c core.Currency) (LedgerView, error) {
	if _, err := core.ParseCurrency(string(c)); err != nil {
		return LedgerView{}, err
	}
	return s.mutate(ctx, sid, "currency", func(st *session.State) error {
		st.Currency = c
		return nil
	})
}

// Export publishes a comparison of the session's valid entries.
func (s *CalculatorService) Export(ctx context.Context, sid string) (core.Comparison, error) {
	if s.publisher == nil {
		return core.Comparison{}, ErrExportDisabled
	}

	unlock := s.lock(sid)
	st, err := s.load(ctx, sid)
	var cmp core.Comparison
	if err == nil {
		cmp = st.Ledger.Compare(st.Currency, s.now())
	}
	unlock()
	if err != nil {
		return core.Comparison{}, err
	}

	if len(cmp.Lines) == 0 {
		return core.Comparison{}, ErrNothingToExport
	}
	if err := s.publisher.PublishComparisonExport(ctx, sid, cmp); err != nil {
		slog.ErrorContext(ctx, "Failed to publish comparison export", "session_id", sid, "error", err)
		return core.Comparison{}, fmt.Errorf("export comparison: %w", err)
	}
	return cmp, nil
}

// Ping checks the session store.
func (s *CalculatorService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *CalculatorService) mutate(ctx context.Context, sid, op string, fn func(*session.State) error) (LedgerView, error) {
	unlock := s.lock(sid)
	defer unlock()

	st, err := s.load(ctx, sid)
	if err != nil {
		return LedgerView{}, err
	}
	if err := fn(st); err != nil {
		return LedgerView{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.Save(ctx, sid, st); err != nil {
		slog.ErrorContext(ctx, "Failed to save session", "session_id", sid, "operation", op, "error", err)
		return LedgerView{}, fmt.Errorf("%s: %w", op, err)
	}
	return s.view(sid, st), nil
}

// load returns the stored state or a fresh one for an unknown id.
func (s *CalculatorService) load(ctx context.Context, sid string) (*session.State, error) {
	st, err := s.store.Load(ctx, sid)
	if errors.Is(err, session.ErrSessionNotFound) {
		return session.NewState(s.defaultCurrency), nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load session", "session_id", sid, "error", err)
		return nil, err
	}
	return st, nil
}

// lock serializes mutations of one session. Sessions hashing to the same
// stripe also wait on each other.
func (s *CalculatorService) lock(sid string) (unlock func()) {
	mu := &s.locks[maphash.String(s.seed, sid)%lockStripes]
	mu.Lock()
	return mu.Unlock
}

func (s *CalculatorService) view(sid string, st *session.State) LedgerView {
	v := LedgerView{
		SessionID:     sid,
		Currency:      st.Currency,
		Rows:          st.Ledger.Rows(),
		ExportEnabled: s.ExportEnabled(),
	}
	if id, ok := st.Ledger.Minimum(); ok {
		v.MinimumID = id
	}
	return v
}
