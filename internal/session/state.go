// Package session owns the per-browser calculator state and the store
// port its adapters implement.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"loancalc/internal/core"
)

var ErrSessionNotFound = errors.New("session not found")

// State is everything one browser session works with: its ledger and the
// display currency. Handlers receive it explicitly; there is no shared
// ambient state between sessions.
type State struct {
	Ledger   *core.Ledger
	Currency core.Currency
}

// NewState returns an empty ledger with the given display currency.
func NewState(c core.Currency) *State {
	if c == "" {
		c = core.DefaultCurrency
	}
	return &State{Ledger: core.NewLedger(), Currency: c}
}

type stateJSON struct {
	Ledger   core.Snapshot `json:"ledger"`
	Currency core.Currency `json:"currency"`
}

// Encode serializes a state for storage.
func Encode(st *State) ([]byte, error) {
	if st == nil || st.Ledger == nil {
		return nil, errors.New("encode session: nil state")
	}
	return json.Marshal(stateJSON{Ledger: st.Ledger.Snapshot(), Currency: st.Currency})
}

// Decode rebuilds a state previously produced by Encode.
func Decode(data []byte) (*State, error) {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	ledger, err := core.RestoreLedger(raw.Ledger)
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	cur, err := core.ParseCurrency(string(raw.Currency))
	if err != nil {
		cur = core.DefaultCurrency
	}
	return &State{Ledger: ledger, Currency: cur}, nil
}

// Store persists session state for the lifetime of a browser session.
// Load returns ErrSessionNotFound for unknown or expired ids.
type Store interface {
	Load(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, id string, st *State) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id looks like an id issued by NewID.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}
