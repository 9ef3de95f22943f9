// Package memory is an in-process ComparisonWriter used when no
// spreadsheet is configured and in tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"loancalc/internal/core"
	ports "loancalc/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows [][]any
}

var _ ports.ComparisonWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendComparison stores the rows and returns a synthetic range reference.
func (s *Store) AppendComparison(_ context.Context, sessionID string, cmp core.Comparison) (string, error) {
	if sessionID == "" {
		return "", errors.New("append comparison: empty session id")
	}
	rows := ports.ComparisonRows(sessionID, cmp)

	s.mu.Lock()
	defer s.mu.Unlock()
	first := len(s.rows) + 1
	s.rows = append(s.rows, rows...)
	return fmt.Sprintf("mem:%d-%d", first, len(s.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}
