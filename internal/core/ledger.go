package core

import "fmt"

// Ledger owns the ordered set of loan entries and the minimum-repayment
// marker. It is not safe for concurrent use; callers serialize access.
type Ledger struct {
	entries []Entry
	nextID  int
	errors  map[int]FieldErrors
	figures map[int]Repayment
	minimum int
}

// Row is the read model for one entry.
type Row struct {
	Entry
	Repayment
	Errors   FieldErrors
	Valid    bool
	Cheapest bool
}

// NewLedger returns an empty ledger whose first entry will get id 1.
func NewLedger() *Ledger {
	return &Ledger{
		nextID:  1,
		errors:  make(map[int]FieldErrors),
		figures: make(map[int]Repayment),
	}
}

// Add appends an entry with default values and the next id. Ids come from
// a counter that never goes backwards, so they are not reused after removal.
func (l *Ledger) Add() Entry {
	e := NewEntry(l.nextID)
	l.nextID++
	l.entries = append(l.entries, e)
	l.errors[e.ID] = FieldErrors{}
	l.figures[e.ID] = Calculate(e)
	l.recomputeMinimum()
	return e
}

// Remove deletes the entry with the given id along with its validation state.
func (l *Ledger) Remove(id int) error {
	idx := l.index(id)
	if idx < 0 {
		return fmt.Errorf("remove entry %d: %w", id, ErrEntryNotFound)
	}
	l.entries = append(l.entries[:idx], l.entries[idx+1:]...)
	delete(l.errors, id)
	delete(l.figures, id)
	l.recomputeMinimum()
	return nil
}

// Update replaces one field of an entry, re-validates that field and
// refreshes the entry's figures. The minimum is recomputed when the total
// repayment or the validity of the entry changed.
func (l *Ledger) Update(id int, f Field, v float64) (Entry, error) {
	if _, ok := fieldBounds[f]; !ok {
		return Entry{}, fmt.Errorf("update entry %d: %w: %q", id, ErrUnknownField, f)
	}
	idx := l.index(id)
	if idx < 0 {
		return Entry{}, fmt.Errorf("update entry %d: %w", id, ErrEntryNotFound)
	}

	e := &l.entries[idx]
	wasValid := len(l.errors[id]) == 0
	previous := l.figures[id]

	e.set(f, v)
	l.errors[id].record(f, v)
	current := Calculate(*e)
	l.figures[id] = current

	if current.TotalRepayment != previous.TotalRepayment || wasValid != (len(l.errors[id]) == 0) {
		l.recomputeMinimum()
	}
	return *e, nil
}

// Minimum returns the id of the valid entry with the smallest total
// repayment. ok is false when fewer than two entries are valid.
func (l *Ledger) Minimum() (id int, ok bool) {
	return l.minimum, l.minimum != 0
}

// Len returns the number of entries.
func (l *Ledger) Len() int { return len(l.entries) }

// Entries returns a copy of the entries in insertion order.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Entry returns the entry with the given id.
func (l *Ledger) Entry(id int) (Entry, bool) {
	idx := l.index(id)
	if idx < 0 {
		return Entry{}, false
	}
	return l.entries[idx], true
}

// Figures returns the last computed figures of an entry.
func (l *Ledger) Figures(id int) (Repayment, bool) {
	r, ok := l.figures[id]
	return r, ok
}

// FieldErrors returns a copy of the recorded validation messages of an entry.
func (l *Ledger) FieldErrors(id int) FieldErrors {
	out := FieldErrors{}
	for f, msg := range l.errors[id] {
		out[f] = msg
	}
	return out
}

// Valid reports whether the entry has no recorded validation failure.
func (l *Ledger) Valid(id int) bool {
	_, exists := l.errors[id]
	return exists && len(l.errors[id]) == 0
}

// Rows returns the read model of every entry in insertion order.
func (l *Ledger) Rows() []Row {
	rows := make([]Row, 0, len(l.entries))
	for _, e := range l.entries {
		rows = append(rows, Row{
			Entry:     e,
			Repayment: l.figures[e.ID],
			Errors:    l.FieldErrors(e.ID),
			Valid:     len(l.errors[e.ID]) == 0,
			Cheapest:  l.minimum != 0 && l.minimum == e.ID,
		})
	}
	return rows
}

// recomputeMinimum scans all valid entries left to right; a strictly
// smaller repayment replaces the candidate so the earliest entry wins ties.
func (l *Ledger) recomputeMinimum() {
	l.minimum = 0
	best, valid := 0, 0
	var bestAmount float64
	for _, e := range l.entries {
		if len(l.errors[e.ID]) != 0 {
			continue
		}
		amount := l.figures[e.ID].TotalRepayment
		if valid == 0 || amount < bestAmount {
			best, bestAmount = e.ID, amount
		}
		valid++
	}
	if valid >= 2 {
		l.minimum = best
	}
}

func (l *Ledger) index(id int) int {
	for i, e := range l.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Snapshot is the serializable form of a ledger. Validation messages and
// figures are derived from the entries on restore.
type Snapshot struct {
	Entries []Entry `json:"entries"`
	NextID  int     `json:"nextId"`
}

// Snapshot captures the ledger's entries and id counter.
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{Entries: l.Entries(), NextID: l.nextID}
}

// RestoreLedger rebuilds a ledger from a snapshot.
func RestoreLedger(s Snapshot) (*Ledger, error) {
	l := NewLedger()
	seen := make(map[int]struct{}, len(s.Entries))
	maxID := 0
	for _, e := range s.Entries {
		if e.ID <= 0 {
			return nil, fmt.Errorf("restore ledger: invalid entry id %d", e.ID)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("restore ledger: duplicate entry id %d", e.ID)
		}
		seen[e.ID] = struct{}{}
		if e.ID > maxID {
			maxID = e.ID
		}
		l.entries = append(l.entries, e)
		l.errors[e.ID] = ValidateEntry(e)
		l.figures[e.ID] = Calculate(e)
	}
	l.nextID = s.NextID
	if l.nextID <= maxID {
		l.nextID = maxID + 1
	}
	l.recomputeMinimum()
	return l, nil
}
