package domain

import (
	"sort"
)

// MonthlyEntryStore is the in-memory ledger of cargo entries for one editing
// session, keyed by (month, year). It is loaded once from persistence and
// then mutated only by the owning session; cross-session consistency is the
// job of the server-side version checks, not this store.
//
// Example:
//
//	store := NewMonthlyEntryStore(entries)
//	rows := store.EntriesFor(MonthKey{Month: 1, Year: 2027})
type MonthlyEntryStore struct {
	entries []*MonthlyEntry
	byKey   map[MonthKey][]*MonthlyEntry
}

func NewMonthlyEntryStore(entries []*MonthlyEntry) *MonthlyEntryStore {
	s := &MonthlyEntryStore{
		byKey: make(map[MonthKey][]*MonthlyEntry),
	}
	for _, e := range entries {
		if e == nil {
			continue
		}
		s.add(e)
	}
	s.sortAll()
	return s
}

func (s *MonthlyEntryStore) add(e *MonthlyEntry) {
	s.entries = append(s.entries, e)
	s.byKey[e.Key()] = append(s.byKey[e.Key()], e)
}

func (s *MonthlyEntryStore) sortAll() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		a, b := s.entries[i], s.entries[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})
}

// Add appends a new entry (typically an unsaved draft row).
func (s *MonthlyEntryStore) Add(e *MonthlyEntry) {
	s.add(e)
	s.sortAll()
}

// Remove drops an entry from the buffer. Returns false if it was not held.
func (s *MonthlyEntryStore) Remove(e *MonthlyEntry) bool {
	removed := false
	for i, held := range s.entries {
		if held == e {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		return false
	}

	key := e.Key()
	rows := s.byKey[key]
	for i, held := range rows {
		if held == e {
			s.byKey[key] = append(rows[:i], rows[i+1:]...)
			break
		}
	}
	return true
}

// Rekey moves an entry to a new (month, year) slot after a relocation. The
// entry's Month/Year must already be updated.
func (s *MonthlyEntryStore) Rekey(e *MonthlyEntry, old MonthKey) {
	rows := s.byKey[old]
	for i, held := range rows {
		if held == e {
			s.byKey[old] = append(rows[:i], rows[i+1:]...)
			break
		}
	}
	s.byKey[e.Key()] = append(s.byKey[e.Key()], e)
	s.sortAll()
}

// EntriesFor returns the entries scheduled in one month, in stable order.
func (s *MonthlyEntryStore) EntriesFor(key MonthKey) []*MonthlyEntry {
	return s.byKey[key]
}

// All returns every entry in chronological order. The slice is shared; do
// not mutate it.
func (s *MonthlyEntryStore) All() []*MonthlyEntry {
	return s.entries
}

// FindByID returns the persisted entry with the given plan id. For combi
// groups it also matches member plan ids held in slots.
func (s *MonthlyEntryStore) FindByID(id string) *MonthlyEntry {
	if id == "" {
		return nil
	}
	for _, e := range s.entries {
		if e.ID == id {
			return e
		}
		for _, slot := range e.Slots {
			if slot.PlanID == id {
				return e
			}
		}
	}
	return nil
}

// FindByGroup returns the logical entry for a combi group id.
func (s *MonthlyEntryStore) FindByGroup(groupID string) *MonthlyEntry {
	if groupID == "" {
		return nil
	}
	for _, e := range s.entries {
		if e.CombiGroupID == groupID {
			return e
		}
	}
	return nil
}

// IndexOf returns the position of an entry in chronological order, -1 when
// absent. The autosave coordinator records this so a flush can report which
// visible row it belonged to.
func (s *MonthlyEntryStore) IndexOf(e *MonthlyEntry) int {
	for i, held := range s.entries {
		if held == e {
			return i
		}
	}
	return -1
}

// PersistedIDs returns all durable plan ids in the buffer, including combi
// member ids.
func (s *MonthlyEntryStore) PersistedIDs() []string {
	var ids []string
	for _, e := range s.entries {
		if e.IsCombi {
			for _, slot := range e.Slots {
				if slot.PlanID != "" {
					ids = append(ids, slot.PlanID)
				}
			}
			continue
		}
		if e.ID != "" {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// Len returns the number of logical rows in the buffer.
func (s *MonthlyEntryStore) Len() int {
	return len(s.entries)
}
