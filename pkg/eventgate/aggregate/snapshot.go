package aggregate

// Snapshot records the pending-event count of each entity before an
// operation runs, so the entities it changed can be found afterwards.
type Snapshot struct {
	set    *Set
	counts []int
}

// TakeSnapshot records the current pending count of every entity.
func TakeSnapshot(entities []Entity) *Snapshot {
	s := &Snapshot{set: NewSet()}
	for _, e := range entities {
		if _, ok := identify(e); !ok {
			continue
		}
		if s.set.Add(e) {
			s.counts = append(s.counts, Count(e))
		}
	}
	return s
}

// Count returns the recorded count for e and whether e was recorded.
func (s *Snapshot) Count(e Entity) (int, bool) {
	if s == nil || IsNil(e) {
		return 0, false
	}
	id, ok := identify(e)
	if !ok {
		return 0, false
	}
	i, exists := s.set.index[id]
	if !exists {
		return 0, false
	}
	return s.counts[i], true
}

// Advanced reports whether e should be treated as changed: it currently holds
// events and either was not recorded or its count grew.
func (s *Snapshot) Advanced(e Entity) bool {
	if IsNil(e) || !e.HasPendingEvents() {
		return false
	}
	before, ok := s.Count(e)
	if !ok {
		return true
	}
	return Count(e) > before
}

// Len returns the number of recorded entities.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return s.set.Len()
}
