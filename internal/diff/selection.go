package diff

// MaxSelected is the number of attempts that can be compared at once.
const MaxSelected = 2

// Selection is a bounded, insertion-ordered set of attempt ids. Selecting past
// capacity evicts the earliest selected id.
type Selection struct {
	ids []string
}

// Select adds id. If id is already selected it is left in place.
func (s *Selection) Select(id string) {
	if s.Contains(id) {
		return
	}
	s.ids = append(s.ids, id)
	if len(s.ids) > MaxSelected {
		s.ids = s.ids[len(s.ids)-MaxSelected:]
	}
}

// Toggle selects id, or deselects it when already selected.
func (s *Selection) Toggle(id string) {
	for i, existing := range s.ids {
		if existing == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			return
		}
	}
	s.Select(id)
}

// Contains reports whether id is selected.
func (s *Selection) Contains(id string) bool {
	for _, existing := range s.ids {
		if existing == id {
			return true
		}
	}
	return false
}

// IDs returns a copy of the selected ids, oldest first.
func (s *Selection) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Ready reports whether exactly two attempts are selected.
func (s *Selection) Ready() bool {
	return len(s.ids) == MaxSelected
}

// Clear removes every selected id.
func (s *Selection) Clear() {
	s.ids = nil
}
