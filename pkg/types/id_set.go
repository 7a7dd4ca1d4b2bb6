package types

// IDSet is a deduplicated set of identifiers.
type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s IDSet) Add(id string) {
	if id != "" {
		s[id] = struct{}{}
	}
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Slice returns the members in no particular order.
func (s IDSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}
