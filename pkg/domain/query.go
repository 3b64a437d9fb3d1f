package domain

// Query is the type-erased fetch request understood by persistence contexts.
// New is required whenever records have to be materialized: fetching records,
// or filtering and sorting through Match and Less.
type Query struct {
	Entity string
	New    func() Record
	Match  func(Record) bool
	Less   func(a, b Record) bool
	Offset int
	// Limit caps the number of results; zero means unlimited.
	Limit int
}

// NeedsRecords reports whether evaluating the query requires decoded records.
func (q Query) NeedsRecords() bool {
	return q.Match != nil || q.Less != nil
}

// Window applies Offset and Limit to n matching results and returns the
// resulting half-open range.
func (q Query) Window(n int) (int, int) {
	start := q.Offset
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := n
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return start, end
}

// Descriptor is the typed form of Query for a record type P.
type Descriptor[P Record] struct {
	Predicate func(P) bool
	SortBy    func(a, b P) bool
	Offset    int
	Limit     int
}

// QueryFor converts a typed descriptor into a Query for the entity declared by P.
func QueryFor[E any, P RecordPtr[E]](d Descriptor[P]) Query {
	q := Query{
		Entity: EntityOf[E, P](),
		New:    func() Record { return P(new(E)) },
		Offset: d.Offset,
		Limit:  d.Limit,
	}
	if pred := d.Predicate; pred != nil {
		q.Match = func(r Record) bool {
			p, ok := r.(P)
			return ok && pred(p)
		}
	}
	if less := d.SortBy; less != nil {
		q.Less = func(a, b Record) bool {
			pa, okA := a.(P)
			pb, okB := b.(P)
			return okA && okB && less(pa, pb)
		}
	}
	return q
}

// All returns a descriptor matching every record of type P.
func All[P Record]() Descriptor[P] { return Descriptor[P]{} }
