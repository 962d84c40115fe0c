package contract

// Policy says how a field takes part in structural equality.
type Policy int

const (
	// ByValue compares scalars directly.
	ByValue Policy = iota
	// Ordered compares collections element by element in declaration order.
	Ordered
	// Unordered compares collections as multisets, ignoring declaration order.
	Unordered
)

func (p Policy) String() string {
	switch p {
	case ByValue:
		return "value"
	case Ordered:
		return "ordered"
	case Unordered:
		return "unordered"
	}
	return "unknown"
}

type fieldRule[T any] struct {
	field  string
	policy Policy
	equal  func(a, b T) bool
}

// equalityTable lists every field of a node type that takes part in Equal.
// A field missing from the table is ignored by equality.
type equalityTable[T any] []fieldRule[T]

func (t equalityTable[T]) equal(a, b T) bool {
	for _, r := range t {
		if !r.equal(a, b) {
			return false
		}
	}
	return true
}

func (t equalityTable[T]) policy(field string) (Policy, bool) {
	for _, r := range t {
		if r.field == field {
			return r.policy, true
		}
	}
	return 0, false
}

func (t equalityTable[T]) fields() []string {
	out := make([]string, len(t))
	for i, r := range t {
		out[i] = r.field
	}
	return out
}

// FieldPolicy reports the equality policy declared for field on the given
// node type ("job", "task", or a task type such as "exec").
func FieldPolicy(node, field string) (Policy, bool) {
	switch node {
	case "job":
		return jobEquality.policy(field)
	case "task":
		return taskEquality.policy(field)
	case TypeExec:
		return execEquality.policy(field)
	case TypeRake, TypeAnt, TypeNant:
		return buildEquality.policy(field)
	case TypeFetch:
		return fetchEquality.policy(field)
	}
	return 0, false
}

// Fields lists the fields compared for a node type, in comparison order.
func Fields(node string) []string {
	switch node {
	case "job":
		return jobEquality.fields()
	case "task":
		return taskEquality.fields()
	case TypeExec:
		return execEquality.fields()
	case TypeRake, TypeAnt, TypeNant:
		return buildEquality.fields()
	case TypeFetch:
		return fetchEquality.fields()
	}
	return nil
}

func orderedEqual[T any](a, b []T, eq func(x, y T) bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !eq(a[i], b[i]) {
			return false
		}
	}
	return true
}

// unorderedEqual reports whether a and b hold the same elements with the
// same cardinalities. nil and empty are equal.
func unorderedEqual[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[T]int, len(a))
	for _, v := range a {
		counts[v]++
	}
	for _, v := range b {
		if counts[v] == 0 {
			return false
		}
		counts[v]--
	}
	return true
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
