package model

import "sort"

// NameIndex is the set of published names discovered while indexing image
// directories. A nil NameIndex means "no index available" and disables
// referential checks.
type NameIndex map[string]struct{}

// NewNameIndex returns an empty index.
func NewNameIndex() NameIndex {
	return make(NameIndex)
}

// Add inserts name into the index.
func (n NameIndex) Add(name string) {
	n[name] = struct{}{}
}

// Contains reports whether name was indexed.
func (n NameIndex) Contains(name string) bool {
	_, ok := n[name]
	return ok
}

// Union adds every name of other into n.
func (n NameIndex) Union(other NameIndex) {
	for name := range other {
		n[name] = struct{}{}
	}
}

// Len returns the number of distinct names.
func (n NameIndex) Len() int {
	return len(n)
}

// Clone returns an independent copy; a nil index stays nil.
func (n NameIndex) Clone() NameIndex {
	if n == nil {
		return nil
	}
	out := make(NameIndex, len(n))
	for name := range n {
		out[name] = struct{}{}
	}
	return out
}

// Names returns the indexed names in sorted order.
func (n NameIndex) Names() []string {
	names := make([]string, 0, len(n))
	for name := range n {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NameIndexFrom builds an index from a list of names.
func NameIndexFrom(names []string) NameIndex {
	n := make(NameIndex, len(names))
	for _, name := range names {
		n.Add(name)
	}
	return n
}
