// Package tally accumulates validation findings into per-code counts.
//
// A Counter is a plain value owned by a single goroutine (one worker task).
// Counters from many tasks are combined with Merge, which is commutative and
// associative, so the final totals never depend on completion order. The
// process-wide Counter lives behind an Owner, which serializes every Record
// and Merge through one goroutine.
package tally

import (
	"sort"
	"time"
)

// Severity classifies a finding.
type Severity int

const (
	// SeverityError findings fail the run.
	SeverityError Severity = iota
	// SeverityWarning findings are reported but do not fail the run.
	SeverityWarning
)

// String returns the log tag used for the severity.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARN"
	default:
		return "UNKNOWN"
	}
}

// Counter holds named error and warning counts plus bookkeeping statistics.
type Counter struct {
	Errors     map[string]int `json:"errors" msgpack:"errors"`
	Warnings   map[string]int `json:"warnings" msgpack:"warnings"`
	Items      int            `json:"items" msgpack:"items"`
	Exceptions int            `json:"exceptions" msgpack:"exceptions"`
	Matches    int            `json:"matches" msgpack:"matches"`
	Elapsed    time.Duration  `json:"elapsed" msgpack:"elapsed"`
}

// New returns an empty Counter.
func New() *Counter {
	return &Counter{
		Errors:   make(map[string]int),
		Warnings: make(map[string]int),
	}
}

// Record increments the count for code under the given severity.
func (c *Counter) Record(code string, sev Severity) {
	c.ensure()
	if sev == SeverityError {
		c.Errors[code]++
		return
	}
	c.Warnings[code]++
}

// AddItem records one processed file and the time spent on it.
func (c *Counter) AddItem(elapsed time.Duration) {
	c.Items++
	c.Elapsed += elapsed
}

// Merge adds other into c key by key. other is left untouched.
func (c *Counter) Merge(other *Counter) {
	if other == nil {
		return
	}
	c.ensure()
	for code, n := range other.Errors {
		c.Errors[code] += n
	}
	for code, n := range other.Warnings {
		c.Warnings[code] += n
	}
	c.Items += other.Items
	c.Exceptions += other.Exceptions
	c.Matches += other.Matches
	c.Elapsed += other.Elapsed
}

// HasErrors reports whether any error-severity finding was recorded.
func (c *Counter) HasErrors() bool {
	for _, n := range c.Errors {
		if n > 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of c.
func (c *Counter) Clone() *Counter {
	out := New()
	out.Merge(c)
	return out
}

// Summary renders c into its report form.
func (c *Counter) Summary() Summary {
	s := Summary{
		Errors:     sortedCounts(c.Errors),
		Warnings:   sortedCounts(c.Warnings),
		HasErrors:  c.HasErrors(),
		Items:      c.Items,
		Exceptions: c.Exceptions,
		Matches:    c.Matches,
	}
	for _, e := range s.Errors {
		s.TotalErrors += e.Count
	}
	for _, w := range s.Warnings {
		s.TotalWarnings += w.Count
	}
	if c.Items > 0 {
		s.MeanElapsed = c.Elapsed / time.Duration(c.Items)
	}
	return s
}

func (c *Counter) ensure() {
	if c.Errors == nil {
		c.Errors = make(map[string]int)
	}
	if c.Warnings == nil {
		c.Warnings = make(map[string]int)
	}
}

// CodeCount is one line of a summary.
type CodeCount struct {
	Code  string `json:"code" yaml:"code"`
	Count int    `json:"count" yaml:"count"`
}

// Summary is the final, order-independent view of a Counter.
type Summary struct {
	Errors        []CodeCount   `json:"errors" yaml:"errors"`
	Warnings      []CodeCount   `json:"warnings" yaml:"warnings"`
	TotalErrors   int           `json:"totalErrors" yaml:"totalErrors"`
	TotalWarnings int           `json:"totalWarnings" yaml:"totalWarnings"`
	HasErrors     bool          `json:"hasErrors" yaml:"hasErrors"`
	Items         int           `json:"items" yaml:"items"`
	Exceptions    int           `json:"exceptions" yaml:"exceptions"`
	Matches       int           `json:"matches" yaml:"matches"`
	MeanElapsed   time.Duration `json:"meanElapsedNs" yaml:"meanElapsedNs"`
}

// sortedCounts orders by descending count, then code, so summaries are stable.
func sortedCounts(m map[string]int) []CodeCount {
	out := make([]CodeCount, 0, len(m))
	for code, n := range m {
		if n == 0 {
			continue
		}
		out = append(out, CodeCount{Code: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	return out
}
