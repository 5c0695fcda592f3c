package tally_test

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuronbridge/nbvalidate/pkg/validator/tally"
)

type event struct {
	code string
	sev  tally.Severity
}

func randomEvents(r *rand.Rand, n int) []event {
	codes := []string{"Missing CDM", "Missing CDMThumbnail", "Missing AlignedBodySWC", "Published name not indexed"}
	events := make([]event, n)
	for i := range events {
		sev := tally.SeverityError
		if r.Intn(3) == 0 {
			sev = tally.SeverityWarning
		}
		events[i] = event{code: codes[r.Intn(len(codes))], sev: sev}
	}
	return events
}

func TestCounter_MergeIsOrderIndependent(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	events := randomEvents(r, 500)

	single := tally.New()
	for _, e := range events {
		single.Record(e.code, e.sev)
	}

	for trial := 0; trial < 20; trial++ {
		// Partition into random contiguous batches, then merge in shuffled order.
		var parts []*tally.Counter
		for start := 0; start < len(events); {
			end := min(len(events), start+1+r.Intn(60))
			c := tally.New()
			for _, e := range events[start:end] {
				c.Record(e.code, e.sev)
			}
			parts = append(parts, c)
			start = end
		}
		r.Shuffle(len(parts), func(i, j int) { parts[i], parts[j] = parts[j], parts[i] })

		merged := tally.New()
		for _, p := range parts {
			merged.Merge(p)
		}
		if diff := cmp.Diff(single, merged); diff != "" {
			t.Fatalf("trial %d: merged counter differs (-single +merged):\n%s", trial, diff)
		}
	}
}

func TestCounter_HasErrors(t *testing.T) {
	c := tally.New()
	assert.False(t, c.HasErrors(), "empty counter has no errors")

	c.Record("Missing VisuallyLosslessStack", tally.SeverityWarning)
	c.Record("Missing mountingProtocol", tally.SeverityWarning)
	assert.False(t, c.HasErrors(), "warnings alone never fail a run")

	c.Record("Missing CDM", tally.SeverityError)
	assert.True(t, c.HasErrors())
}

func TestCounter_MergeNilAndZeroValue(t *testing.T) {
	var c tally.Counter
	c.Merge(nil)
	c.Record("Missing CDM", tally.SeverityError)
	assert.Equal(t, 1, c.Errors["Missing CDM"])
}

func TestCounter_Summary(t *testing.T) {
	c := tally.New()
	c.Record("b", tally.SeverityError)
	c.Record("a", tally.SeverityError)
	c.Record("b", tally.SeverityError)
	c.Record("w", tally.SeverityWarning)
	c.AddItem(2 * time.Second)
	c.AddItem(4 * time.Second)

	s := c.Summary()
	assert.Equal(t, []tally.CodeCount{{Code: "b", Count: 2}, {Code: "a", Count: 1}}, s.Errors)
	assert.Equal(t, []tally.CodeCount{{Code: "w", Count: 1}}, s.Warnings)
	assert.Equal(t, 3, s.TotalErrors)
	assert.Equal(t, 1, s.TotalWarnings)
	assert.True(t, s.HasErrors)
	assert.Equal(t, 2, s.Items)
	assert.Equal(t, 3*time.Second, s.MeanElapsed)
}

func TestSeverity_String(t *testing.T) {
	assert.Equal(t, "ERROR", tally.SeverityError.String())
	assert.Equal(t, "WARN", tally.SeverityWarning.String())
}

func TestOwner_SerializesConcurrentCallers(t *testing.T) {
	owner := tally.NewOwner()

	const goroutines = 16
	const perGoroutine = 250
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			local := tally.New()
			for i := 0; i < perGoroutine; i++ {
				owner.Record("direct", tally.SeverityWarning)
				local.Record(fmt.Sprintf("code-%d", i%5), tally.SeverityError)
			}
			owner.Merge(local)
		}(g)
	}
	wg.Wait()

	final := owner.Close()
	assert.Equal(t, goroutines*perGoroutine, final.Warnings["direct"])
	total := 0
	for _, n := range final.Errors {
		total += n
	}
	assert.Equal(t, goroutines*perGoroutine, total)
	assert.True(t, final.HasErrors())
}

func TestOwner_MergeCopiesInput(t *testing.T) {
	owner := tally.NewOwner()
	local := tally.New()
	local.Record("Missing CDM", tally.SeverityError)
	owner.Merge(local)
	local.Record("Missing CDM", tally.SeverityError)

	snap := owner.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.Errors["Missing CDM"], "mutating the caller's counter after Merge must not leak in")
	assert.True(t, owner.HasErrors())

	final := owner.Close()
	assert.Equal(t, 1, final.Errors["Missing CDM"])
	assert.Equal(t, final, owner.Close(), "Close is idempotent")
}
