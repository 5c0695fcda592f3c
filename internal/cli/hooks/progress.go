package hooks

import (
	"io"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

// TrackerProgress renders one go-pretty tracker per directory.
type TrackerProgress struct {
	pw       progress.Writer
	trackers map[string]*progress.Tracker
}

// NewTrackerProgress starts rendering to out. Close must be called to stop
// the render loop.
func NewTrackerProgress(out io.Writer) *TrackerProgress {
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetStyle(progress.StyleDefault)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Percentage = true
	go pw.Render()
	return &TrackerProgress{pw: pw, trackers: make(map[string]*progress.Tracker)}
}

// Start implements Progress.
func (p *TrackerProgress) Start(dir string, tasks int) {
	t := &progress.Tracker{
		Message: trackerLabel(dir),
		Total:   int64(tasks),
		Units:   progress.UnitsDefault,
	}
	p.trackers[dir] = t
	p.pw.AppendTracker(t)
}

// Advance implements Progress.
func (p *TrackerProgress) Advance(dir string, n int) {
	if t, ok := p.trackers[dir]; ok {
		t.Increment(int64(n))
	}
}

// Done implements Progress.
func (p *TrackerProgress) Done(dir string) {
	if t, ok := p.trackers[dir]; ok {
		t.MarkAsDone()
		delete(p.trackers, dir)
	}
}

// Close implements Progress. It waits briefly for the final frame.
func (p *TrackerProgress) Close() error {
	p.pw.Stop()
	deadline := time.Now().Add(time.Second)
	for p.pw.IsRenderInProgress() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

// trackerLabel keeps the last three path segments, which identify a match
// directory ("brain/cdmatches/em-vs-lm").
func trackerLabel(dir string) string {
	clean := filepath.ToSlash(filepath.Clean(dir))
	n := 0
	for i := len(clean) - 1; i >= 0; i-- {
		if clean[i] == '/' {
			n++
			if n == 3 {
				return clean[i+1:]
			}
		}
	}
	return clean
}
