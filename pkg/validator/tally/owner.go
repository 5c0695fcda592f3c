package tally

import "sync"

type opKind int

const (
	opRecord opKind = iota
	opMerge
	opSnapshot
)

type message struct {
	kind  opKind
	code  string
	sev   Severity
	other *Counter
	reply chan *Counter
}

// Owner is the single logical owner of a process-wide Counter. Every
// mutation arrives as a message on one channel and is applied by one
// goroutine, so the underlying maps are never touched concurrently.
type Owner struct {
	inbox     chan message
	done      chan struct{}
	closeOnce sync.Once
	final     *Counter
}

// NewOwner starts the owner goroutine. Call Close when finished.
func NewOwner() *Owner {
	o := &Owner{
		inbox: make(chan message, 64),
		done:  make(chan struct{}),
	}
	go o.loop(New())
	return o
}

func (o *Owner) loop(c *Counter) {
	defer close(o.done)
	for msg := range o.inbox {
		switch msg.kind {
		case opRecord:
			c.Record(msg.code, msg.sev)
		case opMerge:
			c.Merge(msg.other)
		case opSnapshot:
			msg.reply <- c.Clone()
		}
	}
	o.final = c
}

// Record increments code under sev.
func (o *Owner) Record(code string, sev Severity) {
	o.inbox <- message{kind: opRecord, code: code, sev: sev}
}

// Merge adds a copy of other. The caller keeps ownership of other.
func (o *Owner) Merge(other *Counter) {
	if other == nil {
		return
	}
	o.inbox <- message{kind: opMerge, other: other.Clone()}
}

// Snapshot returns a copy of the counter reflecting every message sent
// before the call.
func (o *Owner) Snapshot() *Counter {
	reply := make(chan *Counter, 1)
	o.inbox <- message{kind: opSnapshot, reply: reply}
	return <-reply
}

// HasErrors reports whether the owned counter has recorded any error.
func (o *Owner) HasErrors() bool {
	return o.Snapshot().HasErrors()
}

// Close stops the owner after draining pending messages and returns the
// final counter. Record and Merge must not be called after Close.
func (o *Owner) Close() *Counter {
	o.closeOnce.Do(func() { close(o.inbox) })
	<-o.done
	return o.final.Clone()
}
