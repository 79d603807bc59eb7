package nettrace

import (
	"sync"
	"time"
)

type openPhase struct {
	start time.Time
	meta  PhaseMeta
}

// Collector accumulates phases reported by an httptrace.ClientTrace. It is
// safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	started  time.Time
	finished time.Time
	err      string
	phases   []Phase
	open     map[PhaseKind]*openPhase
	now      func() time.Time
}

func NewCollector() *Collector {
	return &Collector{open: make(map[PhaseKind]*openPhase), now: time.Now}
}

func (c *Collector) stamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return c.now()
	}
	return ts
}

// Begin opens a phase. Opening a phase that is already open restarts it.
func (c *Collector) Begin(kind PhaseKind, ts time.Time, meta PhaseMeta) {
	if kind == "" || kind == PhaseTotal {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ts = c.stamp(ts)
	if c.started.IsZero() || ts.Before(c.started) {
		c.started = ts
	}
	c.open[kind] = &openPhase{start: ts, meta: meta}
}

// Annotate updates the metadata of an open phase.
func (c *Collector) Annotate(kind PhaseKind, fn func(*PhaseMeta)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p := c.open[kind]; p != nil {
		fn(&p.meta)
	}
}

// End closes a phase. A phase that was never opened is recorded with zero
// duration.
func (c *Collector) End(kind PhaseKind, ts time.Time, err error) {
	if kind == "" || kind == PhaseTotal {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ts = c.stamp(ts)
	p, ok := c.open[kind]
	if !ok {
		p = &openPhase{start: ts}
	}
	if ts.Before(p.start) {
		ts = p.start
	}
	c.closeLocked(kind, p, ts, errText(err))
	delete(c.open, kind)
}

func (c *Collector) closeLocked(kind PhaseKind, p *openPhase, ts time.Time, errMsg string) {
	c.phases = append(c.phases, Phase{
		Kind:     kind,
		Start:    p.start,
		End:      ts,
		Duration: ts.Sub(p.start),
		Err:      errMsg,
		Meta:     p.meta,
	})
	if ts.After(c.finished) {
		c.finished = ts
	}
}

// Fail remembers the first error of the exchange.
func (c *Collector) Fail(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	if c.err == "" {
		c.err = err.Error()
	}
	c.mu.Unlock()
}

// Complete closes every phase still open as incomplete.
func (c *Collector) Complete(ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts = c.stamp(ts)
	for kind, p := range c.open {
		c.closeLocked(kind, p, ts, "incomplete")
	}
	c.open = make(map[PhaseKind]*openPhase)
	if ts.After(c.finished) {
		c.finished = ts
	}
}

// Timeline snapshots the collected phases in start order. It returns nil when
// nothing was recorded.
func (c *Collector) Timeline() *Timeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.phases) == 0 && c.started.IsZero() {
		return nil
	}

	ph := make([]Phase, len(c.phases))
	copy(ph, c.phases)
	ph = normalizePhases(ph)

	tl := &Timeline{
		Started:   c.started,
		Completed: c.finished,
		Err:       c.err,
		Phases:    ph,
	}
	if tl.Started.IsZero() && len(ph) > 0 {
		tl.Started = ph[0].Start
	}
	if tl.Completed.IsZero() && len(ph) > 0 {
		tl.Completed = ph[len(ph)-1].End
	}
	if !tl.Started.IsZero() && !tl.Completed.Before(tl.Started) {
		tl.Duration = tl.Completed.Sub(tl.Started)
	}
	return tl
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
