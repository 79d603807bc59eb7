// Package nettrace records the phases of a single HTTP exchange and maps them
// onto HAR timings.
package nettrace

import (
	"math"
	"sort"
	"time"

	"github.com/unkn0wn-root/harkit/internal/record"
)

type PhaseKind string

const (
	PhaseDNS      PhaseKind = "dns"
	PhaseConnect  PhaseKind = "connect"
	PhaseTLS      PhaseKind = "tls"
	PhaseReqHdrs  PhaseKind = "request_headers"
	PhaseReqBody  PhaseKind = "request_body"
	PhaseTTFB     PhaseKind = "ttfb"
	PhaseTransfer PhaseKind = "transfer"
	PhaseTotal    PhaseKind = "total"
)

type PhaseMeta struct {
	Addr   string
	Reused bool
}

type Phase struct {
	Kind     PhaseKind
	Start    time.Time
	End      time.Time
	Duration time.Duration
	Err      string
	Meta     PhaseMeta
}

type Timeline struct {
	Started   time.Time
	Completed time.Time
	Duration  time.Duration
	Err       string
	Phases    []Phase
}

func (tl *Timeline) Clone() *Timeline {
	if tl == nil {
		return nil
	}

	ph := make([]Phase, len(tl.Phases))
	copy(ph, tl.Phases)
	return &Timeline{
		Started:   tl.Started,
		Completed: tl.Completed,
		Duration:  tl.Duration,
		Err:       tl.Err,
		Phases:    ph,
	}
}

// Timings folds the phases into HAR timings. Connect includes the TLS
// handshake, as HAR requires. Phases that never ran are reported as -1 where
// HAR allows it and 0 otherwise. Blocked time is not traced.
func (tl *Timeline) Timings() record.Timings {
	out := record.EmptyTimings()
	if tl == nil {
		return out
	}

	sums := aggregateDurations(tl)
	seen := make(map[PhaseKind]bool, len(tl.Phases))
	for _, phase := range tl.Phases {
		if phase.Kind == PhaseConnect && phase.Meta.Reused {
			continue
		}
		seen[phase.Kind] = true
	}

	if seen[PhaseDNS] {
		out.DNS = millis(sums[PhaseDNS])
	}
	if seen[PhaseTLS] {
		out.SSL = millis(sums[PhaseTLS])
	}
	if seen[PhaseConnect] || seen[PhaseTLS] {
		out.Connect = millis(sums[PhaseConnect] + sums[PhaseTLS])
	}
	out.Send = millis(sums[PhaseReqHdrs] + sums[PhaseReqBody])
	out.Wait = millis(sums[PhaseTTFB])
	out.Receive = millis(sums[PhaseTransfer])
	return out
}

func millis(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*1000) / 1000
}

func normalizePhases(phases []Phase) []Phase {
	if len(phases) <= 1 {
		return phases
	}

	sorted := make([]Phase, len(phases))
	copy(sorted, phases)
	sort.SliceStable(sorted, func(i, j int) bool {
		si := sorted[i]
		sj := sorted[j]
		if si.Start.Equal(sj.Start) {
			return si.End.Before(sj.End)
		}
		return si.Start.Before(sj.Start)
	})
	return sorted
}

// Multiple phases can have the same kind (e.g. one DNS lookup per redirect
// hop) so durations are summed.
func aggregateDurations(tl *Timeline) map[PhaseKind]time.Duration {
	out := make(map[PhaseKind]time.Duration, len(tl.Phases)+1)
	for _, phase := range tl.Phases {
		if phase.Duration <= 0 {
			continue
		}
		out[phase.Kind] += phase.Duration
	}
	return out
}
