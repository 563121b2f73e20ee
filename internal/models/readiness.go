package models

import "time"

type ReadinessKind string

const (
	ReadinessNotReady     ReadinessKind = "not_ready"
	ReadinessReady        ReadinessKind = "ready"
	ReadinessCountingDown ReadinessKind = "counting_down"
	ReadinessProposedTime ReadinessKind = "proposed_time"
)

// Readiness is exactly one of: not ready, ready, counting down to a time, or
// proposing a time. The zero value is not ready.
type Readiness struct {
	kind     ReadinessKind
	until    time.Time
	proposed string
}

func NotReadyState() Readiness { return Readiness{kind: ReadinessNotReady} }
func ReadyState() Readiness    { return Readiness{kind: ReadinessReady} }

func CountdownUntil(t time.Time) Readiness {
	return Readiness{kind: ReadinessCountingDown, until: t.UTC()}
}

func ProposeTime(value string) Readiness {
	return Readiness{kind: ReadinessProposedTime, proposed: value}
}

func (r Readiness) Kind() ReadinessKind {
	if r.kind == "" {
		return ReadinessNotReady
	}
	return r.kind
}

// Columns returns the update set for all three readiness columns.
func (r Readiness) Columns() map[string]interface{} {
	cols := map[string]interface{}{
		"is_ready":       r.Kind() == ReadinessReady,
		"timer_end_time": nil,
		"proposed_time":  nil,
	}
	switch r.Kind() {
	case ReadinessCountingDown:
		cols["timer_end_time"] = r.until
	case ReadinessProposedTime:
		cols["proposed_time"] = r.proposed
	}
	return cols
}
