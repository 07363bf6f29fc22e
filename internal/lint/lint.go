// Package lint implements the Lint Engine of SPEC_FULL.md §4.5: a small
// set of pure functions from a task's current state to zero or more
// warnings. Lints never mutate the task they inspect; internal/store calls
// Evaluate through an injected store.LintFunc so this package can depend
// on internal/store without the reverse also being true.
package lint

import "github.com/taskscope/taskscope/internal/store"

// Kind names match the warning set used across config (the allow list)
// and the view model (rendered as-is).
const (
	KindSelfWakes    = "self-wakes"
	KindLostWaker    = "lost-waker"
	KindNeverYielded = "never-yielded"
)

// Config holds the thresholds and suppression list of §6.3, sourced from
// internal/config.
type Config struct {
	MinWakes       uint64
	SelfWakePct    uint64
	NeverYieldMS   uint64
	AllowWarnings  map[string]bool
}

// DefaultConfig matches the §6.3 defaults table.
func DefaultConfig() Config {
	return Config{
		MinWakes:     5,
		SelfWakePct:  50,
		NeverYieldMS: 1000,
	}
}

// Evaluate runs every registered lint against t and returns the surviving
// (non-suppressed) warnings. Suitable for direct use as a store.LintFunc
// once partially applied over cfg, e.g.:
//
//	store.New(storeCfg, func(t *store.Task, now uint64) []store.Warning {
//	    return lint.Evaluate(cfg, t, now)
//	}, logger)
func Evaluate(cfg Config, t *store.Task, now uint64) []store.Warning {
	var warnings []store.Warning
	for _, w := range []*store.Warning{
		selfWakes(cfg, t),
		lostWaker(cfg, t),
		neverYielded(cfg, t, now),
	} {
		if w == nil {
			continue
		}
		if cfg.AllowWarnings[w.Kind] {
			continue
		}
		warnings = append(warnings, *w)
	}
	return warnings
}

// selfWakes fires when a task has woken itself at least half the time
// (by default) over a meaningful sample size, per invariant 4.
func selfWakes(cfg Config, t *store.Task) *store.Warning {
	if t.Stats.Wakes < cfg.MinWakes {
		return nil
	}
	pct := t.Stats.SelfWakes * 100 / t.Stats.Wakes
	if pct < cfg.SelfWakePct {
		return nil
	}
	return &store.Warning{
		Kind:      KindSelfWakes,
		Message:   "task is waking itself rather than being woken externally",
		Threshold: pctLabel(cfg.SelfWakePct),
	}
}

// lostWaker fires for a task that terminated without its last poll
// reporting ready, while holding zero live wakers: nothing was left to
// wake it, and it never got the chance to finish on its own.
func lostWaker(cfg Config, t *store.Task) *store.Warning {
	if !t.Stats.DroppedAt.Valid {
		return nil
	}
	if t.Stats.LastPollReady {
		return nil
	}
	if t.Stats.CurrentWakers() != 0 {
		return nil
	}
	return &store.Warning{
		Kind:    KindLostWaker,
		Message: "task terminated with no waker and its last poll never completed",
	}
}

// neverYielded fires when a task has polled at most once and that single
// poll has already run at or beyond the threshold, for tasks (not
// blocking operations, which are expected to run long).
func neverYielded(cfg Config, t *store.Task, now uint64) *store.Warning {
	if t.Stats.PollCount > 1 {
		return nil
	}
	if !t.Stats.LastPollStarted.Valid {
		return nil
	}
	if t.Fields != nil {
		if kind, ok := t.Fields["kind"]; ok && kind.Str == "blocking" {
			return nil
		}
	}
	end := now
	if t.Stats.LastPollEnded.Valid {
		end = t.Stats.LastPollEnded.Val
	}
	if end < t.Stats.LastPollStarted.Val {
		return nil // clamped elsewhere; nothing meaningful to report yet
	}
	elapsedMS := (end - t.Stats.LastPollStarted.Val) / 1_000_000
	if elapsedMS < cfg.NeverYieldMS {
		return nil
	}
	return &store.Warning{
		Kind:      KindNeverYielded,
		Message:   "task has been polled once and has not yet yielded",
		Threshold: msLabel(cfg.NeverYieldMS),
	}
}
