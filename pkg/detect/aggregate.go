package detect

import (
	"sort"

	"voiceqa/pkg/config"
)

// Aggregator turns the raw per-frame event stream into reportable events:
// same-category events separated by less than the merge gap coalesce into
// one (union of spans, max confidence), and merged events shorter than the
// category's minimum duration are dropped.
//
// The merge-then-filter order matters: merging first prevents a long real
// problem from being discarded as too short after fragmenting into several
// adjacent raw detections.
type Aggregator struct {
	mergeGap    float64
	minDuration map[config.Category]float64
}

// NewAggregator creates an aggregator from the configured merge gap and
// per-category minimum durations.
func NewAggregator(cfg *config.Config) *Aggregator {
	return &Aggregator{
		mergeGap:    cfg.MergeGapSeconds,
		minDuration: cfg.MinEventDuration,
	}
}

// Aggregate merges and filters a time-ordered raw event list. The operation
// is idempotent: aggregating an already-aggregated list returns it unchanged.
func (a *Aggregator) Aggregate(events []Event) []Event {
	if len(events) == 0 {
		return nil
	}

	byCategory := make(map[config.Category][]Event)
	for _, e := range events {
		byCategory[e.Category] = append(byCategory[e.Category], e)
	}

	var out []Event
	for _, cat := range config.Categories {
		merged := a.merge(byCategory[cat])
		minDur := a.minDuration[cat]
		for _, e := range merged {
			if e.Duration() >= minDur {
				out = append(out, e)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

// merge coalesces same-category events whose gap is below the threshold.
func (a *Aggregator) merge(events []Event) []Event {
	if len(events) == 0 {
		return nil
	}

	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartTime < sorted[j].StartTime })

	merged := []Event{sorted[0]}
	for _, curr := range sorted[1:] {
		last := &merged[len(merged)-1]
		if curr.StartTime-last.EndTime < a.mergeGap {
			if curr.EndTime > last.EndTime {
				last.EndTime = curr.EndTime
			}
			if curr.Confidence > last.Confidence {
				last.Confidence = curr.Confidence
			}
			if len(curr.Details) > 0 {
				// Copy-on-merge so the caller's event maps stay untouched
				details := make(map[string]float64, len(last.Details)+len(curr.Details))
				for k, v := range last.Details {
					details[k] = v
				}
				for k, v := range curr.Details {
					details[k] = v
				}
				last.Details = details
			}
		} else {
			merged = append(merged, curr)
		}
	}

	return merged
}
