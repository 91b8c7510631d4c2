package analyzer

import (
	"encoding/json"

	"voiceqa/pkg/config"
	"voiceqa/pkg/detect"
)

// Result holds the aggregated outcome of analyzing one recording.
type Result struct {
	Events          []detect.Event `json:"events"`
	FramesProcessed int            `json:"frames_processed"`
	TotalDuration   float64        `json:"total_duration"`
}

// ReportSpan is one event's time span in the summary report.
type ReportSpan struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// ReportCategory summarizes one event category.
type ReportCategory struct {
	Count  int          `json:"count"`
	Events []ReportSpan `json:"events"`
}

// ReportMeta carries recording-level counters.
type ReportMeta struct {
	FramesProcessed int     `json:"frames_processed"`
	TotalDuration   float64 `json:"total_duration"`
}

// Report is the stable per-category summary. Every known category is
// present even when empty, so consumers never need existence checks.
type Report struct {
	Categories map[config.Category]ReportCategory `json:"-"`
	Meta       ReportMeta                         `json:"meta"`
}

// Report builds the per-category summary from the event list. The summary
// is fully derived from Events; no extra state is consulted.
func (r *Result) Report() *Report {
	categories := make(map[config.Category]ReportCategory, len(config.Categories))
	for _, cat := range config.Categories {
		categories[cat] = ReportCategory{Events: []ReportSpan{}}
	}

	for _, e := range r.Events {
		c := categories[e.Category]
		c.Count++
		c.Events = append(c.Events, ReportSpan{
			Start:      e.StartTime,
			End:        e.EndTime,
			Confidence: e.Confidence,
			Reason:     e.Reason,
		})
		categories[e.Category] = c
	}

	return &Report{
		Categories: categories,
		Meta: ReportMeta{
			FramesProcessed: r.FramesProcessed,
			TotalDuration:   r.TotalDuration,
		},
	}
}

// MarshalJSON flattens the category map and meta block into one object,
// keyed by category name.
func (rp *Report) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(rp.Categories)+1)
	for cat, summary := range rp.Categories {
		out[string(cat)] = summary
	}
	out["meta"] = rp.Meta
	return json.Marshal(out)
}
