package detect

import (
	"github.com/google/uuid"

	"voiceqa/pkg/config"
)

// Event represents one detected quality degradation. Events are produced
// per frame by detectors and later merged by the aggregator; EndTime is
// always >= StartTime.
type Event struct {
	ID         string             `json:"id"`
	Category   config.Category    `json:"category"`
	StartTime  float64            `json:"start_time"`
	EndTime    float64            `json:"end_time"`
	Confidence float64            `json:"confidence"` // 0.0 - 1.0
	Reason     string             `json:"reason"`
	Details    map[string]float64 `json:"details,omitempty"`
}

// Duration returns the event length in seconds.
func (e Event) Duration() float64 {
	return e.EndTime - e.StartTime
}

func newEvent(cat config.Category, start, end, confidence float64, reason string, details map[string]float64) *Event {
	return &Event{
		ID:         uuid.New().String(),
		Category:   cat,
		StartTime:  start,
		EndTime:    end,
		Confidence: clamp01(confidence),
		Reason:     reason,
		Details:    details,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
