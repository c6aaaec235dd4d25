package verify

import "math"

// MatchThreshold is the distance below which two embeddings are the same
// person. The comparison is strict: a distance of exactly 0.6 is no match.
const MatchThreshold = 0.6

const (
	NoFaceMessage        = "No face detected in one or both images"
	MultipleFacesMessage = "Multiple faces detected in one or both images"
)

// Result is the outcome of one verification. Distance and Confidence are
// nil exactly when Error is set.
type Result struct {
	Matched    bool     `json:"matched"`
	Distance   *float64 `json:"distance,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Decide classifies a raw distance and derives the reported values.
func Decide(distance float64) *Result {
	d := round3(distance)
	c := round3(clamp01(1 - distance))
	return &Result{
		Matched:    distance < MatchThreshold,
		Distance:   &d,
		Confidence: &c,
	}
}

func noFaceResult() *Result {
	return &Result{Matched: false, Error: NoFaceMessage}
}

func multipleFacesResult() *Result {
	return &Result{Matched: false, Error: MultipleFacesMessage}
}

// Outcome labels the result for metrics and logs.
func (r *Result) Outcome() string {
	switch {
	case r.Error == NoFaceMessage:
		return "no_face"
	case r.Error == MultipleFacesMessage:
		return "multiple_faces"
	case r.Matched:
		return "matched"
	default:
		return "unmatched"
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
