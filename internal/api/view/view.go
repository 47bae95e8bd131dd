package view

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
)

// FaceBox is a face rectangle in 640x480 pixel space.
type FaceBox struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Calibration is the calibration block of a snapshot.
type Calibration struct {
	Enabled bool     `json:"enabled"`
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
	Avg     *float64 `json:"avg"`
	Count   int      `json:"count"`
	Ready   bool     `json:"ready"`
	Hint    string   `json:"hint,omitempty"`
}

// Snapshot is the presentation tuple.
type Snapshot struct {
	Status       string      `json:"status"`
	Tier         string      `json:"tier"`
	State        string      `json:"state"`
	FaceBox      *FaceBox    `json:"face_box"`
	EAR          float64     `json:"ear"`
	DrowsyScore  float64     `json:"drowsy_score"`
	Confidence   float64     `json:"confidence"`
	AlarmActive  bool        `json:"alarm_active"`
	CameraActive bool        `json:"camera_active"`
	Calibration  Calibration `json:"calibration"`
	Message      string      `json:"message,omitempty"`
	Suggestions  []string    `json:"suggestions,omitempty"`
	Sequence     uint64      `json:"sequence"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Episode is a journaled drowsy episode.
type Episode struct {
	Number     uint64     `json:"number"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	Samples    int        `json:"samples"`
	PeakScore  float64    `json:"peak_score"`
	MinEAR     float64    `json:"min_ear"`
	EndReason  string     `json:"end_reason,omitempty"`
}

// FromCalibration converts calibration stats.
func FromCalibration(enabled bool, stats detection.CalibrationStats) Calibration {
	stats = stats.Clone()

	return Calibration{
		Enabled: enabled,
		Min:     stats.Min,
		Max:     stats.Max,
		Avg:     stats.Avg,
		Count:   stats.Count,
		Ready:   stats.Ready(),
		Hint:    stats.Hint(),
	}
}

// FromSnapshot converts a snapshot.
func FromSnapshot(s *detection.Snapshot) Snapshot {
	v := Snapshot{
		Status:       s.Status,
		Tier:         string(s.Tier),
		State:        s.State.String(),
		EAR:          s.EAR,
		DrowsyScore:  s.DrowsyScore,
		Confidence:   s.Confidence,
		AlarmActive:  s.AlarmActive,
		CameraActive: s.CameraActive,
		Calibration:  FromCalibration(s.Calibrating, s.Calibration),
		Message:      s.Message,
		Suggestions:  append([]string(nil), s.Suggestions...),
		Sequence:     s.Sequence,
		UpdatedAt:    s.UpdatedAt,
	}

	if s.FaceBox != nil {
		v.FaceBox = &FaceBox{
			Left:   s.FaceBox.Left,
			Top:    s.FaceBox.Top,
			Right:  s.FaceBox.Right,
			Bottom: s.FaceBox.Bottom,
		}
	}

	return v
}

// ToSnapshot converts the view back, used by the control clients.
func (v *Snapshot) ToSnapshot() *detection.Snapshot {
	s := &detection.Snapshot{
		Status:       v.Status,
		Tier:         detection.StatusTier(v.Tier),
		State:        detection.TrackingState(v.State),
		EAR:          v.EAR,
		DrowsyScore:  v.DrowsyScore,
		Confidence:   v.Confidence,
		AlarmActive:  v.AlarmActive,
		CameraActive: v.CameraActive,
		Calibrating:  v.Calibration.Enabled,
		Calibration: detection.CalibrationStats{
			Min:   v.Calibration.Min,
			Max:   v.Calibration.Max,
			Avg:   v.Calibration.Avg,
			Count: v.Calibration.Count,
		},
		Message:     v.Message,
		Suggestions: v.Suggestions,
		Sequence:    v.Sequence,
		UpdatedAt:   v.UpdatedAt,
	}

	if v.FaceBox != nil {
		s.FaceBox = &detection.FaceBox{
			Left:   v.FaceBox.Left,
			Top:    v.FaceBox.Top,
			Right:  v.FaceBox.Right,
			Bottom: v.FaceBox.Bottom,
		}
	}

	return s
}

// FromEpisode converts an episode.
func FromEpisode(e detection.Episode) Episode {
	v := Episode{
		Number:    e.ID,
		StartedAt: e.StartedAt,
		Samples:   e.Samples,
		PeakScore: e.PeakScore,
		MinEAR:    e.MinEAR,
		EndReason: string(e.EndReason),
	}

	if !e.Open() {
		endedAt := e.EndedAt
		v.EndedAt = &endedAt
		v.DurationMS = e.Duration(endedAt).Milliseconds()
	}

	return v
}

// ToMap converts any view to a generic JSON object, e.g. for structpb.
func ToMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode view: %w", err)
	}

	var out map[string]any
	if err = json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode view: %w", err)
	}

	return out, nil
}

// FromMap decodes a generic JSON object into a view.
func FromMap(m map[string]any, v any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode view: %w", err)
	}

	if err = json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode view: %w", err)
	}

	return nil
}
