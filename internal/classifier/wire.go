package classifier

import (
	"math"

	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
)

// detectRequest is the body of POST /detect_drowsiness.
type detectRequest struct {
	Image string `json:"image"`
}

type wireFaceBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// detectResponse covers both the success and the failure shapes.
type detectResponse struct {
	Error        *string      `json:"error,omitempty"`
	IsDrowsy     bool         `json:"is_drowsy"`
	EAR          *float64     `json:"ear,omitempty"`
	RawEAR       *float64     `json:"raw_ear,omitempty"`
	FaceBox      *wireFaceBox `json:"face_box,omitempty"`
	DrowsyScore  *float64     `json:"drowsy_score,omitempty"`
	Confidence   *float64     `json:"confidence,omitempty"`
	Message      string       `json:"message,omitempty"`
	FrameCounter *int         `json:"frame_counter,omitempty"`
	Brightness   *float64     `json:"brightness,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// toSample validates the response and converts it to a sample.
func (r *detectResponse) toSample() (*detection.Sample, error) {
	sample := &detection.Sample{
		IsDrowsy:     r.IsDrowsy,
		Message:      r.Message,
		FrameCounter: r.FrameCounter,
		Brightness:   r.Brightness,
	}

	if r.EAR != nil {
		sample.EAR = clamp(*r.EAR, 0, math.MaxFloat64)
	}

	if r.RawEAR != nil {
		raw := clamp(*r.RawEAR, 0, math.MaxFloat64)
		sample.RawEAR = &raw
	}

	if r.DrowsyScore != nil {
		sample.DrowsyScore = clamp(*r.DrowsyScore, 0, 100)
	}

	if r.Confidence != nil {
		sample.Confidence = clamp(*r.Confidence, 0, 1)
	}

	if r.FaceBox != nil {
		box := &detection.FaceBox{
			Left:   int(math.Round(r.FaceBox.Left)),
			Top:    int(math.Round(r.FaceBox.Top)),
			Right:  int(math.Round(r.FaceBox.Right)),
			Bottom: int(math.Round(r.FaceBox.Bottom)),
		}

		if !box.Valid() {
			return nil, errInvalidFaceBox
		}

		sample.FaceBox = box
	}

	return sample, nil
}

// clamp also maps NaN to lo.
func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v) || v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
