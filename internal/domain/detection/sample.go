package detection

// Frame dimensions the face box coordinates refer to.
const (
	FrameWidth  = 640
	FrameHeight = 480
)

// FaceBox is the located face in pixel space of a 640x480 frame.
type FaceBox struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

// Clone returns a copy of the box or nil.
func (b *FaceBox) Clone() *FaceBox {
	if b == nil {
		return nil
	}

	cloned := *b

	return &cloned
}

// Valid reports whether the box has non-negative extent.
func (b *FaceBox) Valid() bool {
	return b != nil && b.Right >= b.Left && b.Bottom >= b.Top
}

// Sample is one classifier result.
type Sample struct {
	// EAR is the smoothed eye aspect ratio, zero when the classifier sent none.
	EAR float64
	// RawEAR is the unsmoothed eye aspect ratio when provided.
	RawEAR *float64
	// IsDrowsy is the classifier's drowsiness verdict.
	IsDrowsy bool
	// DrowsyScore is the 0..100 fatigue indicator.
	DrowsyScore float64
	// Confidence is the 0..1 classifier confidence.
	Confidence float64
	// FaceBox is nil when no face was located this tick.
	FaceBox *FaceBox
	// Message is a human-readable hint from the classifier (lighting, positioning).
	Message string
	// FrameCounter is the classifier's consecutive low-EAR frame count.
	FrameCounter *int
	// Brightness is the mean frame brightness (0..255) reported with no-face results.
	Brightness *float64
}

// HasFace reports whether a face was located.
func (s *Sample) HasFace() bool {
	return s != nil && s.FaceBox != nil
}
