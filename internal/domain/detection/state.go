package detection

// TrackingState is the discrete face/alert state derived from the latest sample.
type TrackingState string

const (
	// StateSearching means no face was located.
	StateSearching TrackingState = "searching"
	// StateLocked means a face was located and the subject is not drowsy.
	StateLocked TrackingState = "locked"
	// StateDrowsy means a face was located and the classifier flags drowsiness.
	StateDrowsy TrackingState = "drowsy"
)

// String implements fmt.Stringer.
func (s TrackingState) String() string {
	return string(s)
}

// StatusTier grades the displayed status text.
type StatusTier string

const (
	// TierStarting is used before the first sample.
	TierStarting StatusTier = "starting"
	// TierSearching is used while no face is located.
	TierSearching StatusTier = "searching"
	// TierAlert is used when the face is locked and the eyes are open.
	TierAlert StatusTier = "alert"
	// TierHeavy is used when the face is locked but the EAR is approaching the drowsy range.
	TierHeavy StatusTier = "heavy"
	// TierDrowsy is used while the alarm episode is running.
	TierDrowsy StatusTier = "drowsy"
	// TierError is used after a classifier failure or a camera denial.
	TierError StatusTier = "error"
)

// HeavyEyesEAR is the EAR below which a locked face is reported as getting heavy.
const HeavyEyesEAR = 0.30

// Status texts shown by the presentation layer.
const (
	StatusInitializing    = "Initializing..."
	StatusCameraActive    = "Camera active"
	StatusCameraDenied    = "Camera access denied"
	StatusStopped         = "Monitoring stopped"
	StatusSearching       = "Searching for face..."
	StatusLockedAlert     = "Face Locked - Alert and monitoring"
	StatusLockedHeavy     = "Face Locked - Eyes getting heavy..."
	StatusDrowsy          = "WAKE UP! DROWSINESS DETECTED!"
	StatusConnectionError = "Connection error"
)
