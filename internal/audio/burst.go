package audio

import (
	"math"
	"time"
)

// Waveform selects the oscillator shape.
type Waveform int

const (
	// Sine is a pure tone.
	Sine Waveform = iota
	// Square is a harsh tone rich in odd harmonics.
	Square
	// Sawtooth is a buzzy tone rich in all harmonics.
	Sawtooth
	// Triangle is a soft tone with weak odd harmonics.
	Triangle
)

// String implements fmt.Stringer.
func (w Waveform) String() string {
	switch w {
	case Sine:
		return "sine"
	case Square:
		return "square"
	case Sawtooth:
		return "sawtooth"
	case Triangle:
		return "triangle"
	default:
		return "unknown"
	}
}

// Voice is one oscillator inside a burst. It starts at Offset, ramps its gain
// exponentially from StartGain to EndGain over Ramp and is stopped right after.
type Voice struct {
	Waveform  Waveform
	Frequency float64
	Offset    time.Duration
	Ramp      time.Duration
	StartGain float64
	EndGain   float64
}

// Stop returns the moment the voice is stopped, relative to the burst start.
func (v Voice) Stop() time.Duration {
	return v.Offset + v.Ramp
}

// gainAt returns the envelope value t after the voice started.
func (v Voice) gainAt(t time.Duration) float64 {
	if t < 0 || t >= v.Ramp || v.Ramp <= 0 {
		return 0
	}

	if v.StartGain <= 0 || v.EndGain <= 0 {
		// Exponential ramps cannot cross zero; fall back to linear.
		return v.StartGain + (v.EndGain-v.StartGain)*t.Seconds()/v.Ramp.Seconds()
	}

	return v.StartGain * math.Pow(v.EndGain/v.StartGain, t.Seconds()/v.Ramp.Seconds())
}

// oscillate returns the raw waveform value in [-1, 1] at time t.
func (v Voice) oscillate(t time.Duration) float64 {
	phase := math.Mod(t.Seconds()*v.Frequency, 1)

	switch v.Waveform {
	case Square:
		if phase < 0.5 {
			return 1
		}

		return -1
	case Sawtooth:
		return 2*phase - 1
	case Triangle:
		return 1 - 4*math.Abs(phase-0.5)
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// Burst is one self-contained multi-oscillator alert event.
type Burst struct {
	Voices []Voice
}

// Duration returns the time at which the last voice stops.
func (b Burst) Duration() time.Duration {
	var end time.Duration

	for _, v := range b.Voices {
		if stop := v.Stop(); stop > end {
			end = stop
		}
	}

	return end
}

// Alarm burst parameters.
const (
	AlarmGain    = 0.8
	AlarmFloor   = 0.01
	AlarmRamp    = 300 * time.Millisecond
	AlarmStagger = 100 * time.Millisecond
)

// AlarmFrequencies is the high/higher/low triplet of the alarm burst.
//
//nolint:gochecknoglobals // Read-only table.
var AlarmFrequencies = [3]float64{880, 1320, 660}

// AlarmBurst returns the attention-getting burst: three staggered square
// voices, each ramping from a loud gain down to near-silence.
func AlarmBurst() Burst {
	voices := make([]Voice, 0, len(AlarmFrequencies))

	for i, freq := range AlarmFrequencies {
		voices = append(voices, Voice{
			Waveform:  Square,
			Frequency: freq,
			Offset:    time.Duration(i) * AlarmStagger,
			Ramp:      AlarmRamp,
			StartGain: AlarmGain,
			EndGain:   AlarmFloor,
		})
	}

	return Burst{Voices: voices}
}
