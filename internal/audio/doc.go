// Package audio synthesises the alarm tone bursts and plays them through the
// platform audio player.
//
// A Burst is a set of oscillator voices, each with its own waveform,
// frequency, start offset and exponential gain ramp. Render mixes a burst
// into 16-bit PCM, EncodeWAV wraps the PCM in a RIFF container, and the
// CommandOutput hands the file to aplay, afplay or PowerShell.
package audio
