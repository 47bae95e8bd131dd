package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestAlarmBurst checks the voice layout of the alarm burst.
func TestAlarmBurst(t *testing.T) {
	t.Parallel()

	b := AlarmBurst()
	require.Len(t, b.Voices, 3)

	for i, v := range b.Voices {
		require.Equal(t, Square, v.Waveform)
		require.InDelta(t, AlarmFrequencies[i], v.Frequency, 1e-9)
		require.Equal(t, time.Duration(i)*100*time.Millisecond, v.Offset)
		require.Equal(t, 300*time.Millisecond, v.Ramp)
	}

	// Last voice starts at 0.2 s and ramps for 0.3 s.
	require.Equal(t, 500*time.Millisecond, b.Duration())
}

// TestVoiceGain verifies the exponential envelope and the explicit stop.
func TestVoiceGain(t *testing.T) {
	t.Parallel()

	v := AlarmBurst().Voices[0]

	require.InDelta(t, AlarmGain, v.gainAt(0), 1e-9)
	require.InDelta(t, AlarmGain*0.1118, v.gainAt(150*time.Millisecond), 1e-3)
	require.Zero(t, v.gainAt(300*time.Millisecond))
	require.Zero(t, v.gainAt(-time.Millisecond))

	linear := Voice{Ramp: time.Second, StartGain: 1, EndGain: 0}
	require.InDelta(t, 0.5, linear.gainAt(500*time.Millisecond), 1e-9)
}

// TestRender checks burst length, the staggered start and silence after the last stop.
func TestRender(t *testing.T) {
	t.Parallel()

	const rate = 8000

	pcm := Render(AlarmBurst(), rate)
	require.Len(t, pcm, rate/2)

	// The first voice is audible at the very start.
	require.NotZero(t, pcm[0])

	// Only one voice sounds before 0.1 s, so the mix stays within its gain.
	gain := AlarmGain

	for _, s := range pcm[:rate/10] {
		require.LessOrEqual(t, int(s), int(gain*32767)+1)
	}

	require.Nil(t, Render(AlarmBurst(), 0))
}

// TestEncodeWAV validates the RIFF header.
func TestEncodeWAV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	pcm := []int16{0, 1000, -1000, 32767}
	require.NoError(t, EncodeWAV(&buf, pcm, 44100))

	data := buf.Bytes()
	require.Len(t, data, 44+len(pcm)*2)
	require.Equal(t, "RIFF", string(data[0:4]))
	require.Equal(t, "WAVE", string(data[8:12]))
	require.Equal(t, "data", string(data[36:40]))
	require.Equal(t, uint32(44100), binary.LittleEndian.Uint32(data[24:28]))
	require.Equal(t, uint32(len(pcm)*2), binary.LittleEndian.Uint32(data[40:44]))

	require.Error(t, EncodeWAV(&buf, pcm, 0))
}

// TestCommandOpener_Unavailable reports ErrUnavailable for a missing player.
func TestCommandOpener_Unavailable(t *testing.T) {
	t.Parallel()

	_, err := NewCommandOpener("definitely-not-an-audio-player-xyz", 8000).Open(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

// TestCommandOutput_Play runs a no-op player and checks the rendered file is reused.
func TestCommandOutput_Play(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("relies on the POSIX true utility")
	}

	out, err := NewCommandOpener("true", 8000).Open(context.Background())
	require.NoError(t, err)

	defer func() {
		require.NoError(t, out.Close())
	}()

	require.NoError(t, out.Play(context.Background(), AlarmBurst()))
	require.NoError(t, out.Play(context.Background(), AlarmBurst()))

	cmdOut, ok := out.(*CommandOutput)
	require.True(t, ok)
	require.Len(t, cmdOut.rendered, 1)
}

// TestPlayerCommand_Override splits the configured player into argv.
func TestPlayerCommand_Override(t *testing.T) {
	t.Parallel()

	argv, err := playerCommand("paplay --volume 65536")
	require.NoError(t, err)
	require.Equal(t, []string{"paplay", "--volume", "65536"}, argv)
}
