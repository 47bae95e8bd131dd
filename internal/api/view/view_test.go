package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
)

// TestSnapshotRoundTripThroughMap checks that the generic map form keeps every field.
func TestSnapshotRoundTripThroughMap(t *testing.T) {
	t.Parallel()

	avg := 0.29
	in := &detection.Snapshot{
		Status:      detection.StatusLockedHeavy,
		Tier:        detection.TierHeavy,
		State:       detection.StateLocked,
		FaceBox:     &detection.FaceBox{Left: 1, Top: 2, Right: 3, Bottom: 4},
		EAR:         0.29,
		Calibrating: true,
		Calibration: detection.CalibrationStats{Avg: &avg, Count: 7},
		Sequence:    12,
		UpdatedAt:   time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}

	m, err := ToMap(FromSnapshot(in))
	require.NoError(t, err)
	require.Equal(t, "locked", m["state"])
	require.Nil(t, m["calibration"].(map[string]any)["min"])

	var out Snapshot
	require.NoError(t, FromMap(m, &out))
	require.True(t, out.Calibration.Ready)
	require.NotEmpty(t, out.Calibration.Hint)

	back := out.ToSnapshot()
	require.Equal(t, in.FaceBox, back.FaceBox)
	require.Equal(t, in.State, back.State)
	require.Equal(t, in.Tier, back.Tier)
	require.True(t, back.Calibrating)
	require.InDelta(t, avg, *back.Calibration.Avg, 1e-9)
	require.True(t, in.UpdatedAt.Equal(back.UpdatedAt))
}

// TestFromEpisode reports durations for closed episodes only.
func TestFromEpisode(t *testing.T) {
	t.Parallel()

	start := time.Unix(100, 0)

	open := FromEpisode(detection.Episode{ID: 3, StartedAt: start})
	require.Nil(t, open.EndedAt)
	require.Zero(t, open.DurationMS)

	closed := FromEpisode(detection.Episode{ID: 3, StartedAt: start, EndedAt: start.Add(1500 * time.Millisecond), EndReason: detection.EndRecovered})
	require.Equal(t, int64(1500), closed.DurationMS)
	require.Equal(t, "recovered", closed.EndReason)
}
