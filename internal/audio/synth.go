package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// Render mixes the burst into mono 16-bit PCM at the given sample rate.
// The mix is hard-clipped, which only adds to the urgency of a square alarm.
func Render(b Burst, sampleRate int) []int16 {
	if sampleRate <= 0 {
		return nil
	}

	total := int(b.Duration().Seconds() * float64(sampleRate))
	pcm := make([]int16, total)

	for i := range pcm {
		at := time.Duration(float64(i) / float64(sampleRate) * float64(time.Second))
		mix := 0.0

		for _, v := range b.Voices {
			local := at - v.Offset
			if local < 0 || at >= v.Stop() {
				continue
			}

			mix += v.gainAt(local) * v.oscillate(local)
		}

		mix = math.Max(-1, math.Min(1, mix))
		pcm[i] = int16(mix * math.MaxInt16)
	}

	return pcm
}

// wavHeader is the canonical 44-byte PCM RIFF header.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

const (
	bitsPerSample  = 16
	bytesPerSample = bitsPerSample / 8
	pcmFormat      = 1
	pcmChunkSize   = 16
	riffHeaderRest = 36
)

var errBadSampleRate = errors.New("sample rate must be positive")

// EncodeWAV writes mono 16-bit PCM as a WAV stream.
func EncodeWAV(w io.Writer, pcm []int16, sampleRate int) error {
	if sampleRate <= 0 {
		return errBadSampleRate
	}

	dataSize := uint32(len(pcm) * bytesPerSample) //nolint:gosec // Bursts are well under 4 GiB.

	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     riffHeaderRest + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: pcmChunkSize,
		AudioFormat:   pcmFormat,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),                  //nolint:gosec // Validated above.
		ByteRate:      uint32(sampleRate * bytesPerSample), //nolint:gosec // Validated above.
		BlockAlign:    bytesPerSample,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}

	return nil
}
