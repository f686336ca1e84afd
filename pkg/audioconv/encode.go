package audioconv

import (
	"errors"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV serializes mono float32 PCM into a 16-bit PCM WAV file in
// memory. The cloud recognizer wants a regular file upload, not raw PCM.
func EncodeWAV(pcm []float32, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("no samples to encode")
	}
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}

	ints := make([]int, len(pcm))
	for i, v := range pcm {
		s := clamp(float64(v), -1.0, 1.0) * 32767.0
		ints[i] = int(int16(s))
	}

	var buf seekBuffer
	enc := wav.NewEncoder(&buf, sampleRate, 16, 1, 1)
	err := enc.Write(&gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           ints,
	})
	if err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.data, nil
}

// seekBuffer is the minimal WriteSeeker the wav encoder needs: it seeks
// back to patch the RIFF header after writing the samples.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case 0:
		next = int(offset)
	case 1:
		next = b.pos + int(offset)
	case 2:
		next = len(b.data) + int(offset)
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("negative seek position")
	}
	b.pos = next
	return int64(next), nil
}
