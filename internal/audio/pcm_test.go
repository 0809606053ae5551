package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/zhouzirui/locus/backend/internal/service/speech"
)

func TestDecodeWAVRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	pcm := Int16ToBytes(samples)

	data := speech.EncodeWAV(pcm, 16000, 1)
	got, info, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("pcm mismatch: %v vs %v", got, pcm)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestDecodeWAVSkipsExtraChunks(t *testing.T) {
	pcm := Int16ToBytes([]int16{5, 6})
	data := speech.EncodeWAV(pcm, 24000, 1)

	// 在 fmt 与 data 之间插入 LIST 块
	list := []byte("LIST")
	list = binary.LittleEndian.AppendUint32(list, 4)
	list = append(list, "INFO"...)
	withList := append(append(append([]byte{}, data[:36]...), list...), data[36:]...)

	got, info, err := DecodeWAV(withList)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, pcm) || info.SampleRate != 24000 {
		t.Fatalf("unexpected result %v %+v", got, info)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("ID3\x04mp3data")); !errors.Is(err, ErrInvalidWAV) {
		t.Fatalf("expected ErrInvalidWAV, got %v", err)
	}
}

func TestBytesToFloat32(t *testing.T) {
	out := BytesToFloat32(Int16ToBytes([]int16{0, 16384, -32768}))
	want := []float32{0, 0.5, -1}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("sample %d: got %v want %v", i, out[i], want[i])
		}
	}
}
