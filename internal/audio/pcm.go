// Package audio 提供终端客户端的麦克风采集、扬声器播放与语音端点检测。
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidWAV        = errors.New("invalid wav data")
)

// Int16ToBytes converts samples to 16-bit little-endian PCM.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToFloat32 converts 16-bit little-endian PCM to samples in [-1, 1).
func BytesToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out
}

// WAVInfo describes the PCM payload of a WAV file.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DecodeWAV walks the RIFF chunks and returns the PCM data chunk. Only
// uncompressed 16-bit PCM is accepted.
func DecodeWAV(data []byte) ([]byte, WAVInfo, error) {
	var info WAVInfo
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, info, ErrInvalidWAV
	}

	pos := 12
	haveFmt := false
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			// 部分服务端写入的 data 长度不准确，按剩余字节处理
			if id == "data" && haveFmt {
				return data[body:], info, nil
			}
			return nil, info, ErrInvalidWAV
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, info, ErrInvalidWAV
			}
			if tag := binary.LittleEndian.Uint16(data[body:]); tag != 1 {
				return nil, info, fmt.Errorf("%w: wav encoding %d", ErrUnsupportedFormat, tag)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			if info.Channels < 1 || info.SampleRate < 1 {
				return nil, info, ErrInvalidWAV
			}
			if info.BitsPerSample != 16 {
				return nil, info, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, info.BitsPerSample)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, info, ErrInvalidWAV
			}
			return data[body : body+size], info, nil
		}

		pos = body + size + size%2
	}
	return nil, info, ErrInvalidWAV
}
