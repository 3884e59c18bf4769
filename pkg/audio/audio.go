// Package audio prepares uploaded recordings for the transcription service.
// Container formats pass through; raw telephony and PCM streams are wrapped as WAV.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/zaf/g711"
)

// Encoding names the format of an uploaded recording
type Encoding string

const (
	EncodingUnknown Encoding = ""
	EncodingWebM    Encoding = "webm"
	EncodingWAV     Encoding = "wav"
	EncodingMP3     Encoding = "mp3"
	EncodingOgg     Encoding = "ogg"
	EncodingFLAC    Encoding = "flac"
	EncodingMP4     Encoding = "m4a"
	EncodingMulaw   Encoding = "mulaw"
	EncodingAlaw    Encoding = "alaw"
	EncodingPCM16   Encoding = "pcm16"
)

// DefaultTelephonyRate is the sample rate of G.711 streams when none is given
const DefaultTelephonyRate = 8000

var ErrEmpty = errors.New("audio data is empty")

// ParseEncoding accepts encoding names and common MIME types
func ParseEncoding(s string) (Encoding, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	switch s {
	case "":
		return EncodingUnknown, nil
	case "webm", "audio/webm", "video/webm":
		return EncodingWebM, nil
	case "wav", "wave", "audio/wav", "audio/wave", "audio/x-wav":
		return EncodingWAV, nil
	case "mp3", "mpeg", "audio/mpeg", "audio/mp3":
		return EncodingMP3, nil
	case "ogg", "opus", "audio/ogg", "audio/opus":
		return EncodingOgg, nil
	case "flac", "audio/flac":
		return EncodingFLAC, nil
	case "m4a", "mp4", "audio/mp4", "audio/m4a", "audio/x-m4a":
		return EncodingMP4, nil
	case "mulaw", "ulaw", "pcmu", "audio/basic", "audio/pcmu":
		return EncodingMulaw, nil
	case "alaw", "pcma", "audio/pcma":
		return EncodingAlaw, nil
	case "pcm", "pcm16", "linear16", "audio/l16":
		return EncodingPCM16, nil
	default:
		return EncodingUnknown, fmt.Errorf("unsupported audio encoding %q", s)
	}
}

// Detect guesses a container format from magic bytes
func Detect(data []byte) Encoding {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return EncodingWAV
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return EncodingWebM
	case bytes.HasPrefix(data, []byte("OggS")):
		return EncodingOgg
	case bytes.HasPrefix(data, []byte("fLaC")):
		return EncodingFLAC
	case bytes.HasPrefix(data, []byte("ID3")), len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return EncodingMP3
	case len(data) >= 8 && string(data[4:8]) == "ftyp":
		return EncodingMP4
	default:
		return EncodingUnknown
	}
}

// Normalize returns audio the transcription service accepts, plus an upload
// filename whose extension names its format.
func Normalize(data []byte, enc Encoding, sampleRate int) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmpty
	}
	if enc == EncodingUnknown {
		enc = Detect(data)
	}

	switch enc {
	case EncodingUnknown:
		// Browsers record webm by default
		return data, "audio.webm", nil
	case EncodingWebM, EncodingWAV, EncodingMP3, EncodingOgg, EncodingFLAC, EncodingMP4:
		return data, "audio." + string(enc), nil
	}

	if sampleRate <= 0 {
		sampleRate = DefaultTelephonyRate
	}

	var pcm []byte
	switch enc {
	case EncodingMulaw:
		pcm = g711.DecodeUlaw(data)
	case EncodingAlaw:
		pcm = g711.DecodeAlaw(data)
	case EncodingPCM16:
		pcm = data
	default:
		return nil, "", fmt.Errorf("unsupported audio encoding %q", enc)
	}

	wav, err := PCMToWAV(pcm, 1, sampleRate)
	if err != nil {
		return nil, "", err
	}
	return wav, "audio.wav", nil
}

// PCMToWAV wraps 16-bit little-endian PCM in a WAV header
func PCMToWAV(pcm []byte, channels, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, ErrEmpty
	}
	if channels <= 0 || channels > 2 {
		return nil, errors.New("only mono (1) or stereo (2) channels supported")
	}
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if len(pcm)%(2*channels) != 0 {
		return nil, errors.New("PCM data length doesn't match channel count")
	}

	const (
		bitsPerSample = 16
		formatPCM     = 1
		fmtChunkSize  = 16
		headerSize    = 44
	)

	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(pcm)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	_ = binary.Write(buf, binary.LittleEndian, uint16(formatPCM))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes(), nil
}
