package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"path"
	"strings"
)

// StubTranscriber 在没有识别后端时返回可预测的占位文本，便于本地联调。
type StubTranscriber struct{}

// Transcribe 返回包含音频引用的占位转写。
func (StubTranscriber) Transcribe(_ context.Context, audioRef string) (string, error) {
	if strings.TrimSpace(audioRef) == "" {
		return "", fmt.Errorf("stub transcribe: %w", ErrEmptyTranscript)
	}
	return fmt.Sprintf("This is a placeholder transcription of %s.", path.Base(audioRef)), nil
}

// StubSynthesizer 存储一段静音 WAV，客户端仍能拿到可播放的地址。
type StubSynthesizer struct {
	store AudioStore
}

func NewStubSynthesizer(store AudioStore) *StubSynthesizer {
	return &StubSynthesizer{store: store}
}

func (s *StubSynthesizer) Synthesize(ctx context.Context, text, key string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("stub synthesize: empty text")
	}
	key = key + ".wav"
	if err := s.store.Put(ctx, key, silentWAV(len(text)), "audio/wav"); err != nil {
		return "", err
	}
	return s.store.URL(ctx, key)
}

const stubSampleRate = 8000

// silentWAV 生成 8kHz 单声道 16bit 静音，时长随文本长度增长，最长 5 秒。
func silentWAV(textLen int) []byte {
	samples := stubSampleRate / 10 * (1 + textLen/20)
	if samples > stubSampleRate*5 {
		samples = stubSampleRate * 5
	}
	dataSize := uint32(samples * 2)

	buf := new(bytes.Buffer)
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(buf, binary.LittleEndian, uint32(stubSampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(stubSampleRate*2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataSize)
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}
