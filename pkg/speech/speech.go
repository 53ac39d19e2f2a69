// Package speech 提供流水线使用的语音识别与语音合成后端。
package speech

import (
	"context"
	"errors"
	"fmt"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/config"
)

// ErrEmptyTranscript 表示识别结果为空。
var ErrEmptyTranscript = errors.New("empty transcript")

// Transcriber 把已存储的音频引用转写为文本。
type Transcriber interface {
	Transcribe(ctx context.Context, audioRef string) (string, error)
}

// Synthesizer 将文本合成语音，按 key 存储并返回客户端可播放的 URL。
type Synthesizer interface {
	Synthesize(ctx context.Context, text, key string) (string, error)
}

// AudioStore 是后端读写音频的对象存储。
type AudioStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	URL(ctx context.Context, key string) (string, error)
}

// NewTranscriber 根据配置选择识别后端。
func NewTranscriber(ctx context.Context, cfg config.SpeechConfig, store AudioStore) (Transcriber, error) {
	switch cfg.STTProvider {
	case "", "stub":
		return StubTranscriber{}, nil
	case "google":
		return NewGoogleTranscriber(ctx, cfg, store)
	default:
		return nil, fmt.Errorf("unknown stt provider %q", cfg.STTProvider)
	}
}

// NewSynthesizer 根据配置选择合成后端。
func NewSynthesizer(ctx context.Context, cfg config.SpeechConfig, store AudioStore) (Synthesizer, error) {
	switch cfg.TTSProvider {
	case "", "stub":
		return NewStubSynthesizer(store), nil
	case "polly":
		return NewPollySynthesizer(ctx, cfg, store)
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.TTSProvider)
	}
}
