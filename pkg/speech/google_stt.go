package speech

import (
	"context"
	"fmt"
	"path"
	"strings"

	gspeech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/config"
)

// GoogleTranscriber 从对象存储读取音频，调用 Google Cloud Speech 同步识别。
type GoogleTranscriber struct {
	client   *gspeech.Client
	store    AudioStore
	language string
}

// NewGoogleTranscriber 创建 gRPC 识别客户端，凭证取自 GOOGLE_APPLICATION_CREDENTIALS。
func NewGoogleTranscriber(ctx context.Context, cfg config.SpeechConfig, store AudioStore) (*GoogleTranscriber, error) {
	client, err := gspeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleTranscriber{client: client, store: store, language: cfg.LanguageCode}, nil
}

func (g *GoogleTranscriber) Transcribe(ctx context.Context, audioRef string) (string, error) {
	audio, err := g.store.Get(ctx, audioRef)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encodingFor(audioRef),
			LanguageCode:               g.language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", fmt.Errorf("speech recognize failed: %w", err)
	}

	var sb strings.Builder
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(strings.TrimSpace(alts[0].GetTranscript()))
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyTranscript
	}
	return sb.String(), nil
}

// Close 释放 gRPC 连接。
func (g *GoogleTranscriber) Close() error {
	return g.client.Close()
}

func encodingFor(ref string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(path.Ext(ref)) {
	case ".webm":
		return speechpb.RecognitionConfig_WEBM_OPUS
	case ".ogg", ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	case ".flac":
		return speechpb.RecognitionConfig_FLAC
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
