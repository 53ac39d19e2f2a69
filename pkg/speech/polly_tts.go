package speech

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"

	"github.com/sahilahluwalia/bolchaal-sub000/internal/config"
)

type pollyAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollySynthesizer 用 Amazon Polly 合成回复语音，MP3 写入对象存储。
type PollySynthesizer struct {
	client pollyAPI
	store  AudioStore
	voice  string
}

// NewPollySynthesizer 按配置的 region 加载 AWS 默认凭证链并创建 Polly 客户端。
func NewPollySynthesizer(ctx context.Context, cfg config.SpeechConfig, store AudioStore) (*PollySynthesizer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.PollyRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &PollySynthesizer{client: polly.NewFromConfig(awsCfg), store: store, voice: cfg.VoiceID}, nil
}

func (p *PollySynthesizer) Synthesize(ctx context.Context, text, key string) (string, error) {
	out, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       pollytypes.EngineNeural,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         aws.String(text),
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(p.voice),
	})
	if err != nil {
		return "", fmt.Errorf("polly synthesize failed: %w", err)
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return "", fmt.Errorf("read polly audio stream: %w", err)
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("polly returned empty audio")
	}

	key = key + ".mp3"
	if err := p.store.Put(ctx, key, audio, "audio/mpeg"); err != nil {
		return "", err
	}
	return p.store.URL(ctx, key)
}
