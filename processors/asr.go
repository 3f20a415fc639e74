package processors

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	openai "github.com/sashabaranov/go-openai"

	"videoDistill/core"
)

// ASRProvider 語音轉錄服務介面
type ASRProvider interface {
	Transcribe(ctx context.Context, audioPath string) ([]core.Segment, error)
}

// WhisperASR 透過 OpenAI 相容端點進行轉錄，要求 segment 級時間戳
type WhisperASR struct {
	cli   *openai.Client
	model string
}

func NewWhisperASR(cli *openai.Client, model string) *WhisperASR {
	return &WhisperASR{cli: cli, model: model}
}

func (w *WhisperASR) Transcribe(ctx context.Context, audioPath string) ([]core.Segment, error) {
	log.Printf("正在呼叫轉錄 API: %s...", filepath.Base(audioPath))

	req := openai.AudioRequest{
		Model:    w.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularitySegment,
		},
	}
	resp, err := w.cli.CreateTranscription(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("transcription API failed: %v", err)
	}
	if len(resp.Segments) == 0 {
		return nil, fmt.Errorf("transcription returned no segments")
	}

	segments := make([]core.Segment, len(resp.Segments))
	for i, s := range resp.Segments {
		segments[i] = core.Segment{Start: s.Start, End: s.End, Text: s.Text}
	}
	log.Printf("轉錄完成，共 %d 個片段", len(segments))
	return segments, nil
}
