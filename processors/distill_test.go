package processors

import (
	"context"
	"fmt"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"videoDistill/core"
)

// fakeChat 依序回放預設回應並記錄收到的提示詞
type fakeChat struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	if len(req.Messages) > 0 {
		f.prompts = append(f.prompts, req.Messages[0].Content)
	}
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.responses[idx]}},
		},
	}, nil
}

func sampleSegments(n int) []core.Segment {
	segs := make([]core.Segment, n)
	for i := range segs {
		segs[i] = core.Segment{Start: float64(i) * 10, End: float64(i)*10 + 9, Text: fmt.Sprintf("segment %d", i)}
	}
	return segs
}

const validDistillJSON = `{
	"summary": "整體摘要",
	"key_moments": [
		{"title": "第二段", "start": 30.0, "end": 45.0, "text": "內容二"},
		{"title": "第一段", "start": 0.0, "end": 20.0, "text": "內容一"}
	]
}`

func TestDistillParsesAndSortsMoments(t *testing.T) {
	fake := &fakeChat{responses: []string{validDistillJSON}}
	d := NewDistiller(fake, "test-model")

	content, err := d.Distill(context.Background(), sampleSegments(4), core.Glossary{}, "demo.mp4")
	if err != nil {
		t.Fatalf("distill failed: %v", err)
	}
	if content.Summary != "整體摘要" {
		t.Errorf("unexpected summary %q", content.Summary)
	}
	if len(content.KeyMoments) != 2 {
		t.Fatalf("expected 2 moments, got %d", len(content.KeyMoments))
	}
	// 回應順序錯亂時必須按起始時間重排
	if content.KeyMoments[0].Title != "第一段" || content.KeyMoments[1].Title != "第二段" {
		t.Errorf("moments not sorted by start: %+v", content.KeyMoments)
	}
}

func TestDistillRejectsInvalidInterval(t *testing.T) {
	fake := &fakeChat{responses: []string{`{
		"summary": "摘要",
		"key_moments": [{"title": "壞區間", "start": 10.0, "end": 10.0, "text": "x"}]
	}`}}
	d := NewDistiller(fake, "test-model")
	if _, err := d.Distill(context.Background(), sampleSegments(2), core.Glossary{}, "demo.mp4"); err == nil {
		t.Fatal("expected error for end <= start")
	}
}

func TestDistillRejectsCountOutsideRange(t *testing.T) {
	// 輸入 20 個片段時，知識點必須落在 5-15
	fake := &fakeChat{responses: []string{`{
		"summary": "摘要",
		"key_moments": [
			{"title": "一", "start": 0, "end": 10, "text": "a"},
			{"title": "二", "start": 10, "end": 20, "text": "b"},
			{"title": "三", "start": 20, "end": 30, "text": "c"}
		]
	}`}}
	d := NewDistiller(fake, "test-model")
	if _, err := d.Distill(context.Background(), sampleSegments(20), core.Glossary{}, "demo.mp4"); err == nil {
		t.Fatal("expected error for too few moments on a long transcript")
	}
}

func TestDistillMergingNeverIncreasesCount(t *testing.T) {
	// 3 個輸入片段回傳 4 個知識點必須被拒絕
	fake := &fakeChat{responses: []string{`{
		"summary": "摘要",
		"key_moments": [
			{"title": "一", "start": 0, "end": 5, "text": "a"},
			{"title": "二", "start": 5, "end": 10, "text": "b"},
			{"title": "三", "start": 10, "end": 15, "text": "c"},
			{"title": "四", "start": 15, "end": 20, "text": "d"}
		]
	}`}}
	d := NewDistiller(fake, "test-model")
	if _, err := d.Distill(context.Background(), sampleSegments(3), core.Glossary{}, "demo.mp4"); err == nil {
		t.Fatal("expected error when moment count exceeds segment count")
	}
}

func TestDistillRejectsMalformedJSON(t *testing.T) {
	fake := &fakeChat{responses: []string{`not json at all`}}
	d := NewDistiller(fake, "test-model")
	if _, err := d.Distill(context.Background(), sampleSegments(2), core.Glossary{}, "demo.mp4"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestBuildDistillPromptSections(t *testing.T) {
	segs := sampleSegments(2)

	// 空字詞庫：三個小節都不該出現
	prompt := buildDistillPrompt(segs, core.Glossary{})
	for _, section := range []string{"本影片主題", "名詞校正規則", "領域關鍵詞彙"} {
		if strings.Contains(prompt, section) {
			t.Errorf("empty glossary must omit section %q", section)
		}
	}
	if !strings.Contains(prompt, "[0.0-9.0] segment 0") {
		t.Errorf("prompt missing timestamped segment line:\n%s", prompt)
	}

	full := core.Glossary{
		Corrections: map[string]string{"雷射": "鐳射", "阿剛": "氬氣"},
		KeyTerms:    []string{"焊接", "電弧"},
		TopicHint:   "金屬加工",
	}
	prompt = buildDistillPrompt(segs, full)
	if !strings.Contains(prompt, "本影片主題：金屬加工") {
		t.Errorf("missing topic hint section")
	}
	if !strings.Contains(prompt, "「阿剛」→「氬氣」") || !strings.Contains(prompt, "「雷射」→「鐳射」") {
		t.Errorf("missing correction rules:\n%s", prompt)
	}
	if !strings.Contains(prompt, "焊接, 電弧") {
		t.Errorf("missing key terms")
	}
}
