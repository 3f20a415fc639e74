package processors

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"videoDistill/core"
)

func validQuizJSON(n int) string {
	var b strings.Builder
	b.WriteString(`{"quiz_title": "測驗", "questions": [`)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		qType, answer := "single", `["A"]`
		if i%3 == 0 {
			qType, answer = "multiple", `["A", "C"]`
		}
		fmt.Fprintf(&b, `{
			"id": %d, "type": "%s", "category": "概念理解",
			"question": "題目 %d？",
			"options": {"A": "a", "B": "b", "C": "c", "D": "d"},
			"answer": %s, "explanation": "詳解"
		}`, i+1, qType, i+1, answer)
	}
	b.WriteString("]}")
	return b.String()
}

func sampleContent() *core.DistilledContent {
	return &core.DistilledContent{
		Summary: "摘要",
		KeyMoments: []core.KeyMoment{
			{Title: "知識點一", Start: 0, End: 10, Text: "內容一"},
			{Title: "知識點二", Start: 10, End: 20, Text: "內容二"},
		},
	}
}

func TestQuizSynthesize(t *testing.T) {
	fake := &fakeChat{responses: []string{validQuizJSON(10)}}
	q := NewQuizSynthesizer(fake, "test-model")

	quiz, err := q.Synthesize(context.Background(), sampleContent(), "demo.mp4")
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if len(quiz.Questions) != 10 {
		t.Errorf("expected 10 questions, got %d", len(quiz.Questions))
	}
	if quiz.QuizTitle != "測驗" {
		t.Errorf("unexpected title %q", quiz.QuizTitle)
	}
}

func TestQuizRejectsCountOutsideRange(t *testing.T) {
	for _, n := range []int{7, 13} {
		fake := &fakeChat{responses: []string{validQuizJSON(n)}}
		q := NewQuizSynthesizer(fake, "test-model")
		if _, err := q.Synthesize(context.Background(), sampleContent(), "demo.mp4"); err == nil {
			t.Errorf("expected error for %d questions", n)
		}
	}
}

func TestQuizRejectsAnswerOutsideOptions(t *testing.T) {
	raw := strings.Replace(validQuizJSON(8), `["A"]`, `["E"]`, 1)
	fake := &fakeChat{responses: []string{raw}}
	q := NewQuizSynthesizer(fake, "test-model")
	if _, err := q.Synthesize(context.Background(), sampleContent(), "demo.mp4"); err == nil {
		t.Fatal("expected error for answer not in options")
	}
}

func TestBuildQuizPromptMentionsMoments(t *testing.T) {
	prompt := buildQuizPrompt(sampleContent())
	if !strings.Contains(prompt, "【知識點一】(0.0s-10.0s): 內容一") {
		t.Errorf("prompt missing key moment line:\n%s", prompt)
	}
	if !strings.Contains(prompt, "8-12 題") {
		t.Errorf("prompt missing question count requirement")
	}
	for _, cat := range core.QuizCategories {
		if !strings.Contains(prompt, cat) {
			t.Errorf("prompt missing category %s", cat)
		}
	}
}
