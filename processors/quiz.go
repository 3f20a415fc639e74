package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"videoDistill/core"
)

// QuizSynthesizer 根據蒸餾後的教材內容自動出題
type QuizSynthesizer struct {
	cli   ChatCompleter
	model string
}

func NewQuizSynthesizer(cli ChatCompleter, model string) *QuizSynthesizer {
	return &QuizSynthesizer{cli: cli, model: model}
}

// Synthesize 產生 8-12 題混合單選與多選的測驗，並驗證結構後回傳
func (q *QuizSynthesizer) Synthesize(ctx context.Context, content *core.DistilledContent, videoName string) (*core.Quiz, error) {
	log.Printf("正在使用 AI 生成測驗題目...")

	prompt := buildQuizPrompt(content)
	req := openai.ChatCompletionRequest{
		Model: q.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: deterministicTemperature,
	}

	resp, err := q.cli.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("quiz API failed: %v", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("quiz returned no choices")
	}

	var quiz core.Quiz
	raw := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
		return nil, fmt.Errorf("parse quiz response: %v", err)
	}
	if err := quiz.Validate(); err != nil {
		return nil, fmt.Errorf("invalid quiz response: %v", err)
	}
	log.Printf("測驗生成完成：%d 題 (%s)", len(quiz.Questions), videoName)
	return &quiz, nil
}

func buildQuizPrompt(content *core.DistilledContent) string {
	lines := make([]string, 0, len(content.KeyMoments))
	for _, m := range content.KeyMoments {
		lines = append(lines, fmt.Sprintf("【%s】(%.1fs-%.1fs): %s", m.Title, m.Start, m.End, m.Text))
	}
	keyMomentsText := strings.Join(lines, "\n")

	return fmt.Sprintf(`你是一個專業的教育評量出題專家。請根據以下教材內容，出一份測驗題目。

### 教材摘要：
%s

### 教材詳細內容（關鍵知識點）：
%s

### 出題要求：
1. 出 **8-12 題**，混合「單選題」與「多選題」
2. 涵蓋以下 5 個維度（不需每個維度都有，依教材內容自然分配）：
   - **事實記憶**：測試關鍵數據、規格、名稱的記憶
   - **操作程序**：測試步驟順序是否正確
   - **安全意識**：測試安全規範與防護措施的理解
   - **概念理解**：測試對原理或用途的理解
   - **情境判斷**：給出場景，判斷正確做法
3. 每題 4 個選項 (A/B/C/D)
4. 多選題的正確答案為 2-3 個
5. 每題必須附帶「詳解」，說明為什麼正確、為什麼錯誤，並引用教材對應的知識點

### 輸出格式（必須為 JSON）：
{
  "quiz_title": "測驗標題",
  "questions": [
    {
      "id": 1,
      "type": "single",
      "category": "事實記憶",
      "question": "題目內容？",
      "options": {
        "A": "選項A",
        "B": "選項B",
        "C": "選項C",
        "D": "選項D"
      },
      "answer": ["A"],
      "explanation": "詳解內容，說明正確答案的原因"
    },
    {
      "id": 2,
      "type": "multiple",
      "category": "安全意識",
      "question": "關於安全操作，以下哪些是正確的？（多選）",
      "options": {
        "A": "選項A",
        "B": "選項B",
        "C": "選項C",
        "D": "選項D"
      },
      "answer": ["A", "C"],
      "explanation": "詳解內容"
    }
  ]
}

請只返回 JSON 內容。`, content.Summary, keyMomentsText)
}
