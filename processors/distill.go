package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"videoDistill/core"
)

// ChatCompleter 聊天補全介面，*openai.Client 直接滿足
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Distiller 把原始轉錄翻譯、校正並濃縮為關鍵知識點
type Distiller struct {
	cli   ChatCompleter
	model string
}

func NewDistiller(cli ChatCompleter, model string) *Distiller {
	return &Distiller{cli: cli, model: model}
}

// go-openai 的 omitempty 會丟棄溫度 0，改用最小正值近似
const deterministicTemperature = math.SmallestNonzeroFloat32

// Distill 呼叫聊天端點做翻譯、校正與重點篩選，回傳通過結構驗證的結果
func (d *Distiller) Distill(ctx context.Context, segments []core.Segment, glossary core.Glossary, videoName string) (*core.DistilledContent, error) {
	log.Printf("正在處理文本：翻譯、校正專有名詞並篩選關鍵知識點...")

	prompt := buildDistillPrompt(segments, glossary)
	req := openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: deterministicTemperature,
	}

	resp, err := d.cli.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("distill API failed: %v", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("distill returned no choices")
	}

	var content core.DistilledContent
	raw := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return nil, fmt.Errorf("parse distill response: %v", err)
	}
	if err := content.Validate(len(segments)); err != nil {
		return nil, fmt.Errorf("invalid distill response: %v", err)
	}
	log.Printf("蒸餾完成：%d 個片段 -> %d 個知識點 (%s)", len(segments), len(content.KeyMoments), videoName)
	return &content, nil
}

// buildDistillPrompt 組裝蒸餾提示詞，字詞庫各小節為空時省略
func buildDistillPrompt(segments []core.Segment, glossary core.Glossary) string {
	lines := make([]string, 0, len(segments))
	for _, s := range segments {
		lines = append(lines, fmt.Sprintf("[%.1f-%.1f] %s", s.Start, s.End, s.Text))
	}
	textToProcess := strings.Join(lines, "\n")

	var termsSection strings.Builder
	if strings.TrimSpace(glossary.TopicHint) != "" {
		fmt.Fprintf(&termsSection, "- 本影片主題：%s\n", glossary.TopicHint)
	}
	if len(glossary.Corrections) > 0 {
		wrongs := make([]string, 0, len(glossary.Corrections))
		for wrong := range glossary.Corrections {
			wrongs = append(wrongs, wrong)
		}
		sort.Strings(wrongs)
		rules := make([]string, 0, len(wrongs))
		for _, wrong := range wrongs {
			rules = append(rules, fmt.Sprintf("「%s」→「%s」", wrong, glossary.Corrections[wrong]))
		}
		fmt.Fprintf(&termsSection, "- 名詞校正規則：%s\n", strings.Join(rules, "、"))
	}
	if len(glossary.KeyTerms) > 0 {
		fmt.Fprintf(&termsSection, "- 領域關鍵詞彙：%s\n", strings.Join(glossary.KeyTerms, ", "))
	}

	return fmt.Sprintf(`你是一個專業的影音逐字稿翻譯與教學重點摘要專家。
請將以下帶有時間軸的逐字稿內容進行精煉處理。

### 原始逐字稿內容：
%s

### 字詞庫與專業術語參考：
%s

### 重要任務與要求：
1. **翻譯與校正**：將所有內容翻譯為「繁體中文」。請嚴格依照上方「名詞校正規則」修正錯誤用詞。
2. **篩選重點**：原始內容可能包含過多零碎的對話或雜訊。請從中挑選出「真正的關鍵知識點 (Key Knowledge Points)」。
3. **摘要**：提供一份整體的繁體中文內容摘要。
4. **輸出格式**：必須為 JSON。
5. **JSON 結構**：
{
  "summary": "這裡填寫整體的繁體中文摘要",
  "key_moments": [
    {
      "title": "此段落的精簡標題（5-15字）",
      "start": 0.0,
      "end": 10.5,
      "text": "翻譯並校正後的繁體中文內容"
    },
    ...
  ]
}
6. **準則**：
   - 請將鄰近且主題相同的 segment 合併為一個 key_moment，確保總數量適中（建議 5-15 個）。
   - 每個 key_moment 必須有一個精簡的「title」欄位，用一句話概括該段落的核心知識點。

請只返回 JSON 內容。`, textToProcess, termsSection.String())
}
