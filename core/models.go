package core

import (
	"fmt"
	"sort"
	"strings"
)

// ========== 基礎資料結構 ==========

// Segment 語音轉錄產生的時間對齊片段
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// KeyMoment 經過翻譯、修正與合併後的知識點
type KeyMoment struct {
	Title string  `json:"title"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// DistilledContent 蒸餾階段的快取產物，寫入一次後重複讀取
type DistilledContent struct {
	Summary    string      `json:"summary"`
	KeyMoments []KeyMoment `json:"key_moments"`
}

// ScreenshotRef 每個知識點對應的代表畫面
type ScreenshotRef struct {
	MomentIndex int     `json:"moment_index"`
	FileName    string  `json:"file_name"`
	Score       float64 `json:"score"`
}

// ========== 測驗相關結構體 ==========

const (
	QuestionTypeSingle   = "single"
	QuestionTypeMultiple = "multiple"
)

// 五種固定的題目分類
var QuizCategories = []string{"事實記憶", "操作程序", "安全意識", "概念理解", "情境判斷"}

type QuizQuestion struct {
	ID          int               `json:"id"`
	Type        string            `json:"type"`
	Category    string            `json:"category"`
	Question    string            `json:"question"`
	Options     map[string]string `json:"options"`
	Answer      []string          `json:"answer"`
	Explanation string            `json:"explanation"`
}

type Quiz struct {
	QuizTitle string         `json:"quiz_title"`
	Questions []QuizQuestion `json:"questions"`
}

// Glossary 領域詞彙表，供蒸餾提示詞使用
type Glossary struct {
	Corrections map[string]string `json:"corrections"`
	KeyTerms    []string          `json:"key_terms"`
	TopicHint   string            `json:"topic_hint"`
}

// IsEmpty 判斷詞彙表是否沒有任何內容
func (g Glossary) IsEmpty() bool {
	return len(g.Corrections) == 0 && len(g.KeyTerms) == 0 && strings.TrimSpace(g.TopicHint) == ""
}

// ========== 檢索相關結構體 ==========

// Hit 知識點檢索結果
type Hit struct {
	VideoID string  `json:"video_id"`
	Title   string  `json:"title"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
}

// ReportRecord 報告清單中的單筆狀態記錄
type ReportRecord struct {
	VideoName string  `json:"video_name"`
	Model     string  `json:"model"`
	ModelKey  string  `json:"model_key"`
	Filename  string  `json:"filename"`
	ReportURL string  `json:"report_url,omitempty"`
	QuizURL   string  `json:"quiz_url,omitempty"`
	Timestamp float64 `json:"timestamp"`
	Status    string  `json:"status"`
}

// ========== 驗證 ==========

// Validate 檢查蒸餾結果的結構是否可以作為快取產物落盤。
// segmentCount 為輸入轉錄片段數，0 表示未知（略過數量上限檢查）。
func (d *DistilledContent) Validate(segmentCount int) error {
	if strings.TrimSpace(d.Summary) == "" {
		return fmt.Errorf("summary is empty")
	}
	if len(d.KeyMoments) == 0 {
		return fmt.Errorf("no key moments returned")
	}
	if segmentCount > 0 && len(d.KeyMoments) > segmentCount {
		return fmt.Errorf("key moment count %d exceeds input segment count %d", len(d.KeyMoments), segmentCount)
	}
	if segmentCount >= 15 && (len(d.KeyMoments) < 5 || len(d.KeyMoments) > 15) {
		return fmt.Errorf("key moment count %d outside expected range 5-15", len(d.KeyMoments))
	}
	// 依起始時間排序後再檢查區間，模型偶爾會打亂順序
	sort.SliceStable(d.KeyMoments, func(i, j int) bool {
		return d.KeyMoments[i].Start < d.KeyMoments[j].Start
	})
	for i, m := range d.KeyMoments {
		if strings.TrimSpace(m.Title) == "" {
			return fmt.Errorf("moment %d: title is empty", i)
		}
		if strings.TrimSpace(m.Text) == "" {
			return fmt.Errorf("moment %d: text is empty", i)
		}
		if m.Start < 0 {
			return fmt.Errorf("moment %d: negative start %.2f", i, m.Start)
		}
		if m.End <= m.Start {
			return fmt.Errorf("moment %d: end %.2f not after start %.2f", i, m.End, m.Start)
		}
	}
	return nil
}

// Validate 檢查測驗結構，answer 必須是 options 鍵的子集
func (q *Quiz) Validate() error {
	if len(q.Questions) < 8 || len(q.Questions) > 12 {
		return fmt.Errorf("question count %d outside expected range 8-12", len(q.Questions))
	}
	for i, question := range q.Questions {
		if err := question.validate(); err != nil {
			return fmt.Errorf("question %d: %v", i+1, err)
		}
	}
	return nil
}

func (q *QuizQuestion) validate() error {
	if q.Type != QuestionTypeSingle && q.Type != QuestionTypeMultiple {
		return fmt.Errorf("unknown type %q", q.Type)
	}
	if !isKnownCategory(q.Category) {
		return fmt.Errorf("unknown category %q", q.Category)
	}
	if strings.TrimSpace(q.Question) == "" {
		return fmt.Errorf("question text is empty")
	}
	if strings.TrimSpace(q.Explanation) == "" {
		return fmt.Errorf("explanation is empty")
	}
	if len(q.Options) != 4 {
		return fmt.Errorf("expected 4 options, got %d", len(q.Options))
	}
	for _, letter := range []string{"A", "B", "C", "D"} {
		if _, ok := q.Options[letter]; !ok {
			return fmt.Errorf("missing option %s", letter)
		}
	}
	if q.Type == QuestionTypeSingle && len(q.Answer) != 1 {
		return fmt.Errorf("single choice needs exactly 1 answer, got %d", len(q.Answer))
	}
	if q.Type == QuestionTypeMultiple && (len(q.Answer) < 2 || len(q.Answer) > 3) {
		return fmt.Errorf("multiple choice needs 2-3 answers, got %d", len(q.Answer))
	}
	for _, a := range q.Answer {
		if _, ok := q.Options[a]; !ok {
			return fmt.Errorf("answer %q is not an option", a)
		}
	}
	return nil
}

func isKnownCategory(category string) bool {
	for _, c := range QuizCategories {
		if c == category {
			return true
		}
	}
	return false
}
