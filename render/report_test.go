package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"videoDistill/core"
)

func testContent() *core.DistilledContent {
	return &core.DistilledContent{
		Summary: "課程摘要",
		KeyMoments: []core.KeyMoment{
			{Title: "開場", Start: 0, End: 12.5, Text: "介紹課程範圍"},
			{Title: "重點", Start: 30, End: 58, Text: "示範操作"},
		},
	}
}

func TestReportRender(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "report.html")
	screenshots := []core.ScreenshotRef{
		{MomentIndex: 0, FileName: "key_000.jpg", Score: 40},
		{MomentIndex: 1, FileName: "key_001.jpg", Score: 55},
	}

	r := &HTMLReportRenderer{}
	if err := r.Render("demo lecture.mp4", testContent(), screenshots, outPath); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	html := string(data)

	// 截圖路徑用清洗後的完整檔名作子目錄
	if !strings.Contains(html, "screenshots/demo_lecture.mp4/key_000.jpg") {
		t.Errorf("screenshot path missing or wrong:\n%s", html)
	}
	if !strings.Contains(html, `href="demo_lecture.mp4_quiz.html"`) {
		t.Errorf("quiz link missing or wrong")
	}
	for _, want := range []string{"課程摘要", "開場", "示範操作", "0.0s - 12.5s", "demo lecture.mp4"} {
		if !strings.Contains(html, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestReportRenderCountMismatch(t *testing.T) {
	r := &HTMLReportRenderer{}
	screenshots := []core.ScreenshotRef{{MomentIndex: 0, FileName: "key_000.jpg"}}
	err := r.Render("demo.mp4", testContent(), screenshots, filepath.Join(t.TempDir(), "r.html"))
	if err == nil {
		t.Fatal("mismatched screenshot count accepted")
	}
}

func TestQuizRender(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "quiz.html")

	quiz := &core.Quiz{
		QuizTitle: "焊接安全測驗",
		Questions: []core.QuizQuestion{
			{
				ID:          1,
				Type:        core.QuestionTypeSingle,
				Category:    "安全意識",
				Question:    "進入工場前應配戴什麼？",
				Options:     map[string]string{"A": "安全帽", "B": "拖鞋", "C": "耳機", "D": "手環"},
				Answer:      []string{"A"},
				Explanation: "工場規定必須配戴安全帽。",
			},
		},
	}

	r := &HTMLQuizRenderer{}
	if err := r.Render("demo lecture.mp4", quiz, outPath); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	html := string(data)

	for _, want := range []string{"焊接安全測驗", "進入工場前應配戴什麼？", "安全帽"} {
		if !strings.Contains(html, want) {
			t.Errorf("quiz page missing %q", want)
		}
	}
	// 返回報告的連結以 stem 命名
	if !strings.Contains(html, "demo lecture_report_v2.html") {
		t.Errorf("report back-link missing or wrong")
	}
}
