package render

import (
	"fmt"
	"html/template"
	"log"
	"os"
	"path/filepath"

	"videoDistill/core"
)

// ReportRenderer 把蒸餾結果與截圖渲染成靜態報告
type ReportRenderer interface {
	Render(videoName string, content *core.DistilledContent, screenshots []core.ScreenshotRef, outPath string) error
}

// HTMLReportRenderer 輸出單頁 HTML 報告
type HTMLReportRenderer struct{}

type reportRow struct {
	Title     string
	Start     float64
	End       float64
	Text      string
	ImagePath string
}

type reportData struct {
	VideoName string
	Summary   string
	Rows      []reportRow
	QuizPage  string
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="zh-TW">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>影片知識點報告 - {{.VideoName}}</title>
    <style>
        body { font-family: 'Noto Sans TC', sans-serif, 'Segoe UI'; line-height: 1.6; color: #333; max-width: 1000px; margin: 0 auto; padding: 30px; background-color: #f8f9fa; }
        h1 { color: #1a2a6c; text-align: center; margin-bottom: 30px; font-size: 2.2em; }
        .summary-box { background: #ffffff; padding: 25px; border-radius: 12px; box-shadow: 0 4px 15px rgba(0,0,0,0.05); margin-bottom: 40px; border-top: 6px solid #b21f1f; }
        .summary-title { font-weight: bold; font-size: 1.4em; margin-bottom: 15px; color: #b21f1f; }
        .segment { display: flex; background: white; margin-bottom: 30px; border-radius: 12px; overflow: hidden; box-shadow: 0 4px 12px rgba(0,0,0,0.08); }
        .segment-image { flex: 0 0 350px; overflow: hidden; border-right: 1px solid #eee; }
        .segment-image img { width: 100%; height: 100%; object-fit: cover; display: block; }
        .segment-content { padding: 20px; flex: 1; }
        .segment-title { font-size: 1.25em; font-weight: bold; color: #1a2a6c; margin-bottom: 6px; }
        .timestamp { color: #888; font-size: 0.82em; margin-bottom: 12px; }
        .segment-text { font-size: 1.05em; line-height: 1.7; color: #444; }
        .quiz-link { display: inline-block; padding: 14px 40px; background: linear-gradient(135deg, #1a2a6c, #b21f1f); color: white; text-decoration: none; border-radius: 30px; font-size: 1.1em; font-weight: bold; }
        @media (max-width: 768px) {
            .segment { flex-direction: column; }
            .segment-image { flex: 0 0 auto; }
        }
    </style>
</head>
<body>
    <h1>影片知識點詳細報告</h1>
    <div style="text-align: center; margin-bottom: 20px; color: #666;">
        <strong>檔名:</strong> {{.VideoName}}
    </div>

    <div class="summary-box">
        <div class="summary-title">內容要點總結</div>
        <div style="font-size: 1.1em;">{{.Summary}}</div>
    </div>

    <div class="segments-container">
{{range .Rows}}        <div class="segment">
            <div class="segment-image">
                <img src="{{.ImagePath}}" alt="{{.Title}}">
            </div>
            <div class="segment-content">
                <div class="segment-title">{{.Title}}</div>
                <div class="timestamp">{{printf "%.1f" .Start}}s - {{printf "%.1f" .End}}s</div>
                <div class="segment-text">{{.Text}}</div>
            </div>
        </div>
{{end}}    </div>

    <footer style="text-align: center; padding: 40px; color: #888; font-size: 0.9em;">
        <a href="{{.QuizPage}}" class="quiz-link">📝 開始測驗</a>
        <div style="margin-top: 10px;">Generated by Video Distill</div>
    </footer>
</body>
</html>
`))

// Render 生成報告，截圖數量必須與知識點一一對應
func (r *HTMLReportRenderer) Render(videoName string, content *core.DistilledContent, screenshots []core.ScreenshotRef, outPath string) error {
	log.Printf("正在生成 HTML 報告: %s...", filepath.Base(outPath))
	if len(screenshots) != len(content.KeyMoments) {
		return fmt.Errorf("screenshot count %d does not match moment count %d", len(screenshots), len(content.KeyMoments))
	}

	data := reportData{
		VideoName: videoName,
		Summary:   content.Summary,
		QuizPage:  core.SanitizeVideoName(videoName) + "_quiz.html",
	}
	sanitized := core.SanitizeVideoName(videoName)
	for i, m := range content.KeyMoments {
		data.Rows = append(data.Rows, reportRow{
			Title:     m.Title,
			Start:     m.Start,
			End:       m.End,
			Text:      m.Text,
			ImagePath: fmt.Sprintf("screenshots/%s/%s", sanitized, screenshots[i].FileName),
		})
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create report file: %v", err)
	}
	defer f.Close()
	if err := reportTemplate.Execute(f, data); err != nil {
		return fmt.Errorf("render report: %v", err)
	}
	return nil
}
