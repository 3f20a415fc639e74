package core

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// 產物路徑契約：報告清單與測驗頁面都依賴這些命名規則，
// 修改任何一條都會讓既有快取失效。

var videoExtensions = map[string]bool{
	".mp4": true,
	".mkv": true,
	".mov": true,
	".avi": true,
}

// IsVideoFile 判斷檔名是否為支援的影片格式
func IsVideoFile(name string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}

// VideoStem 取出不含副檔名的檔名，作為所有快取產物的鍵
func VideoStem(videoPath string) string {
	base := filepath.Base(videoPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SanitizeVideoName 把檔名中的空白換成底線，用於網頁與截圖目錄命名
func SanitizeVideoName(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}

func TranscriptionPath(outputDir, stem string) string {
	return filepath.Join(outputDir, stem+"_transcription.json")
}

func QuizPath(outputDir, stem string) string {
	return filepath.Join(outputDir, stem+"_quiz.json")
}

func ReportPath(outputDir, stem string) string {
	return filepath.Join(outputDir, stem+"_report_v2.html")
}

// QuizPagePath 測驗頁面以完整檔名（含副檔名）清洗後命名
func QuizPagePath(outputDir, videoName string) string {
	return filepath.Join(outputDir, SanitizeVideoName(videoName)+"_quiz.html")
}

func ScreenshotDir(outputDir, videoName string) string {
	return filepath.Join(outputDir, "screenshots", SanitizeVideoName(videoName))
}

// ScreenshotFileName 第 i 個知識點的截圖檔名（零起算，補零三位）
func ScreenshotFileName(i int) string {
	return fmt.Sprintf("key_%03d.jpg", i)
}

// ProcessingMarkerPath 背景任務執行期間存在的標記檔
func ProcessingMarkerPath(outputDir, stem string) string {
	return filepath.Join(outputDir, stem+".processing")
}

// ========== JSON 讀寫 ==========

// WriteJSONAtomic 先寫入暫存檔再改名，避免讀取方看到寫到一半的 JSON
func WriteJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %v", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %v", err)
	}
	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode json: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %v", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename temp file: %v", err)
	}
	return nil
}

// ReadJSONFile 讀取並解析 JSON 快取檔
func ReadJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %v", filepath.Base(path), err)
	}
	return nil
}

// WriteJSON 以 JSON 回應 HTTP 請求，不轉義 HTML 字元以保持中文原樣
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "write json error: %v", err)
	}
}
