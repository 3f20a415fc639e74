package processors

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"videoDistill/core"
)

// AudioExtractor 從影片抽出音軌，輸出 mp3 至暫存目錄
type AudioExtractor struct {
	TempDir string
}

// Extract 提取音訊。呼叫方負責在處理結束後刪除回傳的暫存檔。
func (e *AudioExtractor) Extract(videoPath string) (string, error) {
	if err := os.MkdirAll(e.TempDir, 0755); err != nil {
		return "", fmt.Errorf("create temp dir: %v", err)
	}
	audioPath := filepath.Join(e.TempDir, core.VideoStem(videoPath)+".mp3")
	log.Printf("正在從 %s 提取音訊...", filepath.Base(videoPath))

	err := ffmpeg.Input(videoPath).
		Output(audioPath, ffmpeg.KwArgs{
			"vn":     "",
			"acodec": "libmp3lame",
			"q:a":    "2",
		}).
		OverWriteOutput().
		Silent(true).
		Run()
	if err != nil {
		return "", fmt.Errorf("extract audio from %s: %v", filepath.Base(videoPath), err)
	}
	log.Printf("音訊已提取至 %s", audioPath)
	return audioPath, nil
}

// ProbeDuration 以 ffprobe 取得影片總長度（秒）
func ProbeDuration(videoPath string) (float64, error) {
	out, err := ffmpeg.Probe(videoPath)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %v", filepath.Base(videoPath), err)
	}
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(out), &probe); err != nil {
		return 0, fmt.Errorf("parse probe output: %v", err)
	}
	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %v", probe.Format.Duration, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("invalid duration %.2f", duration)
	}
	return duration, nil
}
