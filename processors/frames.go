package processors

import (
	"bytes"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"videoDistill/core"
)

// ScreenshotCapturer 為每個知識點挑選代表畫面
type ScreenshotCapturer interface {
	Capture(videoPath string, moments []core.KeyMoment, outDir string) ([]core.ScreenshotRef, error)
}

// FFmpegCapturer 以 ffmpeg 解碼候選幀，像素標準差最高者勝出
type FFmpegCapturer struct{}

// 評分用的縮小解析度，只影響分數絕對值不影響排序
const scoreFrameSize = "320x180"

// CandidateTimes 在區間內產生候選時間點。
// 候選數 = clamp(duration/3, 2, 5)，位置為 (k+1)/(c+1) 等分點，
// 並夾在影片結尾前 0.1 秒以避免解碼失敗。純函式，結果可重現。
func CandidateTimes(start, end, videoDuration float64) []float64 {
	duration := end - start
	numCandidates := int(duration / 3)
	if numCandidates < 2 {
		numCandidates = 2
	}
	if numCandidates > 5 {
		numCandidates = 5
	}
	times := make([]float64, 0, numCandidates)
	for k := 0; k < numCandidates; k++ {
		t := start + duration*float64(k+1)/float64(numCandidates+1)
		if limit := videoDuration - 0.1; t > limit {
			t = limit
		}
		times = append(times, t)
	}
	return times
}

// frameScore 像素標準差，越高代表畫面細節越豐富，越不像純色或轉場
func frameScore(pixels []byte) float64 {
	if len(pixels) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pixels {
		sum += float64(p)
	}
	mean := sum / float64(len(pixels))
	var variance float64
	for _, p := range pixels {
		d := float64(p) - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(pixels)))
}

// selectBest 回傳分數最高的候選時間點，同分時保留較早者
func selectBest(times []float64, scores []float64) (float64, float64) {
	bestTime := times[0]
	bestScore := math.Inf(-1)
	for i, t := range times {
		if scores[i] > bestScore {
			bestScore = scores[i]
			bestTime = t
		}
	}
	return bestTime, bestScore
}

// Capture 重建截圖目錄並為每個知識點輸出 key_NNN.jpg。
// 目錄整體銷毀重建，不做增量更新。
func (c *FFmpegCapturer) Capture(videoPath string, moments []core.KeyMoment, outDir string) ([]core.ScreenshotRef, error) {
	log.Printf("正在智慧擷取截圖至 %s...", outDir)
	if err := os.RemoveAll(outDir); err != nil {
		return nil, fmt.Errorf("clean screenshot dir: %v", err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create screenshot dir: %v", err)
	}

	videoDuration, err := ProbeDuration(videoPath)
	if err != nil {
		return nil, err
	}

	refs := make([]core.ScreenshotRef, 0, len(moments))
	for i, moment := range moments {
		candidates := CandidateTimes(moment.Start, moment.End, videoDuration)

		scores := make([]float64, len(candidates))
		for j, t := range candidates {
			pixels, err := c.decodeGrayFrame(videoPath, t)
			if err != nil {
				log.Printf("Warning: decode frame at %.1fs failed: %v", t, err)
				scores[j] = math.Inf(-1)
				continue
			}
			scores[j] = frameScore(pixels)
		}
		bestTime, bestScore := selectBest(candidates, scores)

		fileName := core.ScreenshotFileName(i)
		if err := c.saveFrame(videoPath, bestTime, filepath.Join(outDir, fileName)); err != nil {
			return nil, fmt.Errorf("save frame for moment %d: %v", i, err)
		}
		refs = append(refs, core.ScreenshotRef{MomentIndex: i, FileName: fileName, Score: bestScore})
		log.Printf("  [%d/%d] %s -> %.1fs (score: %.1f)", i+1, len(moments), moment.Title, bestTime, bestScore)
	}
	return refs, nil
}

// decodeGrayFrame 解出單一灰階幀的原始像素
func (c *FFmpegCapturer) decodeGrayFrame(videoPath string, t float64) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	err := ffmpeg.Input(videoPath, ffmpeg.KwArgs{"ss": fmt.Sprintf("%.3f", t)}).
		Output("pipe:", ffmpeg.KwArgs{
			"vframes": 1,
			"format":  "rawvideo",
			"pix_fmt": "gray",
			"s":       scoreFrameSize,
		}).
		WithOutput(buf).
		Silent(true).
		Run()
	if err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("no frame decoded at %.3fs", t)
	}
	return buf.Bytes(), nil
}

// saveFrame 把選定時間點的幀存成 JPEG
func (c *FFmpegCapturer) saveFrame(videoPath string, t float64, outPath string) error {
	return ffmpeg.Input(videoPath, ffmpeg.KwArgs{"ss": fmt.Sprintf("%.3f", t)}).
		Output(outPath, ffmpeg.KwArgs{
			"vframes": 1,
			"q:v":     2,
		}).
		OverWriteOutput().
		Silent(true).
		Run()
}
