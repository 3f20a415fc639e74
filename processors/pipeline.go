package processors

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"videoDistill/config"
	"videoDistill/core"
	"videoDistill/render"
	"videoDistill/storage"
)

// AudioSource 音訊來源介面，測試時可替換
type AudioSource interface {
	Extract(videoPath string) (string, error)
}

// Pipeline 逐支影片執行各階段，以檔案存在與否作為快取命中信號
type Pipeline struct {
	Config    *config.Config
	Glossary  *GlossaryTable
	Audio     AudioSource
	ASR       ASRProvider
	Distiller *Distiller
	Quiz      *QuizSynthesizer
	Capturer  ScreenshotCapturer
	Reports   render.ReportRenderer
	QuizPages render.QuizRenderer
	Store     storage.MomentStore
}

// NewPipeline 以預設元件組裝管線
func NewPipeline(cfg *config.Config, store storage.MomentStore) (*Pipeline, error) {
	glossary, err := LoadGlossaryTable(cfg.GlossaryPath)
	if err != nil {
		return nil, fmt.Errorf("load glossary: %v", err)
	}
	if glossary.Len() == 0 {
		log.Printf("字詞庫為空或不存在: %s", cfg.GlossaryPath)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	cli := openai.NewClientWithConfig(clientConfig)

	return &Pipeline{
		Config:    cfg,
		Glossary:  glossary,
		Audio:     &AudioExtractor{TempDir: cfg.TempDir},
		ASR:       NewWhisperASR(cli, cfg.TranscribeModel),
		Distiller: NewDistiller(cli, cfg.ChatModel),
		Quiz:      NewQuizSynthesizer(cli, cfg.ChatModel),
		Capturer:  &FFmpegCapturer{},
		Reports:   &render.HTMLReportRenderer{},
		QuizPages: &render.HTMLQuizRenderer{},
		Store:     store,
	}, nil
}

// DiscoverVideos 列出影片目錄下所有支援格式的檔案，依檔名排序
func DiscoverVideos(videoDir string) ([]string, error) {
	entries, err := os.ReadDir(videoDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read video dir: %v", err)
	}
	var videos []string
	for _, e := range entries {
		if e.IsDir() || !core.IsVideoFile(e.Name()) {
			continue
		}
		videos = append(videos, filepath.Join(videoDir, e.Name()))
	}
	sort.Strings(videos)
	return videos, nil
}

// Run 批次處理影片目錄。單支影片失敗不中斷整批，
// 只記錄錯誤並處理下一支。
func (p *Pipeline) Run(ctx context.Context) error {
	videos, err := DiscoverVideos(p.Config.VideoDir)
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		log.Printf("在 %s 目錄下找不到影片檔案。", p.Config.VideoDir)
		return nil
	}

	for _, videoPath := range videos {
		log.Printf("--- 開始處理影片: %s ---", filepath.Base(videoPath))
		if err := p.ProcessVideo(ctx, videoPath); err != nil {
			log.Printf("處理影片 %s 時發生錯誤: %v", filepath.Base(videoPath), err)
			continue
		}
		log.Printf("完成: %s", filepath.Base(videoPath))
	}
	return nil
}

// ProcessVideo 處理單支影片。執行期間持有 .processing 標記檔，
// 所有離開路徑都會移除它。
func (p *Pipeline) ProcessVideo(ctx context.Context, videoPath string) error {
	outDir := p.Config.PrimaryOutputDir().Path
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %v", err)
	}

	stem := core.VideoStem(videoPath)
	videoName := filepath.Base(videoPath)

	marker := core.ProcessingMarkerPath(outDir, stem)
	if err := os.WriteFile(marker, []byte("processing"), 0644); err != nil {
		return fmt.Errorf("write processing marker: %v", err)
	}
	defer func() {
		if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: remove processing marker: %v", err)
		}
	}()

	// 階段一：轉錄與蒸餾（含快取）
	content, err := p.loadOrDistill(ctx, videoPath, stem, videoName, outDir)
	if err != nil {
		return err
	}

	// 知識點索引失敗只警告，不影響報告產出
	if p.Store != nil {
		if n := p.Store.IndexMoments(stem, content); n > 0 {
			log.Printf("已索引 %d 個知識點: %s", n, stem)
		}
	}

	// 階段二：截圖與報告，總是重新生成
	screenshotDir := core.ScreenshotDir(outDir, videoName)
	screenshots, err := p.Capturer.Capture(videoPath, content.KeyMoments, screenshotDir)
	if err != nil {
		return fmt.Errorf("capture screenshots: %v", err)
	}

	reportPath := core.ReportPath(outDir, stem)
	if err := p.Reports.Render(videoName, content, screenshots, reportPath); err != nil {
		return fmt.Errorf("render report: %v", err)
	}

	// 階段三：測驗（含快取）與測驗頁面
	quiz, err := p.loadOrSynthesizeQuiz(ctx, content, stem, videoName, outDir)
	if err != nil {
		return fmt.Errorf("generate quiz: %v", err)
	}
	quizPagePath := core.QuizPagePath(outDir, videoName)
	if err := p.QuizPages.Render(videoName, quiz, quizPagePath); err != nil {
		return fmt.Errorf("render quiz page: %v", err)
	}

	log.Printf("JSON 結果: %s", core.TranscriptionPath(outDir, stem))
	log.Printf("HTML 報告: %s", reportPath)
	log.Printf("測驗頁面: %s", quizPagePath)
	return nil
}

// loadOrDistill 讀取蒸餾快取；未命中時走 音訊->轉錄->蒸餾，
// 暫存音訊在所有離開路徑上都會清除。
func (p *Pipeline) loadOrDistill(ctx context.Context, videoPath, stem, videoName, outDir string) (*core.DistilledContent, error) {
	cachePath := core.TranscriptionPath(outDir, stem)
	if _, err := os.Stat(cachePath); err == nil {
		log.Printf("偵測到已有快取 JSON: %s", filepath.Base(cachePath))
		log.Printf("跳過轉錄與翻譯，直接使用快取資料重新生成截圖與 HTML...")
		var content core.DistilledContent
		if err := core.ReadJSONFile(cachePath, &content); err != nil {
			// 快取損毀視為該影片的致命錯誤，不自動重算
			return nil, fmt.Errorf("corrupted cache %s: %v", filepath.Base(cachePath), err)
		}
		return &content, nil
	}

	audioPath, err := p.Audio.Extract(videoPath)
	if err != nil {
		return nil, fmt.Errorf("extract audio: %v", err)
	}
	defer func() {
		if err := os.Remove(audioPath); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: remove temp audio %s: %v", audioPath, err)
		}
	}()

	asrCtx, cancel := context.WithTimeout(ctx, time.Duration(p.Config.ASRTimeoutSec)*time.Second)
	defer cancel()
	segments, err := p.ASR.Transcribe(asrCtx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %v", err)
	}

	llmCtx, cancel := context.WithTimeout(ctx, time.Duration(p.Config.LLMTimeoutSec)*time.Second)
	defer cancel()
	glossary := p.Glossary.Match(videoName)
	var content *core.DistilledContent
	err = retryLLM(llmCtx, "蒸餾", func() error {
		var derr error
		content, derr = p.Distiller.Distill(llmCtx, segments, glossary, videoName)
		return derr
	})
	if err != nil {
		return nil, fmt.Errorf("distill: %v", err)
	}

	if err := core.WriteJSONAtomic(cachePath, content); err != nil {
		return nil, fmt.Errorf("save transcription cache: %v", err)
	}
	log.Printf("JSON 已儲存（作為快取）: %s", cachePath)
	return content, nil
}

// loadOrSynthesizeQuiz 讀取測驗快取，未命中時呼叫 LLM 出題
func (p *Pipeline) loadOrSynthesizeQuiz(ctx context.Context, content *core.DistilledContent, stem, videoName, outDir string) (*core.Quiz, error) {
	cachePath := core.QuizPath(outDir, stem)
	if _, err := os.Stat(cachePath); err == nil {
		log.Printf("偵測到已有測驗快取: %s", filepath.Base(cachePath))
		var quiz core.Quiz
		if err := core.ReadJSONFile(cachePath, &quiz); err != nil {
			return nil, fmt.Errorf("corrupted quiz cache %s: %v", filepath.Base(cachePath), err)
		}
		return &quiz, nil
	}

	llmCtx, cancel := context.WithTimeout(ctx, time.Duration(p.Config.LLMTimeoutSec)*time.Second)
	defer cancel()
	var quiz *core.Quiz
	err := retryLLM(llmCtx, "出題", func() error {
		var qerr error
		quiz, qerr = p.Quiz.Synthesize(llmCtx, content, videoName)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	if err := core.WriteJSONAtomic(cachePath, quiz); err != nil {
		return nil, fmt.Errorf("save quiz cache: %v", err)
	}
	log.Printf("測驗題目已儲存（作為快取）: %s", cachePath)
	return quiz, nil
}
