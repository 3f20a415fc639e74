package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"videoDistill/config"
	"videoDistill/core"
	"videoDistill/processors"
	"videoDistill/storage"
)

// Server 對外提供報告清單、背景處理與知識點查詢
type Server struct {
	cfg      *config.Config
	pipeline *processors.Pipeline
	store    storage.MomentStore

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewServer(cfg *config.Config, pipeline *processors.Pipeline, store storage.MomentStore) *Server {
	return &Server{
		cfg:      cfg,
		pipeline: pipeline,
		store:    store,
		inFlight: map[string]bool{},
	}
}

// RegisterRoutes 掛載所有路由
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/reports", s.reportsHandler)
	mux.HandleFunc("/reports/", s.deleteReportHandler)
	mux.HandleFunc("/process-video", s.processVideoHandler)
	mux.HandleFunc("/query", s.queryHandler)
	mux.HandleFunc("/health", s.healthHandler)
}

// ========== 報告清單 ==========

// reportsHandler 掃描每個輸出目錄：_report_v2.html 為 completed，
// .processing 標記為 processing，依時間戳由新到舊排序。
func (s *Server) reportsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	records := []core.ReportRecord{}
	for _, dir := range s.cfg.OutputDirs {
		records = append(records, scanOutputDir(dir)...)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
	core.WriteJSON(w, http.StatusOK, records)
}

func scanOutputDir(dir config.OutputDir) []core.ReportRecord {
	entries, err := os.ReadDir(dir.Path)
	if err != nil {
		return nil
	}

	var records []core.ReportRecord
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		info, err := e.Info()
		if err != nil {
			continue
		}
		mtime := float64(info.ModTime().UnixNano()) / 1e9

		switch {
		case strings.HasSuffix(name, "_report_v2.html"):
			stem := strings.TrimSuffix(name, "_report_v2.html")
			record := core.ReportRecord{
				VideoName: stem,
				Model:     dir.ModelName,
				ModelKey:  dir.ModelKey,
				Filename:  name,
				ReportURL: fmt.Sprintf("/%s/%s", dir.ModelKey, name),
				Timestamp: mtime,
				Status:    "completed",
			}
			if quizPage := findQuizPage(dir.Path, stem); quizPage != "" {
				record.QuizURL = fmt.Sprintf("/%s/%s", dir.ModelKey, quizPage)
			}
			records = append(records, record)

		case strings.HasSuffix(name, ".processing"):
			stem := strings.TrimSuffix(name, ".processing")
			records = append(records, core.ReportRecord{
				VideoName: stem,
				Model:     dir.ModelName,
				ModelKey:  dir.ModelKey,
				Filename:  name,
				ReportURL: "#",
				Timestamp: mtime,
				Status:    "processing",
			})
		}
	}
	return records
}

// findQuizPage 測驗頁面可能以 stem 或含副檔名的完整檔名命名，兩種都找
func findQuizPage(dirPath, stem string) string {
	direct := stem + "_quiz.html"
	if _, err := os.Stat(filepath.Join(dirPath, direct)); err == nil {
		return direct
	}
	prefix := core.SanitizeVideoName(stem)
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, "_quiz.html") {
			return name
		}
	}
	return ""
}

// ========== 報告刪除 ==========

// deleteReportHandler DELETE /reports/{model_key}/{video_stem}
// 移除四個快取產物與截圖目錄。
func (s *Server) deleteReportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/reports/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "expected /reports/{model_key}/{video_stem}"})
		return
	}
	modelKey, stem := parts[0], parts[1]
	if strings.Contains(stem, "/") || strings.Contains(stem, "..") {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid video name"})
		return
	}

	var target *config.OutputDir
	for i := range s.cfg.OutputDirs {
		if s.cfg.OutputDirs[i].ModelKey == modelKey {
			target = &s.cfg.OutputDirs[i]
			break
		}
	}
	if target == nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid model key"})
		return
	}

	removeArtifacts(target.Path, stem)
	core.WriteJSON(w, http.StatusOK, map[string]string{"message": "教材已刪除"})
}

func removeArtifacts(outDir, stem string) {
	paths := []string{
		core.ReportPath(outDir, stem),
		core.TranscriptionPath(outDir, stem),
		core.QuizPath(outDir, stem),
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: remove %s: %v", p, err)
		}
	}

	// 測驗頁與截圖目錄以清洗後名稱為前綴
	prefix := core.SanitizeVideoName(stem)
	if entries, err := os.ReadDir(outDir); err == nil {
		for _, e := range entries {
			name := e.Name()
			if !e.IsDir() && strings.HasPrefix(name, prefix) && strings.HasSuffix(name, "_quiz.html") {
				if err := os.Remove(filepath.Join(outDir, name)); err != nil {
					log.Printf("Warning: remove %s: %v", name, err)
				}
			}
		}
	}
	screenshotsRoot := filepath.Join(outDir, "screenshots")
	if entries, err := os.ReadDir(screenshotsRoot); err == nil {
		for _, e := range entries {
			if e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
				if err := os.RemoveAll(filepath.Join(screenshotsRoot, e.Name())); err != nil {
					log.Printf("Warning: remove screenshots %s: %v", e.Name(), err)
				}
			}
		}
	}
}

// ========== 背景處理 ==========

type processRequest struct {
	VideoName string `json:"video_name"`
}

// processVideoHandler 啟動背景處理。同一支影片同一時間只允許一個
// 建置：記憶體內的 in-flight 集合與 .processing 標記檔雙重把關。
func (s *Server) processVideoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.VideoName == "" || strings.Contains(req.VideoName, "/") || strings.Contains(req.VideoName, "..") {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "video_name required"})
		return
	}

	videoPath := filepath.Join(s.cfg.VideoDir, req.VideoName)
	if _, err := os.Stat(videoPath); err != nil {
		core.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "video not found"})
		return
	}

	stem := core.VideoStem(videoPath)
	marker := core.ProcessingMarkerPath(s.cfg.PrimaryOutputDir().Path, stem)

	s.mu.Lock()
	if s.inFlight[stem] {
		s.mu.Unlock()
		core.WriteJSON(w, http.StatusConflict, map[string]string{"error": "already processing"})
		return
	}
	if _, err := os.Stat(marker); err == nil {
		s.mu.Unlock()
		core.WriteJSON(w, http.StatusConflict, map[string]string{"error": "already processing"})
		return
	}
	s.inFlight[stem] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, stem)
			s.mu.Unlock()
		}()
		if err := s.pipeline.ProcessVideo(context.Background(), videoPath); err != nil {
			log.Printf("背景處理 %s 失敗: %v", req.VideoName, err)
		}
	}()

	core.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "processing", "video_name": req.VideoName})
}

// ========== 知識點查詢 ==========

type queryRequest struct {
	VideoID string `json:"video_id"`
	Query   string `json:"query"`
	TopK    int    `json:"top_k"`
}

type queryResponse struct {
	VideoID string     `json:"video_id"`
	Query   string     `json:"query"`
	Hits    []core.Hit `json:"hits"`
}

func (s *Server) queryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.VideoID == "" || strings.TrimSpace(req.Query) == "" {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "video_id and query required"})
		return
	}
	hits := s.store.Search(req.VideoID, req.Query, req.TopK)
	if hits == nil {
		hits = []core.Hit{}
	}
	core.WriteJSON(w, http.StatusOK, queryResponse{VideoID: req.VideoID, Query: req.Query, Hits: hits})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
