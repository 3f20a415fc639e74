package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"videoDistill/config"
	"videoDistill/core"
	"videoDistill/storage"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	outDir := filepath.Join(root, "output")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		VideoDir: filepath.Join(root, "Video"),
		OutputDirs: []config.OutputDir{
			{ModelKey: "output", ModelName: "Mistral (Default)", Path: outDir},
		},
	}
	return NewServer(cfg, nil, storage.NewMemoryMomentStore()), outDir
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestReportsListing(t *testing.T) {
	s, outDir := newTestServer(t)
	base := time.Now().Add(-time.Hour)
	touch(t, filepath.Join(outDir, "older lesson_report_v2.html"), base)
	touch(t, filepath.Join(outDir, "newer lesson_report_v2.html"), base.Add(30*time.Minute))
	touch(t, filepath.Join(outDir, "newer_lesson.mp4_quiz.html"), base.Add(31*time.Minute))
	touch(t, filepath.Join(outDir, "in progress.processing"), base.Add(10*time.Minute))
	touch(t, filepath.Join(outDir, "unrelated.txt"), base)

	rec := doRequest(t, s, http.MethodGet, "/reports", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var records []core.ReportRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records: %+v", len(records), records)
	}

	// 由新到舊排序
	if records[0].VideoName != "newer lesson" || records[1].VideoName != "in progress" || records[2].VideoName != "older lesson" {
		t.Errorf("wrong order: %s, %s, %s", records[0].VideoName, records[1].VideoName, records[2].VideoName)
	}

	newer := records[0]
	if newer.Status != "completed" {
		t.Errorf("status = %q", newer.Status)
	}
	if newer.ReportURL != "/output/newer lesson_report_v2.html" {
		t.Errorf("report url = %q", newer.ReportURL)
	}
	if newer.QuizURL != "/output/newer_lesson.mp4_quiz.html" {
		t.Errorf("quiz url = %q", newer.QuizURL)
	}
	if newer.Model != "Mistral (Default)" || newer.ModelKey != "output" {
		t.Errorf("model fields wrong: %+v", newer)
	}

	inProgress := records[1]
	if inProgress.Status != "processing" || inProgress.ReportURL != "#" {
		t.Errorf("processing record wrong: %+v", inProgress)
	}
	if inProgress.QuizURL != "" {
		t.Errorf("processing record has quiz url: %q", inProgress.QuizURL)
	}
}

func TestReportsEmptyDir(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/reports", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("empty listing should be [], got %s", body)
	}
}

func TestFindQuizPageVariants(t *testing.T) {
	dir := t.TempDir()

	// stem 命名
	if err := os.WriteFile(filepath.Join(dir, "demo_quiz.html"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := findQuizPage(dir, "demo"); got != "demo_quiz.html" {
		t.Errorf("got %q", got)
	}

	// 完整檔名命名，stem 含空白
	dir2 := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir2, "demo_lecture.mp4_quiz.html"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := findQuizPage(dir2, "demo lecture"); got != "demo_lecture.mp4_quiz.html" {
		t.Errorf("got %q", got)
	}

	if got := findQuizPage(t.TempDir(), "missing"); got != "" {
		t.Errorf("got %q for missing page", got)
	}
}

func TestDeleteReport(t *testing.T) {
	s, outDir := newTestServer(t)
	stem := "demo lecture"
	name := "demo lecture.mp4"
	for _, p := range []string{
		core.TranscriptionPath(outDir, stem),
		core.QuizPath(outDir, stem),
		core.ReportPath(outDir, stem),
		core.QuizPagePath(outDir, name),
	} {
		touch(t, p, time.Now())
	}
	shotDir := core.ScreenshotDir(outDir, name)
	if err := os.MkdirAll(shotDir, 0755); err != nil {
		t.Fatal(err)
	}
	touch(t, filepath.Join(shotDir, "key_000.jpg"), time.Now())
	// 其他影片的產物不得波及
	touch(t, filepath.Join(outDir, "other_transcription.json"), time.Now())

	rec := doRequest(t, s, http.MethodDelete, "/reports/output/demo%20lecture", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	for _, p := range []string{
		core.TranscriptionPath(outDir, stem),
		core.QuizPath(outDir, stem),
		core.ReportPath(outDir, stem),
		core.QuizPagePath(outDir, name),
		shotDir,
	} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("artifact survived delete: %s", p)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "other_transcription.json")); err != nil {
		t.Errorf("unrelated artifact removed")
	}
}

func TestDeleteReportValidation(t *testing.T) {
	s, _ := newTestServer(t)

	if rec := doRequest(t, s, http.MethodDelete, "/reports/output/a..b", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("traversal accepted: %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodDelete, "/reports/nosuchmodel/demo", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown model key accepted: %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/reports/output/demo", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET on delete route: %d", rec.Code)
	}
}

func TestProcessVideoValidation(t *testing.T) {
	s, outDir := newTestServer(t)
	if err := os.MkdirAll(s.cfg.VideoDir, 0755); err != nil {
		t.Fatal(err)
	}

	if rec := doRequest(t, s, http.MethodPost, "/process-video", "not json"); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid json accepted: %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodPost, "/process-video", `{"video_name":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty name accepted: %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodPost, "/process-video", `{"video_name":"../../etc/passwd"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("traversal accepted: %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodPost, "/process-video", `{"video_name":"missing.mp4"}`); rec.Code != http.StatusNotFound {
		t.Errorf("missing video: %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/process-video", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET accepted: %d", rec.Code)
	}

	// 標記檔存在時視為處理中，不啟動第二個建置
	touch(t, filepath.Join(s.cfg.VideoDir, "busy.mp4"), time.Now())
	touch(t, core.ProcessingMarkerPath(outDir, "busy"), time.Now())
	if rec := doRequest(t, s, http.MethodPost, "/process-video", `{"video_name":"busy.mp4"}`); rec.Code != http.StatusConflict {
		t.Errorf("marker ignored: %d", rec.Code)
	}
}

func TestQueryEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	s.store.IndexMoments("lesson1", &core.DistilledContent{
		Summary: "x",
		KeyMoments: []core.KeyMoment{
			{Title: "argon handling", Start: 0, End: 30, Text: "argon cylinder rules"},
		},
	})

	rec := doRequest(t, s, http.MethodPost, "/query", `{"video_id":"lesson1","query":"argon","top_k":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		VideoID string     `json:"video_id"`
		Hits    []core.Hit `json:"hits"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.VideoID != "lesson1" || len(resp.Hits) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}

	// 沒有命中時回空陣列而非 null
	rec = doRequest(t, s, http.MethodPost, "/query", `{"video_id":"nothing","query":"argon"}`)
	if !strings.Contains(rec.Body.String(), `"hits": []`) && !strings.Contains(rec.Body.String(), `"hits":[]`) {
		t.Errorf("hits not an empty array: %s", rec.Body.String())
	}

	if rec := doRequest(t, s, http.MethodPost, "/query", `{"video_id":"","query":"x"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty video_id accepted: %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("health check failed: %d %s", rec.Code, rec.Body.String())
	}
}
