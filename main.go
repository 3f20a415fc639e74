package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"videoDistill/config"
	"videoDistill/processors"
	"videoDistill/server"
	"videoDistill/storage"
)

func main() {
	// .env 不存在時忽略，環境變數仍可由外部注入
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: load .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if !cfg.HasValidAPI() {
		config.PrintConfigInstructions()
		log.Fatalf("錯誤：請在 .env 檔案中設定 MISTRAL_API_KEY")
	}

	store := storage.NewMomentStore(cfg)
	log.Printf("Moment store initialized: %s", store.Name())

	pipeline, err := processors.NewPipeline(cfg, store)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	mode := "batch"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	switch mode {
	case "serve":
		srv := server.NewServer(cfg, pipeline, store)
		mux := http.NewServeMux()
		srv.RegisterRoutes(mux)
		// 靜態掛載各輸出目錄，報告與測驗頁直接以 /{model_key}/ 存取
		for _, dir := range cfg.OutputDirs {
			prefix := "/" + dir.ModelKey + "/"
			mux.Handle(prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(dir.Path))))
		}

		addr := ":8080"
		if v := os.Getenv("PORT"); v != "" {
			addr = ":" + v
		}
		log.Printf("Server listening on %s", addr)
		log.Fatal(http.ListenAndServe(addr, mux))

	case "batch":
		if err := pipeline.Run(context.Background()); err != nil {
			log.Fatalf("batch run failed: %v", err)
		}

	default:
		log.Printf("未知參數: %s", mode)
		log.Println("可用參數:")
		log.Println("  batch - 批次處理影片目錄（預設）")
		log.Println("  serve - 啟動 HTTP 服務")
		os.Exit(1)
	}
}
