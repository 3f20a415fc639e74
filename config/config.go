package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// OutputDir 一個輸出目錄對應一個模型來源，清單 API 以 ModelKey 區分
type OutputDir struct {
	ModelKey  string `json:"model_key"`
	ModelName string `json:"model_name"`
	Path      string `json:"path"`
}

type Config struct {
	APIKey          string      `json:"api_key"`
	BaseURL         string      `json:"base_url"`
	ChatModel       string      `json:"chat_model"`
	TranscribeModel string      `json:"transcribe_model"`
	EmbeddingModel  string      `json:"embedding_model"`
	EmbeddingDim    int         `json:"embedding_dim"`
	PostgresURL     string      `json:"postgres_url"`
	VideoDir        string      `json:"video_dir"`
	OutputDirs      []OutputDir `json:"output_dirs"`
	TempDir         string      `json:"temp_dir"`
	GlossaryPath    string      `json:"glossary_path"`
	LLMTimeoutSec   int         `json:"llm_timeout_seconds"`
	ASRTimeoutSec   int         `json:"asr_timeout_seconds"`
}

// LoadConfig 讀取 config.json 並以環境變數覆寫，每次呼叫都重新讀取
func LoadConfig() (*Config, error) {
	config := defaultConfig()

	if data, err := os.ReadFile("config.json"); err == nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config.json: %v", err)
		}
	}

	// Override with environment variables if present
	if key := os.Getenv("MISTRAL_API_KEY"); key != "" {
		config.APIKey = key
	}
	if key := os.Getenv("API_KEY"); key != "" {
		config.APIKey = key
	}
	if url := os.Getenv("BASE_URL"); url != "" {
		config.BaseURL = url
	}
	if model := os.Getenv("CHAT_MODEL"); model != "" {
		config.ChatModel = model
	}
	if model := os.Getenv("TRANSCRIBE_MODEL"); model != "" {
		config.TranscribeModel = model
	}
	if model := os.Getenv("EMBEDDING_MODEL"); model != "" {
		config.EmbeddingModel = model
	}
	if dim := os.Getenv("EMBEDDING_DIM"); dim != "" {
		if v, err := strconv.Atoi(dim); err == nil && v > 0 {
			config.EmbeddingDim = v
		}
	}
	if url := os.Getenv("POSTGRES_URL"); url != "" {
		config.PostgresURL = url
	}
	if dir := os.Getenv("VIDEO_DIR"); dir != "" {
		config.VideoDir = dir
	}
	if dir := os.Getenv("OUTPUT_DIR"); dir != "" && len(config.OutputDirs) > 0 {
		config.OutputDirs[0].Path = dir
	}
	if dir := os.Getenv("TEMP_DIR"); dir != "" {
		config.TempDir = dir
	}
	if path := os.Getenv("GLOSSARY_PATH"); path != "" {
		config.GlossaryPath = path
	}

	if len(config.OutputDirs) == 0 {
		return nil, fmt.Errorf("at least one output directory is required")
	}
	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		BaseURL:         "https://api.mistral.ai/v1",
		ChatModel:       "mistral-large-latest",
		TranscribeModel: "voxtral-mini-latest",
		EmbeddingModel:  "mistral-embed",
		EmbeddingDim:    1024,
		VideoDir:        "Video",
		OutputDirs: []OutputDir{
			{ModelKey: "output", ModelName: "Mistral (Default)", Path: "output"},
		},
		TempDir:       "temp_audio",
		GlossaryPath:  "terms.json",
		LLMTimeoutSec: 180,
		ASRTimeoutSec: 600,
	}
}

// PrimaryOutputDir 第一個輸出目錄是管線的寫入目標，其餘僅供清單 API 掃描
func (c *Config) PrimaryOutputDir() OutputDir {
	return c.OutputDirs[0]
}

func (c *Config) Validate() error {
	var errors []string

	if strings.TrimSpace(c.APIKey) == "" {
		errors = append(errors, "API Key is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		errors = append(errors, "Base URL is required")
	}
	if strings.TrimSpace(c.ChatModel) == "" {
		errors = append(errors, "Chat model is required")
	}
	if strings.TrimSpace(c.TranscribeModel) == "" {
		errors = append(errors, "Transcribe model is required")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

func (c *Config) HasValidAPI() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.BaseURL) != ""
}

func PrintConfigInstructions() {
	fmt.Println("\n=== 配置說明 ===")
	fmt.Println("請在 config.json 或 .env 檔案中填寫以下配置：")
	fmt.Println("1. api_key: 您的 Mistral API 密鑰 (環境變數 MISTRAL_API_KEY)")
	fmt.Println("2. base_url: API 基礎 URL (預設: https://api.mistral.ai/v1)")
	fmt.Println("3. chat_model: 聊天模型 (預設: mistral-large-latest)")
	fmt.Println("4. transcribe_model: 轉錄模型 (預設: voxtral-mini-latest)")
	fmt.Println("5. video_dir: 影片目錄 (預設: Video)")
	fmt.Println("6. output_dirs: 輸出目錄清單，第一個為寫入目標")
	fmt.Println("7. glossary_path: 字詞庫路徑 (預設: terms.json)")
	fmt.Println("\n配置完成後重新啟動服務。")
	fmt.Println("==================")
}
