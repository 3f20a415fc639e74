package processors

import (
	"context"
	"log"
	"time"
)

// LLM 呼叫的重試參數。測試可縮短延遲。
var (
	llmMaxAttempts    = 3
	llmRetryBaseDelay = 2 * time.Second
)

// retryLLM 以指數退避重試，attempt 之間尊重 ctx 取消。
// 只用於 LLM 呼叫；轉錄與本地工具失敗不重試。
func retryLLM(ctx context.Context, label string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= llmMaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == llmMaxAttempts {
			break
		}
		delay := llmRetryBaseDelay * time.Duration(1<<(attempt-1))
		log.Printf("Warning: %s失敗（第 %d/%d 次）: %v，%s 後重試", label, attempt, llmMaxAttempts, err, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
