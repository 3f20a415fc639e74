package storage

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/pgvector/pgvector-go"
	openai "github.com/sashabaranov/go-openai"

	"videoDistill/config"
	"videoDistill/core"
)

// MomentStore 知識點檢索後端。索引失敗不影響管線產物，僅記錄警告。
type MomentStore interface {
	// Name 回報實際生效的後端，退回記憶體實作時與 STORE 設定不同
	Name() string
	IndexMoments(videoID string, content *core.DistilledContent) int
	Search(videoID string, query string, topK int) []core.Hit
}

// NewMomentStore 依 STORE 環境變數選擇後端：memory（預設）、pgvector、milvus。
// 後端初始化失敗時退回記憶體實作，不中斷服務啟動。
func NewMomentStore(cfg *config.Config) MomentStore {
	kind := strings.ToLower(strings.TrimSpace(os.Getenv("STORE")))
	switch kind {
	case "pgvector":
		if !cfg.HasValidAPI() {
			config.PrintConfigInstructions()
			log.Printf("Warning: API configuration required for pgvector store, falling back to memory store")
			break
		}
		s, err := newPgMomentStore(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize pgvector store (%v), falling back to memory store", err)
			break
		}
		return s
	case "milvus":
		if !cfg.HasValidAPI() {
			config.PrintConfigInstructions()
			log.Printf("Warning: API configuration required for Milvus store, falling back to memory store")
			break
		}
		s, err := newMilvusMomentStore(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize Milvus store (%v), falling back to memory store", err)
			break
		}
		return s
	}
	return NewMemoryMomentStore()
}

// ---------------- Memory implementation ----------------

// MemoryMomentStore 詞頻向量的記憶體索引，無外部依賴
type MemoryMomentStore struct {
	mu   sync.RWMutex
	docs map[string][]memoryDoc
}

type memoryDoc struct {
	moment core.KeyMoment
	embed  map[string]float64
}

func NewMemoryMomentStore() *MemoryMomentStore {
	return &MemoryMomentStore{docs: map[string][]memoryDoc{}}
}

func (s *MemoryMomentStore) Name() string {
	return "memory"
}

func (s *MemoryMomentStore) IndexMoments(videoID string, content *core.DistilledContent) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make([]memoryDoc, 0, len(content.KeyMoments))
	for _, m := range content.KeyMoments {
		docs = append(docs, memoryDoc{moment: m, embed: embedText(strings.ToLower(m.Title + " " + m.Text))})
	}
	s.docs[videoID] = docs
	return len(docs)
}

func (s *MemoryMomentStore) Search(videoID string, query string, topK int) []core.Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.docs[videoID]
	qv := embedText(strings.ToLower(query))

	type scored struct {
		i     int
		score float64
	}
	scores := make([]scored, 0, len(docs))
	for i, d := range docs {
		scores = append(scores, scored{i, cosine(qv, d.embed)})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if topK <= 0 || topK > len(scores) {
		topK = minInt(len(scores), 5)
	}
	hits := make([]core.Hit, 0, topK)
	for _, sc := range scores[:topK] {
		m := docs[sc.i].moment
		hits = append(hits, core.Hit{VideoID: videoID, Title: m.Title, Start: m.Start, End: m.End, Text: m.Text, Score: sc.score})
	}
	return hits
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func embedText(text string) map[string]float64 {
	toks := tokenize(text)
	m := map[string]float64{}
	for _, t := range toks {
		m[t] += 1
	}
	// L2 normalize
	var sum float64
	for _, v := range m {
		sum += v * v
	}
	if sum == 0 {
		return m
	}
	norm := math.Sqrt(sum)
	for k, v := range m {
		m[k] = v / norm
	}
	return m
}

func cosine(a, b map[string]float64) float64 {
	var dot float64
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	return dot
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ---------------- 共用 embedding ----------------

type embedder struct {
	cli   *openai.Client
	model string
}

func newEmbedder(cfg *config.Config) *embedder {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &embedder{cli: openai.NewClientWithConfig(clientConfig), model: cfg.EmbeddingModel}
}

func (e *embedder) embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	}
	resp, err := e.cli.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embedding API failed: %v", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return resp.Data[0].Embedding, nil
}

// ---------------- PgVector implementation ----------------

type PgMomentStore struct {
	// 連線池：serve 模式下背景建置與 /query 會同時打進來
	conn *pgxpool.Pool
	emb  *embedder
	dim  int
}

func newPgMomentStore(cfg *config.Config) (*PgMomentStore, error) {
	dbURL := cfg.PostgresURL
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, fmt.Errorf("postgres_url not configured")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PgMomentStore{conn: pool, emb: newEmbedder(cfg), dim: cfg.EmbeddingDim}
	if err := s.ensureTable(); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgMomentStore) Name() string {
	return "pgvector"
}

func (s *PgMomentStore) ensureTable() error {
	ctx := context.Background()

	if _, err := s.conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	tableQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS key_moments (
			id SERIAL PRIMARY KEY,
			video_id VARCHAR(255) NOT NULL,
			moment_index INT NOT NULL,
			title TEXT NOT NULL,
			start_time FLOAT NOT NULL,
			end_time FLOAT NOT NULL,
			text TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(video_id, moment_index)
		);
	`, s.dim)
	if _, err := s.conn.Exec(ctx, tableQuery); err != nil {
		return fmt.Errorf("create key_moments table: %w", err)
	}

	if _, err := s.conn.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_key_moments_video_id ON key_moments(video_id);"); err != nil {
		log.Printf("Warning: failed to create video_id index: %v", err)
	}
	return nil
}

func (s *PgMomentStore) IndexMoments(videoID string, content *core.DistilledContent) int {
	ctx := context.Background()
	successCount := 0
	for i, m := range content.KeyMoments {
		embedding, err := s.emb.embed(ctx, strings.ToLower(m.Title+" "+m.Text))
		if err != nil {
			log.Printf("Warning: embed moment %d of %s failed: %v", i, videoID, err)
			continue
		}
		vec := pgvector.NewVector(embedding)
		_, err = s.conn.Exec(ctx, `
			INSERT INTO key_moments (video_id, moment_index, title, start_time, end_time, text, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (video_id, moment_index)
			DO UPDATE SET
				title = EXCLUDED.title,
				start_time = EXCLUDED.start_time,
				end_time = EXCLUDED.end_time,
				text = EXCLUDED.text,
				embedding = EXCLUDED.embedding
		`, videoID, i, m.Title, m.Start, m.End, m.Text, vec)
		if err != nil {
			log.Printf("Warning: upsert moment %d of %s failed: %v", i, videoID, err)
			continue
		}
		successCount++
	}
	return successCount
}

func (s *PgMomentStore) Search(videoID string, query string, topK int) []core.Hit {
	if topK <= 0 {
		topK = 5
	}
	ctx := context.Background()
	queryEmbedding, err := s.emb.embed(ctx, strings.ToLower(query))
	if err != nil {
		log.Printf("Warning: embed query failed: %v", err)
		return nil
	}
	vec := pgvector.NewVector(queryEmbedding)

	rows, err := s.conn.Query(ctx, `
		SELECT title, start_time, end_time, text,
			   1 - (embedding <=> $1) AS similarity
		FROM key_moments
		WHERE video_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, vec, videoID, topK)
	if err != nil {
		log.Printf("Warning: pgvector search failed: %v", err)
		return nil
	}
	defer rows.Close()

	var hits []core.Hit
	for rows.Next() {
		var h core.Hit
		if err := rows.Scan(&h.Title, &h.Start, &h.End, &h.Text, &h.Score); err != nil {
			continue
		}
		h.VideoID = videoID
		hits = append(hits, h)
	}
	return hits
}

// ---------------- Milvus implementation ----------------

type MilvusMomentStore struct {
	mc   client.Client
	coll string
	emb  *embedder
	dim  int
}

func newMilvusMomentStore(cfg *config.Config) (*MilvusMomentStore, error) {
	addr := os.Getenv("MILVUS_ADDR")
	if addr == "" {
		addr = "localhost:19530"
	}
	coll := os.Getenv("MILVUS_COLLECTION")
	if coll == "" {
		coll = "key_moments"
	}

	mc, err := client.NewClient(context.Background(), client.Config{
		Address:  addr,
		Username: os.Getenv("MILVUS_USERNAME"),
		Password: os.Getenv("MILVUS_PASSWORD"),
		APIKey:   os.Getenv("MILVUS_API_KEY"),
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	s := &MilvusMomentStore{mc: mc, coll: coll, emb: newEmbedder(cfg), dim: cfg.EmbeddingDim}
	if err := s.ensureSchemaAndIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MilvusMomentStore) Name() string {
	return "milvus"
}

// momentCollectionSchema 的名稱必須等於集合名，否則建立後的
// CreateIndex / LoadCollection 會找不到集合。
func momentCollectionSchema(coll string, dim int) *entity.Schema {
	schema := entity.NewSchema().WithName(coll)
	schema.WithField(entity.NewField().WithName("id").WithIsAutoID(true).WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64))
	schema.WithField(entity.NewField().WithName("video_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(255))
	schema.WithField(entity.NewField().WithName("title").WithDataType(entity.FieldTypeVarChar).WithMaxLength(512))
	schema.WithField(entity.NewField().WithName("start").WithDataType(entity.FieldTypeDouble))
	schema.WithField(entity.NewField().WithName("end").WithDataType(entity.FieldTypeDouble))
	schema.WithField(entity.NewField().WithName("text").WithDataType(entity.FieldTypeVarChar).WithMaxLength(8192))
	schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dim)))
	return schema
}

func (s *MilvusMomentStore) ensureSchemaAndIndex() error {
	ctx := context.Background()
	has, err := s.mc.HasCollection(ctx, s.coll)
	if err != nil {
		return err
	}
	if !has {
		if err := s.mc.CreateCollection(ctx, momentCollectionSchema(s.coll, s.dim), int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, s.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := s.mc.LoadCollection(ctx, s.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusMomentStore) IndexMoments(videoID string, content *core.DistilledContent) int {
	ctx := context.Background()
	videoIDs := make([]string, 0, len(content.KeyMoments))
	titles := make([]string, 0, len(content.KeyMoments))
	starts := make([]float64, 0, len(content.KeyMoments))
	ends := make([]float64, 0, len(content.KeyMoments))
	texts := make([]string, 0, len(content.KeyMoments))
	vectors := make([][]float32, 0, len(content.KeyMoments))

	for i, m := range content.KeyMoments {
		v, err := s.emb.embed(ctx, strings.ToLower(m.Title+" "+m.Text))
		if err != nil {
			log.Printf("Warning: embed moment %d of %s failed: %v", i, videoID, err)
			continue
		}
		videoIDs = append(videoIDs, videoID)
		titles = append(titles, m.Title)
		starts = append(starts, m.Start)
		ends = append(ends, m.End)
		texts = append(texts, m.Text)
		vectors = append(vectors, v)
	}
	if len(vectors) == 0 {
		return 0
	}

	_, err := s.mc.Insert(ctx, s.coll, "",
		entity.NewColumnVarChar("video_id", videoIDs),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnDouble("start", starts),
		entity.NewColumnDouble("end", ends),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("vector", s.dim, vectors),
	)
	if err != nil {
		log.Printf("Warning: milvus insert failed: %v", err)
		return 0
	}
	return len(vectors)
}

func (s *MilvusMomentStore) Search(videoID string, query string, topK int) []core.Hit {
	if topK <= 0 {
		topK = 5
	}
	ctx := context.Background()
	v, err := s.emb.embed(ctx, strings.ToLower(query))
	if err != nil {
		log.Printf("Warning: embed query failed: %v", err)
		return nil
	}

	sp, _ := entity.NewIndexHNSWSearchParam(74)
	filter := fmt.Sprintf("video_id == \"%s\"", strings.ReplaceAll(videoID, "\"", "\\\""))
	res, err := s.mc.Search(ctx, s.coll, []string{}, filter,
		[]string{"title", "start", "end", "text"},
		[]entity.Vector{entity.FloatVector(v)}, "vector", entity.COSINE, topK, sp)
	if err != nil {
		log.Printf("Warning: milvus search failed: %v", err)
		return nil
	}

	var hits []core.Hit
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			h := core.Hit{VideoID: videoID, Score: float64(r.Scores[i])}
			if c, ok := cols["title"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					h.Title = data[i]
				}
			}
			if c, ok := cols["start"].(*entity.ColumnDouble); ok {
				if data := c.Data(); i < len(data) {
					h.Start = data[i]
				}
			}
			if c, ok := cols["end"].(*entity.ColumnDouble); ok {
				if data := c.Data(); i < len(data) {
					h.End = data[i]
				}
			}
			if c, ok := cols["text"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					h.Text = data[i]
				}
			}
			hits = append(hits, h)
		}
	}
	return hits
}
