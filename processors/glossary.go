package processors

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"videoDistill/core"
)

// GlossaryTable 字詞庫全表。key 的宣告順序決定匹配優先序，
// 所以不能用 map 解析，改用 token 流保留順序。
type GlossaryTable struct {
	keys    []string
	entries map[string]core.Glossary
}

// LoadGlossaryTable 讀取字詞庫檔案，檔案不存在時回傳空表而非錯誤
func LoadGlossaryTable(path string) (*GlossaryTable, error) {
	table := &GlossaryTable{entries: map[string]core.Glossary{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return table, nil
		}
		return nil, fmt.Errorf("read glossary file: %v", err)
	}

	dec := json.NewDecoder(strings.NewReader(string(data)))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse glossary file: %v", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("glossary file must be a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse glossary key: %v", err)
		}
		key := tok.(string)
		var entry core.Glossary
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("parse glossary entry %q: %v", key, err)
		}
		if _, dup := table.entries[key]; !dup {
			table.keys = append(table.keys, key)
		}
		table.entries[key] = entry
	}
	return table, nil
}

// Len 回傳字詞庫條目數
func (t *GlossaryTable) Len() int {
	return len(t.keys)
}

// Match 依影片名稱匹配字詞組：宣告順序優先，第一個出現在檔名中的
// key 獲勝；無匹配時退回 default，連 default 都沒有就回傳空表。
func (t *GlossaryTable) Match(videoName string) core.Glossary {
	for _, key := range t.keys {
		if key == "default" {
			continue
		}
		if strings.Contains(videoName, key) {
			log.Printf("字詞庫匹配：「%s」", key)
			return t.entries[key]
		}
	}
	if entry, ok := t.entries["default"]; ok {
		log.Printf("字詞庫匹配：使用預設 (default)")
		return entry
	}
	return core.Glossary{}
}
