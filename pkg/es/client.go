// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"llm-eval-go/internal/config"
	"llm-eval-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// qaPairMapping 是问答对索引的映射
const qaPairMapping = `{
	"mappings": {
		"properties": {
			"id": { "type": "keyword" },
			"catalog_id": { "type": "keyword" },
			"question": { "type": "text" },
			"expected_output": { "type": "text" },
			"contexts": { "type": "text" }
		}
	}
}`

// QAPairDocument 是写入索引的问答对。
type QAPairDocument struct {
	ID             string   `json:"id"`
	CatalogID      string   `json:"catalog_id"`
	Question       string   `json:"question"`
	ExpectedOutput string   `json:"expected_output"`
	Contexts       []string `json:"contexts"`
}

// SearchHit 是一条检索命中。
type SearchHit struct {
	Document QAPairDocument `json:"document"`
	Score    float64        `json:"score"`
}

// NewClient 根据配置创建 Elasticsearch 客户端。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return elasticsearch.NewClient(cfg)
}

// InitES 初始化全局客户端并确保问答对索引存在。
func InitES(esCfg config.ElasticsearchConfig) error {
	client, err := NewClient(esCfg)
	if err != nil {
		return err
	}
	ESClient = client
	return NewQAPairIndex(client, esCfg.IndexName).EnsureIndex(context.Background())
}

// QAPairIndex 封装问答对索引的读写。
type QAPairIndex struct {
	client *elasticsearch.Client
	name   string
}

// NewQAPairIndex 创建索引封装。
func NewQAPairIndex(client *elasticsearch.Client, name string) *QAPairIndex {
	return &QAPairIndex{client: client, name: name}
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它。
func (i *QAPairIndex) EnsureIndex(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.name}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", i.name)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = i.client.Indices.Create(
		i.name,
		i.client.Indices.Create.WithBody(strings.NewReader(qaPairMapping)),
		i.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", i.name, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", i.name, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}
	log.Infof("索引 '%s' 创建成功", i.name)
	return nil
}

// Index 写入或覆盖一条问答对。
func (i *QAPairIndex) Index(ctx context.Context, doc QAPairDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      i.name,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("索引问答对到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index qa pair")
	}
	return nil
}

// Search 在指定目录内全文检索问答对，问题字段权重更高。
func (i *QAPairIndex) Search(ctx context.Context, catalogID, query string, size int) ([]SearchHit, error) {
	if size <= 0 {
		size = 20
	}
	esQuery := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":  query,
						"fields": []string{"question^2", "expected_output", "contexts"},
					},
				},
				"filter": map[string]any{
					"term": map[string]any{"catalog_id": catalogID},
				},
			},
		},
		"size": size,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.name),
		i.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		log.Errorf("[ES] 检索返回错误, status: %s, body: %s", res.Status(), string(body))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source QAPairDocument `json:"_source"`
				Score  float64        `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	hits := make([]SearchHit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, SearchHit{Document: h.Source, Score: h.Score})
	}
	return hits, nil
}

// DeleteByCatalog 删除某个目录的全部问答对。
func (i *QAPairIndex) DeleteByCatalog(ctx context.Context, catalogID string) error {
	body := fmt.Sprintf(`{"query":{"term":{"catalog_id":%q}}}`, catalogID)
	res, err := i.client.DeleteByQuery(
		[]string{i.name},
		strings.NewReader(body),
		i.client.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("delete by query failed: %s", res.Status())
	}
	return nil
}
