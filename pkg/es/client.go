// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"next-chatbot-go/internal/config"
	"next-chatbot-go/internal/model"
	"next-chatbot-go/pkg/log"
)

const transcriptMapping = `{
	"mappings": {
		"properties": {
			"doc_id": { "type": "keyword" },
			"client_id": { "type": "keyword" },
			"session_id": { "type": "keyword" },
			"username": { "type": "keyword" },
			"index": { "type": "integer" },
			"role": { "type": "keyword" },
			"content": { "type": "text" },
			"archived_at": { "type": "date" }
		}
	}
}`

// TranscriptIndex 是归档消息所在的索引。
type TranscriptIndex struct {
	client    *elasticsearch.Client
	indexName string
}

// NewClient 创建 Elasticsearch 客户端。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	var addrs []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addrs,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
}

// NewTranscriptIndex 包装客户端，不检查索引是否存在。
func NewTranscriptIndex(client *elasticsearch.Client, indexName string) *TranscriptIndex {
	return &TranscriptIndex{client: client, indexName: indexName}
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它。
func (x *TranscriptIndex) EnsureIndex(ctx context.Context) error {
	res, err := x.client.Indices.Exists([]string{x.indexName}, x.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("检查索引是否存在时出错: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", x.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = x.client.Indices.Create(
		x.indexName,
		x.client.Indices.Create.WithContext(ctx),
		x.client.Indices.Create.WithBody(strings.NewReader(transcriptMapping)),
	)
	if err != nil {
		return fmt.Errorf("创建索引 '%s' 失败: %w", x.indexName, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", x.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", x.indexName)
	return nil
}

// IndexDocument 写入一条归档消息，DocID 相同则覆盖，重复归档是幂等的。
func (x *TranscriptIndex) IndexDocument(ctx context.Context, doc model.TranscriptDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      x.indexName,
		DocumentID: doc.DocID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index document")
	}
	return nil
}

// buildSearchQuery 只在当前客户端的归档里做全文匹配。
func buildSearchQuery(clientID, query string, size int) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"match": map[string]interface{}{
						"content": query,
					},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{"client_id": clientID},
				},
			},
		},
		"size": size,
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64                  `json:"_score"`
			Source model.TranscriptDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search 在某个客户端的归档消息中全文检索。
func (x *TranscriptIndex) Search(ctx context.Context, clientID, query string, size int) ([]model.TranscriptSearchHit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildSearchQuery(clientID, query, size)); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := x.client.Search(
		x.client.Search.WithContext(ctx),
		x.client.Search.WithIndex(x.indexName),
		x.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.String())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	hits := make([]model.TranscriptSearchHit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, model.TranscriptSearchHit{
			SessionID: h.Source.SessionID,
			Index:     h.Source.Index,
			Role:      h.Source.Role,
			Content:   h.Source.Content,
			Score:     h.Score,
		})
	}
	return hits, nil
}
