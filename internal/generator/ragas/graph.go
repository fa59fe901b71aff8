package ragas

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/schema"
)

// NodeType 区分文档节点和分块节点。
type NodeType string

const (
	NodeTypeDocument NodeType = "document"
	NodeTypeChunk    NodeType = "chunk"
)

// 节点属性名
const (
	PropPageContent      = "page_content"
	PropDocumentMetadata = "document_metadata"
	PropPageHash         = "page_hash"
	PropEmbedding        = "embedding"
)

// 关系类型
const (
	RelChild   = "child"
	RelSimilar = "similar"
)

// Node 是知识图谱中的节点。
type Node struct {
	ID         string         `json:"id"`
	Type       NodeType       `json:"type"`
	Properties map[string]any `json:"properties"`
}

// Relationship 是两个节点之间的有向或双向边。
type Relationship struct {
	ID            string         `json:"id"`
	Source        string         `json:"source"`
	Target        string         `json:"target"`
	Type          string         `json:"type"`
	Bidirectional bool           `json:"bidirectional"`
	Properties    map[string]any `json:"properties,omitempty"`
}

// KnowledgeGraph 保存文档、分块及其关系。
type KnowledgeGraph struct {
	Nodes         []*Node         `json:"nodes"`
	Relationships []*Relationship `json:"relationships"`
}

// PageHash 返回页面内容的 md5 十六进制摘要。
func PageHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

func newNodeID() string { return uuid.NewString() }

// NewDocumentNode 用文档内容和元数据创建文档节点。
func NewDocumentNode(doc schema.Document) *Node {
	meta := make(map[string]any, len(doc.Metadata))
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	return &Node{
		ID:   newNodeID(),
		Type: NodeTypeDocument,
		Properties: map[string]any{
			PropPageContent:      doc.PageContent,
			PropDocumentMetadata: meta,
			PropPageHash:         PageHash(doc.PageContent),
		},
	}
}

// NewKnowledgeGraph 为每个文档创建一个节点。
func NewKnowledgeGraph(docs []schema.Document) *KnowledgeGraph {
	kg := &KnowledgeGraph{Nodes: make([]*Node, 0, len(docs))}
	for _, d := range docs {
		kg.Nodes = append(kg.Nodes, NewDocumentNode(d))
	}
	return kg
}

// StringProp 读取字符串属性，不存在时返回空串。
func (n *Node) StringProp(key string) string {
	if n == nil || n.Properties == nil {
		return ""
	}
	s, _ := n.Properties[key].(string)
	return s
}

// Embedding 读取节点向量。磁盘加载后的向量是 []any，这里统一转换为 []float32。
func (n *Node) Embedding() []float32 {
	if n == nil || n.Properties == nil {
		return nil
	}
	switch v := n.Properties[PropEmbedding].(type) {
	case []float32:
		return v
	case []float64:
		out := make([]float32, len(v))
		for i, f := range v {
			out[i] = float32(f)
		}
		return out
	case []any:
		out := make([]float32, 0, len(v))
		for _, x := range v {
			f, ok := x.(float64)
			if !ok {
				return nil
			}
			out = append(out, float32(f))
		}
		return out
	}
	return nil
}

// AddNode 追加节点。
func (kg *KnowledgeGraph) AddNode(n *Node) {
	kg.Nodes = append(kg.Nodes, n)
}

// AddRelationship 追加一条关系。
func (kg *KnowledgeGraph) AddRelationship(source, target *Node, relType string, bidirectional bool, props map[string]any) {
	kg.Relationships = append(kg.Relationships, &Relationship{
		ID:            uuid.NewString(),
		Source:        source.ID,
		Target:        target.ID,
		Type:          relType,
		Bidirectional: bidirectional,
		Properties:    props,
	})
}

// NodesOfType 返回指定类型的节点。
func (kg *KnowledgeGraph) NodesOfType(t NodeType) []*Node {
	var out []*Node
	for _, n := range kg.Nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// NodeIndex 返回 id 到节点的映射。
func (kg *KnowledgeGraph) NodeIndex() map[string]*Node {
	idx := make(map[string]*Node, len(kg.Nodes))
	for _, n := range kg.Nodes {
		idx[n.ID] = n
	}
	return idx
}

// RelationshipsOfType 返回指定类型的关系。
func (kg *KnowledgeGraph) RelationshipsOfType(t string) []*Relationship {
	var out []*Relationship
	for _, r := range kg.Relationships {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// Children 返回 parent 通过 child 关系连接的节点。
func (kg *KnowledgeGraph) Children(parent *Node) []*Node {
	idx := kg.NodeIndex()
	var out []*Node
	for _, r := range kg.Relationships {
		if r.Type == RelChild && r.Source == parent.ID {
			if n, ok := idx[r.Target]; ok {
				out = append(out, n)
			}
		}
	}
	return out
}

func (kg *KnowledgeGraph) validate() error {
	idx := kg.NodeIndex()
	for _, n := range kg.Nodes {
		if n == nil || n.ID == "" {
			return fmt.Errorf("node without id")
		}
	}
	for _, r := range kg.Relationships {
		if r == nil {
			return fmt.Errorf("nil relationship")
		}
		if _, ok := idx[r.Source]; !ok {
			return fmt.Errorf("relationship %s references unknown source %s", r.ID, r.Source)
		}
		if _, ok := idx[r.Target]; !ok {
			return fmt.Errorf("relationship %s references unknown target %s", r.ID, r.Target)
		}
	}
	return nil
}

// Save 以 JSON 写入 path，先写临时文件再重命名。
func (kg *KnowledgeGraph) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create knowledge graph dir: %w", err)
		}
	}
	data, err := json.Marshal(kg)
	if err != nil {
		return fmt.Errorf("encode knowledge graph: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write knowledge graph: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace knowledge graph: %w", err)
	}
	return nil
}

// LoadGraph 从 JSON 文件读取知识图谱。
func LoadGraph(path string) (*KnowledgeGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var kg KnowledgeGraph
	if err := json.Unmarshal(data, &kg); err != nil {
		return nil, fmt.Errorf("decode knowledge graph: %w", err)
	}
	if err := kg.validate(); err != nil {
		return nil, fmt.Errorf("invalid knowledge graph: %w", err)
	}
	return &kg, nil
}
