package ragas

import (
	"context"
	"fmt"
	"math"

	"llm-eval-go/pkg/embedding"
	"llm-eval-go/pkg/log"
	"llm-eval-go/pkg/tokenizer"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// metaDocumentNodeID 标记切分后的文档片段属于哪个文档节点。
const metaDocumentNodeID = "document_node_id"

// Transform 是作用于知识图谱的一步转换。
type Transform interface {
	Name() string
	Apply(ctx context.Context, kg *KnowledgeGraph) error
}

// ApplyTransforms 依次执行转换，任一步失败即返回。
func ApplyTransforms(ctx context.Context, kg *KnowledgeGraph, transforms []Transform) error {
	for _, t := range transforms {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Infof("[KnowledgeGraph] 执行转换 %s", t.Name())
		if err := t.Apply(ctx, kg); err != nil {
			return fmt.Errorf("transform %s: %w", t.Name(), err)
		}
	}
	return nil
}

// ChunkSplitter 把已按上限切分的文档片段再切成小块，作为文档节点的子节点。
type ChunkSplitter struct {
	Documents   []schema.Document
	ChunkTokens int
	Tokens      tokenizer.Counter
}

func (s *ChunkSplitter) Name() string { return "chunk_splitter" }

func (s *ChunkSplitter) Apply(_ context.Context, kg *KnowledgeGraph) error {
	size := s.ChunkTokens
	if size <= 0 {
		size = 1024
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(size/8),
		textsplitter.WithLenFunc(s.Tokens),
	)

	idx := kg.NodeIndex()
	added := 0
	for _, doc := range s.Documents {
		parentID, _ := doc.Metadata[metaDocumentNodeID].(string)
		parent, ok := idx[parentID]
		if !ok {
			log.Warnf("[KnowledgeGraph] 片段缺少所属文档节点，跳过")
			continue
		}
		texts, err := splitter.SplitText(doc.PageContent)
		if err != nil {
			return err
		}
		meta := make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			if k != metaDocumentNodeID {
				meta[k] = v
			}
		}
		for _, text := range texts {
			if text == "" {
				continue
			}
			chunk := &Node{
				ID:   newNodeID(),
				Type: NodeTypeChunk,
				Properties: map[string]any{
					PropPageContent:      text,
					PropDocumentMetadata: meta,
				},
			}
			kg.AddNode(chunk)
			kg.AddRelationship(parent, chunk, RelChild, false, nil)
			added++
		}
	}
	log.Infof("[KnowledgeGraph] 新增分块节点 %d 个", added)
	return nil
}

// EmbeddingExtractor 为缺少向量的分块节点计算 embedding。
type EmbeddingExtractor struct {
	Client embedding.Client
}

func (e *EmbeddingExtractor) Name() string { return "embedding_extractor" }

func (e *EmbeddingExtractor) Apply(ctx context.Context, kg *KnowledgeGraph) error {
	var (
		nodes []*Node
		texts []string
	)
	for _, n := range kg.NodesOfType(NodeTypeChunk) {
		if len(n.Embedding()) > 0 {
			continue
		}
		nodes = append(nodes, n)
		texts = append(texts, n.StringProp(PropPageContent))
	}
	if len(nodes) == 0 {
		return nil
	}
	vectors, err := e.Client.CreateEmbeddings(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(nodes) {
		return fmt.Errorf("expected %d embeddings, got %d", len(nodes), len(vectors))
	}
	for i, n := range nodes {
		n.Properties[PropEmbedding] = vectors[i]
	}
	return nil
}

// CosineSimilarityBuilder 在相似度不低于阈值的分块之间建立 similar 关系。
type CosineSimilarityBuilder struct {
	Threshold float64
}

func (b *CosineSimilarityBuilder) Name() string { return "cosine_similarity_builder" }

func (b *CosineSimilarityBuilder) Apply(_ context.Context, kg *KnowledgeGraph) error {
	type vec struct {
		node *Node
		v    []float32
	}
	var vecs []vec
	for _, n := range kg.NodesOfType(NodeTypeChunk) {
		if v := n.Embedding(); len(v) > 0 {
			vecs = append(vecs, vec{n, v})
		}
	}

	existing := map[[2]string]bool{}
	for _, r := range kg.RelationshipsOfType(RelSimilar) {
		existing[[2]string{r.Source, r.Target}] = true
		existing[[2]string{r.Target, r.Source}] = true
	}

	added := 0
	for i := 0; i < len(vecs); i++ {
		for j := i + 1; j < len(vecs); j++ {
			a, c := vecs[i], vecs[j]
			if existing[[2]string{a.node.ID, c.node.ID}] {
				continue
			}
			score := CosineSimilarity(a.v, c.v)
			if score < b.Threshold {
				continue
			}
			kg.AddRelationship(a.node, c.node, RelSimilar, true, map[string]any{"score": score})
			added++
		}
	}
	log.Infof("[KnowledgeGraph] 新增相似关系 %d 条", added)
	return nil
}

// CosineSimilarity 计算两个向量的余弦相似度；长度不同或为零向量时返回 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// DefaultTransforms 返回默认转换流水线。docs 是已按上限切分、带有所属节点标记的片段。
// 没有 embedding 客户端时只做分块。
func DefaultTransforms(docs []schema.Document, emb embedding.Client, tokens tokenizer.Counter, chunkTokens int, threshold float64) []Transform {
	transforms := []Transform{&ChunkSplitter{Documents: docs, ChunkTokens: chunkTokens, Tokens: tokens}}
	if emb != nil {
		transforms = append(transforms,
			&EmbeddingExtractor{Client: emb},
			&CosineSimilarityBuilder{Threshold: threshold},
		)
	}
	return transforms
}
