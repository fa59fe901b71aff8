package ragas

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"llm-eval-go/internal/config"
	"llm-eval-go/internal/generator"
	"llm-eval-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
)

func testDeps(t *testing.T, loader *fakeLoader, client llm.Client) generator.Dependencies {
	t.Helper()
	return generator.Dependencies{
		LLM:        client,
		Embeddings: &fakeEmbeddings{vector: constantVector},
		Loader:     loader,
		Tokens:     wordTokens,
		DataSource: generator.DataSource{Location: "/data/source", Glob: "**/*"},
		Settings: config.RagasConfig{
			ParallelGenerationLimit: 3,
			MaxDocumentTokens:       MaxDocumentTokens,
			ChunkTokens:             3000,
			SimilarityThreshold:     0.8,
		},
		WorkDir: t.TempDir(),
	}
}

func singleHopConfig(n int) Config {
	return Config{SampleCount: n, QueryDistribution: map[QuerySynthesizer]float64{SingleHopSpecific: 1}}
}

func TestNewRejectsInvalidDistribution(t *testing.T) {
	cfg := Config{SampleCount: 1, QueryDistribution: map[QuerySynthesizer]float64{
		SingleHopSpecific: 0.5, MultiHopSpecific: 0.3, MultiHopAbstract: 0.3,
	}}
	_, err := New(cfg, testDeps(t, &fakeLoader{}, replyWith(okReply)))
	assert.ErrorIs(t, err, ErrInvalidDistribution)
}

func TestNewRequiresClients(t *testing.T) {
	deps := testDeps(t, &fakeLoader{}, replyWith(okReply))
	deps.LLM = nil
	_, err := New(singleHopConfig(1), deps)
	assert.Error(t, err)

	deps = testDeps(t, &fakeLoader{}, replyWith(okReply))
	deps.Loader = nil
	_, err = New(singleHopConfig(1), deps)
	assert.Error(t, err)
}

func TestCreateKnowledgeGraphWithoutDocuments(t *testing.T) {
	deps := testDeps(t, &fakeLoader{}, replyWith(okReply))
	g, err := New(singleHopConfig(1), deps)
	require.NoError(t, err)

	_, err = g.CreateKnowledgeGraph(context.Background())
	require.ErrorIs(t, err, generator.ErrNoDocuments)
	assert.EqualError(t, err, "no documents found")

	entries, err := os.ReadDir(deps.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateKnowledgeGraphLoaderError(t *testing.T) {
	g, err := New(singleHopConfig(1), testDeps(t, &fakeLoader{err: errors.New("disk gone")}, replyWith(okReply)))
	require.NoError(t, err)
	_, err = g.CreateKnowledgeGraph(context.Background())
	assert.ErrorContains(t, err, "disk gone")
}

func TestCreateKnowledgeGraphReusesCache(t *testing.T) {
	loader := &fakeLoader{docs: []schema.Document{doc(words(8), "a.txt"), doc(words(4), "b.txt")}}
	deps := testDeps(t, loader, replyWith(okReply))
	location := filepath.Join(deps.WorkDir, DefaultGraphFile)

	g, err := New(singleHopConfig(1), deps)
	require.NoError(t, err)
	first, err := g.CreateKnowledgeGraph(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, first.NodesOfType(NodeTypeChunk))
	assert.NotEmpty(t, first.RelationshipsOfType(RelSimilar))
	_, err = os.Stat(location)
	require.NoError(t, err)

	// 文档顺序变化仍然命中缓存，不再执行转换
	loader.docs = []schema.Document{loader.docs[1], loader.docs[0]}
	g2, err := New(singleHopConfig(1), deps)
	require.NoError(t, err)
	g2.newTransforms = func([]schema.Document) []Transform {
		t.Fatal("transforms must not run on a cache hit")
		return nil
	}
	cached, err := g2.CreateKnowledgeGraph(context.Background())
	require.NoError(t, err)
	assert.Len(t, cached.Nodes, len(first.Nodes))

	// 内容变化则重建并备份旧缓存
	loader.docs = []schema.Document{doc(words(5), "c.txt")}
	g3, err := New(singleHopConfig(1), deps)
	require.NoError(t, err)
	rebuilt, err := g3.CreateKnowledgeGraph(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{PageHash(words(5))}, NodeHashes(rebuilt.Nodes))

	backups, err := filepath.Glob(location + ".*.bak")
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestCreateKnowledgeGraphUsesConfiguredLocation(t *testing.T) {
	loader := &fakeLoader{docs: []schema.Document{doc(words(3), "a.txt")}}
	deps := testDeps(t, loader, replyWith(okReply))
	cfg := singleHopConfig(1)
	cfg.KnowledgeGraphLocation = filepath.Join("nested", "graph.json")

	g, err := New(cfg, deps)
	require.NoError(t, err)
	_, err = g.CreateKnowledgeGraph(context.Background())
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(deps.WorkDir, "nested", "graph.json"))
	assert.NoError(t, err)
}

func TestNewRejectsGraphLocationOutsideWorkDir(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(outside, []byte("server:\n  port: 8080\n"), 0o600))
	loader := &fakeLoader{docs: []schema.Document{doc(words(3), "a.txt")}}
	deps := testDeps(t, loader, replyWith(okReply))

	raw := []byte(`{"sampleCount": 1, "queryDistribution": {"SINGLE_HOP_SPECIFIC": 1}, "knowledgeGraphLocation": ` +
		strconv.Quote(outside) + `}`)
	_, err := NewFromRaw(raw, deps)
	require.Error(t, err)

	cfg := singleHopConfig(1)
	cfg.KnowledgeGraphLocation = outside
	_, err = New(cfg, deps)
	require.Error(t, err)

	body, err := os.ReadFile(outside)
	require.NoError(t, err)
	assert.Equal(t, "server:\n  port: 8080\n", string(body))
	_, err = os.Stat(filepath.Join(filepath.Dir(outside), "config.bak"))
	assert.True(t, os.IsNotExist(err))
}

func TestGraphLocationWithoutWorkDir(t *testing.T) {
	cfg := singleHopConfig(1)
	cfg.KnowledgeGraphLocation = "kg.json"

	loc, err := graphLocation(cfg, generator.Dependencies{Settings: config.RagasConfig{KnowledgeGraphLocation: "/var/lib/llm-eval/graph.json"}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/var/lib/llm-eval", "kg.json"), loc)

	_, err = graphLocation(cfg, generator.Dependencies{})
	assert.Error(t, err)

	loc, err = graphLocation(singleHopConfig(1), generator.Dependencies{Settings: config.RagasConfig{KnowledgeGraphLocation: "/var/lib/llm-eval/graph.json"}})
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/llm-eval/graph.json", loc)
}

func TestCreateSyntheticQADeliversRequestedSamples(t *testing.T) {
	loader := &fakeLoader{docs: []schema.Document{doc(words(8), "a.txt"), doc(words(6), "b.txt")}}
	client := replyWith(okReply)
	g, err := New(singleHopConfig(6), testDeps(t, loader, client))
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		pairs []generator.SyntheticQAPair
	)
	stats, err := g.CreateSyntheticQA(context.Background(), func(_ context.Context, p generator.SyntheticQAPair) error {
		mu.Lock()
		defer mu.Unlock()
		pairs = append(pairs, p)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, generator.BatchStats{Requested: 6, Delivered: 6}, stats)
	require.Len(t, pairs, 6)
	assert.Equal(t, int64(6), client.calls.Load())
	for _, p := range pairs {
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, "What is alpha?", p.Question)
		assert.Equal(t, "The first letter.", p.ExpectedOutput)
		assert.Len(t, p.Contexts, 1)
		assert.Equal(t, "SINGLE_HOP_SPECIFIC", p.MetaData["synthesizer_name"])
	}
}

func TestCreateSyntheticQAToleratesFailingModel(t *testing.T) {
	loader := &fakeLoader{docs: []schema.Document{doc(words(8), "a.txt")}}
	client := &fakeLLM{reply: func([]llm.Message) (string, error) { return "", errors.New("timeout") }}
	g, err := New(singleHopConfig(10), testDeps(t, loader, client))
	require.NoError(t, err)

	stats, err := g.CreateSyntheticQA(context.Background(), func(context.Context, generator.SyntheticQAPair) error {
		t.Fatal("no sample expected")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, generator.BatchStats{Requested: 10, Failed: 10}, stats)
	assert.Equal(t, int64(10), client.calls.Load())
}

func TestCreateSyntheticQAFailsWithoutDocuments(t *testing.T) {
	client := replyWith(okReply)
	g, err := New(singleHopConfig(3), testDeps(t, &fakeLoader{}, client))
	require.NoError(t, err)
	_, err = g.CreateSyntheticQA(context.Background(), func(context.Context, generator.SyntheticQAPair) error { return nil })
	assert.ErrorIs(t, err, generator.ErrNoDocuments)
	assert.Equal(t, int64(0), client.calls.Load())
}

func TestValidateRaw(t *testing.T) {
	assert.NoError(t, ValidateRaw([]byte(`{"sampleCount": 1, "queryDistribution": {"SINGLE_HOP_SPECIFIC": 1}}`)))
	assert.Error(t, ValidateRaw([]byte(`{"sampleCount": 1, "queryDistribution": {"SINGLE_HOP_SPECIFIC": 0.7}}`)))
}
