package ragas

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"llm-eval-go/pkg/llm"

	"github.com/tmc/langchaingo/schema"
)

// wordTokens 让每个单词计 1000 个 token，便于构造超长文档。
func wordTokens(s string) int { return len(strings.Fields(s)) * 1000 }

type fakeLLM struct {
	calls atomic.Int64
	reply func(messages []llm.Message) (string, error)

	mu   sync.Mutex
	last []llm.Message
}

func (f *fakeLLM) Complete(_ context.Context, messages []llm.Message, _ *llm.GenerationParams) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = messages
	f.mu.Unlock()
	return f.reply(messages)
}

func replyWith(s string) *fakeLLM {
	return &fakeLLM{reply: func([]llm.Message) (string, error) { return s, nil }}
}

type fakeEmbeddings struct {
	calls  atomic.Int64
	vector func(text string) []float32
}

func (f *fakeEmbeddings) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	return f.vector(text), nil
}

func (f *fakeEmbeddings) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func constantVector(string) []float32 { return []float32{1, 0, 0} }

type fakeLoader struct {
	calls atomic.Int64
	docs  []schema.Document
	err   error
}

func (f *fakeLoader) Load(context.Context, string, string) ([]schema.Document, error) {
	f.calls.Add(1)
	out := make([]schema.Document, len(f.docs))
	copy(out, f.docs)
	return out, f.err
}

func doc(content, source string) schema.Document {
	return schema.Document{PageContent: content, Metadata: map[string]any{"source": source}}
}
