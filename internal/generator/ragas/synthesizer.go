package ragas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"llm-eval-go/pkg/llm"
)

// ErrNoCandidates 表示图谱中没有满足合成策略要求的节点。
var ErrNoCandidates = errors.New("knowledge graph has no candidate nodes for synthesizer")

// Sample 是合成出的一条测试样本。
type Sample struct {
	UserInput         string
	Reference         string
	ReferenceContexts []string
	SynthesizerName   QuerySynthesizer
	PersonaName       string
}

type synthesizer interface {
	name() QuerySynthesizer
	instruction() string
	contexts(kg *KnowledgeGraph, rnd *rand.Rand) ([]string, error)
}

func newSynthesizer(name QuerySynthesizer) (synthesizer, error) {
	switch name {
	case SingleHopSpecific:
		return singleHopSpecific{}, nil
	case MultiHopSpecific:
		return multiHopSpecific{}, nil
	case MultiHopAbstract:
		return multiHopAbstract{}, nil
	}
	return nil, fmt.Errorf("unknown query synthesizer %q", name)
}

// singleHopSpecific 基于单个分块提出具体问题
type singleHopSpecific struct{}

func (singleHopSpecific) name() QuerySynthesizer { return SingleHopSpecific }

func (singleHopSpecific) instruction() string {
	return "Ask one specific factual question that can be answered from the context alone."
}

func (singleHopSpecific) contexts(kg *KnowledgeGraph, rnd *rand.Rand) ([]string, error) {
	candidates := withContent(kg.NodesOfType(NodeTypeChunk))
	if len(candidates) == 0 {
		candidates = withContent(kg.NodesOfType(NodeTypeDocument))
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	n := candidates[rnd.Intn(len(candidates))]
	return []string{n.StringProp(PropPageContent)}, nil
}

// multiHopSpecific 基于一对相似分块提出需要结合两者的问题
type multiHopSpecific struct{}

func (multiHopSpecific) name() QuerySynthesizer { return MultiHopSpecific }

func (multiHopSpecific) instruction() string {
	return "Ask one specific question whose answer requires combining facts from every context."
}

func (multiHopSpecific) contexts(kg *KnowledgeGraph, rnd *rand.Rand) ([]string, error) {
	rels := kg.RelationshipsOfType(RelSimilar)
	if len(rels) == 0 {
		return nil, ErrNoCandidates
	}
	idx := kg.NodeIndex()
	r := rels[rnd.Intn(len(rels))]
	a, b := idx[r.Source], idx[r.Target]
	if a == nil || b == nil {
		return nil, ErrNoCandidates
	}
	return []string{a.StringProp(PropPageContent), b.StringProp(PropPageContent)}, nil
}

// multiHopAbstract 基于同一文档的多个分块提出概括性问题
type multiHopAbstract struct{}

const maxAbstractContexts = 3

func (multiHopAbstract) name() QuerySynthesizer { return MultiHopAbstract }

func (multiHopAbstract) instruction() string {
	return "Ask one abstract question that summarises or compares ideas spread across the contexts."
}

func (multiHopAbstract) contexts(kg *KnowledgeGraph, rnd *rand.Rand) ([]string, error) {
	var groups [][]*Node
	for _, doc := range kg.NodesOfType(NodeTypeDocument) {
		if children := withContent(kg.Children(doc)); len(children) >= 2 {
			groups = append(groups, children)
		}
	}
	if len(groups) == 0 {
		return nil, ErrNoCandidates
	}
	group := groups[rnd.Intn(len(groups))]
	n := len(group)
	if n > maxAbstractContexts {
		n = maxAbstractContexts
	}
	start := rnd.Intn(len(group) - n + 1)
	out := make([]string, 0, n)
	for _, c := range group[start : start+n] {
		out = append(out, c.StringProp(PropPageContent))
	}
	return out, nil
}

func withContent(nodes []*Node) []*Node {
	out := nodes[:0:0]
	for _, n := range nodes {
		if strings.TrimSpace(n.StringProp(PropPageContent)) != "" {
			out = append(out, n)
		}
	}
	return out
}

// TestsetGenerator 从知识图谱按权重分布合成样本。图谱在生成期间只读。
type TestsetGenerator struct {
	llm      llm.Client
	kg       *KnowledgeGraph
	personas []Persona

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewTestsetGenerator 创建生成器。
func NewTestsetGenerator(client llm.Client, kg *KnowledgeGraph, personas []Persona, seed int64) *TestsetGenerator {
	return &TestsetGenerator{
		llm:      client,
		kg:       kg,
		personas: personas,
		rnd:      rand.New(rand.NewSource(seed)),
	}
}

// Clone 返回共享图谱但拥有独立随机源的副本，可在其他 goroutine 中使用。
func (g *TestsetGenerator) Clone() *TestsetGenerator {
	g.mu.Lock()
	seed := g.rnd.Int63()
	g.mu.Unlock()
	return NewTestsetGenerator(g.llm, g.kg, g.personas, seed)
}

// Generate 合成 count 条样本。模型返回无法解析的内容时该条被跳过，调用错误直接返回。
func (g *TestsetGenerator) Generate(ctx context.Context, count int, dist []WeightedSynthesizerName) ([]Sample, error) {
	if len(dist) == 0 {
		return nil, ErrInvalidDistribution
	}
	var out []Sample
	for i := 0; i < count; i++ {
		g.mu.Lock()
		name := pick(dist, g.rnd.Float64())
		var persona *Persona
		if len(g.personas) > 0 {
			persona = &g.personas[g.rnd.Intn(len(g.personas))]
		}
		synth, err := newSynthesizer(name)
		var contexts []string
		if err == nil {
			contexts, err = synth.contexts(g.kg, g.rnd)
		}
		g.mu.Unlock()
		if err != nil {
			return out, fmt.Errorf("%s: %w", name, err)
		}

		sample, err := g.synthesize(ctx, synth, persona, contexts)
		if err != nil {
			return out, err
		}
		if sample != nil {
			out = append(out, *sample)
		}
	}
	return out, nil
}

// pick 按累计权重选择策略，r 取值 [0,1)。
func pick(dist []WeightedSynthesizerName, r float64) QuerySynthesizer {
	var acc float64
	for _, d := range dist {
		acc += d.Weight
		if r < acc {
			return d.Name
		}
	}
	return dist[len(dist)-1].Name
}

const systemPrompt = `You create evaluation data for retrieval augmented generation systems.
Given one or more context passages, write a question and its reference answer.
The answer must be fully supported by the contexts.
Respond with a JSON object: {"question": "...", "answer": "..."}`

type synthesized struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (g *TestsetGenerator) synthesize(ctx context.Context, s synthesizer, persona *Persona, contexts []string) (*Sample, error) {
	var b strings.Builder
	b.WriteString(s.instruction())
	b.WriteString("\n")
	if persona != nil {
		fmt.Fprintf(&b, "\nWrite the question the way this persona would ask it.\nPersona: %s\n%s\n", persona.Name, persona.Description)
	}
	for i, c := range contexts {
		fmt.Fprintf(&b, "\n<context %d>\n%s\n</context %d>\n", i+1, c, i+1)
	}

	raw, err := g.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}, &llm.GenerationParams{JSONMode: true})
	if err != nil {
		return nil, err
	}

	parsed, ok := parseSynthesized(raw)
	if !ok {
		return nil, nil
	}
	sample := &Sample{
		UserInput:         parsed.Question,
		Reference:         parsed.Answer,
		ReferenceContexts: contexts,
		SynthesizerName:   s.name(),
	}
	if persona != nil {
		sample.PersonaName = persona.Name
	}
	return sample, nil
}

func parseSynthesized(raw string) (synthesized, bool) {
	var out synthesized
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err != nil {
		return out, false
	}
	out.Question = strings.TrimSpace(out.Question)
	out.Answer = strings.TrimSpace(out.Answer)
	return out, out.Question != "" && out.Answer != ""
}
