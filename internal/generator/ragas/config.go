// Package ragas 实现基于知识图谱的合成问答生成器。
package ragas

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// QuerySynthesizer 是问题合成策略的名称。
type QuerySynthesizer string

const (
	SingleHopSpecific QuerySynthesizer = "SINGLE_HOP_SPECIFIC"
	MultiHopSpecific  QuerySynthesizer = "MULTI_HOP_SPECIFIC"
	MultiHopAbstract  QuerySynthesizer = "MULTI_HOP_ABSTRACT"
)

// Synthesizers 按固定顺序列出所有合成策略。
var Synthesizers = []QuerySynthesizer{SingleHopSpecific, MultiHopSpecific, MultiHopAbstract}

// ErrInvalidDistribution 表示权重之和不等于 1。
var ErrInvalidDistribution = errors.New("given query distribution for the generation is invalid, distribution weights should sum up to 1")

// Persona 描述提问者画像。
type Persona struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Config 是 RAGAS 生成器的配置。
type Config struct {
	SampleCount            int                          `json:"sampleCount"`
	QueryDistribution      map[QuerySynthesizer]float64 `json:"queryDistribution"`
	Personas               []Persona                    `json:"personas,omitempty"`
	// KnowledgeGraphLocation 是相对于任务工作目录的缓存文件路径
	KnowledgeGraphLocation string `json:"knowledgeGraphLocation,omitempty"`

	// weightOrder 记录请求中 queryDistribution 键的出现顺序
	weightOrder []QuerySynthesizer
}

// UnmarshalJSON 解析配置并保留 queryDistribution 的键顺序，权重按该顺序求和。
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	if err := json.Unmarshal(data, (*plain)(c)); err != nil {
		return err
	}
	var aux struct {
		QueryDistribution json.RawMessage `json:"queryDistribution"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	order, err := keyOrder(aux.QueryDistribution)
	if err != nil {
		return err
	}
	c.weightOrder = order
	return nil
}

// keyOrder 返回 JSON 对象的键，按首次出现的顺序去重。
func keyOrder(raw json.RawMessage) ([]QuerySynthesizer, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil
	}
	var order []QuerySynthesizer
	seen := map[QuerySynthesizer]bool{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		name := QuerySynthesizer(key)
		if !seen[name] {
			seen[name] = true
			order = append(order, name)
		}
	}
	return order, nil
}

// WeightedSynthesizerName 是分布中的一项。
type WeightedSynthesizerName struct {
	Name   QuerySynthesizer
	Weight float64
}

func knownSynthesizer(s QuerySynthesizer) bool {
	for _, k := range Synthesizers {
		if k == s {
			return true
		}
	}
	return false
}

// ParseConfig 解析并校验 JSON 配置。
func ParseConfig(raw json.RawMessage) (Config, error) {
	var cfg Config
	if len(raw) == 0 {
		return cfg, errors.New("generator config is required")
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid generator config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate 检查样本数、策略名称、权重与知识图谱路径。
// 权重之和按浮点数精确比较：来自 JSON 的配置按请求中的键顺序求和，其余按固定顺序。
func (c Config) Validate() error {
	if c.SampleCount < 1 {
		return fmt.Errorf("sampleCount must be at least 1, got %d", c.SampleCount)
	}
	if len(c.QueryDistribution) == 0 {
		return ErrInvalidDistribution
	}
	for name, w := range c.QueryDistribution {
		if !knownSynthesizer(name) {
			return fmt.Errorf("unknown query synthesizer %q", name)
		}
		if w < 0 {
			return fmt.Errorf("weight of %s must not be negative", name)
		}
	}

	var sum float64
	for _, s := range c.sumOrder() {
		sum += c.QueryDistribution[s]
	}
	if sum != 1 {
		return ErrInvalidDistribution
	}

	if err := validateGraphLocation(c.KnowledgeGraphLocation); err != nil {
		return err
	}

	for i, p := range c.Personas {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("persona %d has no name", i)
		}
	}
	return nil
}

func (c Config) sumOrder() []QuerySynthesizer {
	if len(c.weightOrder) == len(c.QueryDistribution) {
		return c.weightOrder
	}
	return Synthesizers
}

// validateGraphLocation 只接受工作目录内的相对路径。
func validateGraphLocation(location string) error {
	if location == "" {
		return nil
	}
	if !filepath.IsLocal(location) {
		return fmt.Errorf("knowledgeGraphLocation must be a relative path inside the work dir, got %q", location)
	}
	for _, part := range strings.Split(filepath.ToSlash(location), "/") {
		if part == ".." {
			return fmt.Errorf("knowledgeGraphLocation must not contain '..', got %q", location)
		}
	}
	return nil
}

// Distribution 返回权重大于零的策略，顺序固定。
func (c Config) Distribution() []WeightedSynthesizerName {
	var out []WeightedSynthesizerName
	for _, s := range Synthesizers {
		if w := c.QueryDistribution[s]; w > 0 {
			out = append(out, WeightedSynthesizerName{Name: s, Weight: w})
		}
	}
	return out
}
