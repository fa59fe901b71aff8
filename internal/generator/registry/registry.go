// Package registry 把生成器种类映射到具体实现。
package registry

import (
	"encoding/json"
	"fmt"
	"sort"

	"llm-eval-go/internal/generator"
	"llm-eval-go/internal/generator/ragas"
)

type factory struct {
	validate func(raw json.RawMessage) error
	build    func(raw json.RawMessage, deps generator.Dependencies) (generator.Generator, error)
}

var factories = map[generator.Type]factory{
	generator.TypeRagas: {validate: ragas.ValidateRaw, build: ragas.NewFromRaw},
}

// ActiveTypes 返回可用的生成器种类，按名称排序。
func ActiveTypes() []generator.Type {
	types := make([]generator.Type, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ParseType 把字符串转换为已注册的生成器种类。
func ParseType(s string) (generator.Type, error) {
	t := generator.Type(s)
	if _, ok := factories[t]; !ok {
		return "", fmt.Errorf("%w: %q", generator.ErrUnknownGeneratorType, s)
	}
	return t, nil
}

// ValidateConfig 校验指定种类的原始配置。
func ValidateConfig(t generator.Type, raw json.RawMessage) error {
	f, ok := factories[t]
	if !ok {
		return fmt.Errorf("%w: %q", generator.ErrUnknownGeneratorType, t)
	}
	return f.validate(raw)
}

// New 创建指定种类的生成器。
func New(t generator.Type, raw json.RawMessage, deps generator.Dependencies) (generator.Generator, error) {
	f, ok := factories[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", generator.ErrUnknownGeneratorType, t)
	}
	return f.build(raw, deps)
}
