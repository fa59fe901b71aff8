// Package loader 从本地目录按 glob 读取数据源文件并转换为文档。
package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"llm-eval-go/pkg/log"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// DefaultGlob 匹配目录下的所有文件。
const DefaultGlob = "**/*"

// Extractor 从任意格式的文件中提取纯文本，通常由 Tika 提供。
type Extractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// DirectoryLoader 按扩展名选择 langchaingo 的加载器，其余格式交给 Extractor。
type DirectoryLoader struct {
	extractor Extractor
}

// NewDirectoryLoader 创建加载器，extractor 可为 nil。
func NewDirectoryLoader(extractor Extractor) *DirectoryLoader {
	return &DirectoryLoader{extractor: extractor}
}

// Load 读取 dir 下匹配 glob 的文件，结果按相对路径排序。无法解析的文件记录日志后跳过。
func (l *DirectoryLoader) Load(ctx context.Context, dir, glob string) ([]schema.Document, error) {
	if glob == "" {
		glob = DefaultGlob
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open data source dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data source %s is not a directory", dir)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), glob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("match %q: %w", glob, err)
	}
	sort.Strings(matches)

	var docs []schema.Document
	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, filepath.FromSlash(rel))
		fileDocs, err := l.loadFile(ctx, path)
		if err != nil {
			log.Warnf("[Loader] 跳过文件 %s: %v", rel, err)
			continue
		}
		for _, d := range fileDocs {
			if strings.TrimSpace(d.PageContent) == "" {
				continue
			}
			if d.Metadata == nil {
				d.Metadata = map[string]any{}
			}
			d.Metadata["source"] = path
			d.Metadata["file_name"] = filepath.Base(path)
			docs = append(docs, d)
		}
	}
	log.Infof("[Loader] 目录 %s 匹配 %d 个文件，得到 %d 个文档", dir, len(matches), len(docs))
	return docs, nil
}

func (l *DirectoryLoader) loadFile(ctx context.Context, path string) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".csv", ".json":
		return documentloaders.NewText(f).Load(ctx)
	case ".html", ".htm":
		return documentloaders.NewHTML(f).Load(ctx)
	case ".pdf":
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		return documentloaders.NewPDF(f, info.Size()).Load(ctx)
	}

	if l.extractor == nil {
		return nil, fmt.Errorf("unsupported file type and no text extractor configured")
	}
	text, err := l.extractor.ExtractText(ctx, f, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	return []schema.Document{{PageContent: text, Metadata: map[string]any{}}}, nil
}
