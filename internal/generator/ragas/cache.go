package ragas

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"llm-eval-go/pkg/log"
	"llm-eval-go/pkg/metrics"
)

// GraphCache 管理磁盘上的知识图谱缓存文件。
type GraphCache struct {
	location string
	now      func() time.Time
}

// NewGraphCache 创建缓存；location 为空时缓存不生效。
func NewGraphCache(location string) *GraphCache {
	return &GraphCache{location: location, now: time.Now}
}

// Location 返回缓存文件路径。
func (c *GraphCache) Location() string { return c.location }

// Load 读取缓存的图谱。文件不存在或未配置时返回 nil；
// 文件损坏时将其改名为 .bak 并返回 nil。
func (c *GraphCache) Load() *KnowledgeGraph {
	if c.location == "" {
		return nil
	}
	kg, err := LoadGraph(c.location)
	if err == nil {
		return kg
	}
	if errors.Is(err, fs.ErrNotExist) {
		metrics.KnowledgeGraphCache.WithLabelValues("miss").Inc()
		return nil
	}

	metrics.KnowledgeGraphCache.WithLabelValues("corrupt").Inc()
	aside := corruptPath(c.location)
	log.Warnf("[KnowledgeGraph] 加载缓存 %s 失败，改名为 %s: %v", c.location, aside, err)
	if rerr := os.Rename(c.location, aside); rerr != nil {
		log.Errorf("[KnowledgeGraph] 缓存改名失败: %v", rerr)
	}
	return nil
}

// Store 备份已有缓存后写入新图谱。
func (c *GraphCache) Store(kg *KnowledgeGraph) error {
	if c.location == "" {
		return nil
	}
	backup, err := c.Backup()
	if err != nil {
		return err
	}
	if backup != "" {
		log.Infof("[KnowledgeGraph] 已备份旧缓存到 %s", backup)
	}
	if err := kg.Save(c.location); err != nil {
		return err
	}
	log.Infof("[KnowledgeGraph] 图谱已写入 %s，节点数 %d", c.location, len(kg.Nodes))
	return nil
}

// Backup 把现有缓存改名为 <path>.<时间戳>.bak，返回备份路径；没有文件时返回空串。
func (c *GraphCache) Backup() (string, error) {
	if _, err := os.Stat(c.location); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("stat knowledge graph: %w", err)
	}
	backup := fmt.Sprintf("%s.%s.bak", c.location, c.now().Format("20060102150405"))
	if err := os.Rename(c.location, backup); err != nil {
		return "", fmt.Errorf("backup knowledge graph: %w", err)
	}
	return backup, nil
}

func corruptPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".bak"
}

// NodeHashes 返回节点 page_hash 的去重排序集合，忽略空值。
func NodeHashes(nodes []*Node) []string {
	set := map[string]struct{}{}
	for _, n := range nodes {
		if h := n.StringProp(PropPageHash); h != "" {
			set[h] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// SameNodes 判断两组节点的内容哈希集合是否相同，与顺序和重复无关。
func SameNodes(a, b []*Node) bool {
	ha, hb := NodeHashes(a), NodeHashes(b)
	if len(ha) != len(hb) {
		return false
	}
	for i := range ha {
		if ha[i] != hb[i] {
			return false
		}
	}
	return true
}
