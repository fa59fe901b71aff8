package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"llm-eval-go/internal/model"
	"llm-eval-go/internal/repository"
	"llm-eval-go/pkg/es"
	"llm-eval-go/pkg/log"
	"llm-eval-go/pkg/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// previewPairs 是目录预览中附带的问答对数量。
const previewPairs = 5

// PairIndex 是问答对全文检索索引。
type PairIndex interface {
	Index(ctx context.Context, doc es.QAPairDocument) error
	Search(ctx context.Context, catalogID, query string, size int) ([]es.SearchHit, error)
	DeleteByCatalog(ctx context.Context, catalogID string) error
}

// CatalogPreview 是目录及其问答对数量，预览接口附带前几条问答对。
type CatalogPreview struct {
	model.QACatalog
	Length  int64          `json:"length"`
	QAPairs []model.QAPair `json:"qaPairs,omitempty"`
}

// CatalogVersion 是修订历史中的一项。
type CatalogVersion struct {
	ID        string    `json:"id"`
	Revision  int       `json:"revision"`
	CreatedAt time.Time `json:"createdAt"`
}

// CatalogHistory 是目录组的修订历史，最新的在前。
type CatalogHistory struct {
	Versions []CatalogVersion `json:"versions"`
}

// DownloadOptions 选择要导出的修订与格式。
// 默认只导出 CatalogID 本身；IncludeAll 导出整个组；VersionIDs 导出组内指定修订。
type DownloadOptions struct {
	CatalogID  string   `json:"catalogId" binding:"required"`
	Format     string   `json:"format" binding:"required"`
	VersionIDs []string `json:"versionIds"`
	IncludeAll bool     `json:"includeAll"`
}

// DownloadResult 是导出文件的预签名下载地址。
type DownloadResult struct {
	DownloadURL string `json:"downloadUrl"`
	Filename    string `json:"filename"`
}

// QACatalogService 定义了问答目录的业务操作。
type QACatalogService interface {
	List(ctx context.Context, name string, offset, limit int) ([]CatalogPreview, error)
	Upload(ctx context.Context, name, fileName string, r io.Reader) (*model.QACatalog, error)
	UploadRevision(ctx context.Context, id, fileName string, r io.Reader) (*model.QACatalog, error)
	Get(ctx context.Context, id string) (*model.QACatalog, error)
	Rename(ctx context.Context, id, name string) (*model.QACatalog, error)
	Preview(ctx context.Context, id string) (*CatalogPreview, error)
	Delete(ctx context.Context, id string) (*string, error)
	Pairs(ctx context.Context, id string, offset, limit int) ([]model.QAPair, error)
	Search(ctx context.Context, id, query string, limit int) ([]model.QAPair, error)
	History(ctx context.Context, id string) (*CatalogHistory, error)
	Download(ctx context.Context, opts DownloadOptions) (*DownloadResult, error)
}

type qaCatalogService struct {
	catalogRepo   repository.QACatalogRepository
	pairRepo      repository.QAPairRepository
	index         PairIndex
	store         storage.ObjectStore
	presignExpiry time.Duration
}

// NewQACatalogService 创建目录服务。index 为 nil 时检索不可用，写入索引被跳过。
func NewQACatalogService(catalogRepo repository.QACatalogRepository, pairRepo repository.QAPairRepository, index PairIndex, store storage.ObjectStore, presignExpiry time.Duration) QACatalogService {
	if presignExpiry <= 0 {
		presignExpiry = time.Hour
	}
	return &qaCatalogService{
		catalogRepo:   catalogRepo,
		pairRepo:      pairRepo,
		index:         index,
		store:         store,
		presignExpiry: presignExpiry,
	}
}

func (s *qaCatalogService) List(ctx context.Context, name string, offset, limit int) ([]CatalogPreview, error) {
	catalogs, _, err := s.catalogRepo.ListLatest(ctx, name, offset, limit)
	if err != nil {
		return nil, err
	}
	previews := make([]CatalogPreview, 0, len(catalogs))
	for _, c := range catalogs {
		n, err := s.pairRepo.CountByCatalog(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		previews = append(previews, CatalogPreview{QACatalog: c, Length: n})
	}
	return previews, nil
}

// Upload 从文件创建一个新目录组的第一个修订。
func (s *qaCatalogService) Upload(ctx context.Context, name, fileName string, r io.Reader) (*model.QACatalog, error) {
	if name == "" {
		return nil, invalidf("name is required")
	}
	pairs, err := ParsePairs(fileName, r)
	if err != nil {
		return nil, err
	}
	catalog := &model.QACatalog{
		ID:               uuid.NewString(),
		Name:             name,
		QACatalogGroupID: uuid.NewString(),
		Revision:         1,
		Status:           model.CatalogStatusReady,
		Origin:           model.CatalogOriginUpload,
	}
	if err := s.save(ctx, catalog, pairs); err != nil {
		return nil, err
	}
	log.Infof("[QACatalog] 目录 '%s' 上传成功, id=%s, 问答对 %d 条", name, catalog.ID, len(pairs))
	return catalog, nil
}

// UploadRevision 在 id 所在的组中追加一个新修订。
func (s *qaCatalogService) UploadRevision(ctx context.Context, id, fileName string, r io.Reader) (*model.QACatalog, error) {
	prev, err := s.catalogRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	pairs, err := ParsePairs(fileName, r)
	if err != nil {
		return nil, err
	}
	latest, err := s.catalogRepo.LatestInGroup(ctx, prev.QACatalogGroupID)
	if err != nil {
		return nil, err
	}
	catalog := &model.QACatalog{
		ID:               uuid.NewString(),
		Name:             prev.Name,
		QACatalogGroupID: prev.QACatalogGroupID,
		Revision:         latest.Revision + 1,
		Status:           model.CatalogStatusReady,
		Origin:           model.CatalogOriginUpload,
	}
	if err := s.save(ctx, catalog, pairs); err != nil {
		return nil, err
	}
	log.Infof("[QACatalog] 目录组 %s 新增修订 %d, id=%s", catalog.QACatalogGroupID, catalog.Revision, catalog.ID)
	return catalog, nil
}

func (s *qaCatalogService) save(ctx context.Context, catalog *model.QACatalog, pairs []*model.QAPair) error {
	for _, p := range pairs {
		p.ID = uuid.NewString()
		p.QACatalogID = catalog.ID
	}
	if err := s.catalogRepo.CreateWithPairs(ctx, catalog, pairs); err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	for _, p := range pairs {
		s.indexPair(ctx, p)
	}
	return nil
}

// indexPair 写入检索索引，失败只记录日志。
func (s *qaCatalogService) indexPair(ctx context.Context, p *model.QAPair) {
	if s.index == nil {
		return
	}
	if err := s.index.Index(ctx, PairDocument(p)); err != nil {
		log.Warnf("[QACatalog] 问答对 %s 写入索引失败: %v", p.ID, err)
	}
}

// PairDocument 把问答对转换为索引文档。
func PairDocument(p *model.QAPair) es.QAPairDocument {
	return es.QAPairDocument{
		ID:             p.ID,
		CatalogID:      p.QACatalogID,
		Question:       p.Question,
		ExpectedOutput: p.ExpectedOutput,
		Contexts:       []string(p.Contexts),
	}
}

func (s *qaCatalogService) Get(ctx context.Context, id string) (*model.QACatalog, error) {
	return s.catalogRepo.FindByID(ctx, id)
}

func (s *qaCatalogService) Rename(ctx context.Context, id, name string) (*model.QACatalog, error) {
	if name == "" {
		return nil, invalidf("name is required")
	}
	catalog, err := s.catalogRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// MySQL 对未变化的行返回 0 affected rows
	if catalog.Name == name {
		return catalog, nil
	}
	if err := s.catalogRepo.UpdateName(ctx, id, name); err != nil {
		return nil, err
	}
	catalog.Name = name
	return catalog, nil
}

func (s *qaCatalogService) Preview(ctx context.Context, id string) (*CatalogPreview, error) {
	catalog, err := s.catalogRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	pairs, total, err := s.pairRepo.ListByCatalog(ctx, id, 0, previewPairs)
	if err != nil {
		return nil, err
	}
	return &CatalogPreview{QACatalog: *catalog, Length: total, QAPairs: pairs}, nil
}

// Delete 删除一个修订，返回组内剩余的最新修订 ID；组已空时返回 nil。
func (s *qaCatalogService) Delete(ctx context.Context, id string) (*string, error) {
	catalog, err := s.catalogRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.catalogRepo.Delete(ctx, id); err != nil {
		return nil, err
	}
	if s.index != nil {
		if err := s.index.DeleteByCatalog(ctx, id); err != nil {
			log.Warnf("[QACatalog] 删除目录 %s 的索引失败: %v", id, err)
		}
	}
	latest, err := s.catalogRepo.LatestInGroup(ctx, catalog.QACatalogGroupID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &latest.ID, nil
}

func (s *qaCatalogService) Pairs(ctx context.Context, id string, offset, limit int) ([]model.QAPair, error) {
	pairs, _, err := s.pairRepo.ListByCatalog(ctx, id, offset, limit)
	return pairs, err
}

// Search 在目录内全文检索问答对，按相关度排序。
func (s *qaCatalogService) Search(ctx context.Context, id, query string, limit int) ([]model.QAPair, error) {
	if s.index == nil {
		return nil, ErrSearchUnavailable
	}
	if query == "" {
		return nil, invalidf("query is required")
	}
	if _, err := s.catalogRepo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	hits, err := s.index.Search(ctx, id, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search qa pairs: %w", err)
	}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.Document.ID)
	}
	pairs, err := s.pairRepo.FindByIDs(ctx, id, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.QAPair, len(pairs))
	for _, p := range pairs {
		byID[p.ID] = p
	}
	ordered := make([]model.QAPair, 0, len(pairs))
	for _, pid := range ids {
		// 索引中可能残留已删除的问答对
		if p, ok := byID[pid]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}

func (s *qaCatalogService) History(ctx context.Context, id string) (*CatalogHistory, error) {
	catalog, err := s.catalogRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	revisions, err := s.catalogRepo.History(ctx, catalog.QACatalogGroupID)
	if err != nil {
		return nil, err
	}
	history := &CatalogHistory{Versions: make([]CatalogVersion, 0, len(revisions))}
	for _, r := range revisions {
		history.Versions = append(history.Versions, CatalogVersion{ID: r.ID, Revision: r.Revision, CreatedAt: r.CreatedAt})
	}
	return history, nil
}

// Download 导出所选修订到对象存储并返回预签名地址。
func (s *qaCatalogService) Download(ctx context.Context, opts DownloadOptions) (*DownloadResult, error) {
	if opts.Format != FormatJSON && opts.Format != FormatCSV {
		return nil, invalidf("unsupported download format %q", opts.Format)
	}
	catalog, err := s.catalogRepo.FindByID(ctx, opts.CatalogID)
	if err != nil {
		return nil, err
	}
	revisions, err := s.selectRevisions(ctx, catalog, opts)
	if err != nil {
		return nil, err
	}

	var rows []exportPair
	for _, rev := range revisions {
		pairs, err := s.pairRepo.AllByCatalog(ctx, rev.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range pairs {
			rows = append(rows, toExportPair(p, rev.Revision))
		}
	}
	if rows == nil {
		rows = []exportPair{}
	}

	var buf bytes.Buffer
	if err := WritePairs(&buf, opts.Format, rows); err != nil {
		return nil, err
	}
	object := storage.ExportObject(uuid.NewString(), opts.Format)
	contentType := "application/json"
	if opts.Format == FormatCSV {
		contentType = "text/csv"
	}
	if err := s.store.Put(ctx, object, &buf, int64(buf.Len()), contentType); err != nil {
		return nil, fmt.Errorf("upload export: %w", err)
	}
	url, err := s.store.PresignedURL(ctx, object, s.presignExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign export: %w", err)
	}
	log.Infof("[QACatalog] 目录 %s 导出 %d 个修订, %d 条问答对", catalog.ID, len(revisions), len(rows))
	return &DownloadResult{DownloadURL: url, Filename: exportFilename(catalog.Name, opts.Format)}, nil
}

func (s *qaCatalogService) selectRevisions(ctx context.Context, catalog *model.QACatalog, opts DownloadOptions) ([]model.QACatalog, error) {
	if !opts.IncludeAll && len(opts.VersionIDs) == 0 {
		return []model.QACatalog{*catalog}, nil
	}
	group, err := s.catalogRepo.History(ctx, catalog.QACatalogGroupID)
	if err != nil {
		return nil, err
	}
	if opts.IncludeAll {
		return group, nil
	}
	byID := make(map[string]model.QACatalog, len(group))
	for _, c := range group {
		byID[c.ID] = c
	}
	selected := make([]model.QACatalog, 0, len(opts.VersionIDs))
	for _, id := range opts.VersionIDs {
		c, ok := byID[id]
		if !ok {
			return nil, invalidf("version %s does not belong to catalog %s", id, catalog.ID)
		}
		selected = append(selected, c)
	}
	return selected, nil
}

var unsafeFilename = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

func exportFilename(name, format string) string {
	base := unsafeFilename.ReplaceAllString(name, "_")
	if base == "" {
		base = "qa-catalog"
	}
	return base + "." + format
}
