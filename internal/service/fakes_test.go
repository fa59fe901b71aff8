package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"llm-eval-go/internal/model"
	"llm-eval-go/internal/repository"
	"llm-eval-go/pkg/es"
	"llm-eval-go/pkg/tasks"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fakeCatalogRepo struct {
	mu       sync.Mutex
	catalogs map[string]model.QACatalog
	pairs    *fakePairRepo
	seq      time.Time
}

func newFakeCatalogRepo(pairs *fakePairRepo) *fakeCatalogRepo {
	return &fakeCatalogRepo{catalogs: map[string]model.QACatalog{}, pairs: pairs, seq: time.Unix(1700000000, 0)}
}

func (r *fakeCatalogRepo) stamp(c *model.QACatalog) {
	r.seq = r.seq.Add(time.Second)
	c.CreatedAt, c.UpdatedAt = r.seq, r.seq
}

func (r *fakeCatalogRepo) Create(_ context.Context, c *model.QACatalog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stamp(c)
	r.catalogs[c.ID] = *c
	return nil
}

func (r *fakeCatalogRepo) CreateWithPairs(ctx context.Context, c *model.QACatalog, pairs []*model.QAPair) error {
	if err := r.Create(ctx, c); err != nil {
		return err
	}
	for _, p := range pairs {
		_ = r.pairs.Create(ctx, p)
	}
	return nil
}

func (r *fakeCatalogRepo) FindByID(_ context.Context, id string) (*model.QACatalog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.catalogs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r *fakeCatalogRepo) ListLatest(_ context.Context, name string, offset, limit int) ([]model.QACatalog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	latest := map[string]model.QACatalog{}
	for _, c := range r.catalogs {
		if cur, ok := latest[c.QACatalogGroupID]; !ok || c.Revision > cur.Revision {
			latest[c.QACatalogGroupID] = c
		}
	}
	var out []model.QACatalog
	for _, c := range latest {
		if name == "" || strings.Contains(c.Name, name) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (r *fakeCatalogRepo) History(_ context.Context, groupID string) ([]model.QACatalog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.QACatalog
	for _, c := range r.catalogs {
		if c.QACatalogGroupID == groupID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision > out[j].Revision })
	return out, nil
}

func (r *fakeCatalogRepo) LatestInGroup(ctx context.Context, groupID string) (*model.QACatalog, error) {
	h, _ := r.History(ctx, groupID)
	if len(h) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &h[0], nil
}

func (r *fakeCatalogRepo) UpdateName(_ context.Context, id, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.catalogs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.Name = name
	r.catalogs[id] = c
	return nil
}

func (r *fakeCatalogRepo) UpdateStatus(_ context.Context, id, status, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.catalogs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.Status, c.Error = status, errMsg
	r.catalogs[id] = c
	return nil
}

func (r *fakeCatalogRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.catalogs[id]
	delete(r.catalogs, id)
	r.mu.Unlock()
	if !ok {
		return gorm.ErrRecordNotFound
	}
	return r.pairs.DeleteByCatalog(ctx, id)
}

func (r *fakeCatalogRepo) Count(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.catalogs)), nil
}

type fakePairRepo struct {
	mu    sync.Mutex
	pairs []model.QAPair
}

func (r *fakePairRepo) Create(_ context.Context, p *model.QAPair) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs = append(r.pairs, *p)
	return nil
}

func (r *fakePairRepo) AllByCatalog(_ context.Context, catalogID string) ([]model.QAPair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.QAPair
	for _, p := range r.pairs {
		if p.QACatalogID == catalogID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePairRepo) ListByCatalog(ctx context.Context, catalogID string, offset, limit int) ([]model.QAPair, int64, error) {
	all, _ := r.AllByCatalog(ctx, catalogID)
	total := int64(len(all))
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (r *fakePairRepo) FindByIDs(ctx context.Context, catalogID string, ids []string) ([]model.QAPair, error) {
	all, _ := r.AllByCatalog(ctx, catalogID)
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []model.QAPair
	for _, p := range all {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePairRepo) DeleteByCatalog(_ context.Context, catalogID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.pairs[:0]
	for _, p := range r.pairs {
		if p.QACatalogID != catalogID {
			kept = append(kept, p)
		}
	}
	r.pairs = kept
	return nil
}

func (r *fakePairRepo) CountByCatalog(ctx context.Context, catalogID string) (int64, error) {
	all, _ := r.AllByCatalog(ctx, catalogID)
	return int64(len(all)), nil
}

type fakeIndex struct {
	mu      sync.Mutex
	docs    []es.QAPairDocument
	hits    []es.SearchHit
	deleted []string
	failAll bool
}

func (i *fakeIndex) Index(_ context.Context, doc es.QAPairDocument) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.failAll {
		return errors.New("index down")
	}
	i.docs = append(i.docs, doc)
	return nil
}

func (i *fakeIndex) Search(context.Context, string, string, int) ([]es.SearchHit, error) {
	return i.hits, nil
}

func (i *fakeIndex) DeleteByCatalog(_ context.Context, catalogID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.deleted = append(i.deleted, catalogID)
	return nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *fakeStore) Put(_ context.Context, object string, r io.Reader, _ int64, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[object] = buf.Bytes()
	s.types[object] = contentType
	return nil
}

func (s *fakeStore) Mirror(context.Context, string, string) (int, error) { return 0, nil }

func (s *fakeStore) PresignedURL(_ context.Context, object string, _ time.Duration) (string, error) {
	return "https://minio.local/bucket/" + object + "?sig=1", nil
}

func (s *fakeStore) only() (string, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.objects {
		return k, v
	}
	return "", nil
}

type fakePublisher struct {
	tasks []tasks.GenerateCatalogTask
	err   error
}

func (p *fakePublisher) PublishGenerateCatalog(_ context.Context, task tasks.GenerateCatalogTask) error {
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

type fakeDataSourceRepo struct {
	configs map[string]model.DataSourceConfig
}

func (r *fakeDataSourceRepo) Create(_ context.Context, cfg *model.DataSourceConfig) error {
	if r.configs == nil {
		r.configs = map[string]model.DataSourceConfig{}
	}
	r.configs[cfg.ID] = *cfg
	return nil
}

func (r *fakeDataSourceRepo) FindByID(_ context.Context, id string) (*model.DataSourceConfig, error) {
	c, ok := r.configs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

// versioned 是按版本号更新的内存表。
type versioned[T any] struct {
	mu      sync.Mutex
	items   map[string]T
	version func(T) int
	apply   func(T, map[string]any) T
}

func (v *versioned[T]) find(id string) (*T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	item, ok := v.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &item, nil
}

func (v *versioned[T]) update(id string, version int, updates map[string]any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	item, ok := v.items[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v.version(item) != version {
		return repository.ErrVersionConflict
	}
	v.items[id] = v.apply(item, updates)
	return nil
}

func (v *versioned[T]) remove(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.items[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(v.items, id)
	return nil
}

func (v *versioned[T]) list() []T {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]T, 0, len(v.items))
	for _, item := range v.items {
		out = append(out, item)
	}
	return out
}

type fakeEndpointRepo struct{ versioned[model.LLMEndpoint] }

func newFakeEndpointRepo() *fakeEndpointRepo {
	return &fakeEndpointRepo{versioned[model.LLMEndpoint]{
		items:   map[string]model.LLMEndpoint{},
		version: func(e model.LLMEndpoint) int { return e.Version },
		apply: func(e model.LLMEndpoint, u map[string]any) model.LLMEndpoint {
			if v, ok := u["name"].(string); ok {
				e.Name = v
			}
			if v, ok := u["description"].(string); ok {
				e.Description = v
			}
			if v, ok := u["configuration"]; ok {
				e.Configuration = v.(datatypes.JSONMap)
			}
			e.Version++
			return e
		},
	}}
}

func (r *fakeEndpointRepo) Create(_ context.Context, e *model.LLMEndpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[e.ID] = *e
	return nil
}

func (r *fakeEndpointRepo) FindByID(_ context.Context, id string) (*model.LLMEndpoint, error) {
	return r.find(id)
}

func (r *fakeEndpointRepo) List(context.Context, int, int) ([]model.LLMEndpoint, int64, error) {
	items := r.list()
	return items, int64(len(items)), nil
}

func (r *fakeEndpointRepo) Update(_ context.Context, id string, version int, updates map[string]any) error {
	return r.update(id, version, updates)
}

func (r *fakeEndpointRepo) Delete(_ context.Context, id string) error { return r.remove(id) }

func (r *fakeEndpointRepo) Count(context.Context) (int64, error) { return int64(len(r.list())), nil }

type fakeMetricRepo struct{ versioned[model.MetricConfig] }

func newFakeMetricRepo() *fakeMetricRepo {
	return &fakeMetricRepo{versioned[model.MetricConfig]{
		items:   map[string]model.MetricConfig{},
		version: func(m model.MetricConfig) int { return m.Version },
		apply: func(m model.MetricConfig, u map[string]any) model.MetricConfig {
			if v, ok := u["name"].(string); ok {
				m.Name = v
			}
			m.Version++
			return m
		},
	}}
}

func (r *fakeMetricRepo) Create(_ context.Context, m *model.MetricConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[m.ID] = *m
	return nil
}

func (r *fakeMetricRepo) FindByID(_ context.Context, id string) (*model.MetricConfig, error) {
	return r.find(id)
}

func (r *fakeMetricRepo) FindByIDs(_ context.Context, ids []string) ([]model.MetricConfig, error) {
	var out []model.MetricConfig
	for _, id := range ids {
		if m, err := r.find(id); err == nil {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *fakeMetricRepo) List(context.Context, int, int) ([]model.MetricConfig, int64, error) {
	items := r.list()
	return items, int64(len(items)), nil
}

func (r *fakeMetricRepo) Update(_ context.Context, id string, version int, updates map[string]any) error {
	return r.update(id, version, updates)
}

func (r *fakeMetricRepo) Delete(_ context.Context, id string) error { return r.remove(id) }

func (r *fakeMetricRepo) Count(context.Context) (int64, error) { return int64(len(r.list())), nil }

type fakeEvaluationRepo struct{ versioned[model.Evaluation] }

func newFakeEvaluationRepo() *fakeEvaluationRepo {
	return &fakeEvaluationRepo{versioned[model.Evaluation]{
		items:   map[string]model.Evaluation{},
		version: func(e model.Evaluation) int { return e.Version },
		apply: func(e model.Evaluation, u map[string]any) model.Evaluation {
			if v, ok := u["name"].(string); ok {
				e.Name = v
			}
			e.Version++
			return e
		},
	}}
}

func (r *fakeEvaluationRepo) Create(_ context.Context, e *model.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[e.ID] = *e
	return nil
}

func (r *fakeEvaluationRepo) FindByID(_ context.Context, id string) (*model.Evaluation, error) {
	return r.find(id)
}

func (r *fakeEvaluationRepo) List(context.Context, int, int) ([]model.Evaluation, int64, error) {
	items := r.list()
	return items, int64(len(items)), nil
}

func (r *fakeEvaluationRepo) Update(_ context.Context, id string, version int, updates map[string]any) error {
	return r.update(id, version, updates)
}

func (r *fakeEvaluationRepo) Delete(_ context.Context, id string) error { return r.remove(id) }

func (r *fakeEvaluationRepo) Count(context.Context) (int64, error) { return int64(len(r.list())), nil }

func (r *fakeEvaluationRepo) CountByStatus(context.Context) (map[string]int64, error) {
	out := map[string]int64{}
	for _, e := range r.list() {
		out[e.Status]++
	}
	return out, nil
}

type fakeProgressRepo struct {
	latest *repository.GenerationProgress
	events chan repository.GenerationProgress
	closed bool
}

func (r *fakeProgressRepo) Publish(_ context.Context, p repository.GenerationProgress) error {
	r.latest = &p
	if r.events != nil {
		r.events <- p
	}
	return nil
}

func (r *fakeProgressRepo) Latest(context.Context, string) (*repository.GenerationProgress, error) {
	return r.latest, nil
}

func (r *fakeProgressRepo) Subscribe(context.Context, string) (<-chan repository.GenerationProgress, func(), error) {
	return r.events, func() { r.closed = true }, nil
}
