package service

import (
	"context"
	"testing"

	"llm-eval-go/internal/model"
	"llm-eval-go/internal/repository"
	"llm-eval-go/pkg/secret"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newEndpointService(t *testing.T) (LLMEndpointService, *fakeEndpointRepo) {
	t.Helper()
	box, err := secret.NewBox("test-master-key")
	require.NoError(t, err)
	repo := newFakeEndpointRepo()
	return NewLLMEndpointService(repo, box), repo
}

func openAIRequest() EndpointRequest {
	return EndpointRequest{
		Name: "gpt",
		Type: model.EndpointTypeOpenAI,
		Configuration: map[string]any{
			"apiKey":          "sk-secret",
			"model":           "gpt-4o-mini",
			"parallelQueries": float64(3),
		},
	}
}

func TestEndpointAPIKeyIsSealedAndHidden(t *testing.T) {
	svc, repo := newEndpointService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, openAIRequest())
	require.NoError(t, err)
	assert.NotContains(t, created.Configuration, "apiKey")
	assert.Equal(t, "gpt-4o-mini", created.Configuration["model"])

	stored, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	sealed, _ := stored.Configuration["apiKey"].(string)
	assert.True(t, secret.IsSealed(sealed))
	assert.NotContains(t, sealed, "sk-secret")

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Configuration, "apiKey")

	list, err := svc.List(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotContains(t, list[0].Configuration, "apiKey")

	chat, err := svc.ChatModel(ctx, created.ID)
	require.NoError(t, err)
	assert.NotNil(t, chat.Client)
	assert.Equal(t, 3, chat.ParallelQueries)
}

func TestEndpointUpdateKeepsKeyAndChecksVersion(t *testing.T) {
	svc, repo := newEndpointService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, openAIRequest())
	require.NoError(t, err)
	before, _ := repo.FindByID(ctx, created.ID)

	name := "renamed"
	updated, err := svc.Update(ctx, created.ID, EndpointPatch{
		Version:       0,
		Name:          &name,
		Configuration: map[string]any{"model": "gpt-4o"},
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, 1, updated.Version)

	after, _ := repo.FindByID(ctx, created.ID)
	assert.Equal(t, before.Configuration["apiKey"], after.Configuration["apiKey"])
	assert.Equal(t, "gpt-4o", after.Configuration["model"])

	_, err = svc.Update(ctx, created.ID, EndpointPatch{Version: 0, Name: &name})
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	_, err = svc.Update(ctx, "missing", EndpointPatch{Name: &name})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestValidateEndpointConfig(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		cfg     map[string]any
		wantErr bool
	}{
		{"openai ok", model.EndpointTypeOpenAI, map[string]any{"apiKey": "k", "model": "m"}, false},
		{"openai without model", model.EndpointTypeOpenAI, map[string]any{"apiKey": "k"}, true},
		{"openai temperature too high", model.EndpointTypeOpenAI, map[string]any{"apiKey": "k", "model": "m", "temperature": 2.5}, true},
		{"azure ok", model.EndpointTypeAzureOpenAI, map[string]any{"endpoint": "https://x", "apiKey": "k", "apiVersion": "2024-02-01", "deployment": "d"}, false},
		{"azure without deployment", model.EndpointTypeAzureOpenAI, map[string]any{"endpoint": "https://x", "apiKey": "k", "apiVersion": "v"}, true},
		{"c4 ok", model.EndpointTypeC4, map[string]any{"endpoint": "https://c4", "apiKey": "k", "configurationId": float64(7)}, false},
		{"c4 configuration id zero", model.EndpointTypeC4, map[string]any{"endpoint": "https://c4", "apiKey": "k", "configurationId": float64(0)}, true},
		{"c4 configuration id fraction", model.EndpointTypeC4, map[string]any{"endpoint": "https://c4", "apiKey": "k", "configurationId": 1.5}, true},
		{"parallel queries zero", model.EndpointTypeOpenAI, map[string]any{"apiKey": "k", "model": "m", "parallelQueries": float64(0)}, true},
		{"max retries not a number", model.EndpointTypeOpenAI, map[string]any{"apiKey": "k", "model": "m", "maxRetries": "3"}, true},
		{"unknown type", "OLLAMA", map[string]any{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEndpointConfig(tt.typ, tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgument)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateMetricConfig(t *testing.T) {
	base := func(extra map[string]any) map[string]any {
		cfg := map[string]any{"threshold": 0.5, "chat_model_id": "e1", "include_reason": true}
		for k, v := range extra {
			cfg[k] = v
		}
		return cfg
	}
	tests := []struct {
		name    string
		typ     string
		cfg     map[string]any
		wantErr bool
	}{
		{"faithfulness ok", model.MetricTypeFaithfulness, base(nil), false},
		{"threshold above one", model.MetricTypeAnswerRelevancy, base(map[string]any{"threshold": 1.5}), true},
		{"missing threshold", model.MetricTypeHallucination, map[string]any{"chat_model_id": "e1"}, true},
		{"strict mode not bool", model.MetricTypeFaithfulness, base(map[string]any{"strict_mode": "yes"}), true},
		{"g-eval ok", model.MetricTypeGEval, base(map[string]any{
			"evaluation_steps":  []any{"check facts"},
			"evaluation_params": []any{"input", "actual_output"},
		}), false},
		{"g-eval without steps", model.MetricTypeGEval, base(map[string]any{"evaluation_params": []any{"input"}}), true},
		{"g-eval unknown param", model.MetricTypeGEval, base(map[string]any{
			"evaluation_steps":  []any{"s"},
			"evaluation_params": []any{"mood"},
		}), true},
		{"unknown type", "BLEU", base(nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMetricConfig(tt.typ, tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgument)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMetricRequiresExistingChatModel(t *testing.T) {
	endpoints := newFakeEndpointRepo()
	require.NoError(t, endpoints.Create(context.Background(), &model.LLMEndpoint{ID: "e1"}))
	svc := NewMetricService(newFakeMetricRepo(), endpoints)
	ctx := context.Background()

	m, err := svc.Create(ctx, MetricRequest{Name: "faith", Type: model.MetricTypeFaithfulness, Configuration: map[string]any{"threshold": 0.7, "chat_model_id": "e1"}})
	require.NoError(t, err)

	_, err = svc.Create(ctx, MetricRequest{Name: "faith", Type: model.MetricTypeFaithfulness, Configuration: map[string]any{"threshold": 0.7, "chat_model_id": "e2"}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	name := "faithfulness"
	updated, err := svc.Update(ctx, m.ID, MetricPatch{Version: 0, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "faithfulness", updated.Name)
	_, err = svc.Update(ctx, m.ID, MetricPatch{Version: 0, Name: &name})
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	require.NoError(t, svc.Delete(ctx, m.ID))
	assert.ErrorIs(t, svc.Delete(ctx, m.ID), gorm.ErrRecordNotFound)
}

type evaluationFixture struct {
	svc       EvaluationService
	evals     *fakeEvaluationRepo
	catalogs  *fakeCatalogRepo
	endpoints *fakeEndpointRepo
	metrics   *fakeMetricRepo
}

func newEvaluationFixture(t *testing.T) *evaluationFixture {
	f := &evaluationFixture{
		evals:     newFakeEvaluationRepo(),
		catalogs:  newFakeCatalogRepo(&fakePairRepo{}),
		endpoints: newFakeEndpointRepo(),
		metrics:   newFakeMetricRepo(),
	}
	ctx := context.Background()
	require.NoError(t, f.catalogs.Create(ctx, &model.QACatalog{ID: "ready", Status: model.CatalogStatusReady}))
	require.NoError(t, f.catalogs.Create(ctx, &model.QACatalog{ID: "busy", Status: model.CatalogStatusGenerating}))
	require.NoError(t, f.endpoints.Create(ctx, &model.LLMEndpoint{ID: "e1"}))
	require.NoError(t, f.metrics.Create(ctx, &model.MetricConfig{ID: "m1"}))
	require.NoError(t, f.metrics.Create(ctx, &model.MetricConfig{ID: "m2"}))
	f.svc = NewEvaluationService(f.evals, f.catalogs, f.endpoints, f.metrics)
	return f
}

func TestCreateEvaluation(t *testing.T) {
	f := newEvaluationFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, EvaluationRequest{Name: "run", QACatalogID: "ready", LLMEndpointID: "e1", MetricIDs: []string{"m1", "m2", "m1"}})
	require.NoError(t, err)
	assert.Equal(t, model.EvaluationStatusPending, e.Status)
	assert.Equal(t, []string{"m1", "m2"}, []string(e.MetricIDs))

	bad := []EvaluationRequest{
		{Name: "run", QACatalogID: "busy", LLMEndpointID: "e1", MetricIDs: []string{"m1"}},
		{Name: "run", QACatalogID: "missing", LLMEndpointID: "e1", MetricIDs: []string{"m1"}},
		{Name: "run", QACatalogID: "ready", LLMEndpointID: "missing", MetricIDs: []string{"m1"}},
		{Name: "run", QACatalogID: "ready", LLMEndpointID: "e1", MetricIDs: []string{"m1", "m3"}},
		{Name: "run", QACatalogID: "ready", LLMEndpointID: "e1"},
	}
	for _, req := range bad {
		_, err := f.svc.Create(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
}

func TestEvaluationRenameAndDelete(t *testing.T) {
	f := newEvaluationFixture(t)
	ctx := context.Background()
	e, err := f.svc.Create(ctx, EvaluationRequest{Name: "run", QACatalogID: "ready", LLMEndpointID: "e1", MetricIDs: []string{"m1"}})
	require.NoError(t, err)

	renamed, err := f.svc.Update(ctx, e.ID, EvaluationPatch{Version: 0, Name: "run-2"})
	require.NoError(t, err)
	assert.Equal(t, "run-2", renamed.Name)

	_, err = f.svc.Update(ctx, e.ID, EvaluationPatch{Version: 0, Name: "run-3"})
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	running := &model.Evaluation{ID: "r1", Status: model.EvaluationStatusRunning}
	require.NoError(t, f.evals.Create(ctx, running))
	assert.ErrorIs(t, f.svc.Delete(ctx, "r1"), ErrInvalidArgument)

	require.NoError(t, f.svc.Delete(ctx, e.ID))
	_, err = f.svc.Get(ctx, e.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDashboardSummary(t *testing.T) {
	f := newEvaluationFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, EvaluationRequest{Name: "run", QACatalogID: "ready", LLMEndpointID: "e1", MetricIDs: []string{"m1"}})
	require.NoError(t, err)

	d, err := NewDashboardService(f.catalogs, f.evals, f.endpoints, f.metrics).Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.Catalogs)
	assert.Equal(t, int64(1), d.Evaluations)
	assert.Equal(t, int64(1), d.EvaluationsByState[model.EvaluationStatusPending])
	assert.Equal(t, int64(1), d.LLMEndpoints)
	assert.Equal(t, int64(2), d.Metrics)
}
