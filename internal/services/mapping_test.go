package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fyerfyer/regulation-mapper/internal/classifier"
	"github.com/fyerfyer/regulation-mapper/internal/corpus"
	"github.com/fyerfyer/regulation-mapper/internal/database"
	"github.com/fyerfyer/regulation-mapper/internal/document"
	"github.com/fyerfyer/regulation-mapper/internal/llm"
	"github.com/fyerfyer/regulation-mapper/internal/models"
	"github.com/fyerfyer/regulation-mapper/internal/repository"
	"github.com/fyerfyer/regulation-mapper/pkg/storage"
	"github.com/fyerfyer/regulation-mapper/pkg/taskqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testMetadata = `{
	"file_name": "complaints.pdf",
	"ocr_result": {
		"document_title": "Complaints Handling Policy",
		"document_type": "Policy",
		"total_pages": 4,
		"summary": "How complaints are handled",
		"key_topics": ["complaints", "timelines"],
		"table_of_contents": [{"level": 1, "title": "Introduction", "page": 1}]
	}
}`

// stubFetcher 返回固定元数据或错误
type stubFetcher struct {
	meta *models.DocumentMetadata
	err  error
}

func (f *stubFetcher) Fetch(ctx context.Context, ref string) (*models.DocumentMetadata, error) {
	return f.meta, f.err
}

type mappingEnv struct {
	service *MappingService
	store   storage.Storage
	repo    repository.MappingRepository
}

func setupMappingDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:mapping_%d?mode=memory&cache=shared", time.Now().UnixNano())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

// verdictFor 按章节编号生成模型输出
func verdictFor(prompt string) string {
	switch {
	case strings.Contains(prompt, `<chapter number="1"`):
		return "```json\n" + `{"relevance_score": 0.9, "relevance_reasoning": "covers complaints", "confidence_level": "high", "mapped_identifiers": ["section-1_chapter-1_part-1"], "is_relevant": true}` + "\n```"
	case strings.Contains(prompt, `<chapter number="2"`):
		return `{"relevance_score": 0.0, "relevance_reasoning": "unrelated", "confidence_level": "high", "mapped_identifiers": ["None"], "is_relevant": false}`
	default:
		return `{"relevance_score": 0.6, "relevance_reasoning": "general", "confidence_level": "medium", "mapped_identifiers": ["None"], "is_relevant": true}`
	}
}

func newMockLLM(t *testing.T) *llm.MockClient {
	client := llm.NewMockClient(t)
	client.EXPECT().Chat(mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(func(ctx context.Context, messages []llm.Message, opts ...llm.ChatOption) (*llm.Response, error) {
			return &llm.Response{Text: verdictFor(messages[len(messages)-1].Content)}, nil
		}).Maybe()
	return client
}

func setupMappingEnv(t *testing.T, fetcher document.Fetcher, store storage.Storage, opts ...MappingOption) *mappingEnv {
	t.Helper()

	if store == nil {
		local, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir(), PublicURL: "https://cdn.example.com/"})
		require.NoError(t, err)
		store = local
	}

	cfg := classifier.DefaultConfig()
	cfg.APIKey = "test-key"
	cl, err := classifier.New(newMockLLM(t), cfg, classifier.WithLogger(quietLogger()))
	require.NoError(t, err)

	repo := repository.NewMappingRepositoryWithDB(setupMappingDB(t))
	opts = append([]MappingOption{WithMappingRepository(repo), WithLogger(quietLogger())}, opts...)

	srv := NewMappingService(
		fetcher,
		corpus.NewStaticLoader(buildCorpus(t, 3)),
		NewAggregator(cl, WithAggregatorLogger(quietLogger())),
		NewPublisher(store, quietLogger()),
		opts...,
	)
	return &mappingEnv{service: srv, store: store, repo: repo}
}

func newMetadataServer(t *testing.T) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testMetadata))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestMapEndToEnd(t *testing.T) {
	server := newMetadataServer(t)
	env := setupMappingEnv(t, document.NewHTTPFetcher(document.WithFetcherLogger(quietLogger())), nil)
	ctx := context.Background()

	result, err := env.service.Map(ctx, server.URL+"/doc.json")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.ReportURL, "https://cdn.example.com/"))
	assert.Equal(t, 3, result.Report.Summary.TotalChaptersProcessed)
	assert.Equal(t, 2, result.Report.Summary.RelevantChaptersCount)
	assert.Equal(t, []string{"section-1_chapter-1_part-1"}, result.Report.AllMappedIdentifiers)

	run, err := env.service.GetRun(result.MappingID)
	require.NoError(t, err)
	assert.Equal(t, models.MappingStatusCompleted, run.Status)
	assert.Equal(t, result.ReportURL, run.ReportURL)
	assert.Equal(t, 3, run.TotalChapters)
	assert.Equal(t, 2, run.RelevantChapters)
	assert.JSONEq(t, `{"total_chapters_processed":3,"relevant_chapters_count":2}`, string(run.Summary))
	assert.NotNil(t, run.CompletedAt)

	rc, err := env.service.GetReport(ctx, result.MappingID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)

	var report models.AggregateReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, result.Report.Summary, report.Summary)
	assert.Len(t, report.RelevantChapters, 2)
}

func TestMapInvalidRef(t *testing.T) {
	env := setupMappingEnv(t, &stubFetcher{}, nil)

	_, err := env.service.Map(context.Background(), "not-a-url")
	assert.ErrorIs(t, err, models.ErrInvalidDocumentRef)

	_, total, err := env.service.ListRuns(0, 10, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestMapFetchFailure(t *testing.T) {
	local, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)
	store := &recordingStorage{Storage: local}

	fetchErr := fmt.Errorf("%w: status 404", models.ErrFetchFailed)
	env := setupMappingEnv(t, &stubFetcher{err: fetchErr}, store)

	result, err := env.service.Map(context.Background(), "https://example.com/missing.json")
	assert.ErrorIs(t, err, models.ErrFetchFailed)
	assert.Nil(t, result)

	// 获取失败时不分类也不发布报告
	assert.Empty(t, store.localPaths)

	runs, total, err := env.service.ListRuns(0, 10, string(models.MappingStatusFailed))
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Contains(t, runs[0].Error, "status 404")
	assert.Empty(t, runs[0].ReportURL)
	assert.Zero(t, runs[0].TotalChapters)
}

func TestProcessTaskRetryKeepsRunPending(t *testing.T) {
	fetchErr := fmt.Errorf("%w: status 503", models.ErrFetchFailed)
	env := setupMappingEnv(t, &stubFetcher{err: fetchErr}, nil)

	run := &models.MappingRun{ID: "retry-run", DocumentURL: "https://example.com/doc.json", Status: models.MappingStatusPending}
	require.NoError(t, env.repo.Create(run))

	payload, err := json.Marshal(taskqueue.MapRegulationsPayload{MappingID: run.ID, DocumentURL: run.DocumentURL})
	require.NoError(t, err)
	task := &taskqueue.Task{ID: "retry-task", MappingID: run.ID, Payload: payload}

	// 第一次失败，还有重试机会
	_, err = env.service.ProcessTask(taskqueue.WithRetryState(context.Background(), 0, 1), task)
	require.ErrorIs(t, err, models.ErrFetchFailed)
	assert.False(t, taskqueue.IsPermanent(err))

	got, err := env.service.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MappingStatusPending, got.Status)
	assert.Contains(t, got.Error, "status 503")
	assert.Nil(t, got.CompletedAt)

	// 最后一次重试仍然失败
	_, err = env.service.ProcessTask(taskqueue.WithRetryState(context.Background(), 1, 1), task)
	require.ErrorIs(t, err, models.ErrFetchFailed)

	got, err = env.service.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MappingStatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestMapPublishFailure(t *testing.T) {
	local, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)
	store := &recordingStorage{Storage: local, uploadErr: errors.New("upload rejected")}

	meta, err := models.ParseDocumentMetadata([]byte(testMetadata))
	require.NoError(t, err)
	env := setupMappingEnv(t, &stubFetcher{meta: meta}, store)

	_, err = env.service.Map(context.Background(), "https://example.com/doc.json")
	assert.ErrorContains(t, err, "upload rejected")

	runs, _, err := env.service.ListRuns(0, 10, "")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.MappingStatusFailed, runs[0].Status)
	assert.Empty(t, runs[0].ReportURL)
}

func TestSubmitWithoutQueue(t *testing.T) {
	env := setupMappingEnv(t, &stubFetcher{}, nil)
	assert.False(t, env.service.AsyncEnabled())

	_, _, err := env.service.Submit(context.Background(), "https://example.com/doc.json")
	assert.ErrorIs(t, err, models.ErrAsyncDisabled)

	_, err = env.service.TaskStatus(context.Background(), "task")
	assert.ErrorIs(t, err, models.ErrAsyncDisabled)
}

func TestSubmitAndProcessTask(t *testing.T) {
	mr := miniredis.RunT(t)
	queue, err := taskqueue.NewRedisQueue(&taskqueue.Config{RedisAddr: mr.Addr(), RetryLimit: 1})
	require.NoError(t, err)
	defer queue.Close()

	server := newMetadataServer(t)
	env := setupMappingEnv(t, document.NewHTTPFetcher(document.WithFetcherLogger(quietLogger())), nil, WithTaskQueue(queue))
	ctx := context.Background()
	assert.True(t, env.service.AsyncEnabled())

	mappingID, taskID, err := env.service.Submit(ctx, server.URL+"/doc.json")
	require.NoError(t, err)

	run, err := env.service.GetRun(mappingID)
	require.NoError(t, err)
	assert.Equal(t, models.MappingStatusPending, run.Status)
	assert.Equal(t, taskID, run.TaskID)

	task, err := env.service.TaskStatus(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, mappingID, task.MappingID)

	out, err := env.service.ProcessTask(ctx, task)
	require.NoError(t, err)
	result, ok := out.(taskqueue.MapRegulationsResult)
	require.True(t, ok)
	assert.Equal(t, mappingID, result.MappingID)
	assert.Equal(t, 3, result.TotalChapters)
	assert.Equal(t, 2, result.RelevantChapters)

	run, err = env.service.GetRun(mappingID)
	require.NoError(t, err)
	assert.Equal(t, models.MappingStatusCompleted, run.Status)
	assert.Equal(t, result.ReportURL, run.ReportURL)

	require.NoError(t, env.service.DeleteRun(ctx, mappingID))
	_, err = queue.GetTask(ctx, taskID)
	assert.ErrorIs(t, err, taskqueue.ErrTaskNotFound)
}

func TestProcessTaskInvalidPayload(t *testing.T) {
	env := setupMappingEnv(t, &stubFetcher{}, nil)

	_, err := env.service.ProcessTask(context.Background(), &taskqueue.Task{ID: "t1", Payload: json.RawMessage(`{bad`)})
	assert.True(t, taskqueue.IsPermanent(err))

	payload, _ := json.Marshal(taskqueue.MapRegulationsPayload{MappingID: "m1", DocumentURL: "ftp://nope"})
	_, err = env.service.ProcessTask(context.Background(), &taskqueue.Task{ID: "t2", Payload: payload})
	assert.True(t, taskqueue.IsPermanent(err))
	assert.ErrorIs(t, err, models.ErrInvalidDocumentRef)

	assert.Equal(t, []taskqueue.TaskType{taskqueue.TaskMapRegulations}, env.service.GetTaskTypes())
}

func TestDeleteRun(t *testing.T) {
	meta, err := models.ParseDocumentMetadata([]byte(testMetadata))
	require.NoError(t, err)
	env := setupMappingEnv(t, &stubFetcher{meta: meta}, nil)
	ctx := context.Background()

	result, err := env.service.Map(ctx, "https://example.com/doc.json")
	require.NoError(t, err)

	require.NoError(t, env.service.DeleteRun(ctx, result.MappingID))

	_, err = env.store.Get(ctx, result.ReportObject)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	_, err = env.service.GetRun(result.MappingID)
	assert.ErrorIs(t, err, models.ErrMappingNotFound)

	_, err = env.service.GetReport(ctx, result.MappingID)
	assert.ErrorIs(t, err, models.ErrMappingNotFound)

	assert.ErrorIs(t, env.service.DeleteRun(ctx, result.MappingID), models.ErrMappingNotFound)
}

func TestGetReportUnavailable(t *testing.T) {
	env := setupMappingEnv(t, &stubFetcher{}, nil)
	require.NoError(t, env.repo.Create(&models.MappingRun{ID: "pending-run", DocumentURL: "https://example.com/d.json"}))

	_, err := env.service.GetReport(context.Background(), "pending-run")
	assert.ErrorIs(t, err, models.ErrReportUnavailable)
}

func TestServiceWithoutRepository(t *testing.T) {
	meta, err := models.ParseDocumentMetadata([]byte(testMetadata))
	require.NoError(t, err)

	local, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)
	cl, err := classifier.New(nil, classifier.DefaultConfig(), classifier.WithLogger(quietLogger()))
	require.NoError(t, err)

	srv := NewMappingService(&stubFetcher{meta: meta}, corpus.NewStaticLoader(buildCorpus(t, 2)),
		NewAggregator(cl), NewPublisher(local, quietLogger()), WithLogger(quietLogger()))

	result, err := srv.Map(context.Background(), "https://example.com/doc.json")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Report.Summary.TotalChaptersProcessed)
	assert.Equal(t, 0, result.Report.Summary.RelevantChaptersCount)

	runs, total, err := srv.ListRuns(0, 10, "")
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Equal(t, int64(0), total)

	_, err = srv.GetRun(result.MappingID)
	assert.ErrorIs(t, err, models.ErrMappingNotFound)
}
