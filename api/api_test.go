package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fyerfyer/regulation-mapper/api/handler"
	"github.com/fyerfyer/regulation-mapper/api/model"
	"github.com/fyerfyer/regulation-mapper/internal/classifier"
	"github.com/fyerfyer/regulation-mapper/internal/corpus"
	"github.com/fyerfyer/regulation-mapper/internal/database"
	"github.com/fyerfyer/regulation-mapper/internal/document"
	"github.com/fyerfyer/regulation-mapper/internal/llm"
	"github.com/fyerfyer/regulation-mapper/internal/models"
	"github.com/fyerfyer/regulation-mapper/internal/repository"
	"github.com/fyerfyer/regulation-mapper/internal/services"
	"github.com/fyerfyer/regulation-mapper/pkg/storage"
	"github.com/fyerfyer/regulation-mapper/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testMetadata = `{
	"file_name": "policy.pdf",
	"ocr_result": {
		"document_title": "Arrears Policy",
		"document_type": "Policy",
		"total_pages": 2,
		"summary": "Handling of mortgage arrears",
		"key_topics": ["arrears"],
		"table_of_contents": []
	}
}`

const testCorpus = `[
	{"Part": 1, "Title": "General", "chapters": [
		{"chapter_num": 1, "chapter_title": "Arrears", "sections": [{"id": 1, "title": "Scope", "content": "arrears handling"}]},
		{"chapter_num": 2, "chapter_title": "Advertising", "sections": [{"id": 1, "title": "Scope", "content": "adverts"}]}
	]}
]`

// 测试环境配置
type testEnv struct {
	Router   *gin.Engine
	Storage  storage.Storage
	Service  *services.MappingService
	Metadata *httptest.Server
	Queue    *taskqueue.RedisQueue
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// 创建测试环境，async为true时启用基于miniredis的任务队列
func setupTestEnv(t *testing.T, async bool) *testEnv {
	gin.SetMode(gin.TestMode)

	metadata := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testMetadata))
	}))
	t.Cleanup(metadata.Close)

	fileStorage, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir(), PublicURL: "https://cdn.example.com/"})
	require.NoError(t, err)

	mockLLM := llm.NewMockClient(t)
	mockLLM.EXPECT().Chat(mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(func(ctx context.Context, messages []llm.Message, opts ...llm.ChatOption) (*llm.Response, error) {
			if strings.Contains(messages[1].Content, `<chapter number="1"`) {
				return &llm.Response{Text: `{"relevance_score": 0.9, "relevance_reasoning": "arrears", "confidence_level": "high", "mapped_identifiers": ["section-1_chapter-1_part-1"], "is_relevant": true}`}, nil
			}
			return &llm.Response{Text: `{"relevance_score": 0.0, "relevance_reasoning": "none", "confidence_level": "high", "mapped_identifiers": ["None"], "is_relevant": false}`}, nil
		}).Maybe()

	cfg := classifier.DefaultConfig()
	cfg.APIKey = "test-key"
	cl, err := classifier.New(mockLLM, cfg, classifier.WithLogger(quietLogger()))
	require.NoError(t, err)

	chapters, err := models.ParseCorpus([]byte(testCorpus))
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:api_%d?mode=memory&cache=shared", time.Now().UnixNano())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	opts := []services.MappingOption{
		services.WithMappingRepository(repository.NewMappingRepositoryWithDB(db)),
		services.WithLogger(quietLogger()),
	}

	env := &testEnv{Storage: fileStorage, Metadata: metadata}
	if async {
		mr := miniredis.RunT(t)
		queue, err := taskqueue.NewRedisQueue(&taskqueue.Config{RedisAddr: mr.Addr()})
		require.NoError(t, err)
		t.Cleanup(func() { queue.Close() })
		env.Queue = queue
		opts = append(opts, services.WithTaskQueue(queue))
	}

	env.Service = services.NewMappingService(
		document.NewHTTPFetcher(document.WithFetcherLogger(quietLogger()), document.WithRetry(0, 0)),
		corpus.NewStaticLoader(chapters),
		services.NewAggregator(cl, services.WithAggregatorLogger(quietLogger())),
		services.NewPublisher(fileStorage, quietLogger()),
		opts...,
	)
	env.Router = SetupRouter(handler.NewMappingHandler(env.Service))
	return env
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decodeData 解析通用响应中的data字段
func decodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var resp struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestRootAndHealth(t *testing.T) {
	env := setupTestEnv(t, false)

	w := doRequest(env.Router, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message": "Regulation Mapper API is running"}`, w.Body.String())

	w = doRequest(env.Router, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}

func TestMapRegulations(t *testing.T) {
	env := setupTestEnv(t, false)

	w := doRequest(env.Router, http.MethodPost, "/map-regulations", model.MapRequest{URL: env.Metadata.URL + "/doc.json"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp model.MapRegulationsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.True(t, strings.HasPrefix(resp.Data, "https://cdn.example.com/"))
	assert.True(t, strings.HasSuffix(resp.Data, ".json"))

	rc, err := env.Storage.Get(context.Background(), strings.TrimPrefix(resp.Data, "https://cdn.example.com/"))
	require.NoError(t, err)
	defer rc.Close()

	var report models.AggregateReport
	require.NoError(t, json.NewDecoder(rc).Decode(&report))
	assert.Equal(t, 2, report.Summary.TotalChaptersProcessed)
	assert.Equal(t, 1, report.Summary.RelevantChaptersCount)
	assert.Equal(t, []string{"section-1_chapter-1_part-1"}, report.AllMappedIdentifiers)
}

func TestMapRegulationsErrors(t *testing.T) {
	env := setupTestEnv(t, false)

	t.Run("MissingURL", func(t *testing.T) {
		w := doRequest(env.Router, http.MethodPost, "/map-regulations", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("InvalidURL", func(t *testing.T) {
		w := doRequest(env.Router, http.MethodPost, "/map-regulations", model.MapRequest{URL: "not a url"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp model.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.NotEmpty(t, resp.TraceID)
	})

	t.Run("FetchFailed", func(t *testing.T) {
		w := doRequest(env.Router, http.MethodPost, "/map-regulations", model.MapRequest{URL: env.Metadata.URL + "/missing"})
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestMappingHistory(t *testing.T) {
	env := setupTestEnv(t, false)

	w := doRequest(env.Router, http.MethodPost, "/map-regulations", model.MapRequest{URL: env.Metadata.URL + "/doc.json"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(env.Router, http.MethodGet, "/api/mappings?page=1&page_size=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list model.MappingListResponse
	decodeData(t, w, &list)
	assert.Equal(t, int64(1), list.Total)
	assert.Equal(t, 5, list.PageSize)
	require.Len(t, list.Mappings, 1)

	info := list.Mappings[0]
	assert.Equal(t, string(models.MappingStatusCompleted), info.Status)
	assert.Equal(t, 2, info.TotalChapters)
	assert.Equal(t, 1, info.RelevantChapters)

	w = doRequest(env.Router, http.MethodGet, "/api/mappings/"+info.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var single model.MappingInfo
	decodeData(t, w, &single)
	assert.Equal(t, info.ReportURL, single.ReportURL)

	w = doRequest(env.Router, http.MethodGet, "/api/mappings/"+info.ID+"/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"relevant_chapters_count": 1`)

	w = doRequest(env.Router, http.MethodGet, "/api/mappings?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(env.Router, http.MethodDelete, "/api/mappings/"+info.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(env.Router, http.MethodGet, "/api/mappings/"+info.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(env.Router, http.MethodDelete, "/api/mappings/"+info.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAsyncDisabled(t *testing.T) {
	env := setupTestEnv(t, false)

	w := doRequest(env.Router, http.MethodPost, "/api/mappings", model.MapRequest{URL: env.Metadata.URL + "/doc.json"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doRequest(env.Router, http.MethodGet, "/api/tasks/abc", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAsyncMapping(t *testing.T) {
	env := setupTestEnv(t, true)

	w := doRequest(env.Router, http.MethodPost, "/api/mappings", model.MapRequest{URL: env.Metadata.URL + "/doc.json"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var submitted model.MappingSubmitResponse
	decodeData(t, w, &submitted)
	assert.NotEmpty(t, submitted.MappingID)
	assert.NotEmpty(t, submitted.TaskID)
	assert.Equal(t, "pending", submitted.Status)

	w = doRequest(env.Router, http.MethodGet, "/api/tasks/"+submitted.TaskID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status model.TaskStatusResponse
	decodeData(t, w, &status)
	assert.Equal(t, taskqueue.StatusPending, status.Status)
	assert.Empty(t, status.ReportURL)

	// 直接执行任务，模拟工作者
	ctx := context.Background()
	task, err := env.Queue.GetTask(ctx, submitted.TaskID)
	require.NoError(t, err)
	result, err := env.Service.ProcessTask(ctx, task)
	require.NoError(t, err)
	require.NoError(t, env.Queue.UpdateTaskStatus(ctx, task.ID, taskqueue.StatusCompleted, result, ""))

	w = doRequest(env.Router, http.MethodGet, "/api/tasks/"+submitted.TaskID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &status)
	assert.Equal(t, taskqueue.StatusCompleted, status.Status)
	assert.True(t, strings.HasPrefix(status.ReportURL, "https://cdn.example.com/"))

	w = doRequest(env.Router, http.MethodGet, "/api/tasks/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCors(t *testing.T) {
	env := setupTestEnv(t, false)

	w := doRequest(env.Router, http.MethodOptions, "/map-regulations", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
