package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/bot"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/config"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/logger"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/deploy"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/events/bus"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/logs"
	langruntime "github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/runtime"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/sandbox"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/supervisor"
	v1 "github.com/whatsapp110x-ctrl/Host-Elite-sub000/pkg/api/v1"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	store  *bot.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	require.NoError(t, err)

	sb, err := sandbox.NewManager(config.StorageConfig{Root: t.TempDir(), MaxFileBytes: 1 << 20}, log)
	require.NoError(t, err)

	store := bot.NewStore()
	agg := logs.NewAggregator(1000, 64, log)
	runtimes := langruntime.NewRegistry(log)
	runtimes.LoadDefaults()
	eventBus := bus.NewMemoryEventBus(log)
	t.Cleanup(eventBus.Close)

	supCfg := config.SupervisorConfig{
		StopTimeout:       2,
		RestartDelay:      50,
		BackoffBase:       50,
		BackoffMax:        400,
		CleanRunThreshold: 30,
		BasePort:          20000,
		MaxPort:           29999,
	}
	locks := bot.NewLocks()
	sup := supervisor.New(store, locks, sb, agg, runtimes, nil, eventBus, supCfg, log)
	t.Cleanup(func() { _ = sup.StopAll(context.Background()) })

	pipeline := deploy.NewPipeline(store, locks, sb, agg, nil, runtimes, eventBus,
		config.DeployConfig{BuildTimeout: 60}, log)

	router := gin.New()
	SetupRoutes(router.Group("/api/v1"), store, pipeline, sup, sb, agg, log)
	return &testServer{router: router, store: store}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

// deployArchive uploads a small zip through the multipart deploy endpoint.
func (ts *testServer) deployArchive(t *testing.T, name, runCommand string, files map[string]string) *v1.Bot {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	for fname, content := range files {
		w, err := zw.Create(fname)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	part, err := mw.CreateFormFile("archive", "bot.zip")
	require.NoError(t, err)
	_, err = part.Write(zipBuf.Bytes())
	require.NoError(t, err)

	require.NoError(t, mw.WriteField("name", name))
	require.NoError(t, mw.WriteField("language", "python"))
	require.NoError(t, mw.WriteField("run_command", runCommand))
	require.NoError(t, mw.WriteField("source", "archive"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bots/deploy", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var deployed v1.Bot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &deployed))
	return &deployed
}

func TestDeployArchiveEndpoint(t *testing.T) {
	ts := newTestServer(t)

	deployed := ts.deployArchive(t, "echo-bot", "sleep 30", map[string]string{
		"main.py": "print('hi')",
		".env":    "TOKEN=abc\n",
	})

	assert.Equal(t, "echo-bot", deployed.Name)
	assert.Equal(t, v1.BotStatusStopped, deployed.Status)
	assert.Equal(t, "abc", deployed.Env["TOKEN"])
	assert.NotEmpty(t, deployed.ID)
}

func TestDeployRequiresArchivePart(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "incomplete"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bots/deploy", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndGetBots(t *testing.T) {
	ts := newTestServer(t)
	deployed := ts.deployArchive(t, "listed-bot", "sleep 30", map[string]string{"main.py": "pass"})

	w := ts.do(t, http.MethodGet, "/api/v1/bots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int      `json:"count"`
		Bots  []v1.Bot `json:"bots"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	w = ts.do(t, http.MethodGet, "/api/v1/bots/"+deployed.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/bots/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLifecycleEndpoints(t *testing.T) {
	ts := newTestServer(t)
	deployed := ts.deployArchive(t, "cycle-bot", "sleep 30", map[string]string{"main.py": "pass"})

	// Stop before start is a lifecycle violation.
	w := ts.do(t, http.MethodPost, "/api/v1/bots/"+deployed.ID+"/stop", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/bots/"+deployed.ID+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var started v1.Bot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	assert.Equal(t, v1.BotStatusRunning, started.Status)

	// Double start is rejected and the bot keeps running.
	w = ts.do(t, http.MethodPost, "/api/v1/bots/"+deployed.ID+"/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/bots/"+deployed.ID+"/stop", StopBotRequest{Immediate: true})
	require.Equal(t, http.StatusOK, w.Code)
	var stopped v1.Bot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stopped))
	assert.Equal(t, v1.BotStatusStopped, stopped.Status)
}

func TestForceStopEndpoint(t *testing.T) {
	ts := newTestServer(t)
	deployed := ts.deployArchive(t, "force-bot", "sleep 30", map[string]string{"main.py": "pass"})

	w := ts.do(t, http.MethodPost, "/api/v1/bots/"+deployed.ID+"/force-stop", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/bots/"+deployed.ID+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/v1/bots/"+deployed.ID+"/force-stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stopped v1.Bot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stopped))
	assert.Equal(t, v1.BotStatusStopped, stopped.Status)
}

func TestRestartEndpoint(t *testing.T) {
	ts := newTestServer(t)
	deployed := ts.deployArchive(t, "restart-bot", "sleep 30", map[string]string{"main.py": "pass"})

	w := ts.do(t, http.MethodPost, "/api/v1/bots/"+deployed.ID+"/restart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var restarted v1.Bot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &restarted))
	assert.Equal(t, v1.BotStatusRunning, restarted.Status)
}

func TestFileEndpoints(t *testing.T) {
	ts := newTestServer(t)
	deployed := ts.deployArchive(t, "file-bot", "sleep 30", map[string]string{"main.py": "print('hi')"})

	w := ts.do(t, http.MethodGet, "/api/v1/bots/"+deployed.ID+"/files", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tree v1.FileNode
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tree))
	require.NotEmpty(t, tree.Children)

	w = ts.do(t, http.MethodGet, "/api/v1/bots/"+deployed.ID+"/files/content?path=main.py", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var content sandbox.FileContent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &content))
	assert.Equal(t, "print('hi')", content.Content)
	assert.Equal(t, "python", content.Language)

	w = ts.do(t, http.MethodPut, "/api/v1/bots/"+deployed.ID+"/files/content",
		WriteFileRequest{Path: "notes.txt", Content: "hello"})
	assert.Equal(t, http.StatusOK, w.Code)

	// Path escapes are rejected.
	w = ts.do(t, http.MethodGet, "/api/v1/bots/"+deployed.ID+"/files/content?path=../escape.txt", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/bots/"+deployed.ID+"/files/content", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	deployed := ts.deployArchive(t, "logged-bot", "sleep 30", map[string]string{"main.py": "pass"})

	w := ts.do(t, http.MethodGet, "/api/v1/bots/"+deployed.ID+"/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Count int          `json:"count"`
		Logs  []v1.LogLine `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Greater(t, resp.Count, 0, "deployment lines should be retained")
}

func TestHealthAndStatsEndpoints(t *testing.T) {
	ts := newTestServer(t)
	deployed := ts.deployArchive(t, "healthy-bot", "sleep 30", map[string]string{"main.py": "pass"})

	w := ts.do(t, http.MethodGet, "/api/v1/bots/"+deployed.ID+"/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "unknown")

	w = ts.do(t, http.MethodGet, "/api/v1/system/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats v1.SystemStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.RegisteredBots)
}

func TestDeleteEndpoint(t *testing.T) {
	ts := newTestServer(t)
	deployed := ts.deployArchive(t, "deleted-bot", "sleep 30", map[string]string{"main.py": "pass"})

	w := ts.do(t, http.MethodPost, "/api/v1/bots/"+deployed.ID+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/v1/bots/"+deployed.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	for _, path := range []string{
		fmt.Sprintf("/api/v1/bots/%s", deployed.ID),
		fmt.Sprintf("/api/v1/bots/%s/files", deployed.ID),
	} {
		w = ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}

	w = ts.do(t, http.MethodPost, "/api/v1/bots/"+deployed.ID+"/start", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
