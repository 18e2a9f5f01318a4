package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/auth"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/config"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/orchestration"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/polling"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/session"
)

// functionServer emulates the remote functions, keyed by the function name
// suffix of the invocation path.
type functionServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]func(body []byte) (int, interface{})
}

func newFunctionServer(t *testing.T) *functionServer {
	fs := &functionServer{handlers: map[string]func([]byte) (int, interface{}){}}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		_, _ = body.ReadFrom(r.Body)

		fs.mu.Lock()
		var handler func([]byte) (int, interface{})
		for name, h := range fs.handlers {
			if strings.Contains(r.URL.Path, "function:codegen-"+name+"/") {
				handler = h
			}
		}
		fs.mu.Unlock()

		if handler == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		status, resp := handler(body.Bytes())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *functionServer) reply(name string, resp interface{}) {
	fs.on(name, func([]byte) (int, interface{}) { return http.StatusOK, resp })
}

func (fs *functionServer) on(name string, h func(body []byte) (int, interface{})) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.handlers[name] = h
}

type testGateway struct {
	router *gin.Engine
	driver *Driver
	store  *Store
	remote *functionServer
	jwt    *auth.JWTManager
	tokenA string
	tokenB string
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	gin.SetMode(gin.TestMode)

	remote := newFunctionServer(t)
	endpoints := config.DefaultEndpoints()
	endpoints.Endpoint = remote.URL

	logger := zap.NewNop()
	poller := polling.New(3, time.Second, logger)
	poller.Delay = func(context.Context, time.Duration, <-chan struct{}) {}

	conv := session.NewConversation(session.Conversation{
		Invoker:       orchestration.NewClient(endpoints, logger),
		Params:        config.GenerationParams{ModelID: "test-model"},
		WorkspaceRoot: t.TempDir(),
		Endpoints:     endpoints,
		Poller:        poller,
		Logger:        logger,
	})

	store := NewStore(time.Hour, logger)
	driver := NewDriver(conv, store, logger)

	jm, err := auth.NewJWTManager("test-secret")
	require.NoError(t, err)
	developer := []string{auth.RoleDeveloper}
	tokenA, err := jm.GenerateToken(context.Background(), "user-a", "ada", developer, time.Hour)
	require.NoError(t, err)
	tokenB, err := jm.GenerateToken(context.Background(), "user-b", "bob", developer, time.Hour)
	require.NoError(t, err)

	router := gin.New()
	api := router.Group("/api")
	api.Use(auth.RequireAuth(jm, logger))
	api.POST("/auth/refresh", auth.RefreshHandler(jm, time.Hour, logger))
	sessions := api.Group("")
	sessions.Use(auth.RequireRole(auth.RoleDeveloper))
	NewHandler(driver, store, logger).RegisterRoutes(sessions)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = driver.Shutdown(ctx)
	})

	return &testGateway{router: router, driver: driver, store: store, remote: remote, jwt: jm, tokenA: tokenA, tokenB: tokenB}
}

func (g *testGateway) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
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
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	g.router.ServeHTTP(w, req)
	return w
}

func (g *testGateway) createSession(t *testing.T, task string) SessionResponse {
	t.Helper()

	w := g.do(t, http.MethodPost, "/api/sessions", g.tokenA, CreateSessionRequest{
		Task:  task,
		Files: []models.File{{Path: "index.html", Content: "<html></html>"}},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	g.driver.Wait()
	return resp
}

func (g *testGateway) getSession(t *testing.T, id string) SessionResponse {
	t.Helper()

	w := g.do(t, http.MethodGet, "/api/sessions/"+id, g.tokenA, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateSession_RunsRefinement(t *testing.T) {
	g := newTestGateway(t)
	g.remote.reply("approach-generate", orchestration.ApproachGenerateResponse{Approach: "Add a button", ConversationID: "conv-1"})

	created := g.createSession(t, "add a button")
	assert.NotEmpty(t, created.ID)

	got := g.getSession(t, created.ID)
	assert.Equal(t, string(session.KindRefinementIteration), got.State)
	assert.Equal(t, "Add a button", got.Approach)
	assert.Equal(t, "conv-1", got.ConversationID)
	assert.False(t, got.Busy)
	assert.Equal(t, []models.Interaction{
		models.UserMessage("add a button"),
		models.AIMessage("Add a button\n"),
	}, got.History)
}

func TestCreateSession_Validation(t *testing.T) {
	g := newTestGateway(t)

	w := g.do(t, http.MethodPost, "/api/sessions", g.tokenA, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = g.do(t, http.MethodPost, "/api/sessions", "", CreateSessionRequest{Task: "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionRoutes_RequireDeveloperRole(t *testing.T) {
	g := newTestGateway(t)

	viewer, err := g.jwt.GenerateToken(context.Background(), "user-c", "cy", []string{"viewer"}, time.Hour)
	require.NoError(t, err)

	w := g.do(t, http.MethodPost, "/api/sessions", viewer, CreateSessionRequest{Task: "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, g.store.Len())

	// refresh needs a valid token but no role
	w = g.do(t, http.MethodPost, "/api/auth/refresh", viewer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp auth.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	claims, err := g.jwt.ValidateToken(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-c", claims.UserID)
	assert.Equal(t, []string{"viewer"}, claims.Roles)
}

func TestSendMessage_WriteCodeMaterializesFiles(t *testing.T) {
	g := newTestGateway(t)
	g.remote.reply("approach-generate", orchestration.ApproachGenerateResponse{Approach: "Add a button", ConversationID: "conv-1"})
	g.remote.reply("generate", orchestration.CodeGenerateResponse{GenerationID: "gen-1"})
	g.remote.reply("get-results", polling.Result{
		Status: polling.StatusReady,
		Files:  []models.File{{Path: "index.html", Content: "<button/>"}},
	})

	created := g.createSession(t, "add a button")

	w := g.do(t, http.MethodPost, "/api/sessions/"+created.ID+"/messages", g.tokenA, SendMessageRequest{Message: "WRITE CODE"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	g.driver.Wait()

	got := g.getSession(t, created.ID)
	assert.Equal(t, string(session.KindCodeGenIteration), got.State)
	assert.Equal(t, []string{"index.html"}, got.Files)
	assert.Contains(t, got.History, models.AIMessage(session.MessageGenerationStarted))
	assert.Contains(t, got.History, models.CodegenSummary([]string{"index.html"}))

	w = g.do(t, http.MethodGet, "/api/sessions/"+created.ID+"/files", g.tokenA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list FileListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, []string{"codegen:///index.html"}, list.URIs)

	w = g.do(t, http.MethodGet, "/api/sessions/"+created.ID+"/files?uri=codegen:///index.html", g.tokenA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var file FileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))
	assert.Equal(t, "index.html", file.Path)
	assert.Equal(t, "<button/>", file.Content)

	w = g.do(t, http.MethodGet, "/api/sessions/"+created.ID+"/files?uri=codegen:///missing.txt", g.tokenA, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = g.do(t, http.MethodGet, "/api/sessions/"+created.ID+"/files?uri=file:///etc/passwd", g.tokenA, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendMessage_BusyWhileTurnInFlight(t *testing.T) {
	g := newTestGateway(t)
	g.remote.reply("approach-generate", orchestration.ApproachGenerateResponse{Approach: "first", ConversationID: "conv-1"})

	release := make(chan struct{})
	g.remote.on("approach-iterate", func([]byte) (int, interface{}) {
		<-release
		return http.StatusOK, orchestration.ApproachIterateResponse{Approach: "second"}
	})

	created := g.createSession(t, "task")
	path := "/api/sessions/" + created.ID + "/messages"

	w := g.do(t, http.MethodPost, path, g.tokenA, SendMessageRequest{Message: "refine"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = g.do(t, http.MethodPost, path, g.tokenA, SendMessageRequest{Message: "again"})
	assert.Equal(t, http.StatusConflict, w.Code)

	var errResp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, models.ErrCodeSessionBusy, errResp.Code)

	close(release)
	g.driver.Wait()

	assert.Equal(t, "second", g.getSession(t, created.ID).Approach)
}

func TestSession_OwnershipAndDelete(t *testing.T) {
	g := newTestGateway(t)
	g.remote.reply("approach-generate", orchestration.ApproachGenerateResponse{Approach: "a", ConversationID: "conv-1"})

	created := g.createSession(t, "task")
	path := "/api/sessions/" + created.ID

	w := g.do(t, http.MethodGet, path, g.tokenB, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = g.do(t, http.MethodDelete, path, g.tokenB, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = g.do(t, http.MethodDelete, path, g.tokenA, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = g.do(t, http.MethodGet, path, g.tokenA, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 0, g.store.Len())
}

func TestDeleteSession_CancelsPolling(t *testing.T) {
	g := newTestGateway(t)
	g.remote.reply("approach-generate", orchestration.ApproachGenerateResponse{Approach: "a", ConversationID: "conv-1"})
	g.remote.reply("generate", orchestration.CodeGenerateResponse{GenerationID: "gen-1"})

	polled := make(chan struct{}, 1)
	release := make(chan struct{})
	g.remote.on("get-results", func([]byte) (int, interface{}) {
		select {
		case polled <- struct{}{}:
		default:
		}
		<-release
		return http.StatusOK, polling.Result{Status: polling.StatusInProgress}
	})

	created := g.createSession(t, "task")
	s, err := g.store.Get(created.ID)
	require.NoError(t, err)

	w := g.do(t, http.MethodPost, "/api/sessions/"+created.ID+"/messages", g.tokenA, SendMessageRequest{Message: "WRITE CODE"})
	require.Equal(t, http.StatusAccepted, w.Code)

	<-polled
	w = g.do(t, http.MethodDelete, "/api/sessions/"+created.ID, g.tokenA, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	close(release)
	g.driver.Wait()

	snap := s.Snapshot()
	assert.Equal(t, session.KindCodeGenIteration, snap.State.Kind())
	assert.Empty(t, snap.Files)
	assert.NotContains(t, snap.History, models.AIMessage(polling.MessageTimeout))
}

func TestSnapshot_DuringCodeGenIterationTurns(t *testing.T) {
	g := newTestGateway(t)
	g.remote.reply("generate", orchestration.CodeGenerateResponse{GenerationID: "gen-1"})
	g.remote.reply("get-results", polling.Result{
		Status: polling.StatusReady,
		Files:  []models.File{{Path: "a.txt", Content: "2"}},
	})

	initial := session.NewCodeGenIteration(g.driver.conv, "approach", []models.File{{Path: "a.txt", Content: "1"}})
	s := newSession("s-race", "user-a", "task", nil, initial)
	g.store.Put(s)
	assert.Equal(t, []models.File{{Path: "a.txt", Content: "1"}}, s.Snapshot().Files)

	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
				snap := s.Snapshot()
				_ = toResponse(s)
				for _, f := range snap.Files {
					_ = f.Content
				}
			}
		}
	}()

	for i := 0; i < 20; i++ {
		require.NoError(t, g.driver.Send(s, "again", nil))
		g.driver.Wait()
	}
	close(stop)
	<-readerDone

	snap := s.Snapshot()
	assert.Equal(t, session.KindCodeGenIteration, snap.State.Kind())
	assert.Equal(t, []models.File{{Path: "a.txt", Content: "2"}}, snap.Files)
}
