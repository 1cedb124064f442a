//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/reposcout/internal/agent"
	"github.com/cloo-solutions/reposcout/internal/api/handlers"
	"github.com/cloo-solutions/reposcout/internal/api/middleware"
	"github.com/cloo-solutions/reposcout/internal/events"
	"github.com/cloo-solutions/reposcout/internal/github"
	"github.com/cloo-solutions/reposcout/internal/openai"
	"github.com/cloo-solutions/reposcout/internal/repository"
	"github.com/cloo-solutions/reposcout/internal/server"
	"github.com/cloo-solutions/reposcout/internal/service"
	"github.com/cloo-solutions/reposcout/internal/storage"
	"github.com/cloo-solutions/reposcout/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	testAPIKey         = "scout_e2e_key"
	embeddingDimension = 1536
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	Pool         *pgxpool.Pool
	GitHub       *fakeGitHub
	OpenAI       *fakeOpenAI
	Engine       *service.Engine
	ServerURL    string
	ServerCloser func()
	BinaryDir    string
	HTTPClient   *http.Client
}

// SetupE2EEnv starts Postgres and RustFS, fakes GitHub and OpenAI over HTTP
// and serves the full router against them.
func SetupE2EEnv(t *testing.T, repos ...fakeRepo) *E2ETestEnv {
	ctx := context.Background()

	pg := testutil.StartPostgres(ctx, t)
	store := testutil.StartObjectStore(ctx, t)

	bucket, err := storage.OpenBucket(ctx, storage.BucketConfig{
		Endpoint:        store.Endpoint,
		Region:          "us-east-1",
		AccessKeyID:     testutil.ObjectStoreAccessKey,
		SecretAccessKey: testutil.ObjectStoreSecretKey,
		Name:            "test-reports",
	})
	if err != nil {
		t.Fatalf("failed to open report bucket: %v", err)
	}

	gh := newFakeGitHub(repos)
	llm := newFakeOpenAI()

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		Pool:       pg.Pool,
		GitHub:     gh,
		OpenAI:     llm,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	env.ServerURL, env.ServerCloser = env.startServer(storage.NewReportArchive(bucket), port)
	return env
}

// Cleanup stops the server and fakes. Containers and the pool are released
// by the test cleanups testutil registers.
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.GitHub != nil {
		e.GitHub.Close()
	}
	if e.OpenAI != nil {
		e.OpenAI.Close()
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

func (e *E2ETestEnv) startServer(archive *storage.ReportArchive, port int) (string, func()) {
	requests := repository.NewSearchRequestRepository(e.Pool)
	items := repository.NewReviewItemRepository(e.Pool)
	results := repository.NewAnalysisResultRepository(e.Pool)
	configs := repository.NewConfigurationRepository(e.Pool)
	enrichments := repository.NewEnrichmentRepository(e.Pool)
	txRunner := repository.NewTxRunner(e.Pool)

	host, err := github.NewClient(e.Ctx, github.Config{Token: "e2e", BaseURL: e.GitHub.URL})
	if err != nil {
		e.T.Fatalf("failed to create github client: %v", err)
	}
	llm := openai.NewClient(openai.Config{APIKey: "e2e", BaseURL: e.OpenAI.URL + "/v1"})

	registry := agent.NewRegistry(agent.Deps{
		Store:    results,
		Host:     host,
		Gen:      llm,
		Embedder: llm,
		NewID:    uuid.NewString,
		Timeout:  30 * time.Second,
	})
	bus := events.NewMemoryBus()

	e.Engine = service.NewEngine(service.EngineDeps{
		Requests: requests,
		Items:    items,
		Results:  results,
		Configs:  configs,
		TxRunner: txRunner,
		Searcher: host,
		Gen:      llm,
		Registry: registry,
		Judge:    agent.NewJudge(llm),
		Archive:  archive,
		Bus:      bus,
	}, service.EngineConfig{
		PreviewSize:          3,
		DefaultAnalysisCount: 4,
		Concurrency:          2,
		MonitorInterval:      50 * time.Millisecond,
		CorrectionThreshold:  10,
		SynthesisTopN:        10,
	})

	uuidGen := &service.DefaultUUIDGenerator{}
	searchSvc := service.NewSearchServiceWithUUIDGen(requests, configs, e.Engine, uuidGen)
	chatSvc := service.NewChatService(requests, results, llm, llm)

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:        middleware.NewStaticKey(testAPIKey),
		SearchHandler:        handlers.NewSearchHandler(searchSvc),
		HITLHandler:          handlers.NewHITLHandler(service.NewReviewService(items, requests, e.Engine)),
		ResultsHandler:       handlers.NewResultsHandler(service.NewResultsService(requests, results), service.NewReportService(requests, archive), service.NewEnrichmentService(requests, enrichments)),
		ConfigurationHandler: handlers.NewConfigurationHandler(service.NewConfigurationServiceWithUUIDGen(configs, txRunner, uuidGen)),
		WebsocketHandler:     handlers.NewWebsocketHandler(registry, chatSvc, searchSvc, bus),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.T.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(e.T, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		e.Engine.Shutdown(ctx)
	}
}

// BuildBinaries builds the reposcout client binary.
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "reposcout-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "reposcout"), "./cmd/reposcout")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build reposcout: %v\n%s", err, out)
	}
}

// RunCLI runs the reposcout client against the test server with an empty
// config dir so no local credentials leak in.
func (e *E2ETestEnv) RunCLI(input string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "reposcout"), args...)
	cmd.Dir = e.BinaryDir
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}
	cmd.Env = append(os.Environ(),
		"REPOSCOUT_API_KEY="+testAPIKey,
		"REPOSCOUT_API_URL="+e.ServerURL,
		"XDG_CONFIG_HOME="+e.BinaryDir,
		"NO_COLOR=1",
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode int             `json:"-"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
}

func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil, testAPIKey)
}

func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body, testAPIKey)
}

func (e *E2ETestEnv) GetWithKey(path, key string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil, key)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, key string) (*APIResponse, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(e.Ctx, method, e.ServerURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	apiResp := &APIResponse{StatusCode: resp.StatusCode}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, apiResp); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w: %s", method, path, err, raw)
		}
	}
	return apiResp, nil
}

// WaitForStatus polls the request until it reaches want or the timeout passes.
func (e *E2ETestEnv) WaitForStatus(requestID, want string, timeout time.Duration) {
	e.T.Helper()
	deadline := time.Now().Add(timeout)
	last := ""
	for time.Now().Before(deadline) {
		resp, err := e.Get("/requests/" + requestID)
		if err == nil && resp.StatusCode == http.StatusOK {
			var view struct {
				Status         string `json:"status"`
				FailureMessage string `json:"failure_message"`
			}
			if json.Unmarshal(resp.Data, &view) == nil {
				last = view.Status
				if view.Status == want {
					return
				}
				if view.Status == "error" {
					e.T.Fatalf("request %s failed: %s", requestID, view.FailureMessage)
				}
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	e.T.Fatalf("request %s did not reach %s within %v (last status %q)", requestID, want, timeout, last)
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// fakeRepo is one repository the fake GitHub serves.
type fakeRepo struct {
	FullName string
	Stars    int
	Language string
	GoMod    bool
}

// fakeGitHub answers the search, repository and contents endpoints.
type fakeGitHub struct {
	*httptest.Server

	mu      sync.Mutex
	queries []string
}

func newFakeGitHub(repos []fakeRepo) *fakeGitHub {
	f := &fakeGitHub{}
	byName := make(map[string]fakeRepo, len(repos))
	for _, r := range repos {
		byName[r.FullName] = r
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search/repositories", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		f.mu.Unlock()

		items := make([]map[string]any, 0, len(repos))
		for _, repo := range repos {
			items = append(items, repoJSON(repo))
		}
		writeJSON(w, http.StatusOK, map[string]any{"total_count": len(items), "items": items})
	})
	mux.HandleFunc("GET /repos/{owner}/{repo}", func(w http.ResponseWriter, r *http.Request) {
		repo, ok := byName[r.PathValue("owner")+"/"+r.PathValue("repo")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, repoJSON(repo))
	})
	mux.HandleFunc("GET /repos/{owner}/{repo}/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("owner") + "/" + r.PathValue("repo")
		repo, ok := byName[name]
		path := r.PathValue("path")
		var content string
		switch {
		case !ok:
		case path == "README.md":
			content = "# " + name + "\n\nAn embedded key value store."
		case path == "go.mod" && repo.GoMod:
			content = "module github.com/" + name + "\n\ngo 1.22\n"
		}
		if content == "" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"type":     "file",
			"encoding": "base64",
			"path":     path,
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
		})
	})

	f.Server = httptest.NewServer(mux)
	return f
}

func (f *fakeGitHub) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func repoJSON(r fakeRepo) map[string]any {
	return map[string]any{
		"full_name":        r.FullName,
		"name":             r.FullName[strings.Index(r.FullName, "/")+1:],
		"html_url":         "https://github.com/" + r.FullName,
		"stargazers_count": r.Stars,
		"language":         r.Language,
		"description":      "fake repository " + r.FullName,
		"default_branch":   "main",
	}
}

var resultIDPattern = regexp.MustCompile(`"id": "([0-9a-f-]{36})"`)

// fakeOpenAI answers chat completions by the schema named in the system
// prompt and returns constant embeddings. The judge approves every id it sees.
type fakeOpenAI struct {
	*httptest.Server

	mu    sync.Mutex
	calls map[string]int
}

func newFakeOpenAI() *fakeOpenAI {
	f := &fakeOpenAI{calls: make(map[string]int)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		var system, prompt string
		for _, m := range req.Messages {
			switch m.Role {
			case "system":
				system = m.Content
			case "user":
				prompt = m.Content
			}
		}

		kind, content := answer(system, prompt)
		f.mu.Lock()
		f.calls[kind]++
		f.mu.Unlock()

		writeJSON(w, http.StatusOK, map[string]any{
			"id":      "chatcmpl-e2e",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	})
	mux.HandleFunc("POST /v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls["embedding"]++
		f.mu.Unlock()

		vector := make([]float32, embeddingDimension)
		vector[0] = 1
		writeJSON(w, http.StatusOK, map[string]any{
			"object": "list",
			"model":  "text-embedding-ada-002",
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": vector}},
		})
	})

	f.Server = httptest.NewServer(mux)
	return f
}

func answer(system, prompt string) (string, string) {
	switch {
	case strings.Contains(system, `"queries"`):
		return "queries", `{"queries": ["embedded kv store golang", "bolt alternative"]}`
	case strings.Contains(system, `"instruction"`):
		var approved []string
		for _, m := range resultIDPattern.FindAllStringSubmatch(prompt, -1) {
			approved = append(approved, fmt.Sprintf(`{"id": %q, "reasoning": "fits the query"}`, m[1]))
		}
		return "judge", `{"approved": [` + strings.Join(approved, ",") + `], "rejected": []}`
	case strings.Contains(system, `"tech_stack"`):
		return "analysis", `{"ranking": 72, "summary": "Solid embedded store.", "pros": ["pure go"], "cons": ["single writer"], "tech_stack": ["go"]}`
	default:
		return "text", "The best fit is the one with the highest ranking."
	}
}

func (f *fakeOpenAI) Calls(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
