package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), Config{Token: "dummy", BaseURL: server.URL})
	require.NoError(t, err)
	return client
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient(context.Background(), Config{BaseURL: "://bad"})
	assert.Error(t, err)
}

func TestSearch_MapsRepositories(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "auth stars:>=100 language:typescript", r.URL.Query().Get("q"))
		assert.Equal(t, "stars", r.URL.Query().Get("sort"))
		assert.Equal(t, "Bearer dummy", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"total_count":2,"items":[
			{"full_name":"honojs/hono","html_url":"https://github.com/honojs/hono","stargazers_count":20000,"language":"TypeScript","topics":["workers"]},
			{"full_name":"panva/jose","html_url":"https://github.com/panva/jose","stargazers_count":5000,"description":"JWT"}
		]}`)
	})
	client := newTestClient(t, mux)

	candidates, err := client.Search(context.Background(), "auth stars:>=100 language:typescript")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "https://github.com/honojs/hono", candidates[0].URL)
	assert.Equal(t, 20000, candidates[0].Stars)
	assert.Equal(t, []string{"workers"}, candidates[0].Topics)
	assert.Equal(t, "JWT", candidates[1].Description)
}

func TestSearch_EmptyQuery(t *testing.T) {
	client := newTestClient(t, http.NewServeMux())
	_, err := client.Search(context.Background(), "  ")
	assert.Error(t, err)
}

func TestSearch_ServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client := newTestClient(t, mux)

	_, err := client.Search(context.Background(), "auth")
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/repo/contents/README.md", func(w http.ResponseWriter, r *http.Request) {
		encoded := base64.StdEncoding.EncodeToString([]byte("# acme"))
		fmt.Fprintf(w, `{"type":"file","encoding":"base64","path":"README.md","content":%q}`, encoded)
	})
	mux.HandleFunc("/repos/acme/repo/contents/package.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	client := newTestClient(t, mux)

	content, err := client.ReadFile(context.Background(), "acme", "repo", "README.md")
	require.NoError(t, err)
	assert.Equal(t, "# acme", content)

	_, err = client.ReadFile(context.Background(), "acme", "repo", "package.json")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestGetRepoMetadata_SharesConcurrentCalls(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/repo", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		fmt.Fprint(w, `{"full_name":"acme/repo","html_url":"https://github.com/acme/repo","stargazers_count":42,
			"forks_count":3,"default_branch":"main","license":{"spdx_id":"MIT"},"pushed_at":"2026-01-02T03:04:05Z"}`)
	})
	client := newTestClient(t, mux)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			meta, err := client.GetRepoMetadata(context.Background(), "acme", "repo")
			assert.NoError(t, err)
			if meta != nil {
				assert.Equal(t, 42, meta.Stars)
				assert.Equal(t, "MIT", meta.License)
				assert.Equal(t, 2026, meta.PushedAt.Year())
			}
		}()
	}

	// let the callers pile onto the in-flight request
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
}
