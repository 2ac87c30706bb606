package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var previewURLPattern = regexp.MustCompile(`^http://[^/]+/preview/[0-9a-f]{16}/$`)

func buildArtifact(t *testing.T, srv *Server, body string) buildResponse {
	t.Helper()

	rec := postJSON(t, srv, "/api/artifacts", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp buildResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestArtifactBuild(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeRunner{})

	resp := buildArtifact(t, srv, `{"code":"<h1>Hi</h1>","lang":"html"}`)

	assert.Regexp(t, `^[0-9a-f]{16}$`, resp.ArtifactID)
	assert.Regexp(t, previewURLPattern, resp.PreviewURL)
}

func TestArtifactBuildRebuildKeepsID(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeRunner{})

	first := buildArtifact(t, srv, `{"code":"<h1>v1</h1>","lang":"html"}`)
	second := buildArtifact(t, srv, `{"code":"<h1>v2</h1>","lang":"html","artifactId":"`+first.ArtifactID+`"}`)

	assert.Equal(t, first.ArtifactID, second.ArtifactID)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview/"+first.ArtifactID+"/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>v2</h1>")
}

func TestArtifactBuildValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed JSON", body: `{"code":`},
		{name: "blank code", body: `{"code":"  "}`},
		{name: "malformed artifact id", body: `{"code":"<p>x</p>","artifactId":"../escape"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, &fakeRunner{})
			rec := postJSON(t, srv, "/api/artifacts", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "invalid_request")
		})
	}
}

func TestPreviewServesDocument(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeRunner{})
	resp := buildArtifact(t, srv, `{"code":"<h1>Preview me</h1>","lang":"html"}`)

	for _, path := range []string{
		"/preview/" + resp.ArtifactID,
		"/preview/" + resp.ArtifactID + "/",
		"/preview/" + resp.ArtifactID + "/index.html",
	} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "<h1>Preview me</h1>", path)
	}
}

func TestPreviewErrors(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeRunner{})

	t.Run("malformed id", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview/UPPER-not-hex/", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_request")
	})

	t.Run("unknown id", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview/0123456789abcdef/", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "not_found")
	})
}

func TestPublishAndLive(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeRunner{})
	built := buildArtifact(t, srv, `{"code":"<h1>Shipped</h1>","lang":"html"}`)

	rec := postJSON(t, srv, "/api/publish", `{"project":"My Cool App!","artifactId":"`+built.ArtifactID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp publishResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "my-cool-app", resp.Project)
	assert.Equal(t, built.ArtifactID, resp.ArtifactID)
	assert.Regexp(t, `^http://[^/]+/live/my-cool-app/$`, resp.LiveURL)

	live := httptest.NewRecorder()
	srv.Handler().ServeHTTP(live, httptest.NewRequest(http.MethodGet, "/live/my-cool-app/", nil))
	assert.Equal(t, http.StatusOK, live.Code)
	assert.Contains(t, live.Body.String(), "<h1>Shipped</h1>")
}

func TestLiveAcceptsUnnormalizedSlug(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeRunner{})
	built := buildArtifact(t, srv, `{"code":"<h1>Case blind</h1>","lang":"html"}`)

	rec := postJSON(t, srv, "/api/publish", `{"project":"My Cool App","artifactId":"`+built.ArtifactID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	live := httptest.NewRecorder()
	srv.Handler().ServeHTTP(live, httptest.NewRequest(http.MethodGet, "/live/My-Cool-App/", nil))
	assert.Equal(t, http.StatusOK, live.Code)
	assert.Contains(t, live.Body.String(), "<h1>Case blind</h1>")
}

func TestPublishRebindSwitchesLiveContent(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeRunner{})
	first := buildArtifact(t, srv, `{"code":"<h1>one</h1>","lang":"html"}`)
	second := buildArtifact(t, srv, `{"code":"<h1>two</h1>","lang":"html"}`)

	rec := postJSON(t, srv, "/api/publish", `{"project":"site","artifactId":"`+first.ArtifactID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = postJSON(t, srv, "/api/publish", `{"project":"site","artifactId":"`+second.ArtifactID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	live := httptest.NewRecorder()
	srv.Handler().ServeHTTP(live, httptest.NewRequest(http.MethodGet, "/live/site/", nil))
	assert.Contains(t, live.Body.String(), "<h1>two</h1>")
	assert.NotContains(t, live.Body.String(), "<h1>one</h1>")
}

func TestPublishUnknownArtifact(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeRunner{})

	rec := postJSON(t, srv, "/api/publish", `{"project":"site","artifactId":"0123456789abcdef"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown_artifact")
}

func TestLiveUnknownSlug(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live/nope/", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestBaseURLPublicOverride(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeRunner{}, func(cfg *ServerConfig) {
		cfg.PublicBaseURL = "https://surfers.example/"
	})

	resp := buildArtifact(t, srv, `{"code":"<p>x</p>","lang":"html"}`)
	assert.Equal(t, "https://surfers.example/preview/"+resp.ArtifactID+"/", resp.PreviewURL)
}

func TestBaseURLForwardedHeaders(t *testing.T) {
	t.Parallel()

	t.Run("honored behind trusted proxy", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, &fakeRunner{}, func(cfg *ServerConfig) {
			cfg.TrustProxy = true
		})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/artifacts",
			strings.NewReader(`{"code":"<p>x</p>","lang":"html"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-Proto", "https")
		req.Header.Set("X-Forwarded-Host", "app.example.com")
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp buildResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "https://app.example.com/preview/"+resp.ArtifactID+"/", resp.PreviewURL)
	})

	t.Run("ignored without trust", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, &fakeRunner{})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/artifacts",
			strings.NewReader(`{"code":"<p>x</p>","lang":"html"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-Proto", "https")
		req.Header.Set("X-Forwarded-Host", "app.example.com")
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp buildResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotContains(t, resp.PreviewURL, "app.example.com")
	})
}

func TestPreviewPathTraversalBlocked(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeRunner{})
	resp := buildArtifact(t, srv, `{"code":"<p>x</p>","lang":"html"}`)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/preview/"+resp.ArtifactID+"/%2e%2e/%2e%2e/secret", nil))

	// Whatever the mux does with the escape attempt, it never serves a file
	// from outside the artifact directory.
	assert.NotEqual(t, http.StatusOK, rec.Code)
}
