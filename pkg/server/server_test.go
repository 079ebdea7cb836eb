package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/positive-doo/multitool/pkg/observability"
	"github.com/positive-doo/multitool/pkg/session"
	"github.com/positive-doo/multitool/pkg/sparse"
	"github.com/positive-doo/multitool/pkg/tabular"
	"github.com/positive-doo/multitool/pkg/testutils"
	"github.com/positive-doo/multitool/pkg/vector"
)

func newTestServer(t *testing.T, replies ...string) (*httptest.Server, *observability.Metrics) {
	t.Helper()

	cfg := testutils.TestConfig()
	settings, err := session.SettingsFromConfig(&cfg.Session)
	require.NoError(t, err)
	opts, err := session.OptionsFromConfig(cfg)
	require.NoError(t, err)

	index := &testutils.StaticIndex{Matches: []vector.Match{{ID: "1", Score: 1, Text: "Positive doo is a software company."}}}
	deps := &session.Deps{
		LLM:      testutils.NewScriptedLLM(replies...),
		Embedder: testutils.StubEmbedder{},
		Indexes:  &vector.Indexes{Dense: index, Hybrid: index},
		Encoder:  sparse.QueryFitted{K1: 1.2, B: 0.75},
		Tabular: testutils.TabularFunc(func(_ context.Context, ds *tabular.Dataset, _ string) (string, error) {
			return fmt.Sprintf("%d rows", len(ds.Rows)), nil
		}),
	}
	manager, err := session.NewManager(deps, opts, settings)
	require.NoError(t, err)

	metrics := observability.NewMetrics()
	srv := httptest.NewServer(New(cfg.Server, manager, metrics).Handler())
	t.Cleanup(srv.Close)
	return srv, metrics
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.ID)
	assert.Equal(t, 3, body.Settings.K)
	return body.ID
}

func ask(t *testing.T, srv *httptest.Server, id, question string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(messageRequest{Question: question})
	resp, err := http.Post(srv.URL+"/v1/sessions/"+id+"/messages", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMessageDirectAnswer(t *testing.T) {
	srv, _ := newTestServer(t, "Thought: look it up\nAction: Semantic search\nAction Input: Positive doo")
	id := createSession(t, srv)

	resp := ask(t, srv, id, "What is Positive doo?")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out messageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Positive doo is a software company.\n\n", out.Answer)
	assert.True(t, out.Direct)
	require.Len(t, out.Steps, 1)
	assert.Equal(t, "Semantic search", out.Steps[0].Tool)

	tr, err := http.Get(srv.URL + "/v1/sessions/" + id + "/transcript?format=text")
	require.NoError(t, err)
	defer tr.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(tr.Body)
	assert.Equal(t, "What is Positive doo?\nPositive doo is a software company.\n\n", buf.String())
}

func TestMessageParseErrorIsJSON(t *testing.T) {
	srv, _ := newTestServer(t, "no idea")
	id := createSession(t, srv)

	resp := ask(t, srv, id, "hi")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out["error"], "could not parse LLM output")
}

func TestMessageStream(t *testing.T) {
	srv, _ := newTestServer(t, "Final Answer: Hello!")
	id := createSession(t, srv)

	body, _ := json.Marshal(messageRequest{Question: "hi", Stream: true})
	resp, err := http.Post(srv.URL+"/v1/sessions/"+id+"/messages", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), "event: token\n")
	assert.Contains(t, buf.String(), "event: final\ndata: {\"answer\":\"Hello!\"")
}

func TestUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := ask(t, srv, "missing", "hi")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEmptyQuestion(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createSession(t, srv)
	resp := ask(t, srv, id, "  ")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDatasetUploadAndClear(t *testing.T) {
	srv, _ := newTestServer(t, "Action: CSV search\nAction Input: count")
	id := createSession(t, srv)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("file", "people.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("name\nAna\nMarko\n"))
	require.NoError(t, mw.Close())

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/v1/sessions/"+id+"/dataset", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ask(t, srv, id, "How many people?")
	var out messageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	assert.Equal(t, "2 rows", out.Answer)

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/v1/sessions/"+id+"/memory", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err := http.Get(srv.URL + "/v1/sessions/" + id)
	require.NoError(t, err)
	defer got.Body.Close()
	var sess sessionResponse
	require.NoError(t, json.NewDecoder(got.Body).Decode(&sess))
	assert.Equal(t, "people.csv", sess.Dataset)
}

func TestDatasetUnsupportedFormat(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createSession(t, srv)

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/v1/sessions/"+id+"/dataset?name=notes.pdf", strings.NewReader("%PDF"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestUpdateSettings(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createSession(t, srv)

	patch := func(body string) *http.Response {
		req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/v1/sessions/"+id+"/settings", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := patch(`{"alpha": 0.25, "k": 2, "direct_hybrid": false}`)
	var st session.Settings
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0.25, st.Alpha)
	assert.Equal(t, 2, st.K)
	assert.False(t, st.DirectHybrid)

	resp = patch(`{"alpha": 2}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = patch(`{"colour": "blue"}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	_, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), "http_request_duration_seconds")
}
