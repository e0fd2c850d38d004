package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/esgcompare/internal/cache"
	"github.com/dgallion1/esgcompare/internal/config"
	"github.com/dgallion1/esgcompare/internal/extract"
	"github.com/dgallion1/esgcompare/internal/metric"
	"github.com/dgallion1/esgcompare/internal/pipeline"
)

const testKey = "test-key"

type stubClient struct {
	mu    sync.Mutex
	calls int
}

func (c *stubClient) Extract(_ context.Context, text string, _ metric.Schema) ([]metric.RawRecord, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	value := 1000.0
	if strings.Contains(text, "beta") {
		value = 1500.0
	}
	return []metric.RawRecord{
		{Label: "Scope 1 GHG Emissions", Value: value, Unit: "tCO2e", Period: 2023.0},
	}, nil
}

func (c *stubClient) Model() string { return "stub" }

type testServer struct {
	*httptest.Server
	orch  *pipeline.Orchestrator
	cache *cache.Cache
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := cache.New(cache.NewMemoryStore(), "test")
	client := extract.NewThrottled(&stubClient{}, 6000, 10, extract.NewLLMStats(time.Hour))
	p := pipeline.New(client, c, metric.DefaultSchema(), pipeline.Options{MaxConcurrent: 2}, log)

	orch := pipeline.NewOrchestrator(p, 1, 10, time.Hour, log)
	ctx, cancel := context.WithCancel(context.Background())
	orch.Start(ctx)

	cfg := config.Config{APIKey: testKey, MaxUploadBytes: 1 << 20, MaxFiles: 3}
	srv := httptest.NewServer(NewServer(orch, client, c, log, cfg))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		orch.Stop()
	})
	return &testServer{Server: srv, orch: orch, cache: c}
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+testKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func upload(t *testing.T, files map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

// submitAndWait uploads files and polls until the job is done.
func (ts *testServer) submitAndWait(t *testing.T, files map[string]string) string {
	t.Helper()
	body, ct := upload(t, files)
	resp := ts.do(t, http.MethodPost, "/api/compare", body, ct)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status = %d, want 202", resp.StatusCode)
	}
	var accepted struct {
		JobID   string `json:"job_id"`
		PollURL string `json:"poll_url"`
	}
	decode(t, resp, &accepted)
	if accepted.PollURL != "/api/compare/"+accepted.JobID+"/status" {
		t.Errorf("poll_url = %q", accepted.PollURL)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job := ts.orch.GetJob(accepted.JobID)
		if job != nil && job.Snapshot().Status.Done() {
			return accepted.JobID
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not finish")
	return ""
}

func TestHealth_NoAuth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic " + testKey},
		{"wrong key", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/stats/cache", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
		})
	}
}

func TestCompare_EndToEnd(t *testing.T) {
	ts := newTestServer(t)
	jobID := ts.submitAndWait(t, map[string]string{
		"alpha.txt": "alpha sustainability report",
		"beta.txt":  "beta sustainability report",
	})

	resp := ts.do(t, http.MethodGet, "/api/compare/"+jobID+"/status", nil, "")
	var snap pipeline.JobSnapshot
	decode(t, resp, &snap)
	if snap.Status != pipeline.StatusCompleted {
		t.Fatalf("status = %s, want completed", snap.Status)
	}
	if snap.Progress.Resolved != 2 || snap.Rows != 1 {
		t.Errorf("progress = %+v rows = %d", snap.Progress, snap.Rows)
	}

	resp = ts.do(t, http.MethodGet, "/api/compare/"+jobID+"/table", nil, "")
	var table struct {
		Columns []struct{ Name string } `json:"columns"`
		Rows    []struct {
			Label string `json:"label"`
			Cells []struct {
				State string  `json:"state"`
				Value float64 `json:"value"`
			} `json:"cells"`
		} `json:"rows"`
	}
	decode(t, resp, &table)
	if len(table.Columns) != 2 || len(table.Rows) != 1 {
		t.Fatalf("table = %+v", table)
	}
	got := map[float64]bool{}
	for _, c := range table.Rows[0].Cells {
		got[c.Value] = true
	}
	if !got[1000] || !got[1500] {
		t.Errorf("cells = %+v", table.Rows[0].Cells)
	}

	resp = ts.do(t, http.MethodGet, "/api/compare/"+jobID+"/table?format=csv", nil, "")
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, ".csv") {
		t.Errorf("content disposition = %q", cd)
	}
	csvBody, _ := io.ReadAll(resp.Body)
	if !strings.HasPrefix(string(csvBody), "Pillar,Category,Metric,Unit,Period") {
		t.Errorf("csv = %q", csvBody)
	}

	resp = ts.do(t, http.MethodGet, "/api/compare/"+jobID+"/documents", nil, "")
	var docs struct {
		Succeeded int                       `json:"succeeded"`
		Documents []pipeline.DocumentResult `json:"documents"`
	}
	decode(t, resp, &docs)
	if docs.Succeeded != 2 || len(docs.Documents) != 2 {
		t.Fatalf("documents = %+v", docs)
	}

	fp := docs.Documents[0].Fingerprint
	resp = ts.do(t, http.MethodGet, "/api/documents/"+fp.String()+"/metrics", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	var set metric.Set
	decode(t, resp, &set)
	if set.Fingerprint != fp || len(set.Records) != 1 {
		t.Errorf("set = %+v", set)
	}
}

func TestCompare_TablePillarFilter(t *testing.T) {
	ts := newTestServer(t)
	jobID := ts.submitAndWait(t, map[string]string{
		"alpha.txt": "alpha report",
		"beta.txt":  "beta report",
	})

	resp := ts.do(t, http.MethodGet, "/api/compare/"+jobID+"/table?pillar=social", nil, "")
	var table struct {
		Rows []json.RawMessage `json:"rows"`
	}
	decode(t, resp, &table)
	if len(table.Rows) != 0 {
		t.Errorf("social rows = %d, want 0", len(table.Rows))
	}

	resp = ts.do(t, http.MethodGet, "/api/compare/"+jobID+"/table?pillar=weather", nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown pillar status = %d, want 400", resp.StatusCode)
	}
	resp = ts.do(t, http.MethodGet, "/api/compare/"+jobID+"/table?format=pdf", nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown format status = %d, want 400", resp.StatusCode)
	}
}

func TestCompare_RejectsUnsupportedFiles(t *testing.T) {
	ts := newTestServer(t)

	body, ct := upload(t, map[string]string{"notes.exe": "binary"})
	resp := ts.do(t, http.MethodPost, "/api/compare", body, ct)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var out struct {
		Rejected []rejectedFile `json:"rejected"`
	}
	decode(t, resp, &out)
	if len(out.Rejected) != 1 || out.Rejected[0].Filename != "notes.exe" {
		t.Errorf("rejected = %+v", out.Rejected)
	}

	body, ct = upload(t, map[string]string{"alpha.txt": "alpha", "notes.exe": "binary"})
	resp = ts.do(t, http.MethodPost, "/api/compare", body, ct)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("mixed upload status = %d, want 202", resp.StatusCode)
	}
	var accepted struct {
		JobID string   `json:"job_id"`
		Files []string `json:"files"`
	}
	decode(t, resp, &accepted)
	if len(accepted.Files) != 1 || accepted.Files[0] != "alpha.txt" {
		t.Errorf("files = %v", accepted.Files)
	}
	job := ts.orch.GetJob(accepted.JobID)
	if job == nil || len(job.Snapshot().Progress.Errors) == 0 {
		t.Error("expected rejected file recorded on job")
	}
}

func TestCompare_TooManyFiles(t *testing.T) {
	ts := newTestServer(t)
	body, ct := upload(t, map[string]string{"a.txt": "a", "b.txt": "b", "c.txt": "c", "d.txt": "d"})
	resp := ts.do(t, http.MethodPost, "/api/compare", body, ct)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCompare_NoFiles(t *testing.T) {
	ts := newTestServer(t)
	body, ct := upload(t, nil)
	resp := ts.do(t, http.MethodPost, "/api/compare", body, ct)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCompare_UnknownJob(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/status", "/table", "/documents"} {
		resp := ts.do(t, http.MethodGet, "/api/compare/missing"+path, nil, "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, resp.StatusCode)
		}
	}
	resp := ts.do(t, http.MethodDelete, "/api/compare/missing", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("delete status = %d, want 404", resp.StatusCode)
	}
}

func TestCompare_CancelFinishedJobConflicts(t *testing.T) {
	ts := newTestServer(t)
	jobID := ts.submitAndWait(t, map[string]string{"alpha.txt": "alpha", "beta.txt": "beta"})
	resp := ts.do(t, http.MethodDelete, "/api/compare/"+jobID, nil, "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestDocumentMetrics(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/api/documents/not-hex/metrics", nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad fingerprint status = %d, want 400", resp.StatusCode)
	}
	resp = ts.do(t, http.MethodGet, "/api/documents/"+strings.Repeat("a", 64)+"/metrics", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown fingerprint status = %d, want 404", resp.StatusCode)
	}
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)
	ts.submitAndWait(t, map[string]string{"alpha.txt": "alpha", "beta.txt": "beta"})

	resp := ts.do(t, http.MethodGet, "/api/stats/llm", nil, "")
	var llm struct {
		Model string                `json:"model"`
		Stats extract.StatsSnapshot `json:"stats"`
	}
	decode(t, resp, &llm)
	if llm.Model != "stub" || llm.Stats.Count != 2 {
		t.Errorf("llm stats = %+v", llm)
	}

	resp = ts.do(t, http.MethodGet, "/api/stats/cache", nil, "")
	var cs cache.Stats
	decode(t, resp, &cs)
	if cs.Writes != 2 {
		t.Errorf("cache stats = %+v", cs)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"report.pdf":          "report.pdf",
		"../../etc/passwd":    "passwd",
		`C:\reports\2023.pdf`: "2023.pdf",
		"":                    "unnamed",
		"a..b.txt":            "a_b.txt",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
