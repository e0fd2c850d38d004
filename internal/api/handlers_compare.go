package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/esgcompare/internal/document"
	"github.com/dgallion1/esgcompare/internal/export"
	"github.com/dgallion1/esgcompare/internal/metric"
	"github.com/dgallion1/esgcompare/internal/parser"
	"github.com/dgallion1/esgcompare/internal/pipeline"
)

type rejectedFile struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// handleCompare accepts a multipart upload of report files and queues a
// comparison job over every file that parses.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	maxFiles := int64(max(s.cfg.MaxFiles, 1))
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*maxFiles+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}
	if s.cfg.MaxFiles > 0 && len(files) > s.cfg.MaxFiles {
		jsonError(w, fmt.Sprintf("too many files (max %d)", s.cfg.MaxFiles), http.StatusBadRequest)
		return
	}

	opts := parser.Options{PDFFallbackPdftotext: s.cfg.PDFFallbackPdftotext}
	var (
		docs     []document.Document
		names    []string
		rejected []rejectedFile
	)
	for _, fh := range files {
		filename := sanitizeFilename(fh.Filename)
		if !parser.IsSupportedExtension(filename) {
			rejected = append(rejected, rejectedFile{filename, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename))})
			continue
		}

		f, err := fh.Open()
		if err != nil {
			rejected = append(rejected, rejectedFile{filename, "failed to open file"})
			continue
		}
		data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
		f.Close()
		if err != nil || int64(len(data)) > s.cfg.MaxUploadBytes {
			rejected = append(rejected, rejectedFile{filename, "file too large or read error"})
			continue
		}

		doc, err := parser.Parse(bytes.NewReader(data), filename, opts)
		if err != nil {
			s.log.Warn("parse failed", "file", filename, "error", err)
			rejected = append(rejected, rejectedFile{filename, "parse failed: " + err.Error()})
			continue
		}
		docs = append(docs, *doc)
		names = append(names, filename)
	}

	if len(docs) == 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error":    "no readable files",
			"rejected": rejected,
		})
		return
	}

	job := pipeline.NewJob(docs, names)
	for _, rf := range rejected {
		job.AddError(rf.Filename + ": " + rf.Error)
	}
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   job.ID,
		"status":   pipeline.StatusQueued,
		"files":    names,
		"rejected": rejected,
		"poll_url": fmt.Sprintf("/api/compare/%s/status", job.ID),
	})
}

func (s *Server) handleCompareStatus(w http.ResponseWriter, r *http.Request) {
	job := s.job(w, r)
	if job == nil {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

// handleCompareTable writes the comparison table of a finished job as JSON,
// CSV or XLSX, optionally restricted to one pillar.
func (s *Server) handleCompareTable(w http.ResponseWriter, r *http.Request) {
	job := s.job(w, r)
	if job == nil {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	res := job.Result()
	if res == nil {
		jsonError(w, fmt.Sprintf("job is %s", job.Snapshot().Status), http.StatusConflict)
		return
	}

	table := res.Table
	if v := r.URL.Query().Get("pillar"); v != "" {
		p, ok := metric.ParsePillar(v)
		if !ok {
			jsonError(w, "unknown pillar: "+v, http.StatusBadRequest)
			return
		}
		table = table.FilterPillar(p)
	}

	var buf bytes.Buffer
	if err := export.Table(&buf, table, format); err != nil {
		s.log.Error("export table", "job_id", job.ID, "format", format, "error", err)
		jsonError(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	if format != export.JSON {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="comparison-%s%s"`, shortID(job.ID), format.Ext()))
	}
	w.Write(buf.Bytes())
}

// handleCompareDocuments lists the per-document outcome of a job.
func (s *Server) handleCompareDocuments(w http.ResponseWriter, r *http.Request) {
	job := s.job(w, r)
	if job == nil {
		return
	}
	res := job.Result()
	if res == nil {
		jsonError(w, fmt.Sprintf("job is %s", job.Snapshot().Status), http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":    job.ID,
		"succeeded": len(res.Succeeded()),
		"failed":    len(res.Failed()),
		"documents": res.Documents,
	})
}

func (s *Server) handleCompareCancel(w http.ResponseWriter, r *http.Request) {
	job := s.job(w, r)
	if job == nil {
		return
	}
	if !s.orchestrator.CancelJob(job.ID) {
		jsonError(w, fmt.Sprintf("job is already %s", job.Snapshot().Status), http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":    job.ID,
		"cancelled": true,
	})
}

// job resolves the {jobID} URL parameter, writing a 404 when it is unknown.
func (s *Server) job(w http.ResponseWriter, r *http.Request) *pipeline.Job {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
	}
	return job
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
