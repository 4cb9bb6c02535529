package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/Kat4X/video-transcriber/internal/api"
	"github.com/Kat4X/video-transcriber/internal/export"
	"github.com/Kat4X/video-transcriber/internal/jobs"
	"github.com/Kat4X/video-transcriber/internal/logging"
	"github.com/Kat4X/video-transcriber/internal/services"
	"github.com/Kat4X/video-transcriber/internal/workflow"
)

const (
	maxJSONBody      = 1 << 20
	uploadFieldName  = "file"
	maxFormFieldSize = 64 << 10
)

// handleSubmit accepts a JSON body, urlencoded form fields, or a multipart
// form whose "file" part is staged as an upload.
func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		req    api.SubmitRequest
		upload string
		err    error
	)
	switch mediaType {
	case "multipart/form-data":
		req, upload, err = s.readMultipart(r)
	case "application/x-www-form-urlencoded":
		req, err = readForm(r)
	default:
		req, err = readJSON(w, r)
	}
	if err != nil {
		if upload != "" {
			_ = os.Remove(upload)
		}
		s.writeServiceError(w, r, err)
		return
	}

	wfReq, err := buildRequest(req, upload)
	if err != nil {
		if upload != "" {
			_ = os.Remove(upload)
		}
		s.writeServiceError(w, r, err)
		return
	}
	id, err := s.daemon.workflow.Submit(r.Context(), wfReq)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/jobs/"+id)
	s.writeJSON(w, http.StatusCreated, api.SubmitResponse{ID: id, Status: string(jobs.StatePending)})
}

func buildRequest(req api.SubmitRequest, upload string) (workflow.Request, error) {
	opts := jobs.Options{
		Model:             req.Model,
		Language:          req.Language,
		IncludeTimestamps: req.IncludeTimestamps,
		Reformat:          req.Reformat,
	}
	url := strings.TrimSpace(req.URL)
	path := strings.TrimSpace(req.Path)
	given := 0
	for _, value := range []string{upload, url, path} {
		if value != "" {
			given++
		}
	}
	switch {
	case given == 0:
		return workflow.Request{}, badRequest("a file upload, url or path is required")
	case given > 1:
		return workflow.Request{}, badRequest("provide only one of file upload, url or path")
	case upload != "":
		return workflow.Request{
			Source:  jobs.Source{Kind: jobs.SourceLocalFile, Path: upload, Name: req.Name, Managed: true},
			Options: opts,
		}, nil
	case url != "":
		return workflow.Request{
			Source:  jobs.Source{Kind: jobs.SourceRemoteURL, URL: url, Name: req.Name},
			Options: opts,
		}, nil
	default:
		return workflow.Request{
			Source:  jobs.Source{Kind: jobs.SourceLocalFile, Path: path, Name: req.Name},
			Options: opts,
		}, nil
	}
}

func readJSON(w http.ResponseWriter, r *http.Request) (api.SubmitRequest, error) {
	var req api.SubmitRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return api.SubmitRequest{}, badRequest("invalid JSON body: %v", err)
	}
	return req, nil
}

func readForm(r *http.Request) (api.SubmitRequest, error) {
	if err := r.ParseForm(); err != nil {
		return api.SubmitRequest{}, badRequest("invalid form body: %v", err)
	}
	req := api.SubmitRequest{
		URL:      r.PostForm.Get("url"),
		Path:     r.PostForm.Get("path"),
		Name:     r.PostForm.Get("name"),
		Model:    r.PostForm.Get("model"),
		Language: r.PostForm.Get("language"),
	}
	var err error
	if req.IncludeTimestamps, err = formBool("include_timestamps", r.PostForm.Get("include_timestamps")); err != nil {
		return api.SubmitRequest{}, err
	}
	if req.Reformat, err = formBool("reformat", r.PostForm.Get("reformat")); err != nil {
		return api.SubmitRequest{}, err
	}
	return req, nil
}

// readMultipart streams the parts in order; the file part goes straight to
// the uploads directory instead of a temporary copy. The staged path is
// returned even on error so the caller can remove it.
func (s *apiServer) readMultipart(r *http.Request) (api.SubmitRequest, string, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return api.SubmitRequest{}, "", badRequest("invalid multipart body: %v", err)
	}
	var (
		req    api.SubmitRequest
		upload string
	)
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return api.SubmitRequest{}, upload, badRequest("invalid multipart body: %v", err)
		}
		name := part.FormName()
		if name == uploadFieldName && part.FileName() != "" {
			if upload != "" {
				part.Close()
				return api.SubmitRequest{}, upload, badRequest("only one file may be uploaded per job")
			}
			upload, err = s.daemon.workflow.StageUpload(part.FileName(), part)
			part.Close()
			if err != nil {
				return api.SubmitRequest{}, "", err
			}
			if req.Name == "" {
				req.Name = part.FileName()
			}
			continue
		}
		raw, err := io.ReadAll(io.LimitReader(part, maxFormFieldSize))
		part.Close()
		if err != nil {
			return api.SubmitRequest{}, upload, badRequest("read form field %q: %v", name, err)
		}
		value := string(raw)
		switch name {
		case "url":
			req.URL = value
		case "path":
			req.Path = value
		case "name":
			req.Name = value
		case "model":
			req.Model = value
		case "language":
			req.Language = value
		case "include_timestamps":
			if req.IncludeTimestamps, err = formBool(name, value); err != nil {
				return api.SubmitRequest{}, upload, err
			}
		case "reformat":
			if req.Reformat, err = formBool(name, value); err != nil {
				return api.SubmitRequest{}, upload, err
			}
		}
	}
	return req, upload, nil
}

func formBool(field, value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, nil
	}
	if strings.EqualFold(value, "on") {
		return true, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, badRequest("%s must be a boolean, got %q", field, value)
	}
	return parsed, nil
}

func badRequest(format string, args ...any) error {
	return services.Wrap(services.ErrValidation, "api", "parse request", fmt.Sprintf(format, args...), nil)
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter jobs.Filter
	for _, raw := range query["status"] {
		for _, value := range strings.Split(raw, ",") {
			if strings.TrimSpace(value) == "" {
				continue
			}
			state, ok := jobs.ParseState(value)
			if !ok {
				s.writeServiceError(w, r, badRequest("unknown status %q", value))
				return
			}
			filter.States = append(filter.States, state)
		}
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeServiceError(w, r, badRequest("limit must be a non-negative integer, got %q", raw))
			return
		}
		filter.Limit = limit
	}
	summaries, err := s.daemon.workflow.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromSummaries(summaries)})
}

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.workflow.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromJob(job))
}

// handleDelete removes a finished job or cancels an unfinished one. The
// response says which happened: "deleted", "cancelled" when the job was
// still queued, or "cancelling" while a running job winds down.
func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.daemon.workflow.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	status := "deleted"
	job, err := s.daemon.workflow.Get(r.Context(), id)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
	case err != nil:
		s.writeServiceError(w, r, err)
		return
	case job.State.Terminal():
		status = "cancelled"
	default:
		status = "cancelling"
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{ID: id, Status: status})
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := s.daemon.workflow.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	doc, err := export.Render(format, job)
	switch {
	case errors.Is(err, export.ErrNotReady):
		s.writeJSON(w, http.StatusConflict, api.ErrorResponse{
			Error: fmt.Sprintf("job is %s; transcripts are available once it completes", job.State),
			Kind:  "not_ready",
		})
		return
	case errors.Is(err, export.ErrNoSegments):
		s.writeJSON(w, http.StatusUnprocessableEntity, api.ErrorResponse{Error: err.Error(), Kind: "no_segments"})
		return
	case err != nil:
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, doc.Body); err != nil {
		logging.WithContext(r.Context(), s.logger).Debug("download write failed", logging.Error(err))
	}
}
