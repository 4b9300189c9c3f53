package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/JonMunkholm/multinet/internal/core"
	"github.com/JonMunkholm/multinet/internal/logging"
)

// multipartMemory is how much of a multipart body is held in memory
// before spilling to temp files.
const multipartMemory = 32 << 20

// handleUpload returns the handler for POST /api/{format}/{workspace}/{table}.
//
// The response body is the format's count object, e.g. {"count":3} for CSV
// or {"nodecount":2,"edgecount":1} for D3 JSON. With ?dry_run=true the body
// is decoded and validated but nothing is written.
func (s *Server) handleUpload(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := parseUploadParams(r)
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		body, err := s.readBody(w, r)
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		opts := core.BuildOptions{Table: params.Table, KeyField: params.Key}

		if params.DryRun {
			plan, err := s.service.Validate(format, body, opts)
			if err != nil {
				s.respondError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, plan.Counts)
			return
		}

		result, err := s.service.Upload(r.Context(), core.UploadRequest{
			Format:    format,
			Workspace: params.Workspace,
			Options:   opts,
			Body:      body,
		})
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		logging.FromContext(r.Context()).Debug("upload response",
			"format", format,
			"tables", result.Tables,
		)
		writeJSON(w, http.StatusOK, result.Counts)
	}
}

// readBody returns the upload payload. Multipart requests carry it in the
// "file" field; anything else is taken as the raw body.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedBody, err)
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, errNoFile
		}
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}
