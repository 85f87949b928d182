package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/JonMunkholm/csvimport/internal/core"
	"github.com/JonMunkholm/csvimport/internal/logging"
	"github.com/go-chi/chi/v5"
)

// handleStartImport accepts a multipart upload and starts a background run.
// The run keeps reading the uploaded part after the handler returns.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	tableKey := chi.URLParam(r, "tableKey")
	if _, err := core.Lookup(tableKey); err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	file, header, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	opts, err := s.parseImportOptions(r)
	if err != nil {
		file.Close()
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	runID, err := s.service.StartImport(r.Context(), core.ImportRequest{
		TableKey: tableKey,
		FileName: header.Filename,
		Reader:   file,
		Size:     header.Size,
		Options:  opts,
	})
	if err != nil {
		file.Close()
		s.respondError(w, r, err, 0)
		return
	}

	logging.WithFields(logging.WithRunID(r.Context(), runID),
		"table", tableKey,
		"file", header.Filename,
		"bytes", header.Size,
	).Info("import accepted")

	w.Header().Set("Location", "/api/imports/"+runID)
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID})
}

// handlePreviewImport maps an uploaded file without writing it and returns
// the row, error and duplicate summary.
func (s *Server) handlePreviewImport(w http.ResponseWriter, r *http.Request) {
	def, err := core.Lookup(chi.URLParam(r, "tableKey"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	file, header, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	opts, err := s.parseImportOptions(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	opts.SourceName = header.Filename

	preview, err := s.service.Importer().Preview(r.Context(), file, def, opts)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// readUpload parses the multipart body and returns the "file" part. It
// writes the error response itself and reports false on failure.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)

	// Small in-memory budget; larger parts spill to temp files.
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return nil, nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid form")
		return nil, nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return nil, nil, false
	}
	return file, header, true
}

// handleImportProgress streams progress snapshots as Server-Sent Events.
// The stream ends with a "complete" event carrying the final snapshot.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	progressCh, err := s.service.SubscribeProgress(runID)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var (
		eventID int
		last    core.ImportProgress
	)
	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				data, _ := json.Marshal(last)
				fmt.Fprintf(w, "id: %d\nevent: complete\ndata: %s\n\n", eventID+1, data)
				flusher.Flush()
				return
			}
			last = progress
			eventID++
			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", eventID, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleImportStatus returns the current progress snapshot without waiting.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	progress, err := s.service.GetImportProgress(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// handleImportResult waits for the run to finish and returns its result.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	res, runErr := s.service.GetImportResult(r.Context(), chi.URLParam(r, "runID"))
	if res == nil {
		if runErr == nil {
			runErr = core.ErrImportNotFound
		}
		s.respondError(w, r, runErr, 0)
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(res, runErr))
}

// handleCancelImport cancels a running import.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.service.CancelImport(runID); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID, "status": "cancelling"})
}
