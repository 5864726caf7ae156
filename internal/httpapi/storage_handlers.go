package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"coursedesk.org/internal/audit"
	"coursedesk.org/internal/auth"
	"coursedesk.org/internal/storage"
)

// handleUpload accepts multipart/form-data with "file", "folder" and "course_code".
func (a *API) handleUpload(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.storage == nil {
		respondError(w, r, storage.ErrDisabled)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		respondError(w, r, auth.Invalid("Missing file, folder, or course_code"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	in := storage.Upload{
		Folder:     strings.TrimSpace(r.FormValue("folder")),
		CourseCode: strings.TrimSpace(r.FormValue("course_code")),
	}
	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		in.Body = file
		in.FileName = header.Filename
		in.Size = header.Size
		in.ContentType = header.Header.Get("Content-Type")
	}

	up, err := a.storage.Upload(r.Context(), p, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "storage.upload", map[string]any{"key": up.Key, "size": in.Size})
	writeOK(w, http.StatusOK, map[string]any{
		"message":  "File uploaded successfully via CloudFront",
		"url":      up.URL,
		"fileName": up.FileName,
	})
}

type deleteFileRequest struct {
	Path string `json:"path"`
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
		return
	}
	var req deleteFileRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	key, err := a.storage.Delete(r.Context(), p, req.Path)
	if err != nil {
		respondError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "storage.delete", map[string]any{"key": key})
	writeOK(w, http.StatusOK, map[string]any{
		"message": "File deleted successfully",
		"path":    key,
	})
}

func (a *API) handleDownload(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	signed, expires, err := a.storage.SignedURL(p, r.URL.Query().Get("path"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"url":        signed,
		"expires_at": expires.UTC().Format(time.RFC3339),
	})
}
