package server

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"traceline/internal/engine"
)

const maxUploadBytes = 64 << 20

// registerFiles mounts the upload and download routes directly on chi; both
// stream bodies that do not fit huma's JSON model.
func registerFiles(r chi.Router, basePath string, e engine.Engine) {
	filesPrefix := path.Join(basePath, "files")

	r.Post(path.Join(basePath, "documents/upload"), func(w http.ResponseWriter, req *http.Request) {
		if err := requirePermission(req.Context(), permUpload); err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
		var (
			name        string
			body        io.Reader
			size        int64 = -1
			contentType string
		)
		if mr, err := req.MultipartReader(); err == nil {
			part, err := nextFilePart(mr)
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "multipart field \"file\" required", nil))
				return
			}
			defer part.Close()
			name, body, contentType = part.FileName(), part, part.Header.Get("Content-Type")
		} else {
			name = req.URL.Query().Get("filename")
			body, contentType = req.Body, req.Header.Get("Content-Type")
			size = req.ContentLength
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		obj, err := e.UploadFile(req.Context(), name, body, size, contentType)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(UploadResponse{
			Key:         obj.Key,
			URL:         filesPrefix + "/" + obj.Key,
			Size:        obj.Size,
			ContentType: obj.ContentType,
		})
	})

	r.Get(filesPrefix+"/*", func(w http.ResponseWriter, req *http.Request) {
		if err := requirePermission(req.Context(), permRead); err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		key := chi.URLParam(req, "*")
		rc, obj, err := e.OpenFile(req.Context(), key)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		defer rc.Close()
		if obj.ContentType != "" {
			w.Header().Set("Content-Type", obj.ContentType)
		} else {
			w.Header().Set("Content-Type", "application/octet-stream")
		}
		if obj.Size >= 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
		}
		w.Header().Set("Content-Disposition", `inline; filename="`+path.Base(obj.Key)+`"`)
		_, _ = io.Copy(w, rc)
	})
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}
