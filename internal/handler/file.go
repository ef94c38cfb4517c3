package handler

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
)

// FileServer is implemented by blob.LocalStore and blob.RemoteStore.
type FileServer interface {
	Serve(w http.ResponseWriter, r *http.Request, filename string)
}

type FileHandler struct {
	files FileServer
}

func NewFileHandler(files FileServer) *FileHandler {
	return &FileHandler{files: files}
}

func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(chi.URLParam(r, "filename"))
	if filename == "." || filename == "/" {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	h.files.Serve(w, r, filename)
}
