// Package blob stores message images and hands back the URL they are
// served from. LocalStore writes gzip-compressed files to disk; RemoteStore
// forwards to the files service.
package blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/directchat/internal/chat"
	"github.com/directchat/internal/logger"
)

// UploadResponse is returned by the files service upload endpoint.
type UploadResponse struct {
	URL         string `json:"url"`
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type"`
}

// LocalStore keeps files under Dir as <uuid><ext>.gz.
type LocalStore struct {
	Dir           string
	MaxUploadSize int64
	// PublicBaseURL prefixes returned URLs; empty yields root-relative ones.
	PublicBaseURL string
}

func NewLocalStore(dir string, maxUploadSize int64, publicBaseURL string) *LocalStore {
	return &LocalStore{Dir: dir, MaxUploadSize: maxUploadSize, PublicBaseURL: strings.TrimSuffix(publicBaseURL, "/")}
}

// Upload decodes an image payload and stores it.
func (s *LocalStore) Upload(ctx context.Context, payload string) (string, error) {
	data, ext, err := DecodeImage(payload, s.MaxUploadSize)
	if err != nil {
		return "", err
	}
	name, err := s.Save(ctx, bytes.NewReader(data), ext)
	if err != nil {
		return "", err
	}
	return s.URL(name), nil
}

// URL is the address a stored name is served from.
func (s *LocalStore) URL(name string) string {
	return s.PublicBaseURL + "/api/files/" + name
}

// Save compresses r into a new file and returns its public name.
func (s *LocalStore) Save(ctx context.Context, r io.Reader, ext string) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("blob.Save mkdir: %w", err)
	}
	name := uuid.New().String() + ext
	dstPath := filepath.Join(s.Dir, name+".gz")
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("blob.Save create: %w", err)
	}
	gz := gzip.NewWriter(dst)
	if err := copyWithContext(ctx, gz, r); err != nil {
		gz.Close()
		dst.Close()
		os.Remove(dstPath)
		return "", fmt.Errorf("blob.Save: %w", err)
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return "", fmt.Errorf("blob.Save gzip: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("blob.Save close: %w", err)
	}
	return name, nil
}

// HandleUpload accepts multipart/form-data with a "file" field holding an
// image. Used by the standalone files service.
func (s *LocalStore) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadSize)
	if err := r.ParseMultipartForm(s.MaxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	head := make([]byte, 512)
	n, _ := io.ReadAtLeast(file, head, len(head))
	head = head[:n]
	ext := sniffImage(head)
	if ext == "" {
		writeError(w, http.StatusBadRequest, "file content is not a supported image")
		return
	}

	name, err := s.Save(r.Context(), io.MultiReader(bytes.NewReader(head), file), ext)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		logger.Errorf("blob.HandleUpload: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{
		URL:         "/api/files/" + name,
		FileName:    name,
		FileSize:    header.Size,
		ContentType: "image",
	})
}

// Serve streams a stored file, decompressing it on the way out.
func (s *LocalStore) Serve(w http.ResponseWriter, r *http.Request, filename string) {
	filename = filepath.Base(filename)
	f, err := os.Open(filepath.Join(s.Dir, filename+".gz"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	defer gz.Close()

	if ct := ContentType(filename); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, gz); err != nil && r.Context().Err() == nil {
		logger.Errorf("blob.Serve %s: %v", filename, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("blob writeJSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("upload cancelled: %w", ctx.Err())
		default:
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read: %w", readErr)
		}
	}
}

var _ chat.BlobStore = (*LocalStore)(nil)
