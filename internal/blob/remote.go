package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/directchat/internal/chat"
)

// RemoteStore uploads to and serves from the files service.
type RemoteStore struct {
	baseURL       string
	publicBaseURL string
	maxUploadSize int64
	client        *http.Client
}

func NewRemoteStore(serviceURL string, maxUploadSize int64, publicBaseURL string) *RemoteStore {
	return &RemoteStore{
		baseURL:       strings.TrimSuffix(serviceURL, "/"),
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		maxUploadSize: maxUploadSize,
		client:        &http.Client{Timeout: 60 * time.Second},
	}
}

// Upload validates the payload locally so malformed images never reach the
// files service, then forwards the decoded bytes.
func (s *RemoteStore) Upload(ctx context.Context, payload string) (string, error) {
	data, ext, err := DecodeImage(payload, s.maxUploadSize)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "image"+ext)
	if err != nil {
		return "", fmt.Errorf("blob.RemoteStore form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("blob.RemoteStore form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("blob.RemoteStore form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/upload", &body)
	if err != nil {
		return "", fmt.Errorf("blob.RemoteStore request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("blob.RemoteStore upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("blob.RemoteStore upload: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("blob.RemoteStore decode: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("blob.RemoteStore upload: empty url")
	}
	return s.publicBaseURL + out.URL, nil
}

// Serve proxies GET /files/{filename} from the files service.
func (s *RemoteStore) Serve(w http.ResponseWriter, r *http.Request, filename string) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, s.baseURL+"/files/"+filename, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "file service unavailable")
		return
	}
	defer resp.Body.Close()
	for _, k := range []string{"Content-Length", "Content-Type", "Cache-Control", "X-Content-Type-Options"} {
		if v := resp.Header.Get(k); v != "" {
			w.Header().Set(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

var _ chat.BlobStore = (*RemoteStore)(nil)
