package blob

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/directchat/internal/chat"
)

var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 'I', 'H', 'D', 'R'}

func pngDataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
}

func TestDecodeImage(t *testing.T) {
	data, ext, err := DecodeImage(pngDataURL(), 0)
	require.NoError(t, err)
	require.Equal(t, ".png", ext)
	require.Equal(t, pngBytes, data)

	_, ext, err = DecodeImage(base64.StdEncoding.EncodeToString(pngBytes), 0)
	require.NoError(t, err)
	require.Equal(t, ".png", ext)

	cases := map[string]string{
		"not base64":     "data:image/png;base64,@@@",
		"not an image":   base64.StdEncoding.EncodeToString([]byte("hello world, plain text")),
		"declared jpeg":  "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(pngBytes),
		"missing base64": "data:image/png,abc",
		"too large":      pngDataURL(),
	}
	for name, payload := range cases {
		limit := int64(0)
		if name == "too large" {
			limit = 4
		}
		_, _, err := DecodeImage(payload, limit)
		require.ErrorIs(t, err, chat.ErrInvalidImage, name)
	}
}

func newLocalServer(t *testing.T, s *LocalStore) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/upload", s.HandleUpload)
	r.Get("/files/{filename}", func(w http.ResponseWriter, r *http.Request) {
		s.Serve(w, r, chi.URLParam(r, "filename"))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestLocalStoreUploadAndServe(t *testing.T) {
	s := NewLocalStore(t.TempDir(), 1<<20, "http://chat.example/")
	url, err := s.Upload(context.Background(), pngDataURL())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://chat.example/api/files/"))
	require.True(t, strings.HasSuffix(url, ".png"))

	rec := httptest.NewRecorder()
	s.Serve(rec, httptest.NewRequest(http.MethodGet, "/", nil), path.Base(url))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	require.Equal(t, pngBytes, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	s.Serve(rec, httptest.NewRequest(http.MethodGet, "/", nil), "../../etc/passwd")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoteStoreRoundTrip(t *testing.T) {
	local := NewLocalStore(t.TempDir(), 1<<20, "")
	srv := newLocalServer(t, local)
	remote := NewRemoteStore(srv.URL, 1<<20, "http://chat.example")

	url, err := remote.Upload(context.Background(), pngDataURL())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://chat.example/api/files/"))

	rec := httptest.NewRecorder()
	remote.Serve(rec, httptest.NewRequest(http.MethodGet, "/", nil), path.Base(url))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Equal(t, pngBytes, body)

	_, err = remote.Upload(context.Background(), "bm90IGFuIGltYWdl")
	require.ErrorIs(t, err, chat.ErrInvalidImage)
}
