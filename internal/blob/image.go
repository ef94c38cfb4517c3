package blob

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/directchat/internal/chat"
)

// imageTypes maps a sniffed extension to the MIME type it is served with.
var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
}

// DecodeImage accepts a data URL (data:image/png;base64,...) or bare base64
// and returns the decoded bytes with the extension detected from their magic
// bytes. A declared MIME type that disagrees with the content is rejected.
func DecodeImage(payload string, maxSize int64) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)
	declared := ""
	if strings.HasPrefix(payload, "data:") {
		meta, data, ok := strings.Cut(payload[len("data:"):], ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return nil, "", fmt.Errorf("%w: malformed data url", chat.ErrInvalidImage)
		}
		declared = strings.ToLower(strings.TrimSuffix(meta, ";base64"))
		payload = data
	}
	if maxSize > 0 && int64(base64.StdEncoding.DecodedLen(len(payload))) > maxSize+2 {
		return nil, "", fmt.Errorf("%w: image exceeds %d bytes", chat.ErrInvalidImage, maxSize)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", fmt.Errorf("%w: bad base64", chat.ErrInvalidImage)
		}
	}
	if maxSize > 0 && int64(len(raw)) > maxSize {
		return nil, "", fmt.Errorf("%w: image exceeds %d bytes", chat.ErrInvalidImage, maxSize)
	}
	ext := sniffImage(raw)
	if ext == "" {
		return nil, "", fmt.Errorf("%w: unsupported image format", chat.ErrInvalidImage)
	}
	if declared != "" && declared != imageTypes[ext] && !(declared == "image/jpg" && ext == ".jpg") {
		return nil, "", fmt.Errorf("%w: content is not %s", chat.ErrInvalidImage, declared)
	}
	return raw, ext, nil
}

func sniffImage(head []byte) string {
	switch {
	case len(head) >= 3 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF:
		return ".jpg"
	case len(head) >= 8 && bytes.Equal(head[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return ".png"
	case len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a"))):
		return ".gif"
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")):
		return ".webp"
	case len(head) >= 12 && bytes.Equal(head[4:8], []byte("ftyp")) &&
		(bytes.Equal(head[8:12], []byte("heic")) || bytes.Equal(head[8:12], []byte("heix")) || bytes.Equal(head[8:12], []byte("mif1"))):
		return ".heic"
	}
	return ""
}

// ContentType returns the MIME type for a stored file name, or "".
func ContentType(name string) string {
	for ext, ct := range imageTypes {
		if strings.HasSuffix(strings.ToLower(name), ext) {
			return ct
		}
	}
	return ""
}
