package imaging

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// allowed lists the image formats vision endpoints accept.
var allowed = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Part is the transport-safe representation of a row's image.
type Part struct {
	Base64 string
	MIME   string
}

// LoadPart reads a local image and encodes it for a provider request.
// Relative paths resolve against basePath. The MIME type is sniffed from
// content, not the extension.
func LoadPart(path, basePath string) (Part, error) {
	if basePath != "" && !filepath.IsAbs(path) {
		path = filepath.Join(basePath, path)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return Part{}, fmt.Errorf("detect image type %s: %w", path, err)
	}
	mime := mtype.String()
	if !allowed[mime] {
		return Part{}, fmt.Errorf("unsupported image format %s for %s", mime, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Part{}, fmt.Errorf("read image %s: %w", path, err)
	}

	return Part{
		Base64: base64.StdEncoding.EncodeToString(data),
		MIME:   mime,
	}, nil
}
