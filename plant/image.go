package plant

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
)

// ErrInvalidImage is returned for uploads that are not a decodable image.
var ErrInvalidImage = errors.New("invalid image")

// Image is a validated upload ready for inference.
type Image struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// DecodeBase64 decodes a base64 image, accepting an optional data URL prefix.
func DecodeBase64(s string) (*Image, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 image: %w", ErrInvalidImage, err)
	}
	return Validate(data, "")
}

// Validate checks data decodes as an image. A non-empty contentType must be
// an image/* type.
func Validate(data []byte, contentType string) (*Image, error) {
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: file must be an image", ErrInvalidImage)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidImage)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid image file", ErrInvalidImage)
	}
	return &Image{Data: data, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
