package storage

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// IconSizes maps icon size names to their square pixel bounds
var IconSizes = map[string]int{
	"large":     512,
	"medium":    128,
	"thumbnail": 64,
}

type IconProcessor struct {
	MaxSize int64 // bytes
}

func NewIconProcessor(maxSize int64) *IconProcessor {
	if maxSize <= 0 {
		maxSize = 5 * 1024 * 1024 // 5MB
	}
	return &IconProcessor{MaxSize: maxSize}
}

// Check JPEG/PNG, reject anything else or anything over the limit
func (p *IconProcessor) ValidateIcon(data []byte) error {
	if int64(len(data)) > p.MaxSize {
		return fmt.Errorf("icon exceeds %dMB", p.MaxSize/(1024*1024))
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("not an image: %w", err)
	}
	switch format {
	case "jpeg", "png":
		return nil
	default:
		return fmt.Errorf("image format %s not allowed (only jpeg/png)", format)
	}
}

// ProcessIcon returns map[size][]byte: fit into the square bound,
// encode PNG so transparency survives
func (p *IconProcessor) ProcessIcon(data []byte) (map[string][]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("cannot decode image: %w", err)
	}
	sizes := map[string][]byte{}
	for name, bound := range IconSizes {
		resized := imaging.Fit(img, bound, bound, imaging.Lanczos)
		b := new(bytes.Buffer)
		if err := png.Encode(b, resized); err != nil {
			return nil, fmt.Errorf("cannot encode %s: %w", name, err)
		}
		sizes[name] = b.Bytes()
	}
	return sizes, nil
}
