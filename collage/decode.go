package collage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"
)

// ErrDecode is returned when a photo or pattern cannot be decoded.
var ErrDecode = errors.New("image decode failed")

// DecodeImage decodes one encoded image.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// DecodePhotos decodes all photos concurrently and returns only once every
// decode has finished. Any failure fails the whole set.
func DecodePhotos(ctx context.Context, photos [][]byte) ([]image.Image, error) {
	out := make([]image.Image, len(photos))
	errs := make([]error, len(photos))

	var wg sync.WaitGroup
	for i, p := range photos {
		wg.Add(1)
		go func(i int, p []byte) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			out[i], errs[i] = DecodeImage(p)
		}(i, p)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("photo %d: %w", i, err)
		}
	}
	return out, nil
}
