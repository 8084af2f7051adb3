package thumbnail

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrUnsupportedFormat is returned for images that are neither JPEG nor PNG.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Fetcher downloads raw image bytes.
type Fetcher interface {
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)
}

// Cache stores resized recipe thumbnails on disk.
type Cache struct {
	dir     string
	width   uint
	fetcher Fetcher
	logger  *zap.Logger

	// inflight collapses concurrent requests for the same thumbnail.
	inflight singleflight.Group
}

// NewCache creates a Cache writing into dir. Images are scaled to width
// pixels wide, keeping their aspect ratio.
func NewCache(dir string, width uint, fetcher Fetcher, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Create the images directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create images directory: %w", err)
	}
	return &Cache{dir: dir, width: width, fetcher: fetcher, logger: logger}, nil
}

// Path returns the local path of the resized thumbnail for imageURL,
// downloading and resizing it on first use.
func (c *Cache) Path(ctx context.Context, imageURL string) (string, error) {
	ext, err := extension(imageURL)
	if err != nil {
		return "", err
	}
	imagePath := filepath.Join(c.dir, hashURL(imageURL)+ext)

	if _, err := os.Stat(imagePath); err == nil {
		return imagePath, nil
	}

	_, err, _ = c.inflight.Do(imagePath, func() (any, error) {
		if _, err := os.Stat(imagePath); err == nil {
			return nil, nil
		}
		data, err := c.fetcher.FetchImage(ctx, imageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch thumbnail: %w", err)
		}
		if err := c.save(data, imagePath, ext); err != nil {
			return nil, err
		}
		c.logger.Debug("thumbnail cached", zap.String("url", imageURL), zap.String("path", imagePath))
		return nil, nil
	})
	if err != nil {
		return "", err
	}
	return imagePath, nil
}

func (c *Cache) save(imageData []byte, imagePath, ext string) error {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	img = resize.Resize(c.width, 0, img, resize.Lanczos3)

	tmp, err := os.CreateTemp(c.dir, "thumb-*"+ext)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer os.Remove(tmp.Name())

	switch ext {
	case ".jpeg", ".jpg":
		err = jpeg.Encode(tmp, img, nil)
	case ".png":
		err = png.Encode(tmp, img)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	if err := os.Rename(tmp.Name(), imagePath); err != nil {
		return fmt.Errorf("failed to store image: %w", err)
	}
	return nil
}

func extension(imageURL string) (string, error) {
	u, err := url.Parse(imageURL)
	if err != nil {
		return "", fmt.Errorf("invalid image url %q: %w", imageURL, err)
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch ext {
	case ".jpeg", ".jpg", ".png":
		return ext, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func hashURL(imageURL string) string {
	hash := sha256.Sum256([]byte(imageURL))
	return hex.EncodeToString(hash[:])
}
