// Package upload validates product images and hands them to an image host.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"storefront/internal/util"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

var (
	// ErrEmpty is returned for a missing or zero-length file
	ErrEmpty = errors.New("no file provided")
	// ErrTooLarge is returned when the file exceeds the size limit
	ErrTooLarge = errors.New("file size exceeds the upload limit")
	// ErrNotImage is returned when the content is not an image
	ErrNotImage = errors.New("invalid file type, only images are allowed")
	// ErrDisabled is returned when no image host is configured
	ErrDisabled = errors.New("image uploads are not configured")
)

// Result identifies a stored image
type Result struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

// ImageHost stores image bytes and returns their public location
type ImageHost interface {
	Put(ctx context.Context, data []byte, mediaType string) (*Result, error)
}

// Uploader enforces the size and type rules before anything leaves the process
type Uploader struct {
	host     ImageHost
	maxBytes int64
	logger   *zap.Logger
}

// NewUploader creates an uploader. A nil host disables uploads.
func NewUploader(host ImageHost, maxBytes int64) *Uploader {
	return &Uploader{
		host:     host,
		maxBytes: maxBytes,
		logger:   util.GetLogger(),
	}
}

// MaxBytes returns the size limit
func (u *Uploader) MaxBytes() int64 {
	return u.maxBytes
}

// Upload reads at most the size limit from r, sniffs the content type from
// the bytes and stores the image. The declared content type of the request
// is never trusted.
func (u *Uploader) Upload(ctx context.Context, r io.Reader) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "Uploader.Upload")
	defer span.End()

	if u.host == nil {
		return nil, ErrDisabled
	}

	data, err := io.ReadAll(io.LimitReader(r, u.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		util.ImageUploadsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrEmpty
	}
	if int64(len(data)) > u.maxBytes {
		util.ImageUploadsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrTooLarge
	}

	mediaType := mimetype.Detect(data).String()
	if !strings.HasPrefix(mediaType, "image/") {
		util.ImageUploadsTotal.WithLabelValues("rejected").Inc()
		u.logger.Info("Rejected non-image upload", zap.String("detected", mediaType))
		return nil, ErrNotImage
	}
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}

	result, err := u.host.Put(ctx, data, mediaType)
	if err != nil {
		util.ImageUploadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("store image: %w", err)
	}

	util.ImageUploadsTotal.WithLabelValues("success").Inc()
	u.logger.Info("Image uploaded",
		zap.String("public_id", result.PublicID),
		zap.String("type", mediaType),
		zap.Int("bytes", len(data)))
	return result, nil
}
