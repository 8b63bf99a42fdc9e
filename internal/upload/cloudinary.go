package upload

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// limitTransformation caps stored images at 1000x1000 with automatic quality
const limitTransformation = "c_limit,h_1000,w_1000,q_auto"

// CloudinaryHost stores images in a Cloudinary folder
type CloudinaryHost struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinaryHost creates a host for the given account credentials
func NewCloudinaryHost(cloudName, apiKey, apiSecret, folder string) (*CloudinaryHost, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config: %w", err)
	}
	return &CloudinaryHost{cld: cld, folder: folder}, nil
}

// Put uploads data as a base64 data URI
func (h *CloudinaryHost) Put(ctx context.Context, data []byte, mediaType string) (*Result, error) {
	dataURI := fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data))

	resp, err := h.cld.Upload.Upload(ctx, dataURI, uploader.UploadParams{
		Folder:         h.folder,
		Transformation: limitTransformation,
	})
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload: %w", err)
	}
	if resp.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary upload: %s", resp.Error.Message)
	}

	return &Result{URL: resp.SecureURL, PublicID: resp.PublicID}, nil
}
