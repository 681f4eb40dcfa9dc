// Package storage uploads asset attachments to Cloudinary.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gabriel-vasile/mimetype"
)

// MaxAttachmentSize is the largest accepted upload.
const MaxAttachmentSize = 10 << 20

var (
	// ErrDisabled is returned when no Cloudinary credentials are configured.
	ErrDisabled = errors.New("file uploads are not configured")
	// ErrTooLarge is returned for files above MaxAttachmentSize.
	ErrTooLarge = errors.New("file exceeds 10MB limit")
	// ErrUnsupportedType is returned when the sniffed MIME type is not allowed.
	ErrUnsupportedType = errors.New("unsupported file type")
)

var allowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
}

// Detect sniffs data and returns its MIME type if it is allowed.
func Detect(data []byte) (string, error) {
	if len(data) > MaxAttachmentSize {
		return "", ErrTooLarge
	}
	detected := mimetype.Detect(data)
	for _, allowed := range allowedTypes {
		if detected.Is(allowed) {
			return allowed, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, detected.String())
}

// Uploaded describes a stored file.
type Uploaded struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
	MIME     string `json:"mime"`
}

// Uploader stores attachment bytes and returns their public location.
type Uploader interface {
	Upload(ctx context.Context, folder, filename string, data []byte) (*Uploaded, error)
}

// Cloudinary uploads through the Cloudinary upload API.
type Cloudinary struct {
	cld *cloudinary.Cloudinary
}

// NewCloudinary creates a Cloudinary uploader from account credentials.
func NewCloudinary(cloudName, apiKey, apiSecret string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return &Cloudinary{cld: cld}, nil
}

// Upload validates data and stores it under folder.
func (c *Cloudinary) Upload(ctx context.Context, folder, filename string, data []byte) (*Uploaded, error) {
	if c == nil || c.cld == nil {
		return nil, ErrDisabled
	}
	mime, err := Detect(data)
	if err != nil {
		return nil, err
	}

	res, err := c.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		Folder:       folder,
		ResourceType: "auto",
	})
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	return &Uploaded{Name: filename, URL: res.SecureURL, PublicID: res.PublicID, MIME: mime}, nil
}
