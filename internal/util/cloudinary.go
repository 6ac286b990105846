package util

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"storyloom/internal/config"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

type CloudinaryClient struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryClient(cfg *config.Config) (*CloudinaryClient, error) {
	if cfg.CloudinaryCloudName == "" || cfg.CloudinaryAPIKey == "" || cfg.CloudinaryAPISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials not configured")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &CloudinaryClient{cld: cld}, nil
}

// UploadImage uploads an image file to Cloudinary under the given folder and
// returns a URL delivered as WebP.
func (c *CloudinaryClient) UploadImage(filePath, folder string) (string, error) {
	ctx := context.Background()

	result, err := c.cld.Upload.Upload(ctx, filePath, uploader.UploadParams{
		Folder:       folder,
		ResourceType: "image",
	})
	if err != nil {
		return "", fmt.Errorf("error uploading to cloudinary: %w", err)
	}

	// Inject transformation into URL so the image is served as WebP
	url := result.SecureURL
	url = strings.Replace(url, "/upload/", "/upload/f_webp,q_auto,w_1280/", 1)
	return url, nil
}

// UploadFromReader stages the reader's bytes to a temp file and uploads them.
// Used for multipart uploads (work covers, sticker assets).
func (c *CloudinaryClient) UploadFromReader(reader io.Reader, filename, folder string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("error reading file: %w", err)
	}

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".jpg"
	}
	tempFile := filepath.Join(os.TempDir(), uuid.New().String()+ext)
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return "", fmt.Errorf("error writing temp file: %w", err)
	}
	defer os.Remove(tempFile)

	return c.UploadImage(tempFile, folder)
}
