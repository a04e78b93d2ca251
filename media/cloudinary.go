package media

import (
	"context"
	"errors"
	"fmt"
	"io"

	"campussnap/models"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

type Cloudinary struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinary(url string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config: %w", err)
	}
	return &Cloudinary{cld: cld}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, r io.Reader, folder string) (models.Media, error) {
	kind, body, err := Sniff(r)
	if err != nil {
		return models.Media{}, err
	}

	res, err := c.cld.Upload.Upload(ctx, body, uploader.UploadParams{
		Folder:       folder,
		ResourceType: kind,
	})
	if err != nil {
		return models.Media{}, err
	}
	if res.Error.Message != "" {
		return models.Media{}, errors.New(res.Error.Message)
	}
	return models.Media{URL: res.SecureURL, PublicID: res.PublicID, Type: kind}, nil
}

func (c *Cloudinary) Destroy(ctx context.Context, m models.Media) error {
	if m.PublicID == "" {
		return nil
	}
	kind := m.Type
	if kind == "" {
		kind = models.MediaImage
	}
	res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     m.PublicID,
		ResourceType: kind,
	})
	if err != nil {
		return err
	}
	if res.Error.Message != "" {
		return errors.New(res.Error.Message)
	}
	return nil
}
