// Package media stores uploaded photos and videos. Cloudinary backs it in
// production; Memory stands in when no CLOUDINARY_URL is configured.
package media

import (
	"bytes"
	"context"
	"io"
	"strings"

	"campussnap/models"

	"github.com/gabriel-vasile/mimetype"
)

const (
	FolderPosts    = "campus-posts"
	FolderProfiles = "campus-profiles"
)

// Uploader puts files into remote storage and removes them again.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, folder string) (models.Media, error)
	Destroy(ctx context.Context, m models.Media) error
}

// sniffLen matches mimetype's default read limit.
const sniffLen = 3072

// Sniff classifies r by its leading bytes. It returns the media type
// (video for any video/* content, image otherwise) and a reader that still
// yields the full content.
func Sniff(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, err
	}
	head = head[:n]

	kind := models.MediaImage
	if strings.HasPrefix(mimetype.Detect(head).String(), "video/") {
		kind = models.MediaVideo
	}
	return kind, io.MultiReader(bytes.NewReader(head), r), nil
}
