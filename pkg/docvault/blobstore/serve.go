package blobstore

import (
	"context"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Opener reads stored blobs
type Opener interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Attachment describes how a blob is presented to a downloading client
type Attachment struct {
	Ref         string
	Name        string
	ContentType string
	Size        int64
}

// Serve streams the blob as a file download. It writes nothing and returns
// the error if the blob cannot be opened.
func Serve(c *gin.Context, blobs Opener, a Attachment) error {
	rc, err := blobs.Open(c.Request.Context(), a.Ref)
	if err != nil {
		return err
	}
	defer rc.Close()

	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name := a.Name
	if name == "" {
		name = "download"
	}
	c.DataFromReader(http.StatusOK, a.Size, contentType, rc, map[string]string{
		"Content-Disposition":    mime.FormatMediaType("attachment", map[string]string{"filename": name}),
		"X-Content-Type-Options": "nosniff",
	})
	return nil
}
