package openhumans

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/openhumans/loggather/services"
	"github.com/openhumans/loggather/services/datalogs"
)

type directUpload struct {
	ID  json.Number `json:"id"`
	URL string      `json:"url"`
}

// UploadStream stores content as a new file for the project member using
// the direct-upload protocol: register the file, PUT the bytes to the
// returned URL, then mark the upload complete.
func (c *Client) UploadStream(ctx context.Context, accessToken, projectMemberID, filename string, metadata datalogs.Metadata, content io.Reader, size int64) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return services.NewUploadError(filename, err)
	}

	var target directUpload
	err = c.postForm(ctx,
		c.endpoint("/api/direct-sharing/project/files/upload/direct/", accessToken, nil),
		url.Values{
			"project_member_id": {projectMemberID},
			"filename":          {filename},
			"metadata":          {string(meta)},
		},
		&target,
	)
	if err != nil {
		return services.NewUploadError(filename, fmt.Errorf("register upload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.URL, content)
	if err != nil {
		return services.NewUploadError(filename, err)
	}
	req.ContentLength = size
	if err := c.do(req, nil); err != nil {
		return services.NewUploadError(filename, fmt.Errorf("put file: %w", err))
	}

	err = c.postForm(ctx,
		c.endpoint("/api/direct-sharing/project/files/upload/complete/", accessToken, nil),
		url.Values{
			"project_member_id": {projectMemberID},
			"file_id":           {target.ID.String()},
		},
		nil,
	)
	if err != nil {
		return services.NewUploadError(filename, fmt.Errorf("complete upload: %w", err))
	}

	c.logger.Info("uploaded file",
		zap.String("filename", filename),
		zap.String("file_id", target.ID.String()),
		zap.Int64("bytes", size),
	)
	return nil
}

// Uploader delivers export files into the member's Open Humans storage.
type Uploader struct {
	client *Client
}

func NewUploader(client *Client) *Uploader {
	return &Uploader{client: client}
}

// Upload resolves the project member for the token and uploads the file.
func (u *Uploader) Upload(ctx context.Context, accessToken string, file datalogs.ExportFile) error {
	info, err := u.client.ExchangeMember(ctx, accessToken)
	if err != nil {
		return services.NewUploadError(file.Name, err)
	}
	return u.client.UploadStream(ctx, accessToken, info.ProjectMemberID, file.Name, file.Metadata,
		bytes.NewReader(file.Content), int64(len(file.Content)))
}
