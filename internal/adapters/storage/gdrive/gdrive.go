package gdrive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"teamart/internal/ports"
)

// Client implements ports.StorageProvider backed by Google Drive.
// Uploads use ObjectKey as the Drive file name and return the fileId, which
// GetObject and PublicURL expect.
type Client struct {
	srv      *drive.Service
	folderID string
}

var _ ports.StorageProvider = (*Client)(nil)

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	var media []googleapi.MediaOption
	if in.ContentType != "" {
		media = append(media, googleapi.ContentType(in.ContentType))
	}

	if in.Upsert {
		existing, err := c.findByName(ctx, in.ObjectKey)
		if err != nil {
			return ports.PutObjectOutput{}, err
		}
		if existing != "" {
			updated, err := c.srv.Files.Update(existing, &drive.File{}).
				Media(in.Reader, media...).
				SupportsAllDrives(true).
				Context(ctx).
				Do()
			if err != nil {
				return ports.PutObjectOutput{}, fmt.Errorf("gdrive update failed: %w", err)
			}
			return ports.PutObjectOutput{ObjectKey: updated.Id, Size: in.Size}, nil
		}
	}

	file := &drive.File{Name: in.ObjectKey}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	created, err := c.srv.Files.Create(file).
		Media(in.Reader, media...).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("gdrive upload failed: %w", err)
	}

	return ports.PutObjectOutput{ObjectKey: created.Id, Size: in.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	resp, err := c.srv.Files.Get(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, "", 0, err
	}

	return resp.Body, resp.Header.Get("Content-Type"), resp.ContentLength, nil
}

// PublicURL shares the file with anyone holding the link and returns its
// direct download link.
func (c *Client) PublicURL(ctx context.Context, objectKey string) (string, error) {
	_, err := c.srv.Permissions.Create(objectKey, &drive.Permission{Type: "anyone", Role: "reader"}).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("gdrive share failed: %w", err)
	}

	f, err := c.srv.Files.Get(objectKey).
		Fields("id", "webContentLink", "webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("gdrive lookup failed: %w", err)
	}

	if f.WebContentLink != "" {
		return f.WebContentLink, nil
	}
	return f.WebViewLink, nil
}

func (c *Client) findByName(ctx context.Context, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(name))
	if c.folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(c.folderID))
	}

	list, err := c.srv.Files.List().
		Q(q).
		Fields("files(id)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("gdrive lookup failed: %w", err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
