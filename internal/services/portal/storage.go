package portal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

const (
	listPath     = "/storage/list"
	uploadPath   = "/storage/upload"
	downloadPath = "/storage/download"
	deletePath   = "/storage/delete/"

	// UploadField is the multipart field carrying the uploaded file.
	UploadField = "file"
)

// UploadTask describes one upload. File is only read, never closed.
type UploadTask struct {
	// Name is the filename sent with the part. Defaults to the base name of
	// File when it is an *os.File.
	Name string
	File io.Reader
	// Size is the payload length. When zero or negative it is derived from
	// File where possible; uploads of unknown size report no progress.
	Size       int64
	OnProgress ProgressFunc
}

func (t *UploadTask) filename() string {
	if t.Name != "" {
		return t.Name
	}
	if f, ok := t.File.(*os.File); ok {
		return filepath.Base(f.Name())
	}
	return UploadField
}

func (t *UploadTask) size() int64 {
	if t.Size > 0 {
		return t.Size
	}
	return payloadSize(t.File)
}

// ListFiles lists the user's files. The query is passed through as is.
func (c *Client) ListFiles(ctx context.Context, query url.Values) (*Envelope[FileList], error) {
	return fetch[FileList](ctx, c, request{
		method: http.MethodGet,
		path:   listPath,
		query:  query,
	})
}

// Upload sends task.File as a multipart form. The request is not subject to
// the client timeout; cancel ctx to abort it.
func (c *Client) Upload(ctx context.Context, task UploadTask) (*Ack, error) {
	if task.File == nil {
		return nil, errors.New("upload: no file given")
	}

	body, contentType, total, err := multipartFile(UploadField, task.filename(), task.File, task.size())
	if err != nil {
		return nil, err
	}
	if task.OnProgress != nil && total > 0 {
		body = newProgressReader(body, total, task.OnProgress)
	}

	return fetch[json.RawMessage](ctx, c, request{
		method:        http.MethodPost,
		path:          uploadPath,
		body:          body,
		contentType:   contentType,
		contentLength: total,
		stream:        true,
	})
}

func downloadRequest(filename string) request {
	return request{
		method: http.MethodGet,
		path:   downloadPath,
		query:  url.Values{"filename": {filename}},
		stream: true,
	}
}

// Download returns the content of filename.
func (c *Client) Download(ctx context.Context, filename string) ([]byte, error) {
	body, err := c.doRaw(ctx, downloadRequest(filename))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return io.ReadAll(body)
}

// DownloadTo streams the content of filename into w and returns the number
// of bytes written.
func (c *Client) DownloadTo(ctx context.Context, filename string, w io.Writer) (int64, error) {
	body, err := c.doRaw(ctx, downloadRequest(filename))
	if err != nil {
		return 0, err
	}
	defer body.Close()

	return io.Copy(w, body)
}

// GenDownloadLink returns a direct download URL for filename. The token is
// embedded in the query string, so the link grants access to whoever holds
// it until the token expires.
func (c *Client) GenDownloadLink(filename, token string) string {
	query := url.Values{}
	query.Set("filename", filename)
	query.Set("t", token)
	return c.baseURL + downloadPath + "?" + query.Encode()
}

// DeleteFile deletes filename.
func (c *Client) DeleteFile(ctx context.Context, filename string) (*Ack, error) {
	return fetch[json.RawMessage](ctx, c, request{
		method: http.MethodDelete,
		path:   deletePath + url.PathEscape(filename),
	})
}
