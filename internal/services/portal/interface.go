package portal

import (
	"context"
	"io"
	"net/url"
)

// ClientAPI defines the portal operations used by the rest of the app.
// It mirrors the concrete client so it can be mocked in tests.
type ClientAPI interface {
	BaseURL() string

	ListFiles(ctx context.Context, query url.Values) (*Envelope[FileList], error)
	Upload(ctx context.Context, task UploadTask) (*Ack, error)
	Download(ctx context.Context, filename string) ([]byte, error)
	DownloadTo(ctx context.Context, filename string, w io.Writer) (int64, error)
	GenDownloadLink(filename, token string) string
	DeleteFile(ctx context.Context, filename string) (*Ack, error)

	Login(ctx context.Context, creds Credentials) (*Envelope[LoginResult], error)
	GetInfo(ctx context.Context, token string) (*Envelope[UserInfo], error)
	Logout(ctx context.Context) (*Ack, error)
	GetStrategy(ctx context.Context) (*Envelope[Document], error)
	SetStrategy(ctx context.Context, doc Document) (*Ack, error)
	ChangePassword(ctx context.Context, change PasswordChange) (*Ack, error)

	GetSites(ctx context.Context, query url.Values) (*Envelope[SiteSelection], error)
}
