package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

const (
	loginPath    = "/user/login"
	infoPath     = "/user/info"
	logoutPath   = "/user/logout"
	strategyPath = "/user/strategy"
	passwdPath   = "/user/passwd"
)

// Login exchanges credentials for a session token. The backend expects the
// credentials as multipart form fields, not JSON.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Envelope[LoginResult], error) {
	body, contentType, length, err := multipartForm(
		formField{"username", creds.Username},
		formField{"password", creds.Password},
	)
	if err != nil {
		return nil, err
	}

	return fetch[LoginResult](ctx, c, request{
		method:        http.MethodPost,
		path:          loginPath,
		body:          body,
		contentType:   contentType,
		contentLength: length,
	})
}

// GetInfo returns the profile of the user owning token
func (c *Client) GetInfo(ctx context.Context, token string) (*Envelope[UserInfo], error) {
	return fetch[UserInfo](ctx, c, request{
		method: http.MethodGet,
		path:   infoPath,
		query:  url.Values{"token": {token}},
	})
}

// Logout ends the current session
func (c *Client) Logout(ctx context.Context) (*Ack, error) {
	return fetch[json.RawMessage](ctx, c, request{
		method: http.MethodPost,
		path:   logoutPath,
	})
}

// GetStrategy returns the user's strategy document
func (c *Client) GetStrategy(ctx context.Context) (*Envelope[Document], error) {
	return fetch[Document](ctx, c, request{
		method: http.MethodGet,
		path:   strategyPath,
	})
}

// SetStrategy stores doc as the user's strategy. The document is the whole
// JSON request body.
func (c *Client) SetStrategy(ctx context.Context, doc Document) (*Ack, error) {
	body, length, err := jsonBody(doc)
	if err != nil {
		return nil, err
	}

	return fetch[json.RawMessage](ctx, c, request{
		method:        http.MethodPost,
		path:          strategyPath,
		body:          body,
		contentType:   "application/json",
		contentLength: length,
	})
}

// ChangePassword replaces the user's password.
func (c *Client) ChangePassword(ctx context.Context, change PasswordChange) (*Ack, error) {
	body, contentType, length, err := multipartForm(
		formField{"password", change.OldPassword},
		formField{"new_password", change.NewPassword},
	)
	if err != nil {
		return nil, err
	}

	return fetch[json.RawMessage](ctx, c, request{
		method:        http.MethodPost,
		path:          passwdPath,
		body:          body,
		contentType:   contentType,
		contentLength: length,
	})
}
