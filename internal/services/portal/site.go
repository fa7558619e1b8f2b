package portal

import (
	"context"
	"net/http"
	"net/url"
)

const sitePath = "/user/site"

// GetSites returns the available sites and the ones selected for the user.
func (c *Client) GetSites(ctx context.Context, query url.Values) (*Envelope[SiteSelection], error) {
	return fetch[SiteSelection](ctx, c, request{
		method: http.MethodGet,
		path:   sitePath,
		query:  query,
	})
}
