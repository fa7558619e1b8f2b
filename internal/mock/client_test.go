package mock

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ochronus/storageportal/internal/services/portal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mutableToken struct {
	token string
}

func (m *mutableToken) Token(context.Context) (string, error) {
	return m.token, nil
}

// TestClientAgainstMock drives the real portal client through a full
// session against the mock router.
func TestClientAgainstMock(t *testing.T) {
	env := setupTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	tokens := &mutableToken{}
	client := portal.NewClient(srv.URL, portal.WithTokenSource(tokens))
	ctx := context.Background()

	_, err := client.Login(ctx, portal.Credentials{Username: "admin", Password: "wrong"})
	var appErr *portal.ApplicationError
	require.True(t, errors.As(err, &appErr), "expected ApplicationError, got %v", err)
	assert.Equal(t, CodeAuthFail, appErr.Code)

	login, err := client.Login(ctx, portal.Credentials{Username: "admin", Password: "secret"})
	require.NoError(t, err)
	require.True(t, login.OK())
	tokens.token = login.Data.Token

	info, err := client.GetInfo(ctx, tokens.token)
	require.NoError(t, err)
	assert.Equal(t, "admin", info.Data.Name)

	content := []byte(strings.Repeat("storage portal ", 1000))
	var percents []int
	ack, err := client.Upload(ctx, portal.UploadTask{
		Name: "report final.txt",
		File: bytes.NewReader(content),
		OnProgress: func(ev portal.ProgressEvent) {
			percents = append(percents, ev.Percent)
		},
	})
	require.NoError(t, err)
	assert.True(t, ack.OK())
	require.NotEmpty(t, percents)
	assert.Equal(t, 100, percents[len(percents)-1])

	_, err = client.Upload(ctx, portal.UploadTask{Name: "report final.txt", File: bytes.NewReader(content)})
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, CodeFileExists, appErr.Code)

	list, err := client.ListFiles(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Data.Total)
	assert.Equal(t, "report final.txt", list.Data.Items[0].Filename)
	assert.Equal(t, []portal.Site{"bj", "sh", "gz"}, list.Data.Items[0].Location)

	body, err := client.Download(ctx, "report final.txt")
	require.NoError(t, err)
	assert.Equal(t, content, body)

	resp, err := http.Get(client.GenDownloadLink("report final.txt", tokens.token))
	require.NoError(t, err)
	linked, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, content, linked)

	_, err = client.SetStrategy(ctx, portal.Document{"sites": []any{"sh", "gz"}})
	require.NoError(t, err)
	strategy, err := client.GetStrategy(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"sh", "gz"}, strategy.Data["sites"])

	sites, err := client.GetSites(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []portal.Site{"sh", "gz"}, sites.Data.Selected)

	_, err = client.DeleteFile(ctx, "report final.txt")
	require.NoError(t, err)
	_, err = client.DeleteFile(ctx, "report final.txt")
	assert.True(t, portal.IsNotFound(err), "expected 404, got %v", err)

	_, err = client.ChangePassword(ctx, portal.PasswordChange{OldPassword: "secret", NewPassword: "next"})
	require.NoError(t, err)

	_, err = client.Logout(ctx)
	require.NoError(t, err)

	_, err = client.ListFiles(ctx, nil)
	assert.True(t, portal.IsUnauthorized(err), "expected 401 after logout, got %v", err)
	var httpErr *portal.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, CodeIllegalToken, httpErr.Code)
}
