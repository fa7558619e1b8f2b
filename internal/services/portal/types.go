package portal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// CodeOK is the envelope code the backend uses for a successful response.
const CodeOK = 20000

// TimestampLayout is the wire format of FileEntry.LastModified.
const TimestampLayout = "2006-01-02 15:04:05"

// Envelope is the uniform {code, data} wrapper returned by every
// non-binary endpoint.
type Envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

// OK reports whether the envelope carries the success code.
func (e *Envelope[T]) OK() bool {
	return e != nil && e.Code == CodeOK
}

// Ack is the envelope returned by operations that only signal completion.
type Ack = Envelope[json.RawMessage]

// Site is an opaque storage region code such as "bj" or "sh".
type Site = string

// FileEntry represents a stored file as reported by the list endpoint
type FileEntry struct {
	Filename     string    `json:"filename"`
	Size         string    `json:"size"`
	LastModified Timestamp `json:"last_modified"`
	Location     []Site    `json:"location"`
}

// FileList is the data payload of the list endpoint
type FileList struct {
	Total int         `json:"total"`
	Items []FileEntry `json:"items"`
}

// SiteSelection holds the available sites and the subset active for the user.
type SiteSelection struct {
	Total    int    `json:"total"`
	Items    []Site `json:"items"`
	Selected []Site `json:"selected,omitempty"`
}

// Credentials are sent on login and never kept by the client.
type Credentials struct {
	Username string
	Password string
}

// PasswordChange carries the current and the requested password.
type PasswordChange struct {
	OldPassword string
	NewPassword string
}

// LoginResult is the data payload of a successful login
type LoginResult struct {
	Token string `json:"token"`
}

// UserInfo is the profile returned by the info endpoint
type UserInfo struct {
	Name         string   `json:"name,omitempty"`
	Avatar       string   `json:"avatar,omitempty"`
	Introduction string   `json:"introduction,omitempty"`
	Roles        []string `json:"roles,omitempty"`
}

// Document is an opaque JSON-compatible key-value document, used for the
// user strategy.
type Document map[string]any

// Timestamp decodes the several time encodings the backends use: unix
// seconds, TimestampLayout strings and RFC 3339 strings.
type Timestamp struct {
	time.Time
}

// MarshalJSON encodes the timestamp using TimestampLayout
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(TimestampLayout))
}

// UnmarshalJSON accepts a number of unix seconds or a string timestamp.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if data[0] != '"' {
		secs, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", data, err)
		}
		t.Time = time.Unix(secs, 0).UTC()
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}
