package utils

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ochronus/storageportal/internal/services/portal"
	"github.com/ochronus/storageportal/internal/session"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

const configTemplate = `# Required. Base URL of the storage portal API
api_url = "http://127.0.0.1:9528"

# Optional log level, default "info"
loglevel = "info"

# Optional request timeout in secs, default 30. Uploads and downloads are not limited.
timeout = 30

# Optional location of the session store, default next to this file
# session_file = "/path/to/session.db"

# Optional number of parallel uploads/downloads, default 4
transfers = 4

# Optional number of attempts for downloads, default 3. Uploads are never retried.
retries = 3

# Only used by 'storageportal mock'
[mock]
# Optional bind address, default "127.0.0.1"
bind_address = "127.0.0.1"

# Optional TCP port, default 9528
port = 9528

# Optional credentials of the mock user, default admin/admin
username = "admin"
password = "admin"

# Optional token signing secret. A random one is generated on every start when empty.
secret = "{{MOCK_SECRET}}"

# Optional token lifetime in hours, default 24
token_ttl = 24

# Optional number of generated files, default 10
files = 10

# Optional site codes, default ["bj", "sh", "gz"]
sites = ["bj", "sh", "gz"]

# Optional fixture seed, default 0 (random)
seed = 0
`

// readPassword is swapped in tests
var readPassword = term.ReadPassword

// GenerateConfig writes a configuration file with a fresh mock secret
func GenerateConfig(configPath string) error {
	fmt.Printf("Generating config %s\n", configPath)

	secret, err := randomSecret()
	if err != nil {
		return err
	}

	// Replace placeholder with the generated secret
	config := strings.Replace(configTemplate, "{{MOCK_SECRET}}", secret, 1)

	// Check if config file already exists and back it up
	if _, err := os.Stat(configPath); err == nil {
		backupPath := configPath + ".bak"
		fmt.Printf("Backing up config %s\n", configPath)
		if err := os.Rename(configPath, backupPath); err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
	}

	// Create parent directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write config file
	fmt.Printf("Writing %s\n", configPath)
	if err := os.WriteFile(configPath, []byte(config), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// PromptLine prints prompt to out and reads one line from in.
func PromptLine(in io.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// PromptPassword reads a password from the terminal without echoing it.
func PromptPassword(out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	password, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

// LoadDocument reads a strategy document from a YAML or JSON file. Files
// ending in .json are decoded as JSON, everything else as YAML.
func LoadDocument(path string) (portal.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc := portal.Document{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}

// ParseQuery turns k=v pairs into query values. Repeated keys accumulate.
func ParseQuery(pairs []string) (url.Values, error) {
	query := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid query %q, expected key=value", pair)
		}
		query.Add(key, value)
	}
	return query, nil
}

// Login authenticates against the portal and stores the token for the
// client's API URL.
func Login(ctx context.Context, client portal.ClientAPI, sessions *session.Store, creds portal.Credentials) (*session.Session, error) {
	resp, err := client.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	if resp.Data.Token == "" {
		return nil, fmt.Errorf("login succeeded but no token was returned")
	}

	sess := session.Session{Username: creds.Username, Token: resp.Data.Token}
	if err := sessions.Save(client.BaseURL(), sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// CurrentToken returns the stored token for the client's API URL.
func CurrentToken(sessions *session.Store, client portal.ClientAPI) (string, error) {
	sess, err := sessions.Load(client.BaseURL())
	if err != nil {
		return "", err
	}
	if sess == nil || sess.Token == "" {
		return "", fmt.Errorf("not logged in to %s, run 'storageportal login' first", client.BaseURL())
	}
	return sess.Token, nil
}
