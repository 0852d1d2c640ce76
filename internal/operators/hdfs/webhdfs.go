package hdfssensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned for paths that do not exist.
var ErrNotFound = errors.New("hdfs path not found")

// APIError is a WebHDFS failure other than a missing path.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("webhdfs error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("webhdfs error (status=%d): %s", e.StatusCode, body)
}

// FileStatus is one WebHDFS FileStatus object.
type FileStatus struct {
	PathSuffix string `json:"pathSuffix"`
	Type       string `json:"type"`
	Length     int64  `json:"length"`
	// Path is filled in by the client with the absolute path.
	Path string `json:"-"`
}

// Client speaks the WebHDFS REST API.
type Client struct {
	baseURL string
	user    string
	http    *http.Client
}

// NewClient targets baseURL (scheme://host:port) acting as user.
func NewClient(baseURL, user string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		user:    user,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Ls lists p. A directory yields its children; a file yields itself.
func (c *Client) Ls(ctx context.Context, p string) ([]FileStatus, error) {
	var status struct {
		FileStatus FileStatus `json:"FileStatus"`
	}
	if err := c.get(ctx, p, "GETFILESTATUS", &status); err != nil {
		return nil, err
	}
	if status.FileStatus.Type != "DIRECTORY" {
		status.FileStatus.Path = p
		return []FileStatus{status.FileStatus}, nil
	}

	var listing struct {
		FileStatuses struct {
			FileStatus []FileStatus `json:"FileStatus"`
		} `json:"FileStatuses"`
	}
	if err := c.get(ctx, p, "LISTSTATUS", &listing); err != nil {
		return nil, err
	}
	entries := listing.FileStatuses.FileStatus
	for i := range entries {
		entries[i].Path = path.Join(p, entries[i].PathSuffix)
	}
	return entries, nil
}

func (c *Client) get(ctx context.Context, p, op string, out any) error {
	query := url.Values{"op": {op}}
	if c.user != "" {
		query.Set("user.name", c.user)
	}
	endpoint := c.baseURL + "/webhdfs/v1" + (&url.URL{Path: "/" + strings.TrimPrefix(p, "/")}).EscapedPath() + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode webhdfs response: %w", err)
		}
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}
