// Package client is a Go SDK for the depot HTTP API together with the local
// file handling used by the command-line tool.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// UploadedFile mirrors one entry of the upload response.
type UploadedFile struct {
	Filename   string `json:"filename"`
	StoredName string `json:"stored_name"`
	Size       int64  `json:"size"`
}

// UploadResult is the decoded upload response.
type UploadResult struct {
	Message string         `json:"message"`
	Files   []UploadedFile `json:"files"`
}

// Source is one part of a multipart upload. Write is called with the part's
// writer and must stream the content into it.
type Source struct {
	Name  string
	Write func(w io.Writer) error
}

// FileSource uploads a single file under its base name.
func FileSource(path string) Source {
	return Source{
		Name: filepath.Base(path),
		Write: func(w io.Writer) error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(w, f)
			return err
		},
	}
}

// DirSource uploads a directory as "<name>.zip", compressed on the fly.
func DirSource(dir *Dir) Source {
	return Source{
		Name:  dir.Name() + ".zip",
		Write: dir.WriteZip,
	}
}

// SourcesFor turns parsed command-line paths into upload sources.
func SourcesFor(paths []LocalPath) ([]Source, error) {
	sources := make([]Source, 0, len(paths))
	for _, p := range paths {
		if p.Kind == PathDir {
			dir, err := BuildTree(p.FullPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read directory %s: %w", p.FullPath, err)
			}
			sources = append(sources, DirSource(dir))
			continue
		}
		sources = append(sources, FileSource(p.FullPath))
	}
	return sources, nil
}

// Client talks to a depot server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithToken sets a bearer token obtained earlier.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: uploads and downloads can run for a long time.
		httpClient: &http.Client{Transport: http.DefaultTransport},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current bearer token, if any.
func (c *Client) Token() string {
	return c.token
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.postJSON(ctx, "/login", body, &resp); err != nil {
		return "", err
	}
	c.token = resp.Token
	return resp.Token, nil
}

// Register creates an account. Requires an admin token.
func (c *Client) Register(ctx context.Context, username, password, role string) error {
	body := map[string]string{"username": username, "password": password, "role": role}
	return c.postJSON(ctx, "/register", body, nil)
}

// ChangePassword changes the password of the logged-in account.
func (c *Client) ChangePassword(ctx context.Context, password string) error {
	return c.postJSON(ctx, "/change-password", map[string]string{"password": password}, nil)
}

// Upload sends all sources in one multipart request. The body is produced
// while it is sent, so nothing is held in memory in full.
func (c *Client) Upload(ctx context.Context, sources ...Source) (*UploadResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		for _, src := range sources {
			part, err := mw.CreateFormFile("file", src.Name)
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if err := src.Write(part); err != nil {
				pw.CloseWithError(fmt.Errorf("failed to read %s: %w", src.Name, err))
				return
			}
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/upload", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result UploadResult
	if err := c.do(req, &result); err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	return &result, nil
}

// Download streams a stored file into w and returns the server's suggested
// filename together with the number of bytes written.
func (c *Client) Download(ctx context.Context, name string, w io.Writer) (string, int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/download/"+url.PathEscape(name), nil)
	if err != nil {
		return "", 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, decodeAPIError(resp)
	}

	filename := name
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = filepath.Base(params["filename"])
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return filename, n, fmt.Errorf("download interrupted: %w", err)
	}
	return filename, n, nil
}

// Health reports the server's status string.
func (c *Client) Health(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	}
	return apiErr
}

// DefaultTimeout bounds the short JSON calls made by the CLI.
const DefaultTimeout = 30 * time.Second
