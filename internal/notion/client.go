package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API is the remote capability surface consumed by the sync engine. Every
// call must be invoked through the scheduler (see Scheduled) or wrapped in
// WithRetry — never directly against the raw client from sync logic.
type API interface {
	RetrievePage(ctx context.Context, id string) (*Page, error)
	UpdatePageTitle(ctx context.Context, id, title string) error
	QueryDatabase(ctx context.Context, id, cursor string) (*PageList, error)
	RetrieveDatabase(ctx context.Context, id string) (*Database, error)
	Search(ctx context.Context, query, filter, cursor string) (*PageList, error)
	ListChildBlocks(ctx context.Context, blockID, cursor string) (*BlockList, error)
	AppendChildBlocks(ctx context.Context, blockID string, blocks []Block) error
	DeleteBlock(ctx context.Context, id string) error
}

// ClientOptions configures the HTTP client.
type ClientOptions struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	APIVersion string
	UserAgent  string
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	apiVersion string
	userAgent  string
}

// NewClient creates an HTTP client with defaults filled in.
func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.notion.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "2022-06-28"
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(opts.Token),
		httpClient: httpClient,
		apiVersion: apiVersion,
		userAgent:  strings.TrimSpace(opts.UserAgent),
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if c.token == "" {
		return fmt.Errorf("notion: token is empty")
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.apiVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errCode := ""
		errMessage := strings.TrimSpace(string(respBody))
		var parsed map[string]any
		if json.Unmarshal(respBody, &parsed) == nil {
			if code, ok := parsed["code"].(string); ok {
				errCode = code
			}
			if message, ok := parsed["message"].(string); ok && strings.TrimSpace(message) != "" {
				errMessage = message
			}
		}
		return newAPIError(resp.StatusCode, errCode, errMessage)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("notion: decode response: %w", err)
		}
	}
	return nil
}

// RetrievePage fetches a page with its properties.
func (c *Client) RetrievePage(ctx context.Context, id string) (*Page, error) {
	var page Page
	if err := c.do(ctx, http.MethodGet, "/v1/pages/"+url.PathEscape(id), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// UpdatePageTitle replaces the page's title property.
func (c *Client) UpdatePageTitle(ctx context.Context, id, title string) error {
	payload := map[string]any{
		"properties": map[string]any{
			"title": map[string]any{"title": NewRichText(title)},
		},
	}
	return c.do(ctx, http.MethodPatch, "/v1/pages/"+url.PathEscape(id), payload, nil)
}

// QueryDatabase returns one result page of the database's entries.
func (c *Client) QueryDatabase(ctx context.Context, id, cursor string) (*PageList, error) {
	payload := map[string]any{}
	if cursor != "" {
		payload["start_cursor"] = cursor
	}
	var list PageList
	if err := c.do(ctx, http.MethodPost, "/v1/databases/"+url.PathEscape(id)+"/query", payload, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// RetrieveDatabase fetches database metadata.
func (c *Client) RetrieveDatabase(ctx context.Context, id string) (*Database, error) {
	var db Database
	if err := c.do(ctx, http.MethodGet, "/v1/databases/"+url.PathEscape(id), nil, &db); err != nil {
		return nil, err
	}
	return &db, nil
}

// Search queries the workspace. filter, when non-empty, restricts the object
// kind ("page" or "database").
func (c *Client) Search(ctx context.Context, query, filter, cursor string) (*PageList, error) {
	payload := map[string]any{}
	if query != "" {
		payload["query"] = query
	}
	if filter != "" {
		payload["filter"] = map[string]string{"property": "object", "value": filter}
	}
	if cursor != "" {
		payload["start_cursor"] = cursor
	}
	var list PageList
	if err := c.do(ctx, http.MethodPost, "/v1/search", payload, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ListChildBlocks returns one result page of a block's direct children.
func (c *Client) ListChildBlocks(ctx context.Context, blockID, cursor string) (*BlockList, error) {
	path := "/v1/blocks/" + url.PathEscape(blockID) + "/children"
	if cursor != "" {
		path += "?start_cursor=" + url.QueryEscape(cursor)
	}
	var list BlockList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// AppendChildBlocks appends blocks to the end of a block's children.
func (c *Client) AppendChildBlocks(ctx context.Context, blockID string, blocks []Block) error {
	payload := map[string]any{"children": blocks}
	return c.do(ctx, http.MethodPatch, "/v1/blocks/"+url.PathEscape(blockID)+"/children", payload, nil)
}

// DeleteBlock archives a block by identity.
func (c *Client) DeleteBlock(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/blocks/"+url.PathEscape(id), nil, nil)
}
