// Package commentclient is the consumer side of the comment API: a read cache with
// last-request-wins fetches and an optimistic moderation controller.
package commentclient

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

	"github.com/google/uuid"

	"larder/internal/models"
)

// APIError is a non-2xx response decoded from the {"error": {...}} envelope.
type APIError struct {
	Status       int    `json:"-"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	Reason       string `json:"reason,omitempty"`
	Field        string `json:"field,omitempty"`
	ProviderCode string `json:"provider_code,omitempty"`
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("comment api %d %s (%s): %s", e.Status, e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("comment api %d %s: %s", e.Status, e.Code, e.Message)
}

// SubmitRequest mirrors the POST /api/comments body.
type SubmitRequest struct {
	PageSlug       string  `json:"page_slug"`
	AuthorName     string  `json:"author_name"`
	AuthorEmail    *string `json:"author_email,omitempty"`
	Content        string  `json:"content"`
	ParentID       *string `json:"parent_id,omitempty"`
	IsAdmin        bool    `json:"is_admin,omitempty"`
	TurnstileToken string  `json:"turnstile_token,omitempty"`
}

type SubmitResponse struct {
	Comment models.Comment `json:"comment"`
	Message string         `json:"message"`
}

// AdminFilter narrows the moderation listing. Zero values mean "any".
type AdminFilter struct {
	Status   models.CommentStatus
	PageSlug string
}

// AdminView is one moderation listing plus totals per status.
type AdminView struct {
	Comments []models.Comment    `json:"comments"`
	Counts   models.CommentCounts `json:"counts"`
}

type Client struct {
	baseURL    string
	http       *http.Client
	adminToken string
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithAdminToken sends the token as a bearer credential on every request.
func WithAdminToken(token string) ClientOption {
	return func(c *Client) { c.adminToken = token }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var envelope struct {
			Error APIError `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&envelope)
		apiErr := envelope.Error
		apiErr.Status = resp.StatusCode
		if apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return &apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// FetchComments returns the approved reply tree of a page. Its signature matches Fetcher.
func (c *Client) FetchComments(ctx context.Context, pageSlug string) ([]*models.CommentNode, error) {
	var tree []*models.CommentNode
	if err := c.do(ctx, http.MethodGet, "/api/comments?page_slug="+url.QueryEscape(pageSlug), nil, &tree); err != nil {
		return nil, err
	}
	if tree == nil {
		tree = []*models.CommentNode{}
	}
	return tree, nil
}

func (c *Client) Submit(ctx context.Context, in SubmitRequest) (*SubmitResponse, error) {
	var out SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/comments", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateStatus(ctx context.Context, id uuid.UUID, status models.CommentStatus, isAdmin *bool) (*models.Comment, error) {
	body := struct {
		Status  models.CommentStatus `json:"status"`
		IsAdmin *bool                `json:"is_admin,omitempty"`
	}{Status: status, IsAdmin: isAdmin}

	var out models.Comment
	if err := c.do(ctx, http.MethodPatch, "/api/comments/"+id.String(), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Delete(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/comments/"+id.String(), nil, nil)
}

func (c *Client) ListAdmin(ctx context.Context, filter AdminFilter) (*AdminView, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.PageSlug != "" {
		q.Set("page_slug", filter.PageSlug)
	}
	path := "/api/admin/comments"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out AdminView
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
