// Package backend is the HTTP client for the contract backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"pactline/internal/domain"
)

const DefaultBaseURL = "http://127.0.0.1:8000"

var (
	ErrUnauthorized     = errors.New("backend rejected credentials")
	ErrNoVersion        = errors.New("no version id to target")
	ErrMissingContract  = errors.New("contract id required")
	ErrEmptyUpload      = errors.New("upload file is empty")
	ErrMalformedPayload = errors.New("malformed backend payload")
)

// Client talks to the contract backend with a bearer token.
type Client struct {
	BaseURL       string
	BearerToken   string
	HTTPClient    *http.Client
	Timeout       time.Duration
	UploadTimeout time.Duration
}

func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:       baseURL,
		BearerToken:   token,
		Timeout:       10 * time.Second,
		UploadTimeout: 2 * time.Minute,
	}
}

// APIError wraps non-2xx responses. Detail is the "detail" field of the error body
// when the backend sends one.
type APIError struct {
	StatusCode int
	Body       string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error: status=%d detail=%s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// WithToken returns a copy of the client that sends token instead.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.BearerToken = token
	return &cp
}

// ListContracts returns the caller's contracts, optionally filtered by status.
func (c *Client) ListContracts(ctx context.Context, status domain.ContractStatus) ([]domain.Contract, error) {
	endpoint := "contracts/me"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(string(status))
	}
	var resp struct {
		Contracts []domain.Contract `json:"contracts"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, "", &resp); err != nil {
		return nil, err
	}
	if resp.Contracts == nil {
		resp.Contracts = []domain.Contract{}
	}
	return resp.Contracts, nil
}

// GetContract fetches a contract with its versions, participants and task board.
func (c *Client) GetContract(ctx context.Context, contractID string) (domain.ContractDetail, error) {
	if contractID == "" {
		return domain.ContractDetail{}, ErrMissingContract
	}
	var resp domain.ContractDetail
	if err := c.do(ctx, http.MethodGet, "contracts/"+url.PathEscape(contractID), nil, "", &resp); err != nil {
		return domain.ContractDetail{}, err
	}
	if resp.ID == "" {
		return domain.ContractDetail{}, fmt.Errorf("%w: contract without id", ErrMalformedPayload)
	}
	if resp.AITasks == nil {
		resp.AITasks = map[string]domain.VersionTasks{}
	}
	return resp, nil
}

// CreateVersion uploads a document as a new version. The backend assigns the number.
func (c *Client) CreateVersion(ctx context.Context, contractID, filename string, content []byte) (domain.ContractVersion, error) {
	if contractID == "" {
		return domain.ContractVersion{}, ErrMissingContract
	}
	if len(content) == 0 {
		return domain.ContractVersion{}, ErrEmptyUpload
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	hdr.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return domain.ContractVersion{}, err
	}
	if _, err := part.Write(content); err != nil {
		return domain.ContractVersion{}, err
	}
	if err := mw.Close(); err != nil {
		return domain.ContractVersion{}, err
	}

	if c.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.UploadTimeout)
		defer cancel()
	}
	var resp domain.ContractVersion
	endpoint := fmt.Sprintf("contracts/%s/versions", url.PathEscape(contractID))
	if err := c.do(ctx, http.MethodPost, endpoint, &body, mw.FormDataContentType(), &resp); err != nil {
		return domain.ContractVersion{}, err
	}
	if resp.ID == "" || resp.Number <= 0 {
		return domain.ContractVersion{}, fmt.Errorf("%w: version without id or number", ErrMalformedPayload)
	}
	return resp, nil
}

// Ask sends a chat question grounded on one version.
func (c *Client) Ask(ctx context.Context, contractID, versionID, text string) (domain.ChatAnswer, error) {
	if contractID == "" {
		return domain.ChatAnswer{}, ErrMissingContract
	}
	if versionID == "" {
		return domain.ChatAnswer{}, ErrNoVersion
	}
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return domain.ChatAnswer{}, err
	}
	var resp domain.ChatAnswer
	endpoint := fmt.Sprintf("contracts/%s/versions/%s/chat", url.PathEscape(contractID), url.PathEscape(versionID))
	if err := c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(payload), "application/json", &resp); err != nil {
		return domain.ChatAnswer{}, err
	}
	if resp.Citations == nil {
		resp.Citations = []domain.Citation{}
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	// Uploads set their own deadline; everything else gets the request timeout.
	if _, ok := ctx.Deadline(); !ok && c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		slog.WarnContext(ctx, "backend request failed", "method", method, "path", endpoint, "request_id", requestID, "error", err)
		return err
	}
	defer resp.Body.Close()
	slog.DebugContext(ctx, "backend request", "method", method, "path", endpoint, "status", resp.StatusCode,
		"request_id", requestID, "duration", time.Since(start))
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b), Detail: errorDetail(b)}
		slog.WarnContext(ctx, "backend error", "method", method, "path", endpoint, "status", resp.StatusCode, "request_id", requestID)
		return apiErr
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	}
	return nil
}

// errorDetail extracts {"detail": "..."}; structured details are returned as JSON.
func errorDetail(body []byte) string {
	var env struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &env) != nil || len(env.Detail) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(env.Detail, &s) == nil {
		return s
	}
	return string(env.Detail)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
