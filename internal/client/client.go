// Package client talks to the security-services API over HTTP. It implements
// the task and routing-rule backends so the workflow engine can run against a
// remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/secops-portal/backend/internal/models"
)

const adminKeyHeader = "X-Admin-Key"

type Client struct {
	BaseURL  string
	AdminKey string
	HTTP     *http.Client
}

func New(baseURL, adminKey string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		AdminKey: adminKey,
		HTTP:     &http.Client{Timeout: 15 * time.Second},
	}
}

// RemoteError is a failure reported by the server, either through a non-2xx
// response or through an error envelope.
type RemoteError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return strings.ToLower(strings.ReplaceAll(e.Code, "_", " "))
	}
	return fmt.Sprintf("remote error (status %d)", e.Status)
}

func (e *RemoteError) BackendMessage() string {
	return e.Message
}

// Is maps server error codes onto the model sentinels so callers can use
// errors.Is regardless of which backend they talk to.
func (e *RemoteError) Is(target error) bool {
	switch e.Code {
	case "NOT_FOUND":
		return target == models.ErrNotFound
	case "CLAIM_CONFLICT":
		return target == models.ErrClaimConflict
	case "INVALID_TRANSITION":
		return target == models.ErrInvalidTransition
	case "NOT_ELIGIBLE":
		return target == models.ErrNotEligible
	case "AUTO_ASSIGN_DISABLED":
		return target == models.ErrAutoAssignDisabled
	case "NO_AVAILABLE_AGENT":
		return target == models.ErrNoAvailableAgent
	}
	return false
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error json.RawMessage `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: 15 * time.Second}
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.AdminKey != "" {
		req.Header.Set(adminKeyHeader, c.AdminKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if remote := parseError(resp.StatusCode, raw); remote != nil {
		return nil, remote
	}
	return raw, nil
}

// parseError returns a RemoteError for non-2xx responses and for 2xx
// responses that carry an error envelope.
func parseError(status int, raw []byte) *RemoteError {
	var env envelope
	_ = json.Unmarshal(raw, &env)

	ok := status >= 200 && status < 300
	hasError := len(env.Error) > 0 && string(env.Error) != "null"
	if ok && !hasError {
		return nil
	}

	remote := &RemoteError{Status: status}
	if hasError {
		var body errorBody
		if err := json.Unmarshal(env.Error, &body); err == nil {
			remote.Code, remote.Message, remote.Details = body.Code, body.Message, body.Details
		} else {
			var msg string
			if err := json.Unmarshal(env.Error, &msg); err == nil {
				remote.Message = msg
			}
		}
	}
	if remote.Code == "" {
		remote.Code = codeForStatus(status)
	}
	return remote
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CLAIM_CONFLICT"
	case http.StatusForbidden:
		return "NOT_ELIGIBLE"
	case http.StatusBadRequest:
		return "VALIDATION_ERROR"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	}
	return ""
}

// decodeData unwraps a {"data": ...} envelope when present and decodes the
// payload into out.
func decodeData(raw []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		raw = env.Data
	}
	return json.Unmarshal(raw, out)
}

// CoerceRequests turns a list response into requests. It accepts a bare JSON
// array or a {"data": [...]} envelope; anything else yields an empty list.
func CoerceRequests(raw []byte) []models.Request {
	out := []models.Request{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return out
	}
	if trimmed[0] == '{' {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return out
		}
		trimmed = bytes.TrimSpace(env.Data)
	}
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return out
	}
	var list []models.Request
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return out
	}
	for i := range list {
		if list[i].Comments == nil {
			list[i].Comments = []models.Comment{}
		}
	}
	return append(out, list...)
}

func escape(v string) string {
	return url.PathEscape(v)
}

func isNull(raw []byte) bool {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}
	data := bytes.TrimSpace(env.Data)
	return len(data) == 0 || bytes.Equal(data, []byte("null"))
}

var errEmptyAgent = errors.New("next-agent response without agent id")
