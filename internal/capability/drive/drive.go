// Package drive implements the platform capability against the Google Drive
// v3 REST API. Each governance action maps to one logical Drive mutation;
// visibility changes may take several permission calls but are reported to
// the engine as a single outcome.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"custodian/internal/execution"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/circuit"
)

const defaultBaseURL = "https://www.googleapis.com/drive/v3"

// Client calls the Drive API with caller-supplied OAuth access tokens. One
// client serves all users; per-call credentials arrive with each request.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *circuit.Breaker
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Client) {
		d.httpClient = c
	}
}

func WithBaseURL(u string) Option {
	return func(d *Client) {
		d.baseURL = u
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Client) {
		d.logger = logger
	}
}

func New(opts ...Option) *Client {
	d := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		breaker:    circuit.New("drive"),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Delete removes the file permanently, bypassing the trash.
func (d *Client) Delete(ctx context.Context, creds execution.Credentials, fileID string) error {
	return d.do(ctx, creds, http.MethodDelete, "/files/"+url.PathEscape(fileID), nil, nil)
}

// ChangeVisibility adjusts link sharing. Public and domain visibility create
// a reader permission of the matching type; private removes every link-style
// permission currently on the file.
func (d *Client) ChangeVisibility(ctx context.Context, creds execution.Credentials, fileID string, visibility id.Visibility) error {
	path := "/files/" + url.PathEscape(fileID) + "/permissions"

	switch visibility {
	case id.VisibilityPublic:
		body := map[string]string{"role": "reader", "type": "anyone"}
		return d.do(ctx, creds, http.MethodPost, path, body, nil)
	case id.VisibilityDomain:
		body := map[string]string{"role": "reader", "type": "domain"}
		return d.do(ctx, creds, http.MethodPost, path, body, nil)
	case id.VisibilityPrivate:
		perms, err := d.listLinkPermissions(ctx, creds, fileID)
		if err != nil {
			return err
		}
		for _, p := range perms {
			if err := d.do(ctx, creds, http.MethodDelete, path+"/"+url.PathEscape(p.ID), nil, nil); err != nil {
				return err
			}
		}
		return nil
	default:
		return execution.NewPlatformError("unsupported visibility: "+visibility.String(), nil)
	}
}

// RemovePermission deletes one permission from the file.
func (d *Client) RemovePermission(ctx context.Context, creds execution.Credentials, fileID, permissionID string) error {
	path := "/files/" + url.PathEscape(fileID) + "/permissions/" + url.PathEscape(permissionID)
	return d.do(ctx, creds, http.MethodDelete, path, nil, nil)
}

// TransferOwnership grants the new owner the owner role. Drive requires the
// transferOwnership flag when creating an owner permission.
func (d *Client) TransferOwnership(ctx context.Context, creds execution.Credentials, fileID, newOwnerEmail string) error {
	path := "/files/" + url.PathEscape(fileID) + "/permissions?transferOwnership=true"
	body := map[string]string{
		"role":         "owner",
		"type":         "user",
		"emailAddress": newOwnerEmail,
	}
	return d.do(ctx, creds, http.MethodPost, path, body, nil)
}

type permission struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type permissionList struct {
	Permissions []permission `json:"permissions"`
}

func (d *Client) listLinkPermissions(ctx context.Context, creds execution.Credentials, fileID string) ([]permission, error) {
	var list permissionList
	path := "/files/" + url.PathEscape(fileID) + "/permissions?fields=permissions(id,type)"
	if err := d.do(ctx, creds, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	var link []permission
	for _, p := range list.Permissions {
		if p.Type == "anyone" || p.Type == "domain" {
			link = append(link, p)
		}
	}
	return link, nil
}

// driveError is the error envelope Drive returns on non-2xx responses.
type driveError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (d *Client) do(ctx context.Context, creds execution.Credentials, method, path string, body any, out any) error {
	if d.breaker.IsOpen() {
		return execution.NewPlatformError("drive is unavailable", nil)
	}

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return execution.NewPlatformError("encode drive request", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reqBody)
	if err != nil {
		return execution.NewPlatformError("build drive request", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.recordFailure(method, path)
		return execution.NewPlatformError("drive request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		d.recordFailure(method, path)
	} else {
		d.breaker.RecordSuccess()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return execution.NewPlatformError(d.errorMessage(resp), nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return execution.NewPlatformError("decode drive response", err)
		}
	}
	return nil
}

func (d *Client) recordFailure(method, path string) {
	if _, change := d.breaker.RecordFailure(); change.Opened {
		d.logger.Warn("drive circuit opened",
			"method", method,
			"path", path,
		)
	}
}

func (d *Client) errorMessage(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil {
		var de driveError
		if json.Unmarshal(raw, &de) == nil && de.Error.Message != "" {
			return fmt.Sprintf("drive: %s (status %d)", de.Error.Message, resp.StatusCode)
		}
	}
	return fmt.Sprintf("drive: unexpected status %d", resp.StatusCode)
}
