// Package blossom implements the client side of the Blossom blob storage
// protocol: authenticated uploads, downloads by content hash, and the
// kind-24242 authorization events servers expect.
package blossom

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// KindUploadAuth is the nostr event kind for blossom authorization events.
const KindUploadAuth = 24242

// authTTL is how long an upload authorization stays valid.
const authTTL = 10 * time.Minute

// maxErrorBody caps how much of an error response body is kept for the
// error message.
const maxErrorBody = 512

// Descriptor is a server's record of a stored blob.
type Descriptor struct {
	URL      string `json:"url"`
	SHA256   string `json:"sha256"`
	Size     int64  `json:"size"`
	Type     string `json:"type,omitempty"`
	Uploaded int64  `json:"uploaded"`
}

// Signer signs an authorization event, filling in its ID, pubkey and
// signature.
type Signer interface {
	Sign(ctx context.Context, ev *nostr.Event) error
}

// Client talks to blossom storage servers over HTTP.
type Client struct {
	http *http.Client
	now  func() time.Time
}

// NewClient creates a Client. A nil httpClient uses a default with a
// one-minute timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Minute}
	}
	return &Client{http: httpClient, now: time.Now}
}

// SHA256Hex returns the content hash of data as a lowercase hex string.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CreateUploadAuth builds and signs an authorization event covering the
// given blob, and returns it encoded as a header token. One token covers
// the blob on every server.
func (c *Client) CreateUploadAuth(ctx context.Context, signer Signer, data []byte, message string) (string, error) {
	now := c.now()
	ev := &nostr.Event{
		Kind:      KindUploadAuth,
		CreatedAt: nostr.Timestamp(now.Unix()),
		Content:   message,
		Tags: nostr.Tags{
			nostr.Tag{"t", "upload"},
			nostr.Tag{"x", SHA256Hex(data)},
			nostr.Tag{"expiration", strconv.FormatInt(now.Add(authTTL).Unix(), 10)},
		},
	}
	if err := signer.Sign(ctx, ev); err != nil {
		return "", fmt.Errorf("signing upload auth: %w", err)
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("encoding upload auth: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Upload PUTs a blob to a single server and returns the server's
// descriptor for it.
func (c *Client) Upload(ctx context.Context, server string, data []byte, contentType, auth string) (*Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, serverURL(server, "upload"), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth != "" {
		req.Header.Set("Authorization", "Nostr "+auth)
	}
	req.Header.Set("X-SHA-256", SHA256Hex(data))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uploading to %s: %w", server, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpError("upload", server, resp)
	}

	var desc Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return nil, fmt.Errorf("decoding upload response from %s: %w", server, err)
	}
	return &desc, nil
}

// Download GETs a blob by its content hash from a single server.
func (c *Client) Download(ctx context.Context, server, sha256 string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL(server, sha256), nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading from %s: %w", server, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpError("download", server, resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading blob from %s: %w", server, err)
	}
	return data, nil
}

// Has reports whether a server already stores the blob.
func (c *Client) Has(ctx context.Context, server, sha256 string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, serverURL(server, sha256), nil)
	if err != nil {
		return false, fmt.Errorf("building head request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", server, err)
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("checking %s: unexpected status %s", server, resp.Status)
	}
}

func serverURL(server, path string) string {
	return strings.TrimSuffix(server, "/") + "/" + path
}

func httpError(op, server string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if reason := resp.Header.Get("X-Reason"); reason != "" {
		msg = reason
	}
	if msg == "" {
		return fmt.Errorf("%s from %s failed: %s", op, server, resp.Status)
	}
	return fmt.Errorf("%s from %s failed: %s: %s", op, server, resp.Status, msg)
}
