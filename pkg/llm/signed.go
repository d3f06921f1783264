package llm

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body
const SignatureHeader = "X-Signature"

// SignedClient posts prompts to an HTTP endpoint, signing each body with a shared secret
type SignedClient struct {
	endpoint   string
	secret     string
	httpClient *resty.Client
}

type signedRequest struct {
	Contents   string     `json:"contents"`
	Parameters Parameters `json:"parameters"`
}

// NewSignedClient creates a client for the signed endpoint
func NewSignedClient(endpoint, secret string, timeout time.Duration) *SignedClient {
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)

	return &SignedClient{
		endpoint:   endpoint,
		secret:     secret,
		httpClient: client,
	}
}

// Name returns the backend name
func (c *SignedClient) Name() string {
	return BackendSigned
}

// Generate sends the prompt and returns the trimmed response body
func (c *SignedClient) Generate(ctx context.Context, contents string, params Parameters) (string, error) {
	body, err := encodeSignedRequest(contents, params)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(SignatureHeader, Sign(body, c.secret)).
		SetBody(body).
		Post(c.endpoint)

	if err != nil {
		return "", transportError(err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", transportError(fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode(), resp.String()))
	}

	return strings.TrimSpace(resp.String()), nil
}

// Sign returns the hex-encoded HMAC-SHA256 of body keyed by secret
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches body under secret
func VerifySignature(body []byte, secret, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// encodeSignedRequest marshals without HTML escaping so prompts keep <, > and & as typed
func encodeSignedRequest(contents string, params Parameters) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(signedRequest{Contents: contents, Parameters: params}); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
