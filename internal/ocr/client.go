package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"regexp"
	"strings"
	"time"
)

// DefaultEndpoint is the fallback Tesseract OCR API endpoint
const DefaultEndpoint = "http://127.0.0.1:8000/ocr/file?lang=eng"

// expectedLength is how many captcha digits the RAR site uses
const expectedLength = 4

const requestTimeout = 15 * time.Second

var (
	nonDigitRe = regexp.MustCompile(`\D`)
	digitsRe   = regexp.MustCompile(`^\d{1,6}$`)
)

// APIError marks failures of the OCR service itself, as opposed to transport
// errors, so callers can tell the two apart.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

func newAPIError(format string, args ...interface{}) *APIError {
	return &APIError{Message: fmt.Sprintf(format, args...)}
}

// NormalizeEndpoint accepts either a full URL or a bare host/IP. A bare host
// is expanded to the conventional Tesseract API layout on port 8000.
func NormalizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultEndpoint
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return fmt.Sprintf("http://%s:8000/ocr/file?lang=eng", raw)
}

// Client calls an external Tesseract HTTP API to read captcha images.
// The endpoint is expected to return JSON like {"text": "1234", ...}.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Solve posts the captcha image to the OCR API and returns the recognized
// digits. The API answer is cleaned to digits; when more than 4 come back the
// first 4 are used since the RAR captcha is always 4 digits.
func (c *Client) Solve(ctx context.Context, image []byte) (string, error) {
	requestURL := c.endpoint
	if strings.Contains(requestURL, "?") {
		requestURL += fmt.Sprintf("&expected_length=%d", expectedLength)
	} else {
		requestURL += fmt.Sprintf("?expected_length=%d", expectedLength)
	}

	body, contentType, err := buildMultipartBody(image)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", newAPIError("OCR API request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return "", newAPIError("OCR API HTTP %d: %s", resp.StatusCode, string(snippet))
	}

	var data map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", newAPIError("OCR API returned invalid JSON: %v", err)
	}

	rawText := strings.TrimSpace(fmt.Sprint(data["text"]))
	if rawText == "" || rawText == "<nil>" {
		return "", newAPIError("OCR API returned empty text")
	}

	digits := nonDigitRe.ReplaceAllString(rawText, "")
	if !digitsRe.MatchString(digits) {
		return "", newAPIError("invalid captcha format from OCR API: raw=%q, digits=%q", rawText, digits)
	}

	if len(digits) >= expectedLength {
		digits = digits[:expectedLength]
	}

	return digits, nil
}

func buildMultipartBody(image []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="captcha.png"`)
	header.Set("Content-Type", "image/png")

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return &buf, writer.FormDataContentType(), nil
}
