package rar

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public RAR lookup page
const DefaultBaseURL = "https://prog.rarom.ro/rarpol/rarpol.asp"

const (
	maxAttempts    = 3
	retryDelay     = 2 * time.Second
	requestTimeout = 30 * time.Second
	userAgent      = "Mozilla/5.0 (ITP Monitor)"
)

// CaptchaSolver turns a captcha image into its text. The OCR API client
// implements this.
type CaptchaSolver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// CaptchaSink receives every downloaded captcha image for debugging. Sinks are
// best-effort and must not fail the lookup.
type CaptchaSink interface {
	SaveCaptcha(ctx context.Context, vin string, attempt int, image []byte)
}

// LookupError reports a lookup given up on, with how many captcha rounds ran
// before that.
type LookupError struct {
	Attempts int
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Result is the outcome of one successful lookup round
type Result struct {
	Vin            string
	Status         string
	ExpirationDate string
	CheckedAt      time.Time
	Attempts       int
}

// Client performs VIN lookups against the RAR site, solving the captcha
// through the configured solver.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	solver      CaptchaSolver
	captchaSink CaptchaSink
}

func NewClient(baseURL string, solver CaptchaSolver, captchaSink CaptchaSink) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: requestTimeout},
		solver:      solver,
		captchaSink: captchaSink,
	}
}

// Lookup runs the full captcha round for a VIN, retrying up to 3 times when
// the captcha was misread or the site misbehaved.
func (c *Client) Lookup(ctx context.Context, vin string) (*Result, error) {
	log.Printf("starting ITP check for VIN %s", vin)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := c.lookupOnce(ctx, vin, attempt)
		if err == nil {
			result.Attempts = attempt
			return result, nil
		}

		lastErr = err
		log.Printf("attempt %d failed for VIN %s: %v", attempt, vin, err)

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, &LookupError{Attempts: attempt, Err: ctx.Err()}
			case <-time.After(retryDelay):
			}
		}
	}

	return nil, &LookupError{Attempts: maxAttempts, Err: lastErr}
}

func (c *Client) lookupOnce(ctx context.Context, vin string, attempt int) (*Result, error) {
	// 1) Load the initial page to get a captcha image and the form
	pageBody, err := c.getPage(ctx, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("initial request failed: %v", err)
	}

	page, err := parseLookupPage(pageBody)
	if err != nil {
		return nil, err
	}

	image, err := c.getBytes(ctx, c.resolveCaptchaURL(page.captchaSrc))
	if err != nil {
		return nil, fmt.Errorf("captcha download failed: %v", err)
	}

	if c.captchaSink != nil {
		c.captchaSink.SaveCaptcha(ctx, vin, attempt, image)
	}

	// 2) Solve the captcha through the OCR API
	captchaText, err := c.solver.Solve(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("captcha OCR failed: %v", err)
	}

	code := digitsOnly(captchaText)
	if !fourDigitRe.MatchString(code) {
		return nil, fmt.Errorf("invalid captcha output after cleaning: %q", code)
	}

	// 3) Build the form data from the real page form and submit it
	form := buildFormData(page, vin, code)
	resultBody, err := c.postForm(ctx, c.resolvePostURL(page.action), form)
	if err != nil {
		return nil, fmt.Errorf("form submission failed: %v", err)
	}

	// Wrong captcha means the server rejected our code, retry the whole round
	if isWrongCaptcha(resultBody) {
		return nil, fmt.Errorf("captcha validation failed on server (code used: %s)", code)
	}

	status, expirationDate := parseResult(resultBody)
	return &Result{
		Vin:            strings.ToUpper(strings.TrimSpace(vin)),
		Status:         status,
		ExpirationDate: expirationDate,
		CheckedAt:      time.Now(),
	}, nil
}

// resolveCaptchaURL resolves a possibly-relative captcha src against the
// directory of the lookup page
func (c *Client) resolveCaptchaURL(src string) string {
	if strings.HasPrefix(src, "http") {
		return src
	}

	base := c.baseURL
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[:idx+1]
	}
	return base + strings.TrimLeft(src, "/")
}

// resolvePostURL resolves the form action the same way a browser would:
// absolute URLs as-is, /rooted paths against the site root, bare names
// against the page directory, empty actions back to the page itself.
func (c *Client) resolvePostURL(action string) string {
	if strings.HasPrefix(action, "http") {
		return action
	}

	action = strings.SplitN(action, "#", 2)[0]
	if action == "" {
		return c.baseURL
	}

	if strings.HasPrefix(action, "/") {
		return c.siteRoot() + action
	}

	baseDir := c.baseURL
	if idx := strings.LastIndex(baseDir, "/"); idx >= 0 {
		baseDir = baseDir[:idx]
	}
	return baseDir + "/" + action
}

func (c *Client) siteRoot() string {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL
	}
	return parsed.Scheme + "://" + parsed.Host
}

func (c *Client) getPage(ctx context.Context, pageURL string) (string, error) {
	body, err := c.getBytes(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) getBytes(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, requestURL)
	}

	return io.ReadAll(resp.Body)
}

func (c *Client) postForm(ctx context.Context, postURL string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, postURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", c.baseURL)
	req.Header.Set("Origin", c.siteRoot())
}
