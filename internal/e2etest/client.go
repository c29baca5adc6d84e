package e2etest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/justinas/nosurf"
	"github.com/potholemap/potholemap/internal/errors"
)

// Client is a cookie-keeping HTTP client for driving the web application like a browser would.
type Client struct {
	client *http.Client
	url    string
}

// NewClient creates a client for the application served at url.
func NewClient(url string) (*Client, error) {
	jar, err := newUnsafeCookieJar()
	if err != nil {
		return nil, errors.Wrap(err, "create unsafe cookie jar")
	}
	return &Client{
		client: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second, //nolint:mnd // 30 seconds
		},
		url: url,
	}, nil
}

// URL returns the base URL of the application.
func (c *Client) URL() string {
	return c.url
}

// WaitForReady calls the specified endpoint until it gets a HTTP 200 Success
// response or until the context is cancelled or the 1-second timeout is reached.
func (c *Client) WaitForReady(ctx context.Context, urlPath string) error {
	timeout := 1 * time.Second
	startTime := time.Now()
	var (
		err  error
		req  *http.Request
		resp *http.Response
	)
	for {
		if req, err = http.NewRequestWithContext(
			ctx,
			http.MethodGet,
			c.url+urlPath,
			nil,
		); err != nil {
			return errors.Wrap(err, "create request")
		}

		if resp, err = c.client.Do(req); err == nil {
			if resp.StatusCode == http.StatusOK {
				if err = resp.Body.Close(); err != nil {
					return errors.Wrap(err, "close response body")
				}
				return nil
			}
			if err = resp.Body.Close(); err != nil {
				return errors.Wrap(err, "close response body")
			}
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "context cancelled")
		default:
			if time.Since(startTime) >= timeout {
				return errors.New("timeout waiting for endpoint to be ready")
			}
			time.Sleep(100 * time.Millisecond) //nolint:mnd // 100ms
		}
	}
}

// Get fetches a URL and returns the response.
func (c *Client) Get(ctx context.Context, urlPath string) (*http.Response, error) {
	var (
		err  error
		req  *http.Request
		resp *http.Response
	)
	if req, err = c.newRequestWithContext(ctx, http.MethodGet, urlPath, nil); err != nil {
		return nil, errors.Wrap(err, "create request with context")
	}
	if resp, err = c.client.Do(req); err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	return resp, nil
}

// GetDoc fetches a URL and returns a goquery document.
func (c *Client) GetDoc(ctx context.Context, urlPath string) (*goquery.Document, error) {
	var (
		err  error
		resp *http.Response
	)
	if resp, err = c.Get(ctx, urlPath); err != nil {
		return nil, errors.Wrap(err, "client get")
	}
	return readDoc(resp, http.StatusOK)
}

// HxGetDoc fetches a partial the way htmx does and returns it as a goquery document.
func (c *Client) HxGetDoc(ctx context.Context, urlPath string) (*goquery.Document, error) {
	var (
		err  error
		req  *http.Request
		resp *http.Response
	)
	if req, err = c.newRequestWithContext(ctx, http.MethodGet, urlPath, nil); err != nil {
		return nil, errors.Wrap(err, "new request with context")
	}
	req.Header.Set("HX-Request", "true")
	if resp, err = c.client.Do(req); err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	return readDoc(resp, http.StatusOK)
}

// newRequestWithContext creates a new HTTP request to the server that respects the given context.
func (c *Client) newRequestWithContext(
	ctx context.Context,
	method, urlPath string,
	body io.Reader,
) (*http.Request, error) {
	var (
		req *http.Request
		err error
	)
	if req, err = http.NewRequestWithContext(ctx, method, c.url+urlPath, body); err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	return req, nil
}

// ExtractCSRFToken returns the CSRF token of the form posting to formActionURLPath.
func ExtractCSRFToken(doc *goquery.Document, formActionURLPath string) (string, error) {
	formSelector := fmt.Sprintf("form[action='%s']", formActionURLPath)
	form := doc.Find(formSelector)
	if form.Length() == 0 {
		return "", errors.New("form not found", slog.String("selector", formSelector))
	}
	csrfToken, ok := form.First().Find("input[name=csrf_token]").Attr("value")
	if !ok {
		return "", errors.New("csrf_token not found in form", slog.String("selector", formSelector))
	}
	return csrfToken, nil
}

// SubmitForm submits the form with action formActionURLPath found in doc and returns the response document. The
// redirect after a successful post is followed.
func (c *Client) SubmitForm(
	ctx context.Context,
	doc *goquery.Document,
	formActionURLPath string,
	fields neturl.Values,
) (*goquery.Document, error) {
	csrfToken, err := ExtractCSRFToken(doc, formActionURLPath)
	if err != nil {
		return nil, errors.Wrap(err, "extract CSRF token")
	}

	formData := neturl.Values{}
	for key, values := range fields {
		formData[key] = values
	}
	formData.Set("csrf_token", csrfToken)

	var resp *http.Response
	if resp, err = c.PostForm(ctx, formActionURLPath, formData, nil); err != nil {
		return nil, errors.Wrap(err, "post form")
	}
	return readDoc(resp, http.StatusOK)
}

// HxPost posts formData like htmx does: the CSRF token travels in a header and the response is a partial.
func (c *Client) HxPost(
	ctx context.Context,
	urlPath string,
	csrfToken string,
	formData neturl.Values,
) (*http.Response, error) {
	header := http.Header{}
	header.Set("HX-Request", "true")
	header.Set(nosurf.HeaderName, csrfToken)
	return c.PostForm(ctx, urlPath, formData, header)
}

// PostForm posts url-encoded formData with the extra header.
func (c *Client) PostForm(
	ctx context.Context,
	urlPath string,
	formData neturl.Values,
	header http.Header,
) (*http.Response, error) {
	req, err := c.newRequestWithContext(ctx, http.MethodPost, urlPath, strings.NewReader(formData.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "new request with context")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	var resp *http.Response
	if resp, err = c.client.Do(req); err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	return resp, nil
}

// PollDoc fetches urlPath until match accepts the document or ctx is done.
func (c *Client) PollDoc(
	ctx context.Context,
	urlPath string,
	match func(*goquery.Document) bool,
) (*goquery.Document, error) {
	for {
		doc, err := c.GetDoc(ctx, urlPath)
		if err != nil {
			return nil, errors.Wrap(err, "get document")
		}
		if match(doc) {
			return doc, nil
		}
		select {
		case <-ctx.Done():
			return doc, errors.Wrap(ctx.Err(), "poll document", slog.String("path", urlPath))
		case <-time.After(50 * time.Millisecond): //nolint:mnd // 50ms
		}
	}
}

func readDoc(resp *http.Response, wantStatus int) (*goquery.Document, error) {
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != wantStatus {
		return nil, errors.New("unexpected status code", slog.Int("status", resp.StatusCode),
			slog.String("url", resp.Request.URL.String()))
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "create document from reader")
	}
	return doc, nil
}
