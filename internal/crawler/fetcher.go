package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultUserAgent identifies the crawler to servers and robots.txt.
	DefaultUserAgent = "fisgon/1.0 (+https://github.com/nao1215/fisgon; metadata crawler)"

	// DefaultTimeout bounds a single request, body included.
	DefaultTimeout = 30 * time.Second

	// AcceptHeader is sent with every request.
	AcceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"

	// DefaultAcceptLanguage is sent with every request.
	DefaultAcceptLanguage = "es-ES,es;q=0.8,en-US;q=0.5,en;q=0.3"

	// ReasonTooLarge is recorded on items skipped because of their size.
	ReasonTooLarge = "File too large"
)

// OutcomeKind classifies the result of a fetch.
type OutcomeKind int

const (
	// OutcomeSuccess is a 200 response whose body was read.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeSkipped is a response that was not downloaded, e.g. too large.
	OutcomeSkipped
	// OutcomeHTTPFailure is any non-200 response. It is never retried.
	OutcomeHTTPFailure
	// OutcomeNetworkFailure is a transport error. It may be retried.
	OutcomeNetworkFailure
)

// String returns the outcome name used in logs.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeHTTPFailure:
		return "http_failure"
	case OutcomeNetworkFailure:
		return "network_failure"
	default:
		return "unknown"
	}
}

// Outcome is the result of fetching one URL.
type Outcome struct {
	Kind OutcomeKind

	// FinalURL is the URL of the last response after redirects.
	FinalURL string

	StatusCode   int
	ContentType  string
	ResponseTime time.Duration

	// Body is the raw response body. It is only set on success.
	Body []byte

	// Size is the number of body bytes, or the declared Content-Length
	// when the body was not read.
	Size int64

	// Reason is the message stored on the queue item for anything but success.
	Reason string

	// Err is the transport error of a network failure.
	Err error
}

// Fetcher performs the HTTP requests of a crawl.
type Fetcher struct {
	client         *http.Client
	userAgent      string
	acceptLanguage string
	cookie         string
	headers        map[string]string
	timeout        time.Duration
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithAcceptLanguage sets the Accept-Language header.
func WithAcceptLanguage(lang string) FetcherOption {
	return func(f *Fetcher) {
		f.acceptLanguage = lang
	}
}

// WithCookie sets the Cookie header, in "name=value; name2=value2" form.
func WithCookie(cookie string) FetcherOption {
	return func(f *Fetcher) {
		f.cookie = cookie
	}
}

// WithHeaders adds custom request headers.
func WithHeaders(headers map[string]string) FetcherOption {
	return func(f *Fetcher) {
		f.headers = headers
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewFetcher returns a Fetcher that sends requests through client.
// The client decides the egress (direct, SOCKS5 proxy or Tor).
func NewFetcher(client *http.Client, opts ...FetcherOption) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &Fetcher{
		client:         client,
		userAgent:      DefaultUserAgent,
		acceptLanguage: DefaultAcceptLanguage,
		timeout:        DefaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// UserAgent returns the User-Agent header value.
func (f *Fetcher) UserAgent() string {
	return f.userAgent
}

// Fetch downloads rawURL. Bodies larger than maxFileSize are not kept,
// whether the size is declared by Content-Length or only discovered while
// reading. With followRedirects false a 3xx response is returned as an
// HTTP failure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxFileSize int64, followRedirects bool) *Outcome {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	out := &Outcome{FinalURL: rawURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		out.Kind = OutcomeHTTPFailure
		out.Reason = fmt.Sprintf("invalid request: %v", err)
		return out
	}
	f.setHeaders(req)

	client := f.client
	if !followRedirects {
		noRedirect := *f.client
		noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
		client = &noRedirect
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		out.ResponseTime = time.Since(start)
		out.Kind = OutcomeNetworkFailure
		out.Err = err
		out.Reason = err.Error()
		return out
	}
	defer resp.Body.Close()

	out.StatusCode = resp.StatusCode
	out.ContentType = resp.Header.Get("Content-Type")
	if resp.Request != nil && resp.Request.URL != nil {
		out.FinalURL = resp.Request.URL.String()
	}

	if resp.StatusCode != http.StatusOK {
		out.ResponseTime = time.Since(start)
		out.Kind = OutcomeHTTPFailure
		out.Reason = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return out
	}

	if maxFileSize > 0 && resp.ContentLength > maxFileSize {
		out.ResponseTime = time.Since(start)
		out.Kind = OutcomeSkipped
		out.Size = resp.ContentLength
		out.Reason = ReasonTooLarge
		return out
	}

	var body io.Reader = resp.Body
	if maxFileSize > 0 {
		body = io.LimitReader(resp.Body, maxFileSize+1)
	}
	data, err := io.ReadAll(body)
	out.ResponseTime = time.Since(start)
	if err != nil {
		out.Kind = OutcomeNetworkFailure
		out.Err = err
		out.Reason = fmt.Sprintf("failed to read body: %v", err)
		return out
	}
	if maxFileSize > 0 && int64(len(data)) > maxFileSize {
		out.Kind = OutcomeSkipped
		out.Size = int64(len(data))
		out.Reason = ReasonTooLarge
		return out
	}

	out.Kind = OutcomeSuccess
	out.Body = data
	out.Size = int64(len(data))
	return out
}

func (f *Fetcher) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", AcceptHeader)
	if f.acceptLanguage != "" {
		req.Header.Set("Accept-Language", f.acceptLanguage)
	}
	if f.cookie != "" {
		req.Header.Set("Cookie", f.cookie)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}
}

// IsCanceled reports whether the outcome failed because ctx was canceled
// by the caller rather than because of the remote side.
func (o *Outcome) IsCanceled(ctx context.Context) bool {
	return o.Kind == OutcomeNetworkFailure && ctx.Err() != nil && errors.Is(o.Err, ctx.Err())
}

// IsHTML reports whether the response declares an HTML content type.
func (o *Outcome) IsHTML() bool {
	ct := strings.ToLower(o.ContentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}
