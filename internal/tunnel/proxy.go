package tunnel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/gdrv-gateway/internal/errors"
	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	"github.com/dl-alexandre/gdrv-gateway/internal/types"
	"github.com/dl-alexandre/gdrv-gateway/internal/utils"
)

// Authorizer attaches the service credential to outgoing headers
type Authorizer interface {
	Apply(ctx context.Context, h http.Header) error
}

// rejecter is implemented by authorizers that cache credentials and can drop
// one the upstream refused
type rejecter interface {
	Reject(h http.Header)
}

// Options configures a Proxy
type Options struct {
	// AllowedHosts are host suffixes the credential may be sent to. An entry
	// starting with "." matches subdomains; "*" allows any host. Empty
	// means "*".
	AllowedHosts []string
	// Timeout bounds each upstream request; 0 disables it
	Timeout time.Duration
	// Client is the HTTP client used upstream; nil uses a default client
	Client *http.Client
}

// Proxy performs authenticated GETs against backend-hosted URLs and
// relays the response unchanged
type Proxy struct {
	auth    Authorizer
	client  *http.Client
	allowed []string
	timeout time.Duration
	logger  logging.Logger
}

// Response is a fully buffered upstream response
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// NewProxy creates a tunnel proxy
func NewProxy(auth Authorizer, opts Options, logger logging.Logger) *Proxy {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	p := &Proxy{
		auth:    auth,
		allowed: opts.AllowedHosts,
		timeout: opts.Timeout,
		logger:  logger,
	}

	client := &http.Client{}
	if opts.Client != nil {
		*client = *opts.Client
	}
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("stopped after 10 redirects")
		}
		if !p.HostAllowed(req.URL.Hostname()) {
			return fmt.Errorf("redirect to disallowed host %s", req.URL.Hostname())
		}
		return nil
	}
	p.client = client
	return p
}

// HostAllowed reports whether the credential may be sent to host
func (p *Proxy) HostAllowed(host string) bool {
	if len(p.allowed) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, entry := range p.allowed {
		entry = strings.ToLower(strings.TrimSpace(entry))
		switch {
		case entry == "*":
			return true
		case strings.HasPrefix(entry, "."):
			if strings.HasSuffix(host, entry) || host == entry[1:] {
				return true
			}
		case host == entry:
			return true
		}
	}
	return false
}

// ValidateURL parses rawURL and checks it may be tunneled
func (p *Proxy) ValidateURL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, utils.InvalidArgument("url parameter is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, utils.InvalidArgument(fmt.Sprintf("invalid url: %v", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, utils.InvalidArgument("url must be an absolute http or https URL")
	}
	if u.Host == "" {
		return nil, utils.InvalidArgument("url must include a host")
	}
	if !p.HostAllowed(u.Hostname()) {
		return nil, utils.NewAppError(utils.NewGatewayError(utils.ErrCodePermissionDenied,
			"host is not allowed for tunneling").
			WithHTTPStatus(http.StatusForbidden).
			WithContext("host", u.Hostname()).
			Build())
	}
	return u, nil
}

// open issues the upstream request. The caller must close the body of a
// non-nil response.
func (p *Proxy) open(ctx context.Context, reqCtx *types.RequestContext, rawURL string) (*http.Response, error) {
	u, err := p.ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, utils.InternalError(err)
	}
	if err := p.auth.Apply(ctx, req.Header); err != nil {
		return nil, errors.ClassifyGoogleAPIError("tunnel", err, reqCtx, p.logger)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.ClassifyGoogleAPIError("tunnel", err, reqCtx, p.logger)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		if resp.StatusCode == http.StatusUnauthorized {
			if r, ok := p.auth.(rejecter); ok {
				r.Reject(req.Header)
			}
		}
		reason := reasonPhrase(resp)
		p.logger.Warn("Tunnel upstream error",
			logging.F("traceId", reqCtx.TraceID),
			logging.F("host", u.Hostname()),
			logging.F("status", resp.StatusCode),
			logging.F("reason", reason),
		)
		return nil, utils.NewAppError(utils.NewGatewayError(utils.ErrCodeUpstreamError,
			fmt.Sprintf("upstream returned %d %s", resp.StatusCode, reason)).
			WithHTTPStatus(resp.StatusCode).
			WithReason(reason).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("host", u.Hostname()).
			Build())
	}
	return resp, nil
}

func (p *Proxy) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}

// Fetch performs an authenticated GET and buffers the whole response
func (p *Proxy) Fetch(ctx context.Context, reqCtx *types.RequestContext, rawURL string) (*Response, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.open(ctx, reqCtx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ClassifyGoogleAPIError("tunnel", err, reqCtx, p.logger)
	}

	return &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Relay performs an authenticated GET and streams the body to w. Errors
// before the first byte is written are returned for the caller to report;
// a non-nil error after that means w holds a truncated body.
func (p *Proxy) Relay(ctx context.Context, reqCtx *types.RequestContext, rawURL string, w http.ResponseWriter) (int64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.open(ctx, reqCtx, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		// A nil entry stops net/http from sniffing a type the upstream never sent.
		w.Header()["Content-Type"] = nil
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	w.WriteHeader(resp.StatusCode)

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &RelayError{Written: n, Err: err}
	}
	return n, nil
}

// RelayError reports a failure after the response was committed
type RelayError struct {
	Written int64
	Err     error
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay interrupted after %d bytes: %v", e.Written, e.Err)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

func reasonPhrase(resp *http.Response) string {
	if reason := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); reason != "" && reason != resp.Status {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}
