package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	tokenRefreshBuffer = 5 * time.Minute
	refreshKey         = "token"
)

// AuthContext holds the process-wide service credential. Valid tokens are
// read concurrently; an expiring token is refreshed by exactly one caller
// while the others wait for its result.
type AuthContext struct {
	source oauth2.TokenSource
	logger logging.Logger
	buffer time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	token *oauth2.Token
	group singleflight.Group
}

// Option configures an AuthContext
type Option func(*AuthContext)

// WithRefreshBuffer sets how long before expiry a token is considered stale
func WithRefreshBuffer(d time.Duration) Option {
	return func(a *AuthContext) {
		a.buffer = d
	}
}

// WithClock replaces the time source, for tests
func WithClock(now func() time.Time) Option {
	return func(a *AuthContext) {
		a.now = now
	}
}

// NewAuthContext wraps a token source. No token is fetched until the first
// call to Token, Apply or Prime.
func NewAuthContext(source oauth2.TokenSource, logger logging.Logger, opts ...Option) *AuthContext {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	a := &AuthContext{
		source: source,
		logger: logger,
		buffer: tokenRefreshBuffer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NeedsRefresh reports whether tok must be replaced before use
func (a *AuthContext) NeedsRefresh(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return true
	}
	if tok.Expiry.IsZero() {
		return false
	}
	return a.now().Add(a.buffer).After(tok.Expiry)
}

// Token returns a valid access token, refreshing it if necessary
func (a *AuthContext) Token(ctx context.Context) (*oauth2.Token, error) {
	a.mu.RLock()
	tok := a.token
	a.mu.RUnlock()

	if !a.NeedsRefresh(tok) {
		return tok, nil
	}
	return a.refresh(ctx, false)
}

// Prime forces a refresh so startup fails fast on a bad credential
func (a *AuthContext) Prime(ctx context.Context) error {
	if _, err := a.refresh(ctx, true); err != nil {
		return err
	}
	return nil
}

// Invalidate drops the cached token if it is still accessToken, so the next
// call refreshes. A token that has already been replaced is left alone.
func (a *AuthContext) Invalidate(accessToken string) {
	a.mu.Lock()
	dropped := a.token != nil && a.token.AccessToken == accessToken
	if dropped {
		a.token = nil
	}
	a.mu.Unlock()

	if dropped {
		a.logger.Warn("Credential rejected by backend, dropping cached token")
	}
}

// Reject invalidates the token carried in an Authorization header that the
// backend answered with 401
func (a *AuthContext) Reject(h http.Header) {
	_, tok, ok := strings.Cut(h.Get("Authorization"), " ")
	if !ok || tok == "" {
		return
	}
	a.Invalidate(tok)
}

func (a *AuthContext) refresh(ctx context.Context, force bool) (*oauth2.Token, error) {
	ch := a.group.DoChan(refreshKey, func() (interface{}, error) {
		a.mu.RLock()
		current := a.token
		a.mu.RUnlock()

		// Another flight may have finished between the caller's check and now.
		if !force && !a.NeedsRefresh(current) {
			return current, nil
		}

		start := a.now()
		tok, err := a.source.Token()
		if err != nil {
			a.logger.Error("Credential refresh failed", logging.F("error", err.Error()))
			return nil, fmt.Errorf("failed to refresh service credential: %w", err)
		}
		if tok == nil || tok.AccessToken == "" {
			return nil, fmt.Errorf("failed to refresh service credential: empty access token")
		}

		a.mu.Lock()
		a.token = tok
		a.mu.Unlock()

		if current == nil || current.AccessToken != tok.AccessToken {
			a.logger.Debug("Credential refreshed",
				logging.F("expiry", tok.Expiry.Format(time.RFC3339)),
				logging.F("elapsed", a.now().Sub(start).String()),
			)
		}
		return tok, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Apply sets the Authorization header on h
func (a *AuthContext) Apply(ctx context.Context, h http.Header) error {
	tok, err := a.Token(ctx)
	if err != nil {
		return err
	}
	h.Set("Authorization", tok.Type()+" "+tok.AccessToken)
	return nil
}

// TokenSource adapts the AuthContext to oauth2.TokenSource, bound to ctx
func (a *AuthContext) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &contextTokenSource{ctx: ctx, auth: a}
}

type contextTokenSource struct {
	ctx  context.Context
	auth *AuthContext
}

func (s *contextTokenSource) Token() (*oauth2.Token, error) {
	return s.auth.Token(s.ctx)
}

// HTTPClient returns a client that authenticates every request. A nil base
// uses http.DefaultTransport.
func (a *AuthContext) HTTPClient(base *http.Client) *http.Client {
	var transport http.RoundTripper = http.DefaultTransport
	client := &http.Client{}
	if base != nil {
		*client = *base
		if base.Transport != nil {
			transport = base.Transport
		}
	}
	client.Transport = &oauth2.Transport{
		Source: a.TokenSource(context.Background()),
		Base:   &rejectTransport{base: transport, auth: a},
	}
	return client
}

// rejectTransport sits below oauth2.Transport so it sees the header that
// was actually sent
type rejectTransport struct {
	base http.RoundTripper
	auth *AuthContext
}

func (t *rejectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		t.auth.Reject(req.Header)
	}
	return resp, err
}
