package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"
)

// Header and cookie names understood by the server.
const (
	HeaderAccessToken  = "x-access-token"
	HeaderCSRF         = "X-XSRF-TOKEN"
	CookieCSRF         = "XSRF-TOKEN"
	CookieRefreshToken = "refreshToken"
)

const (
	defaultRefreshPath = "/auth/token/refresh"
	defaultLogoutPath  = "/auth/token/logout"
	defaultTimeout     = 30 * time.Second
)

// ErrSessionTerminated is returned to every caller waiting on a refresh that
// failed. The client has logged out by the time it is returned.
var ErrSessionTerminated = errors.New("client: session terminated")

// Error is a non-2xx answer decoded from the server's error envelope.
type Error struct {
	Status    int
	Code      string
	Message   string
	RequestID string
	Fields    map[string]string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("client: http %d", e.Status)
	}
	return fmt.Sprintf("client: http %d: %s: %s", e.Status, e.Code, e.Message)
}

// User is the public profile returned by signup and login.
type User struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the overall timeout of every request, refreshes included.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithBaseTransport sets the RoundTripper used underneath the refresh logic.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.base = rt }
}

// WithOnLogout registers a callback fired each time the client drops its session.
func WithOnLogout(fn func()) Option {
	return func(c *Client) { c.onLogout = fn }
}

// WithLogger sets the logger. It defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPaths overrides the refresh and logout endpoint paths.
func WithPaths(refresh, logout string) Option {
	return func(c *Client) {
		if refresh != "" {
			c.refreshPath = refresh
		}
		if logout != "" {
			c.logoutPath = logout
		}
	}
}

// Client talks to the API on behalf of one user. It keeps the access token in
// memory, the refresh and CSRF cookies in its own jar, and transparently
// refreshes the access token when a request is rejected with 401.
type Client struct {
	baseURL     *url.URL
	jar         http.CookieJar
	base        http.RoundTripper
	http        *http.Client
	transport   *Transport
	timeout     time.Duration
	refreshPath string
	logoutPath  string
	onLogout    func()
	logger      *slog.Logger

	mu    sync.Mutex
	token string
	gen   uint64

	flight singleflight.Group
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("client: base url %q must be absolute http(s)", baseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("client: cookie jar: %w", err)
	}

	c := &Client{
		baseURL:     u,
		jar:         jar,
		base:        http.DefaultTransport,
		timeout:     defaultTimeout,
		refreshPath: defaultRefreshPath,
		logoutPath:  defaultLogoutPath,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.transport = &Transport{client: c, base: c.base}
	c.http = &http.Client{
		Transport: c.transport,
		Jar:       c.jar,
		Timeout:   c.timeout,
	}
	return c, nil
}

// HTTPClient returns the underlying client. Requests sent through it get the
// same token handling as Do.
func (c *Client) HTTPClient() *http.Client { return c.http }

// AccessToken returns the current in-memory access token, or "".
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// URL resolves path against the base URL.
func (c *Client) URL(path string) string {
	return c.baseURL.String() + "/" + strings.TrimLeft(path, "/")
}

// Do sends req. A 401 triggers at most one refresh and one retry.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

// DoJSON sends in (when non-nil) as a JSON body to path and decodes a 2xx
// answer into out (when non-nil). Other statuses come back as *Error.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return decodeError(res)
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

// Signup creates an account and starts a session.
func (c *Client) Signup(ctx context.Context, email, password string) (*User, error) {
	var u User
	if err := c.DoJSON(ctx, http.MethodPost, "/users", credentials{Email: email, Password: password}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Login starts a session for an existing account.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	var u User
	if err := c.DoJSON(ctx, http.MethodPost, "/users/login", credentials{Email: email, Password: password}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Logout ends the server-side session when there is one and always drops
// the local session, firing the OnLogout callback. A session the server no
// longer knows is not an error.
func (c *Client) Logout(ctx context.Context) error {
	var err error
	if c.cookie(c.URL(c.logoutPath), CookieRefreshToken) != "" {
		var res *http.Response
		res, err = c.send(ctx, c.logoutPath)
		if err == nil {
			if res.StatusCode >= 300 && res.StatusCode != http.StatusUnauthorized {
				err = decodeError(res)
			}
			res.Body.Close()
		}
	}
	c.terminate("logout")
	return err
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accessTokenBody struct {
	AccessToken string `json:"accessToken"`
}

func decodeError(res *http.Response) error {
	apiErr := &Error{Status: res.StatusCode}
	var env struct {
		Error struct {
			Code      string            `json:"code"`
			Message   string            `json:"message"`
			RequestID string            `json:"request_id"`
			Fields    map[string]string `json:"fields"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<16)).Decode(&env); err == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.RequestID = env.Error.RequestID
		apiErr.Fields = env.Error.Fields
	}
	return apiErr
}

// current returns the token and its generation.
func (c *Client) current() (string, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.gen
}

func (c *Client) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Client) setToken(tok string) {
	c.mu.Lock()
	if tok != c.token {
		c.token = tok
		c.gen++
	}
	c.mu.Unlock()
}

// terminate drops the access token and fires OnLogout.
func (c *Client) terminate(reason string) {
	c.mu.Lock()
	c.token = ""
	c.gen++
	c.mu.Unlock()

	c.logger.Debug("client session ended", slog.String("reason", reason))
	if c.onLogout != nil {
		c.onLogout()
	}
}

func (c *Client) cookie(rawURL, name string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	for _, ck := range c.jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) csrf() string {
	return c.cookie(c.URL("/"), CookieCSRF)
}

func (c *Client) isRefresh(u *url.URL) bool {
	return u.Host == c.baseURL.Host && u.Path == c.baseURL.Path+c.refreshPath
}

// refresh obtains a new access token. Concurrent callers share one request.
// stale is the generation of the token the caller's failed request used; when
// it has been replaced meanwhile no request is made.
func (c *Client) refresh(ctx context.Context, stale uint64) error {
	_, err, _ := c.flight.Do("refresh", func() (any, error) {
		if c.generation() != stale {
			return nil, nil
		}
		return nil, c.doRefresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return err
	}
	if c.AccessToken() == "" {
		return ErrSessionTerminated
	}
	return nil
}

// send posts an empty body to path on the base transport, bypassing the
// refresh logic, and stores the answer's cookies.
func (c *Client) send(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), nil)
	if err != nil {
		return nil, err
	}
	out, err := c.transport.prepare(req, nil, c.AccessToken(), true)
	if err != nil {
		return nil, err
	}

	res, err := c.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	c.jar.SetCookies(req.URL, res.Cookies())
	return res, nil
}

func (c *Client) doRefresh(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := c.send(ctx, c.refreshPath)
	if err != nil {
		c.terminate("refresh failed")
		return fmt.Errorf("%w: %v", ErrSessionTerminated, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		c.terminate("refresh rejected")
		return fmt.Errorf("%w: refresh answered %d", ErrSessionTerminated, res.StatusCode)
	}

	tok := res.Header.Get(HeaderAccessToken)
	if tok == "" {
		var body accessTokenBody
		if err := json.NewDecoder(res.Body).Decode(&body); err == nil {
			tok = body.AccessToken
		}
	}
	if tok == "" {
		c.terminate("refresh returned no token")
		return fmt.Errorf("%w: refresh returned no token", ErrSessionTerminated)
	}
	c.setToken(tok)
	return nil
}
