package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI mimics the token endpoints: it accepts exactly one access token at
// a time and mints a new one on every successful refresh.
type fakeAPI struct {
	mu        sync.Mutex
	current   string
	csrf      string
	sessionOK bool
	minted    int

	refreshes    atomic.Int32
	dataHits     atomic.Int32
	refreshDelay time.Duration
	refreshCode  int
	alwaysReject bool
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{sessionOK: true}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/login", api.login)
	mux.HandleFunc("POST /auth/token/refresh", api.refresh)
	mux.HandleFunc("POST /auth/token/logout", api.logout)
	mux.HandleFunc("/data", api.data)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) mint(w http.ResponseWriter) string {
	a.minted++
	a.current = "tok-" + strconv.Itoa(a.minted)
	a.csrf = "csrf-" + strconv.Itoa(a.minted)
	w.Header().Set(HeaderAccessToken, a.current)
	http.SetCookie(w, &http.Cookie{Name: CookieCSRF, Value: a.csrf, Path: "/"})
	return a.current
}

func (a *fakeAPI) login(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionOK = true
	a.mint(w)
	http.SetCookie(w, &http.Cookie{Name: CookieRefreshToken, Value: "session", Path: "/auth/token", HttpOnly: true})
	_ = json.NewEncoder(w).Encode(User{ID: "u-1", Email: "a@example.com"})
}

func (a *fakeAPI) refresh(w http.ResponseWriter, r *http.Request) {
	a.refreshes.Add(1)
	a.mu.Lock()
	delay := a.refreshDelay
	a.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.refreshCode != 0 {
		w.WriteHeader(a.refreshCode)
		return
	}
	ck, err := r.Cookie(CookieRefreshToken)
	if err != nil || ck.Value != "session" || !a.sessionOK {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	csrf, err := r.Cookie(CookieCSRF)
	if err != nil || csrf.Value != a.csrf || r.Header.Get(HeaderCSRF) != a.csrf {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	tok := a.mint(w)
	_ = json.NewEncoder(w).Encode(accessTokenBody{AccessToken: tok})
}

func (a *fakeAPI) logout(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionOK = false
	http.SetCookie(w, &http.Cookie{Name: CookieRefreshToken, Path: "/auth/token", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

func (a *fakeAPI) data(w http.ResponseWriter, r *http.Request) {
	a.dataHits.Add(1)
	a.mu.Lock()
	ok := !a.alwaysReject && r.Header.Get(HeaderAccessToken) == a.current
	a.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	body, _ := io.ReadAll(r.Body)
	_, _ = w.Write(body)
}

func (a *fakeAPI) set(fn func(a *fakeAPI)) {
	a.mu.Lock()
	fn(a)
	a.mu.Unlock()
}

// expire makes the server forget the current access token.
func (a *fakeAPI) expire() {
	a.mu.Lock()
	a.current = "expired"
	a.mu.Unlock()
}

func newLoggedIn(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	_, err = c.Login(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "tok-1", c.AccessToken())
	return c
}

func get(t *testing.T, c *Client, body string) (*http.Response, error) {
	t.Helper()
	method := http.MethodGet
	var rd io.Reader
	if body != "" {
		method = http.MethodPost
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, c.URL("/data"), rd)
	require.NoError(t, err)
	return c.Do(req)
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.set(func(a *fakeAPI) { a.refreshDelay = 50 * time.Millisecond })
	c := newLoggedIn(t, srv)
	api.expire()

	const n = 8
	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := get(t, c, "")
			if !assert.NoError(t, err) {
				return
			}
			codes[i] = res.StatusCode
			_ = res.Body.Close()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), api.refreshes.Load())
	for _, code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
	assert.Equal(t, "tok-2", c.AccessToken())
}

func TestRetryReplaysBody(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := newLoggedIn(t, srv)
	api.expire()

	res, err := get(t, c, `{"title":"x"}`)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	body, _ := io.ReadAll(res.Body)
	assert.Equal(t, `{"title":"x"}`, string(body))
	assert.Equal(t, int32(2), api.dataHits.Load())
}

func TestRefreshRejectedLogsOutWithoutRetry(t *testing.T) {
	api, srv := newFakeAPI(t)
	var logouts atomic.Int32
	c := newLoggedIn(t, srv, WithOnLogout(func() { logouts.Add(1) }))

	api.set(func(a *fakeAPI) { a.sessionOK = false })
	api.expire()

	_, err := get(t, c, "")
	assert.ErrorIs(t, err, ErrSessionTerminated)
	assert.Equal(t, int32(1), api.dataHits.Load(), "request is not retried")
	assert.Equal(t, int32(1), api.refreshes.Load())
	assert.Equal(t, int32(1), logouts.Load())
	assert.Empty(t, c.AccessToken())
}

func TestDirectRefresh401LogsOut(t *testing.T) {
	api, srv := newFakeAPI(t)
	var logouts atomic.Int32
	c := newLoggedIn(t, srv, WithOnLogout(func() { logouts.Add(1) }))

	api.set(func(a *fakeAPI) { a.sessionOK = false })

	req, err := http.NewRequest(http.MethodPost, c.URL("/auth/token/refresh"), nil)
	require.NoError(t, err)
	res, err := c.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, int32(1), api.refreshes.Load())
	assert.Equal(t, int32(1), logouts.Load())
	assert.Empty(t, c.AccessToken())
}

func TestRefreshServerErrorTerminates(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := newLoggedIn(t, srv)
	api.set(func(a *fakeAPI) { a.refreshCode = http.StatusInternalServerError })
	api.expire()

	_, err := get(t, c, "")
	assert.ErrorIs(t, err, ErrSessionTerminated)
	assert.Empty(t, c.AccessToken())
}

func TestSecond401IsReturnedAsIs(t *testing.T) {
	api, srv := newFakeAPI(t)
	var logouts atomic.Int32
	c := newLoggedIn(t, srv, WithOnLogout(func() { logouts.Add(1) }))
	api.set(func(a *fakeAPI) { a.alwaysReject = true })

	res, err := get(t, c, "")
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, int32(2), api.dataHits.Load())
	assert.Equal(t, int32(1), api.refreshes.Load())
	assert.Equal(t, int32(1), logouts.Load())
}

func TestNetworkFailureDuringRefresh(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := newLoggedIn(t, srv, WithTimeout(time.Second))
	api.expire()

	// The refresh goes through the base transport; break it after login.
	c.base = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if strings.HasSuffix(r.URL.Path, "/refresh") {
			return nil, io.ErrUnexpectedEOF
		}
		return http.DefaultTransport.RoundTrip(r)
	})
	c.transport.base = c.base

	_, err := get(t, c, "")
	assert.ErrorIs(t, err, ErrSessionTerminated)
	assert.Empty(t, c.AccessToken())
}

func TestLogout(t *testing.T) {
	api, srv := newFakeAPI(t)
	var logouts atomic.Int32
	c := newLoggedIn(t, srv, WithOnLogout(func() { logouts.Add(1) }))

	require.NoError(t, c.Logout(context.Background()))
	assert.Empty(t, c.AccessToken())
	assert.Equal(t, int32(1), logouts.Load())

	api.mu.Lock()
	assert.False(t, api.sessionOK)
	api.mu.Unlock()

	require.NoError(t, c.Logout(context.Background()), "logging out twice is harmless")
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("/relative")
	assert.Error(t, err)
	_, err = New("ftp://example.com")
	assert.Error(t, err)

	c, err := New("http://example.com/api/")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/api/lists", c.URL("/lists"))
}

func TestDoJSONDecodesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":"validation_failed","message":"invalid input","fields":{"title":"is required"}}}`)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	require.NoError(t, err)

	err = c.DoJSON(context.Background(), http.MethodPost, "/lists", map[string]string{}, nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "validation_failed", apiErr.Code)
	assert.Equal(t, "is required", apiErr.Fields["title"])
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
