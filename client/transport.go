package client

import (
	"bytes"
	"io"
	"net/http"
)

// Transport is the RoundTripper installed in the Client's http.Client. It
// attaches the access token and the CSRF header to every request and turns a
// 401 into one refresh followed by one retry.
type Transport struct {
	client *Client
	base   http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	c := t.client

	body, err := replayable(req)
	if err != nil {
		return nil, err
	}

	tok, gen := c.current()
	first, err := t.prepare(req, body, tok, false)
	if err != nil {
		return nil, err
	}
	res, err := t.base.RoundTrip(first)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusUnauthorized {
		t.capture(res)
		return res, nil
	}

	if c.isRefresh(req.URL) {
		c.terminate("refresh rejected")
		return res, nil
	}

	drain(res)
	if err := c.refresh(req.Context(), gen); err != nil {
		return nil, err
	}

	tok, _ = c.current()
	retry, err := t.prepare(req, body, tok, true)
	if err != nil {
		return nil, err
	}
	res, err = t.base.RoundTrip(retry)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusUnauthorized {
		c.terminate("rejected after refresh")
		return res, nil
	}
	t.capture(res)
	return res, nil
}

// prepare clones req with a fresh body and the current credentials. With
// reloadCookies the Cookie header is rebuilt from the jar, which picks up a
// CSRF cookie rotated by a refresh.
func (t *Transport) prepare(req *http.Request, body func() (io.ReadCloser, error), token string, reloadCookies bool) (*http.Request, error) {
	out := req.Clone(req.Context())
	if body != nil {
		rc, err := body()
		if err != nil {
			return nil, err
		}
		out.Body = rc
	}

	if token != "" {
		out.Header.Set(HeaderAccessToken, token)
	} else {
		out.Header.Del(HeaderAccessToken)
	}

	if reloadCookies {
		out.Header.Del("Cookie")
		for _, ck := range t.client.jar.Cookies(out.URL) {
			out.AddCookie(ck)
		}
	}
	if v := t.client.csrf(); v != "" {
		out.Header.Set(HeaderCSRF, v)
	}
	return out, nil
}

// capture stores a token handed out by signup, login or refresh.
func (t *Transport) capture(res *http.Response) {
	if tok := res.Header.Get(HeaderAccessToken); tok != "" && res.StatusCode < 300 {
		t.client.setToken(tok)
	}
}

// replayable returns a body factory so the request can be sent twice, or nil
// for requests without a body.
func replayable(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		_ = req.Body.Close()
		return req.GetBody, nil
	}

	raw, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}, nil
}

func drain(res *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<16))
	_ = res.Body.Close()
}
