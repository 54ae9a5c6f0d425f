package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Response is a successful (2xx) response with its body read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error { return json.Unmarshal(r.Body, v) }

// RequestOption adjusts a single request.
type RequestOption func(*request)

type request struct {
	query       url.Values
	body        []byte
	contentType string
	header      http.Header
	err         error
}

// WithQuery adds query parameters.
func WithQuery(q url.Values) RequestOption {
	return func(r *request) {
		for k, vs := range q {
			for _, v := range vs {
				r.query.Add(k, v)
			}
		}
	}
}

// WithJSON sends v as a JSON body.
func WithJSON(v any) RequestOption {
	return func(r *request) {
		b, err := json.Marshal(v)
		if err != nil {
			r.err = err
			return
		}
		r.body, r.contentType = b, "application/json"
	}
}

// WithBody sends b as is.
func WithBody(contentType string, b []byte) RequestOption {
	return func(r *request) { r.body, r.contentType = b, contentType }
}

// WithHeader sets a request header. It does not override the credential header.
func WithHeader(key, value string) RequestOption {
	return func(r *request) { r.header.Set(key, value) }
}

func resolveURL(root, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return root + path
}

// build returns a fresh *http.Request per attempt; the body is replayable.
func (r *request) build(ctx context.Context, method, target string) (*http.Request, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if len(r.query) > 0 {
		q := u.Query()
		for k, vs := range r.query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	out, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.header {
		out.Header[k] = append([]string(nil), vs...)
	}
	if r.contentType != "" {
		out.Header.Set("Content-Type", r.contentType)
	}
	return out, nil
}
