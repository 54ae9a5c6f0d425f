// Package session is an HTTP client for APIs whose credentials expire.
//
// When a request comes back unauthenticated the session renews its
// credential and replays the request, up to MaxRetries times. Renewal is
// single-flighted: goroutines sharing a Session renew once, and sessions in
// different processes that share a flightcache.Backend go through the
// backend's renew lock, so only one of them talks to the auth service while
// the others pick up the persisted credential.
//
//	r, _ := session.NewJWTRenewer(keyID, issuerID, p8)
//	s, _ := session.New(session.Config{
//	    RootURL: "https://api.appstoreconnect.apple.com/v1",
//	    Name:    "asc:" + keyID,
//	    Renewer: r,
//	    Backend: backend,
//	})
//	resp, err := s.Get(ctx, "/apps", session.WithQuery(url.Values{"limit": {"200"}}))
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/flightcache"
)

const (
	DefaultMaxRetries = 3
	DefaultHeaderName = "Authorization"
	DefaultTimeout    = 30 * time.Second
	DefaultLease      = 90 * time.Second
	DefaultRenewWait  = 15 * time.Second
	DefaultDoneTTL    = 10 * time.Second
	DefaultPoll       = 250 * time.Millisecond
)

// Renewer obtains a fresh credential, the full header value
// (e.g. "Bearer <token>"). An empty credential means renewal was declined.
type Renewer interface {
	Renew(ctx context.Context) (string, error)
}

type RenewerFunc func(ctx context.Context) (string, error)

func (f RenewerFunc) Renew(ctx context.Context) (string, error) { return f(ctx) }

// Config for New. RootURL and Renewer are required; Name is required with
// a Backend.
type Config struct {
	RootURL string
	Renewer Renewer

	// Backend persists the credential under "<Name>.credentials" and
	// coordinates renewals across processes. nil keeps the credential in
	// this Session only.
	Backend flightcache.Backend
	Name    string

	HeaderName string      // credential header; "" => Authorization
	Header     http.Header // sent with every request, e.g. Accept
	MaxRetries int         // renew-and-retry cycles; 0 => 3, negative => none

	// Unauthenticated reports responses that mean "credential expired" even
	// though their status is not 401. 401 always does. It sees every
	// response, 2xx included, before the status decides success.
	Unauthenticated func(status int, body []byte) bool

	HTTPClient    *http.Client  // nil => client with DefaultTimeout
	CredentialTTL time.Duration // lifetime of the persisted credential; 0 => backend default
	Lease         time.Duration // cross-process renew lock lease; 0 => 90s
	RenewWait     time.Duration // how long a process waits for another's renewal; 0 => 15s
	DoneTTL       time.Duration // lifetime of the renewal-done marker; 0 => 10s
	PollInterval  time.Duration // how often a waiting process looks for the renewed credential; 0 => 250ms

	Logger flightcache.Logger // nil => NopLogger
	Hooks  flightcache.Hooks  // nil => NopHooks
}

// Session is safe for concurrent use.
type Session struct {
	root       string
	renewer    Renewer
	backend    flightcache.Backend
	name       string
	headerName string
	header     http.Header
	maxRetries int
	unauth     func(int, []byte) bool
	client     *http.Client
	credTTL    time.Duration
	lease      time.Duration
	renewWait  time.Duration
	doneTTL    time.Duration
	poll       time.Duration
	log        flightcache.Logger
	hooks      flightcache.Hooks

	mu   sync.RWMutex
	cred string

	loadMu   sync.Mutex
	loaded   bool
	renewals singleflight.Group
}

func New(cfg Config) (*Session, error) {
	if cfg.RootURL == "" {
		return nil, errors.New("session: RootURL is required")
	}
	if cfg.Renewer == nil {
		return nil, errors.New("session: Renewer is required")
	}
	if cfg.Backend != nil && cfg.Name == "" {
		return nil, errors.New("session: Name is required with a Backend")
	}

	s := &Session{
		root:       cfg.RootURL,
		renewer:    cfg.Renewer,
		backend:    cfg.Backend,
		name:       cfg.Name,
		headerName: coalesce(cfg.HeaderName, DefaultHeaderName),
		header:     cfg.Header.Clone(),
		maxRetries: coalesce(cfg.MaxRetries, DefaultMaxRetries),
		unauth:     cfg.Unauthenticated,
		client:     cfg.HTTPClient,
		credTTL:    cfg.CredentialTTL,
		lease:      coalesce(cfg.Lease, DefaultLease),
		renewWait:  coalesce(cfg.RenewWait, DefaultRenewWait),
		doneTTL:    coalesce(cfg.DoneTTL, DefaultDoneTTL),
		poll:       coalesce(cfg.PollInterval, DefaultPoll),
		log:        coalesce[flightcache.Logger](cfg.Logger, flightcache.NopLogger{}),
		hooks:      coalesce[flightcache.Hooks](cfg.Hooks, flightcache.NopHooks{}),
	}
	if s.maxRetries < 0 {
		s.maxRetries = 0
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: DefaultTimeout}
	}
	return s, nil
}

func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func (s *Session) credentialsKey() string { return s.name + ".credentials" }
func (s *Session) doneKey() string        { return "done_renew_" + s.name }
func (s *Session) lockKey() string        { return "renew_" + s.name }

// Credential returns the header value currently in use.
func (s *Session) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred
}

func (s *Session) setCredential(c string) {
	s.mu.Lock()
	s.cred = c
	s.mu.Unlock()
}

func (s *Session) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return s.Do(ctx, http.MethodGet, path, opts...)
}

func (s *Session) Post(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return s.Do(ctx, http.MethodPost, path, opts...)
}

func (s *Session) Put(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return s.Do(ctx, http.MethodPut, path, opts...)
}

func (s *Session) Patch(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return s.Do(ctx, http.MethodPatch, path, opts...)
}

func (s *Session) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return s.Do(ctx, http.MethodDelete, path, opts...)
}

// Do sends method path (relative to RootURL unless absolute), renewing the
// credential and replaying the request while it comes back unauthenticated.
// A request that is always rejected is sent MaxRetries+1 times with
// MaxRetries renewals in between, then fails with ErrMaxRetries.
// Transport errors are returned as is, without retrying.
func (s *Session) Do(ctx context.Context, method, path string, opts ...RequestOption) (*Response, error) {
	r := &request{query: url.Values{}, header: make(http.Header)}
	for _, opt := range opts {
		opt(r)
	}
	if r.err != nil {
		return nil, fmt.Errorf("session: build %s %s: %w", method, path, r.err)
	}
	target := resolveURL(s.root, path)

	s.ensureLoaded(ctx)

	for attempt := 0; ; attempt++ {
		used := s.Credential()
		status, header, body, err := s.send(ctx, r, method, target, used)
		if err != nil {
			return nil, fmt.Errorf("session: %s %s: %w", method, target, err)
		}

		if !s.isUnauthenticated(status, body) {
			if status >= 200 && status < 300 {
				return &Response{StatusCode: status, Header: header, Body: body}, nil
			}
			return nil, &ResponseError{Kind: classify(status), Method: method, URL: target, StatusCode: status, Body: body}
		}

		if attempt >= s.maxRetries {
			s.hooks.SessionRetriesExhausted(method, path)
			s.log.Warn("session retries exhausted", flightcache.Fields{"session": s.name, "method": method, "path": path, "attempts": attempt + 1})
			return nil, &ResponseError{Kind: ErrMaxRetries, Method: method, URL: target, StatusCode: status, Body: body}
		}
		s.log.Debug("session unauthenticated, renewing", flightcache.Fields{"session": s.name, "status": status, "attempt": attempt + 1})
		if err := s.renew(ctx, used); err != nil {
			return nil, err
		}
	}
}

// ensureLoaded loads the persisted credential until one lookup settles.
func (s *Session) ensureLoaded(ctx context.Context) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if !s.loaded {
		s.loaded = s.loadCredential(ctx)
	}
}

func (s *Session) send(ctx context.Context, r *request, method, target, cred string) (int, http.Header, []byte, error) {
	req, err := r.build(ctx, method, target)
	if err != nil {
		return 0, nil, nil, err
	}
	for k, vs := range s.header {
		if _, set := req.Header[k]; !set {
			req.Header[k] = append([]string(nil), vs...)
		}
	}
	if cred != "" {
		req.Header.Set(s.headerName, cred)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, resp.Header, body, nil
}

func (s *Session) isUnauthenticated(status int, body []byte) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	return s.unauth != nil && s.unauth(status, body)
}
