package archive

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"cctv-replay/config"

	"golang.org/x/sync/singleflight"
)

// ErrAuthFailed indicates the archive rejected the login or did not return a
// session token. It fails the in-flight request only; the next call retries.
var ErrAuthFailed = errors.New("archive authentication failed")

// Session owns the bearer credential for the remote archive. Every outbound
// archive call goes through AuthorizedGet, which logs in on first use and
// refreshes the token with a safety margin before the vendor-documented
// lifetime runs out. Concurrent callers that observe a missing or expired
// token share a single in-flight login.
type Session struct {
	baseURL    string
	login      string
	password   string
	lifetime   time.Duration
	httpClient *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time

	refresh singleflight.Group
}

// NewSession creates a session for the configured archive. No login is
// performed until the first authorized call.
func NewSession(cfg config.Config) *Session {
	return &Session{
		baseURL:    strings.TrimSuffix(cfg.ArchiveBaseURL, "/"),
		login:      cfg.ArchiveLogin,
		password:   cfg.ArchivePassword,
		lifetime:   cfg.TokenLifetime,
		httpClient: &http.Client{Timeout: cfg.ArchiveTimeout},
	}
}

// authReply is the XML document returned by the archive's login endpoint.
type authReply struct {
	AuthSid string `xml:"authSid"`
}

func (s *Session) currentToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || !time.Now().Before(s.expires) {
		return "", false
	}
	return s.token, true
}

// authenticate returns a valid session token, logging in if needed.
func (s *Session) authenticate(ctx context.Context) (string, error) {
	if tok, ok := s.currentToken(); ok {
		return tok, nil
	}
	v, err, _ := s.refresh.Do("login", func() (interface{}, error) {
		// A concurrent caller may have refreshed while we waited.
		if tok, ok := s.currentToken(); ok {
			return tok, nil
		}
		return s.doLogin(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Session) doLogin(ctx context.Context) (string, error) {
	params := url.Values{}
	params.Set("user", s.login)
	params.Set("serviceKey", "1")
	params.Set("pwd", s.password)

	loginURL := s.baseURL + "/cgi-bin/authLogin.cgi?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return "", fmt.Errorf("building login request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: login returned status %d", ErrAuthFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("%w: reading login response: %v", ErrAuthFailed, err)
	}

	var reply authReply
	if err := xml.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("%w: parsing login response: %v", ErrAuthFailed, err)
	}
	if reply.AuthSid == "" {
		return "", fmt.Errorf("%w: no authSid in login response", ErrAuthFailed)
	}

	s.mu.Lock()
	s.token = reply.AuthSid
	// Renew once 10% of the documented lifetime remains.
	s.expires = time.Now().Add(s.lifetime - s.lifetime/10)
	s.mu.Unlock()

	log.Printf("session: authenticated with archive (token valid %s)", s.lifetime-s.lifetime/10)
	return reply.AuthSid, nil
}

// AuthorizedGet performs an authenticated GET against the given CGI path
// (e.g. "/cgi-bin/filemanager/utilRequest.cgi") with the session token added
// to the query. The caller owns the response body.
func (s *Session) AuthorizedGet(ctx context.Context, cgiPath string, query url.Values) (*http.Response, error) {
	token, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("sid", token)

	reqURL := s.baseURL + cgiPath + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building archive request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archive request failed: %w", err)
	}
	return resp, nil
}
