// Package client is a Go SDK for the tenantry HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const headerContentType = "Content-Type"

type doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client calls the API on behalf of the user held in its Session.
type Client struct {
	baseURL *url.URL
	doer    doer
	session *Session
}

// ClientOptFn configures a Client.
type ClientOptFn func(*Client) error

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOptFn {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("client: nil http client")
		}
		c.doer = hc
		return nil
	}
}

// New returns a Client for baseURL. A nil session starts a fresh one.
func New(baseURL string, session *Session, opts ...ClientOptFn) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client: base url %q must be absolute", baseURL)
	}
	if session == nil {
		session = NewSession()
	}

	c := &Client{
		baseURL: u,
		doer:    &http.Client{Timeout: 30 * time.Second},
		session: session,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) Session() *Session {
	return c.session
}

// Login exchanges credentials for a token and stores it in the session.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	if err := c.session.begin(); err != nil {
		return nil, err
	}
	resp, err := c.login(ctx, email, password)
	if err != nil {
		c.session.fail()
		return nil, err
	}
	c.session.complete(resp)
	return c.session.User(), nil
}

// Register creates the account and then signs in with it.
func (c *Client) Register(ctx context.Context, email, password, name string) (*User, error) {
	if err := c.session.begin(); err != nil {
		return nil, err
	}
	body := map[string]string{"email": email, "password": password, "name": name}
	if err := c.do(ctx, http.MethodPost, "/auth/register", false, body, nil); err != nil {
		c.session.fail()
		return nil, err
	}
	resp, err := c.login(ctx, email, password)
	if err != nil {
		c.session.fail()
		return nil, err
	}
	c.session.complete(resp)
	return c.session.User(), nil
}

// Logout forgets the session locally. Tokens are stateless and expire on
// their own.
func (c *Client) Logout() {
	c.session.Clear()
}

// Profile reloads the signed-in user.
func (c *Client) Profile(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/auth/profile", true, nil, &user); err != nil {
		return nil, err
	}
	c.session.refreshUser(&user)
	return &user, nil
}

func (c *Client) ListOrganizations(ctx context.Context) ([]Organization, error) {
	var out []Organization
	if err := c.do(ctx, http.MethodGet, "/organizations", true, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetOrganization(ctx context.Context, orgID string) (*Organization, error) {
	var out Organization
	if err := c.do(ctx, http.MethodGet, orgPath(orgID), true, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentOrganization fetches the organization selected in the session.
func (c *Client) CurrentOrganization(ctx context.Context) (*Organization, error) {
	orgID := c.session.CurrentOrganization()
	if orgID == "" {
		return nil, ErrUnknownOrganization
	}
	return c.GetOrganization(ctx, orgID)
}

func (c *Client) CreateOrganization(ctx context.Context, name string) (*Organization, error) {
	var out Organization
	if err := c.do(ctx, http.MethodPost, "/organizations", true, map[string]string{"name": name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateOrganization renames the organization; a nil name changes nothing.
func (c *Client) UpdateOrganization(ctx context.Context, orgID string, name *string) (*Organization, error) {
	body := map[string]*string{}
	if name != nil {
		body["name"] = name
	}
	var out Organization
	if err := c.do(ctx, http.MethodPatch, orgPath(orgID), true, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteOrganization(ctx context.Context, orgID string) error {
	return c.do(ctx, http.MethodDelete, orgPath(orgID), true, nil, &messageResponse{})
}

func (c *Client) ListMembers(ctx context.Context, orgID string) ([]Member, error) {
	var out []Member
	if err := c.do(ctx, http.MethodGet, orgPath(orgID)+"/members", true, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddMember(ctx context.Context, orgID, email, role string) (*Member, error) {
	var out Member
	body := map[string]string{"email": email, "role": role}
	if err := c.do(ctx, http.MethodPost, orgPath(orgID)+"/members", true, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveMember(ctx context.Context, orgID, memberID string) error {
	return c.do(ctx, http.MethodDelete, orgPath(orgID)+"/members/"+url.PathEscape(memberID), true, nil, &messageResponse{})
}

func (c *Client) login(ctx context.Context, email, password string) (*loginResponse, error) {
	var resp loginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", false, body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, errors.New("client: login response has no access token")
	}
	return &resp, nil
}

// do sends one request. Any 401 clears the session.
func (c *Client) do(ctx context.Context, method, path string, authenticated bool, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set(headerContentType, "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if authenticated {
		token := c.session.Token()
		if token == "" || c.session.State() != StateAuthenticated {
			return ErrNotAuthenticated
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && c.session.State() == StateAuthenticated {
		c.session.Clear()
	}
	if err := checkError(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

func orgPath(orgID string) string {
	return "/organizations/" + url.PathEscape(orgID)
}
