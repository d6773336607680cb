// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auditapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Identity is the logged-in user as reported by /me and /login.
type Identity struct {
	Username string `json:"username"`
}

// Credentials are the form fields of POST /login.
type Credentials struct {
	Username string
	Password string
}

// SavedCookie is the persisted form of a session cookie. Only name
// and value are kept; the jar scopes them to the service URL again on
// restore.
type SavedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Me probes the session. Returns the identity on 200 and an error
// matching ErrUnauthorized on 401.
func (c *Client) Me(ctx context.Context) (Identity, error) {
	body, err := c.do(ctx, http.MethodGet, "/me", "", nil)
	if err != nil {
		return Identity{}, err
	}
	var identity Identity
	if err := json.Unmarshal(body, &identity); err != nil {
		return Identity{}, fmt.Errorf("auditapi: parsing /me response: %w", err)
	}
	return identity, nil
}

// Login posts the credentials as a form. On success the session
// cookie is in the jar. A rejected login returns an *APIError whose
// Message is the server's text ("Invalid credentials").
func (c *Client) Login(ctx context.Context, credentials Credentials) (Identity, error) {
	if credentials.Username == "" || credentials.Password == "" {
		return Identity{}, errors.New("auditapi: username and password are required")
	}
	form := url.Values{
		"username": {credentials.Username},
		"password": {credentials.Password},
	}
	body, err := c.do(ctx, http.MethodPost, "/login", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return Identity{}, err
	}
	var reply struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return Identity{}, fmt.Errorf("auditapi: parsing /login response: %w", err)
	}
	if reply.Username == "" {
		reply.Username = credentials.Username
	}
	return Identity{Username: reply.Username}, nil
}

// Logout ends the server session.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/logout", "", nil)
	return err
}

// Cookies returns the session cookies the jar holds for the service.
func (c *Client) Cookies() []SavedCookie {
	var saved []SavedCookie
	for _, cookie := range c.jar.Cookies(c.baseURL) {
		saved = append(saved, SavedCookie{Name: cookie.Name, Value: cookie.Value})
	}
	return saved
}

// SetCookies seeds the jar with previously saved session cookies.
func (c *Client) SetCookies(saved []SavedCookie) {
	cookies := make([]*http.Cookie, 0, len(saved))
	for _, entry := range saved {
		cookies = append(cookies, &http.Cookie{Name: entry.Name, Value: entry.Value, Path: "/"})
	}
	c.jar.SetCookies(c.baseURL, cookies)
}

// ClearCookies expires every session cookie in the jar.
func (c *Client) ClearCookies() {
	existing := c.jar.Cookies(c.baseURL)
	expired := make([]*http.Cookie, 0, len(existing))
	for _, cookie := range existing {
		expired = append(expired, &http.Cookie{Name: cookie.Name, Path: "/", MaxAge: -1})
	}
	c.jar.SetCookies(c.baseURL, expired)
}
