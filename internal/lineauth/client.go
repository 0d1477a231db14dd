// Package lineauth implements LINE Login v2.1: the authorization-code flow
// and verification of the returned OpenID Connect ID token.
package lineauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Scopes requested from LINE Login. profile yields the display name and picture.
var Scopes = []string{"openid", "profile"}

// ErrExchange is returned when the authorization code cannot be redeemed.
var ErrExchange = errors.New("lineauth: code exchange failed")

// Config configures the LINE Login channel.
type Config struct {
	ChannelID     string
	ChannelSecret string
	RedirectURL   string
	AuthURL       string
	TokenURL      string
	JWKSURL       string
	Issuer        string
	HTTPClient    *http.Client
}

// Identity is the verified LINE account returned by a successful login.
type Identity struct {
	UserID      string
	DisplayName string
	PictureURL  string
	Email       string
}

// Client drives the authorization-code flow.
type Client struct {
	oauth      *oauth2.Config
	verifier   *Verifier
	httpClient *http.Client
}

// NewClient builds a client for the channel.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ChannelID,
			ClientSecret: cfg.ChannelSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		verifier:   NewVerifier(cfg.ChannelID, cfg.ChannelSecret, cfg.Issuer, NewJWKSCache(cfg.JWKSURL, httpClient)),
		httpClient: httpClient,
	}
}

// AuthCodeURL returns the LINE authorization URL for state and nonce.
func (c *Client) AuthCodeURL(state, nonce string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("nonce", nonce))
}

// RedirectURL returns the registered callback URL.
func (c *Client) RedirectURL() string { return c.oauth.RedirectURL }

// Exchange redeems code at the token endpoint and verifies the ID token
// against nonce.
func (c *Client) Exchange(ctx context.Context, code, nonce string) (Identity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Identity{}, fmt.Errorf("%w: empty code", ErrExchange)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, errExchange := c.oauth.Exchange(ctx, code)
	if errExchange != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrExchange, errExchange)
	}
	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return Identity{}, fmt.Errorf("%w: response has no id_token", ErrInvalidIDToken)
	}
	claims, errVerify := c.verifier.Verify(ctx, rawIDToken, nonce)
	if errVerify != nil {
		return Identity{}, errVerify
	}
	return Identity{
		UserID:      claims.Subject,
		DisplayName: claims.Name,
		PictureURL:  claims.Picture,
		Email:       claims.Email,
	}, nil
}

// Allowed reports whether userID may sign in. An empty allowlist admits everyone.
func Allowed(allowlist []string, userID string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, id := range allowlist {
		if id == userID {
			return true
		}
	}
	return false
}
