package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dghubble/oauth1"
	"golang.org/x/oauth2"
)

// Auth methods.
const (
	AuthOAuth1 = "oauth1"
	AuthBearer = "bearer"
)

// AuthConfig holds feed credentials. OAuth1 signs every request with the
// consumer and access token pairs; bearer sends an app-only token.
type AuthConfig struct {
	Method         string
	ConsumerKey    string
	ConsumerSecret string
	Token          string
	TokenSecret    string
	BearerToken    string
}

// Validate reports missing credentials for the selected method.
func (a AuthConfig) Validate() error {
	var errs []error
	switch a.method() {
	case AuthOAuth1:
		if a.ConsumerKey == "" {
			errs = append(errs, errors.New("auth.consumerKey is required"))
		}
		if a.ConsumerSecret == "" {
			errs = append(errs, errors.New("auth.consumerSecret is required"))
		}
		if a.Token == "" {
			errs = append(errs, errors.New("auth.token is required"))
		}
		if a.TokenSecret == "" {
			errs = append(errs, errors.New("auth.tokenSecret is required"))
		}
	case AuthBearer:
		if a.BearerToken == "" {
			errs = append(errs, errors.New("auth.bearerToken is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.method %q is not valid (must be oauth1 or bearer)", a.Method))
	}
	return errors.Join(errs...)
}

func (a AuthConfig) method() string {
	if a.Method == "" {
		return AuthOAuth1
	}
	return a.Method
}

// authClient wraps base with a transport that authenticates every request.
func authClient(a AuthConfig, base *http.Client) (*http.Client, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	switch a.method() {
	case AuthBearer:
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: a.BearerToken,
			TokenType:   "Bearer",
		})), nil
	default:
		ctx := context.WithValue(context.Background(), oauth1.HTTPClient, base)
		cfg := oauth1.NewConfig(a.ConsumerKey, a.ConsumerSecret)
		return cfg.Client(ctx, oauth1.NewToken(a.Token, a.TokenSecret)), nil
	}
}
