package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/synchub/backend/internal/domain/connector"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultAPIKeyHeader = "X-API-Key"
	defaultAPIKeyParam  = "apiKey"

	// tokens are refreshed this long before they expire
	tokenRefreshMargin = 60 * time.Second
	// lifetime assumed when the token endpoint omits expires_in
	defaultTokenLifetime = 3600 * time.Second
)

// authenticator decorates outgoing requests with credentials
type authenticator interface {
	apply(req *http.Request) error
}

func newAuthenticator(cfg *connector.Config, httpClient *http.Client) (authenticator, error) {
	a := cfg.Auth
	switch cfg.AuthType {
	case connector.AuthAPIKey:
		if a.Location == connector.KeyLocationQuery {
			return apiKeyQuery{param: firstNonEmpty(a.ParamName, defaultAPIKeyParam), key: a.APIKey}, nil
		}
		return headerAuth{headers: map[string]string{firstNonEmpty(a.HeaderName, defaultAPIKeyHeader): a.APIKey}}, nil
	case connector.AuthBearerToken:
		return headerAuth{headers: map[string]string{"Authorization": "Bearer " + a.Token}}, nil
	case connector.AuthOAuth2ClientCredentials:
		if a.TokenURL == "" || a.ClientID == "" {
			return nil, configErrorf("oauth2 client credentials need tokenUrl and clientId")
		}
		return newOAuth2Auth(a, httpClient), nil
	case connector.AuthBasic:
		return basicAuth{username: a.Username, password: a.Password}, nil
	case connector.AuthCustomHeaders:
		return headerAuth{headers: a.Headers}, nil
	case connector.AuthNone, "":
		return noAuth{}, nil
	default:
		return nil, configErrorf("unsupported auth type %q", cfg.AuthType)
	}
}

type noAuth struct{}

func (noAuth) apply(*http.Request) error { return nil }

type headerAuth struct {
	headers map[string]string
}

func (h headerAuth) apply(req *http.Request) error {
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	return nil
}

type apiKeyQuery struct {
	param string
	key   string
}

func (a apiKeyQuery) apply(req *http.Request) error {
	q := req.URL.Query()
	q.Set(a.param, a.key)
	req.URL.RawQuery = q.Encode()
	return nil
}

type basicAuth struct {
	username string
	password string
}

func (b basicAuth) apply(req *http.Request) error {
	req.SetBasicAuth(b.username, b.password)
	return nil
}

type oauth2Auth struct {
	source oauth2.TokenSource
}

func newOAuth2Auth(a connector.AuthConfig, httpClient *http.Client) *oauth2Auth {
	cc := &clientcredentials.Config{
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		TokenURL:     a.TokenURL,
		Scopes:       strings.Fields(a.Scope),
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if a.Scope == "" {
		cc.EndpointParams = url.Values{"scope": {""}}
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	return &oauth2Auth{
		source: oauth2.ReuseTokenSourceWithExpiry(nil, lifetimeSource{src: cc.TokenSource(ctx)}, tokenRefreshMargin),
	}
}

func (o *oauth2Auth) apply(req *http.Request) error {
	tok, err := o.source.Token()
	if err != nil {
		return tokenError(err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	return nil
}

// tokenError sorts a token endpoint failure into the client's error kinds so
// an unavailable identity provider is retried and a rejected client is not.
func tokenError(err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) && retrieve.Response != nil {
		status := retrieve.Response.StatusCode
		if status >= 500 || status == http.StatusTooManyRequests {
			return &UpstreamStatusError{StatusCode: status, Body: "oauth2 token endpoint: " + string(retrieve.Body)}
		}
		return &ConfigError{Message: "oauth2 token request rejected: " + err.Error()}
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return &NoResponseError{Err: fmt.Errorf("oauth2 token endpoint: %w", err)}
	}
	return &ConfigError{Message: "could not obtain oauth2 token: " + err.Error()}
}

// lifetimeSource stamps a default expiry on tokens that arrive without one
type lifetimeSource struct {
	src oauth2.TokenSource
}

func (s lifetimeSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if tok.Expiry.IsZero() {
		tok.Expiry = time.Now().Add(defaultTokenLifetime)
	}
	return tok, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
