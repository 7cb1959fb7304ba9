package backend

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// NewTransport returns a tuned *http.Transport with connection pooling and
// optional DNS caching.
func NewTransport(resolver *dnscache.Resolver) *http.Transport {
	t := &http.Transport{
		MaxIdleConnsPerHost: 64,
		MaxConnsPerHost:     128,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if resolver != nil {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var d net.Dialer
			var lastErr error
			for _, ip := range ips {
				conn, err := d.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			return nil, lastErr
		}
	}
	return t
}

// TokenTransport is an http.RoundTripper that sets a static bearer token on
// every outbound request.
type TokenTransport struct {
	Token string
	Base  http.RoundTripper
}

// RoundTrip clones the request and sets the Authorization header.
func (t *TokenTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r2 := r.Clone(r.Context())
	r2.Header.Set("Authorization", "Bearer "+t.Token)
	return t.base().RoundTrip(r2)
}

func (t *TokenTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// OAuthConfig holds client-credentials settings for IAM service tokens.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// NewOAuthTransport returns a RoundTripper that obtains service tokens from
// IAM with the client-credentials grant. Tokens are cached and refreshed
// before expiry. base is used for both token and API requests.
func NewOAuthTransport(ctx context.Context, base http.RoundTripper, cfg OAuthConfig) http.RoundTripper {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base, Timeout: 10 * time.Second})
	return &oauth2.Transport{
		Source: cc.TokenSource(tokenCtx),
		Base:   base,
	}
}
