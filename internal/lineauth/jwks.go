package lineauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// jwksRefreshInterval bounds how often an unknown kid may trigger a refetch.
const jwksRefreshInterval = time.Minute

// JWKSCache resolves LINE's ES256 signing keys. The remote set is fetched
// on the first ES256 token and refreshed hourly in the background.
type JWKSCache struct {
	url        string
	httpClient *http.Client

	mu sync.Mutex
	kf keyfunc.Keyfunc
}

// NewJWKSCache builds a cache for the key set at jwksURL.
func NewJWKSCache(jwksURL string, httpClient *http.Client) *JWKSCache {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &JWKSCache{url: jwksURL, httpClient: httpClient}
}

// Keyfunc returns the key for t, looked up by its kid header.
func (c *JWKSCache) Keyfunc(ctx context.Context, t *jwt.Token) (any, error) {
	kf, errInit := c.keyfunc()
	if errInit != nil {
		return nil, errInit
	}
	return kf.KeyfuncCtx(ctx)(t)
}

func (c *JWKSCache) keyfunc() (keyfunc.Keyfunc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kf != nil {
		return c.kf, nil
	}

	parsed, errURL := url.ParseRequestURI(c.url)
	if errURL != nil {
		return nil, fmt.Errorf("lineauth: jwks url: %w", errURL)
	}
	remote, errRemote := jwkset.NewStorageFromHTTP(parsed, jwkset.HTTPClientStorageOptions{
		Client:          c.httpClient,
		Ctx:             context.Background(),
		RefreshInterval: time.Hour,
	})
	if errRemote != nil {
		return nil, fmt.Errorf("lineauth: jwks fetch: %w", errRemote)
	}
	storage, errStorage := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          map[string]jwkset.Storage{c.url: remote},
		RefreshUnknownKID: rate.NewLimiter(rate.Every(jwksRefreshInterval), 1),
	})
	if errStorage != nil {
		return nil, fmt.Errorf("lineauth: jwks storage: %w", errStorage)
	}
	kf, errKeyfunc := keyfunc.New(keyfunc.Options{Ctx: context.Background(), Storage: storage})
	if errKeyfunc != nil {
		return nil, fmt.Errorf("lineauth: jwks keyfunc: %w", errKeyfunc)
	}
	c.kf = kf
	return kf, nil
}
