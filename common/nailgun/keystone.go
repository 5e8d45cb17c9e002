package nailgun

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-openapi/runtime"
	httptransport "github.com/go-openapi/runtime/client"
	"github.com/go-openapi/strfmt"
	"github.com/patrickmn/go-cache"
)

// TokenSource hands out a valid X-Auth-Token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Invalidator is implemented by token sources that cache tokens. A token
// rejected with 401 is dropped so that the next Token call logs in again.
type Invalidator interface {
	Invalidate()
}

// StaticToken always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

const tokenKey = "token"

// tokens are refreshed this long before keystone expires them
const tokenSlack = time.Minute

// KeystoneAuth obtains tokens from the keystone proxied by the master node.
type KeystoneAuth struct {
	runtime  *httptransport.Runtime
	user     string
	password string
	tenant   string

	mu    sync.Mutex
	cache *cache.Cache
}

func NewKeystoneAuth(rt *httptransport.Runtime, user, password, tenant string) *KeystoneAuth {
	return &KeystoneAuth{
		runtime:  rt,
		user:     user,
		password: password,
		tenant:   tenant,
		cache:    cache.New(cache.NoExpiration, 10*time.Minute),
	}
}

type keystoneRequest struct {
	Auth struct {
		TenantName          string `json:"tenantName"`
		PasswordCredentials struct {
			Username string `json:"username"`
			Password string `json:"password"`
		} `json:"passwordCredentials"`
	} `json:"auth"`
}

type keystoneResponse struct {
	Access struct {
		Token struct {
			ID      string `json:"id"`
			Expires string `json:"expires"`
		} `json:"token"`
	} `json:"access"`
}

// Token returns the cached token, authenticating again once it is close to expiry.
func (k *KeystoneAuth) Token(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if token, ok := k.cache.Get(tokenKey); ok {
		return token.(string), nil
	}

	var body keystoneRequest
	body.Auth.TenantName = k.tenant
	body.Auth.PasswordCredentials.Username = k.user
	body.Auth.PasswordCredentials.Password = k.password

	var out keystoneResponse
	_, err := k.runtime.Submit(&runtime.ClientOperation{
		ID:                 "keystoneTokens",
		Method:             "POST",
		PathPattern:        "/keystone/v2.0/tokens",
		ProducesMediaTypes: []string{runtime.JSONMime},
		ConsumesMediaTypes: []string{runtime.JSONMime},
		Params: runtime.ClientRequestWriterFunc(func(req runtime.ClientRequest, _ strfmt.Registry) error {
			return req.SetBodyParam(body)
		}),
		Reader: runtime.ClientResponseReaderFunc(func(resp runtime.ClientResponse, consumer runtime.Consumer) (interface{}, error) {
			return readResponse("keystoneTokens", resp, consumer, &out)
		}),
		Context: ctx,
	})
	if err != nil {
		return "", fmt.Errorf("keystone authentication as %s failed: %w", k.user, err)
	}
	if out.Access.Token.ID == "" {
		return "", fmt.Errorf("keystone returned no token for %s", k.user)
	}

	ttl := cache.DefaultExpiration
	if expires, err := time.Parse(time.RFC3339, out.Access.Token.Expires); err == nil {
		ttl = time.Until(expires) - tokenSlack
		if ttl <= 0 {
			ttl = time.Second
		}
	}
	k.cache.Set(tokenKey, out.Access.Token.ID, ttl)
	return out.Access.Token.ID, nil
}

// Invalidate drops the cached token.
func (k *KeystoneAuth) Invalidate() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cache.Delete(tokenKey)
}
