// Package nessus drives security scans through the Nessus REST API.
package nessus

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

// StatusError is a non-2xx reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nessus returned %d: %s", e.Code, e.Body)
}

const (
	tokenKey = "token"
	tokenTTL = 30 * time.Minute
)

// Client is a Nessus session.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	tokens   *cache.Cache
	log      logr.Logger
}

// New returns a client for the scanner at baseURL, e.g. https://10.109.0.10:8834.
// Certificate checks are skipped unless verifySSL is set; scanners ship
// self signed certificates.
func New(baseURL, username, password string, verifySSL bool) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: !verifySSL}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http:     &http.Client{Transport: transport, Timeout: 2 * time.Minute},
		tokens:   cache.New(tokenTTL, 10*time.Minute),
		log:      logf.Log.WithName("nessus"),
	}
}

func (c *Client) do(ctx context.Context, method, path, token string, data interface{}) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var body io.Reader
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Accept", "application/json")
	if data != nil {
		req.Header.Add("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Add("X-Cookie", "token="+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "nessus %s %s", method, path)
	}
	defer resp.Body.Close()
	bodyBytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}
	return bodyBytes, nil
}

// Login opens a session and caches its token.
func (c *Client) Login(ctx context.Context) (string, error) {
	if token, ok := c.tokens.Get(tokenKey); ok {
		return token.(string), nil
	}
	data, err := c.do(ctx, http.MethodPost, "/session", "", map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return "", errors.Wrapf(err, "nessus login as %s", c.username)
	}
	token := gjson.GetBytes(data, "token").String()
	if token == "" {
		return "", errors.New("nessus login returned no token")
	}
	c.tokens.SetDefault(tokenKey, token)
	return token, nil
}

// Logout closes the session.
func (c *Client) Logout(ctx context.Context) error {
	token, ok := c.tokens.Get(tokenKey)
	if !ok {
		return nil
	}
	c.tokens.Delete(tokenKey)
	_, err := c.do(ctx, http.MethodDelete, "/session", token.(string), nil)
	return err
}

// sendRequest is do within the session, logging in again once when the
// token was rejected.
func (c *Client) sendRequest(ctx context.Context, method, path string, data interface{}) (gjson.Result, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.Login(ctx)
		if err != nil {
			return gjson.Result{}, err
		}
		body, err := c.do(ctx, method, path, token, data)
		var se *StatusError
		if attempt == 0 && errors.As(err, &se) && se.Code == http.StatusUnauthorized {
			c.tokens.Delete(tokenKey)
			continue
		}
		if err != nil {
			return gjson.Result{}, err
		}
		return gjson.ParseBytes(body), nil
	}
}
