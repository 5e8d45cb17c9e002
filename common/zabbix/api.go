package zabbix

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// API is a JSON-RPC session.
type API struct {
	url      string
	username string
	password string
	http     *http.Client

	mu    sync.Mutex
	auth  string
	reqID int
}

// NewAPI returns a client for baseURL, e.g. http://10.109.1.2/zabbix.
func NewAPI(baseURL, username, password string) *API {
	return &API{
		url:      strings.TrimRight(baseURL, "/") + "/api_jsonrpc.php",
		username: username,
		password: password,
		http:     &http.Client{Timeout: time.Minute},
	}
}

// RPCError is an error member of a JSON-RPC reply.
type RPCError struct {
	Code    int64
	Message string
	Data    string
}

func (e *RPCError) Error() string {
	return e.Message + " " + e.Data
}

func (a *API) call(ctx context.Context, method string, params interface{}, auth string) (gjson.Result, error) {
	a.mu.Lock()
	a.reqID++
	id := a.reqID
	a.mu.Unlock()

	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      id,
	}
	if auth != "" {
		req["auth"] = auth
	}
	b, err := json.Marshal(req)
	if err != nil {
		return gjson.Result{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(b))
	if err != nil {
		return gjson.Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json-rpc")
	resp, err := a.http.Do(httpReq)
	if err != nil {
		return gjson.Result{}, errors.Wrapf(err, "zabbix %s", method)
	}
	defer resp.Body.Close()
	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gjson.Result{}, &StatusError{Code: resp.StatusCode, URL: a.url}
	}
	res := gjson.ParseBytes(data)
	if e := res.Get("error"); e.Exists() {
		return gjson.Result{}, &RPCError{
			Code:    e.Get("code").Int(),
			Message: e.Get("message").String(),
			Data:    e.Get("data").String(),
		}
	}
	return res.Get("result"), nil
}

// Login authenticates and keeps the session id for later calls.
func (a *API) Login(ctx context.Context) error {
	res, err := a.call(ctx, "user.login", map[string]string{"user": a.username, "password": a.password}, "")
	if err != nil {
		return errors.Wrapf(err, "zabbix api login as %s", a.username)
	}
	a.mu.Lock()
	a.auth = res.String()
	a.mu.Unlock()
	return nil
}

func (a *API) session(ctx context.Context) (string, error) {
	a.mu.Lock()
	auth := a.auth
	a.mu.Unlock()
	if auth != "" {
		return auth, nil
	}
	if err := a.Login(ctx); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.auth, nil
}

// APITrigger is a trigger as returned by trigger.get.
type APITrigger struct {
	ID          string
	Description string
	Priority    int64
	Host        string
}

// ActiveTriggers returns the enabled triggers of monitored hosts that are
// in PROBLEM state.
func (a *API) ActiveTriggers(ctx context.Context) ([]APITrigger, error) {
	auth, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	res, err := a.call(ctx, "trigger.get", map[string]interface{}{
		"output":            []string{"triggerid", "description", "priority"},
		"filter":            map[string]interface{}{"value": 1},
		"selectHosts":       []string{"host"},
		"monitored":         true,
		"only_true":         true,
		"expandDescription": true,
	}, auth)
	if err != nil {
		return nil, err
	}
	var out []APITrigger
	for _, t := range res.Array() {
		out = append(out, APITrigger{
			ID:          t.Get("triggerid").String(),
			Description: t.Get("description").String(),
			Priority:    t.Get("priority").Int(),
			Host:        t.Get("hosts.0.host").String(),
		})
	}
	return out, nil
}

// HostNames returns the monitored host names.
func (a *API) HostNames(ctx context.Context) ([]string, error) {
	auth, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	res, err := a.call(ctx, "host.get", map[string]interface{}{"output": []string{"host"}}, auth)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, h := range res.Array() {
		out = append(out, h.Get("host").String())
	}
	return out, nil
}
