package devops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

// DefaultTimeout bounds requests that do not touch snapshots.
const DefaultTimeout = 2 * time.Minute

// StatusError is a non-2xx reply of the lab agent.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lab agent returned %d: %s", e.Code, e.Message)
}

// AgentClient is the LabController backed by a lab agent.
type AgentClient struct {
	baseURL string
	env     string
	http    *http.Client
	log     logr.Logger
}

var _ LabController = &AgentClient{}

// NewAgentClient returns a client for environment env served by the lab
// agent at addr ("host:port").
func NewAgentClient(addr string, env string) *AgentClient {
	return &AgentClient{
		baseURL: "http://" + addr,
		env:     env,
		// snapshot operations take minutes, callers bound them through ctx
		http: &http.Client{},
		log:  logf.Log.WithName("devops").WithValues("env", env),
	}
}

func (c *AgentClient) envPath(parts ...string) string {
	escaped := []string{"envs", url.PathEscape(c.env)}
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

func (c *AgentClient) sendRequest(ctx context.Context, method, target string, data interface{}, out interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && method == http.MethodGet {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}
	reqData := new(bytes.Buffer)
	if data != nil {
		if err := json.NewEncoder(reqData).Encode(data); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqData)
	if err != nil {
		return err
	}
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "lab agent %s %s", method, target)
	}
	defer resp.Body.Close()
	bodyBytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e ErrorResponse
		if json.Unmarshal(bodyBytes, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(bodyBytes))
		}
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil || len(bodyBytes) == 0 {
		return nil
	}
	return json.Unmarshal(bodyBytes, out)
}

func (c *AgentClient) RevertSnapshot(ctx context.Context, name string) error {
	c.log.Info("Reverting snapshot", "snapshot", name)
	err := c.sendRequest(ctx, http.MethodPost, c.envPath("snapshots", name, "revert"), nil, nil)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return errors.Wrapf(ErrSnapshotNotFound, "%s: %s", name, se.Message)
	}
	return err
}

func (c *AgentClient) MakeSnapshot(ctx context.Context, name string, description string) error {
	c.log.Info("Making snapshot", "snapshot", name)
	return c.sendRequest(ctx, http.MethodPost, c.envPath("snapshots"), SnapshotRequest{Name: name, Description: description}, nil)
}

func (c *AgentClient) ListSnapshots(ctx context.Context) ([]string, error) {
	var list SnapshotList
	if err := c.sendRequest(ctx, http.MethodGet, c.envPath("snapshots"), nil, &list); err != nil {
		return nil, err
	}
	return list.Snapshots, nil
}

func (c *AgentClient) HasSnapshot(ctx context.Context, name string) (bool, error) {
	snapshots, err := c.ListSnapshots(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range snapshots {
		if s == name {
			return true, nil
		}
	}
	return false, nil
}

func (c *AgentClient) StartNodes(ctx context.Context, nodes []string) error {
	c.log.Info("Starting nodes", "nodes", nodes)
	return c.sendRequest(ctx, http.MethodPost, c.envPath("nodes", "start"), NodeList{Nodes: nodes}, nil)
}

func (c *AgentClient) DestroyNodes(ctx context.Context, nodes []string) error {
	c.log.Info("Destroying nodes", "nodes", nodes)
	return c.sendRequest(ctx, http.MethodPost, c.envPath("nodes", "destroy"), NodeList{Nodes: nodes}, nil)
}

func (c *AgentClient) PowerOffNode(ctx context.Context, node string) error {
	c.log.Info("Power off", "node", node)
	return c.sendRequest(ctx, http.MethodPost, c.envPath("nodes", node, "poweroff"), nil, nil)
}

func (c *AgentClient) PowerOnNode(ctx context.Context, node string) error {
	c.log.Info("Power on", "node", node)
	return c.sendRequest(ctx, http.MethodPost, c.envPath("nodes", node, "poweron"), nil, nil)
}

func (c *AgentClient) nodeState(ctx context.Context, node string) (*NodeState, error) {
	var state NodeState
	if err := c.sendRequest(ctx, http.MethodGet, c.envPath("nodes", node), nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *AgentClient) NodeStatus(ctx context.Context, node string) (string, error) {
	state, err := c.nodeState(ctx, node)
	if err != nil {
		return "", err
	}
	return state.Status, nil
}

// NodeMacs returns the MAC addresses of the node interfaces.
func (c *AgentClient) NodeMacs(ctx context.Context, node string) ([]string, error) {
	state, err := c.nodeState(ctx, node)
	if err != nil {
		return nil, err
	}
	return state.Macs, nil
}

func (c *AgentClient) AdminIP(ctx context.Context) (string, error) {
	var addr AdminAddress
	if err := c.sendRequest(ctx, http.MethodGet, c.envPath("admin"), nil, &addr); err != nil {
		return "", err
	}
	if addr.IP == "" {
		return "", errors.New("lab agent reported no admin address")
	}
	return addr.IP, nil
}

func (c *AgentClient) SyncTime(ctx context.Context, nodes []string) error {
	c.log.Info("Syncing time", "nodes", nodes)
	return c.sendRequest(ctx, http.MethodPost, c.envPath("time-sync"), NodeList{Nodes: nodes}, nil)
}

// IsAgentReachable checks that the lab agent answers at all.
func (c *AgentClient) IsAgentReachable(ctx context.Context) error {
	return c.sendRequest(ctx, http.MethodGet, c.baseURL+"/", nil, nil)
}
