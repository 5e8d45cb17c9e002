// Package nailgun is a client for the Fuel master node REST API (Nailgun),
// its health check service (OSTF) and the configuration DB extension.
package nailgun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-openapi/runtime"
	httptransport "github.com/go-openapi/runtime/client"
	"github.com/go-openapi/strfmt"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

// Client is the set of Nailgun operations the suites rely on.
type Client interface {
	FuelVersion(ctx context.Context) (*FuelVersion, error)
	ListReleases(ctx context.Context) ([]Release, error)

	ListClusters(ctx context.Context) ([]Cluster, error)
	GetCluster(ctx context.Context, clusterID int) (*Cluster, error)
	CreateCluster(ctx context.Context, spec ClusterSpec) (*Cluster, error)
	DeleteCluster(ctx context.Context, clusterID int) error
	GetClusterAttributes(ctx context.Context, clusterID int) (Attributes, error)
	UpdateClusterAttributes(ctx context.Context, clusterID int, attrs Attributes) error

	ListNodes(ctx context.Context) ([]Node, error)
	ListClusterNodes(ctx context.Context, clusterID int) ([]Node, error)
	UpdateNodes(ctx context.Context, updates []NodeUpdate) ([]Node, error)

	DeployClusterChanges(ctx context.Context, clusterID int) (*Task, error)
	ProvisionNodes(ctx context.Context, clusterID int, nodeIDs []int) (*Task, error)
	DeployNodes(ctx context.Context, clusterID int, nodeIDs []int) (*Task, error)
	GetTask(ctx context.Context, taskID int) (*Task, error)
	ListTasks(ctx context.Context) ([]Task, error)

	GetNetworkConfiguration(ctx context.Context, clusterID int, provider string) (NetworkConfiguration, error)
	UpdateNetworkConfiguration(ctx context.Context, clusterID int, provider string, cfg NetworkConfiguration) (*Task, error)
	VerifyNetworks(ctx context.Context, clusterID int, provider string, cfg NetworkConfiguration) (*Task, error)

	ListPlugins(ctx context.Context) ([]Plugin, error)

	ListTags(ctx context.Context) ([]Tag, error)
	CreateTag(ctx context.Context, tag Tag) (*Tag, error)
	DeleteTag(ctx context.Context, tagID int) error
	AssignTags(ctx context.Context, nodeID int, tagIDs []int) error
	UnassignTags(ctx context.Context, nodeID int, tagIDs []int) error

	ListOSTFTestSets(ctx context.Context, clusterID int) ([]OSTFTestSet, error)
	StartOSTFTestSets(ctx context.Context, clusterID int, testSets []string) ([]OSTFTestRun, error)
	LastOSTFTestRuns(ctx context.Context, clusterID int) ([]OSTFTestRun, error)

	CreateComponent(ctx context.Context, component Component) (*Component, error)
	GetComponent(ctx context.Context, componentID int) (*Component, error)
	CreateConfigEnvironment(ctx context.Context, env ConfigEnvironment) (*ConfigEnvironment, error)
	PutResourceValues(ctx context.Context, envID int, resource string, values map[string]interface{}) error
	GetResourceValues(ctx context.Context, envID int, resource string, effective bool) (map[string]interface{}, error)
}

// Config locates the master node API.
type Config struct {
	// Host is "address:port" of the master node API.
	Host     string
	SSL      bool
	User     string
	Password string
	Tenant   string
	Timeout  time.Duration
}

// RestClient implements Client over HTTP.
type RestClient struct {
	runtime *httptransport.Runtime
	tokens  TokenSource
	timeout time.Duration
	log     logr.Logger
}

var _ Client = &RestClient{}

// New returns a client authenticating through the master node keystone.
func New(cfg Config) *RestClient {
	schemes := []string{"http"}
	if cfg.SSL {
		schemes = []string{"https"}
	}
	rt := httptransport.New(cfg.Host, "/", schemes)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = httptransport.DefaultTimeout
	}
	return &RestClient{
		runtime: rt,
		timeout: timeout,
		tokens:  NewKeystoneAuth(rt, cfg.User, cfg.Password, cfg.Tenant),
		log:     logf.Log.WithName("nailgun"),
	}
}

// NewWithTokenSource is New with a caller supplied token source.
func NewWithTokenSource(cfg Config, tokens TokenSource) *RestClient {
	c := New(cfg)
	c.tokens = tokens
	return c
}

type requestParams func(req runtime.ClientRequest) error

// submit runs one operation, decoding a 2xx body into out when out is not nil.
// Other status codes yield a *runtime.APIError carrying the response body.
// A token rejected with 401 is invalidated and the operation retried once
// with a fresh one.
func (c *RestClient) submit(ctx context.Context, opID, method, pathPattern string, params requestParams, out interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.submitOnce(ctx, opID, method, pathPattern, params, out)
	if StatusCode(err) == http.StatusUnauthorized {
		if inv, ok := c.tokens.(Invalidator); ok {
			c.log.V(1).Info("Token rejected, authenticating again", "operation", opID)
			inv.Invalidate()
			err = c.submitOnce(ctx, opID, method, pathPattern, params, out)
		}
	}
	if err != nil {
		c.log.V(1).Info("Request failed", "operation", opID, "method", method, "path", pathPattern, "error", err)
	}
	return err
}

func (c *RestClient) submitOnce(ctx context.Context, opID, method, pathPattern string, params requestParams, out interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	_, err = c.runtime.Submit(&runtime.ClientOperation{
		ID:                 opID,
		Method:             method,
		PathPattern:        pathPattern,
		ProducesMediaTypes: []string{runtime.JSONMime},
		ConsumesMediaTypes: []string{runtime.JSONMime},
		AuthInfo:           httptransport.APIKeyAuth("X-Auth-Token", "header", token),
		Params: runtime.ClientRequestWriterFunc(func(req runtime.ClientRequest, _ strfmt.Registry) error {
			if err := req.SetTimeout(c.timeout); err != nil {
				return err
			}
			if params == nil {
				return nil
			}
			return params(req)
		}),
		Reader: runtime.ClientResponseReaderFunc(func(resp runtime.ClientResponse, consumer runtime.Consumer) (interface{}, error) {
			return readResponse(opID, resp, consumer, out)
		}),
		Context: ctx,
	})
	return err
}

func readResponse(opID string, resp runtime.ClientResponse, consumer runtime.Consumer, out interface{}) (interface{}, error) {
	if resp.Code() < 200 || resp.Code() > 299 {
		body, _ := ioutil.ReadAll(resp.Body())
		return nil, runtime.NewAPIError(opID, strings.TrimSpace(string(body)), resp.Code())
	}
	if out == nil || resp.Code() == http.StatusNoContent {
		return nil, nil
	}
	if err := consumer.Consume(resp.Body(), out); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%s: decoding response: %v", opID, err)
	}
	return out, nil
}

// StatusCode returns the HTTP status of a failed request, or 0. Wrapped
// errors are unwrapped.
func StatusCode(err error) int {
	var apiErr *runtime.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func pathParam(name string, value int) requestParams {
	return func(req runtime.ClientRequest) error {
		return req.SetPathParam(name, strconv.Itoa(value))
	}
}

func bodyParam(body interface{}) requestParams {
	return func(req runtime.ClientRequest) error {
		return req.SetBodyParam(body)
	}
}

func allParams(params ...requestParams) requestParams {
	return func(req runtime.ClientRequest) error {
		for _, p := range params {
			if err := p(req); err != nil {
				return err
			}
		}
		return nil
	}
}

func joinIDs(ids []int) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.Itoa(id))
	}
	return strings.Join(parts, ",")
}
