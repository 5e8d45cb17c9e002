package nailgun

import (
	"context"
	"net/http"

	"github.com/go-openapi/runtime"
	"github.com/go-openapi/strfmt"
	"github.com/pkg/errors"
)

func (c *RestClient) FuelVersion(ctx context.Context) (*FuelVersion, error) {
	var out FuelVersion
	if err := c.submit(ctx, "getVersion", http.MethodGet, "/api/version", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RestClient) ListReleases(ctx context.Context) ([]Release, error) {
	var out []Release
	if err := c.submit(ctx, "listReleases", http.MethodGet, "/api/releases", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RestClient) ListClusters(ctx context.Context) ([]Cluster, error) {
	var out []Cluster
	if err := c.submit(ctx, "listClusters", http.MethodGet, "/api/clusters", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RestClient) GetCluster(ctx context.Context, clusterID int) (*Cluster, error) {
	var out Cluster
	err := c.submit(ctx, "getCluster", http.MethodGet, "/api/clusters/{cluster_id}",
		pathParam("cluster_id", clusterID), &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCluster validates spec and creates the cluster.
func (c *RestClient) CreateCluster(ctx context.Context, spec ClusterSpec) (*Cluster, error) {
	if err := spec.Validate(strfmt.Default); err != nil {
		return nil, errors.Wrap(err, "invalid cluster spec")
	}
	var out Cluster
	if err := c.submit(ctx, "createCluster", http.MethodPost, "/api/clusters", bodyParam(spec), &out); err != nil {
		return nil, err
	}
	c.log.Info("Cluster created", "id", out.ID, "name", out.Name)
	return &out, nil
}

func (c *RestClient) DeleteCluster(ctx context.Context, clusterID int) error {
	return c.submit(ctx, "deleteCluster", http.MethodDelete, "/api/clusters/{cluster_id}",
		pathParam("cluster_id", clusterID), nil)
}

func (c *RestClient) GetClusterAttributes(ctx context.Context, clusterID int) (Attributes, error) {
	out := Attributes{}
	err := c.submit(ctx, "getClusterAttributes", http.MethodGet, "/api/clusters/{cluster_id}/attributes",
		pathParam("cluster_id", clusterID), &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RestClient) UpdateClusterAttributes(ctx context.Context, clusterID int, attrs Attributes) error {
	return c.submit(ctx, "updateClusterAttributes", http.MethodPut, "/api/clusters/{cluster_id}/attributes",
		allParams(pathParam("cluster_id", clusterID), bodyParam(attrs)), nil)
}

func (c *RestClient) DeployClusterChanges(ctx context.Context, clusterID int) (*Task, error) {
	var out Task
	err := c.submit(ctx, "deployClusterChanges", http.MethodPut, "/api/clusters/{cluster_id}/changes",
		pathParam("cluster_id", clusterID), &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RestClient) ProvisionNodes(ctx context.Context, clusterID int, nodeIDs []int) (*Task, error) {
	return c.nodesAction(ctx, "provisionNodes", "/api/clusters/{cluster_id}/provision", clusterID, nodeIDs)
}

func (c *RestClient) DeployNodes(ctx context.Context, clusterID int, nodeIDs []int) (*Task, error) {
	return c.nodesAction(ctx, "deployNodes", "/api/clusters/{cluster_id}/deploy", clusterID, nodeIDs)
}

func (c *RestClient) nodesAction(ctx context.Context, opID, pathPattern string, clusterID int, nodeIDs []int) (*Task, error) {
	if len(nodeIDs) == 0 {
		return nil, errors.Errorf("%s: no nodes given", opID)
	}
	var out Task
	params := allParams(pathParam("cluster_id", clusterID), func(req runtime.ClientRequest) error {
		return req.SetQueryParam("nodes", joinIDs(nodeIDs))
	})
	if err := c.submit(ctx, opID, http.MethodPut, pathPattern, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RestClient) GetTask(ctx context.Context, taskID int) (*Task, error) {
	var out Task
	if err := c.submit(ctx, "getTask", http.MethodGet, "/api/tasks/{task_id}", pathParam("task_id", taskID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RestClient) ListTasks(ctx context.Context) ([]Task, error) {
	var out []Task
	if err := c.submit(ctx, "listTasks", http.MethodGet, "/api/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func providerParams(clusterID int, provider string) requestParams {
	return allParams(pathParam("cluster_id", clusterID), func(req runtime.ClientRequest) error {
		return req.SetPathParam("provider", provider)
	})
}

func (c *RestClient) GetNetworkConfiguration(ctx context.Context, clusterID int, provider string) (NetworkConfiguration, error) {
	out := NetworkConfiguration{}
	err := c.submit(ctx, "getNetworkConfiguration", http.MethodGet,
		"/api/clusters/{cluster_id}/network_configuration/{provider}", providerParams(clusterID, provider), &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RestClient) UpdateNetworkConfiguration(ctx context.Context, clusterID int, provider string, cfg NetworkConfiguration) (*Task, error) {
	var out Task
	err := c.submit(ctx, "updateNetworkConfiguration", http.MethodPut,
		"/api/clusters/{cluster_id}/network_configuration/{provider}",
		allParams(providerParams(clusterID, provider), bodyParam(cfg)), &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RestClient) VerifyNetworks(ctx context.Context, clusterID int, provider string, cfg NetworkConfiguration) (*Task, error) {
	var out Task
	err := c.submit(ctx, "verifyNetworks", http.MethodPut,
		"/api/clusters/{cluster_id}/network_configuration/{provider}/verify",
		allParams(providerParams(clusterID, provider), bodyParam(cfg)), &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RestClient) ListPlugins(ctx context.Context) ([]Plugin, error) {
	var out []Plugin
	if err := c.submit(ctx, "listPlugins", http.MethodGet, "/api/plugins", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
