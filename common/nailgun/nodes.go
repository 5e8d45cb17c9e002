package nailgun

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-openapi/runtime"
)

func (c *RestClient) ListNodes(ctx context.Context) ([]Node, error) {
	var out []Node
	if err := c.submit(ctx, "listNodes", http.MethodGet, "/api/nodes", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RestClient) ListClusterNodes(ctx context.Context, clusterID int) ([]Node, error) {
	var out []Node
	err := c.submit(ctx, "listClusterNodes", http.MethodGet, "/api/nodes", func(req runtime.ClientRequest) error {
		return req.SetQueryParam("cluster_id", strconv.Itoa(clusterID))
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateNodes applies a bulk update and returns the updated nodes.
func (c *RestClient) UpdateNodes(ctx context.Context, updates []NodeUpdate) ([]Node, error) {
	var out []Node
	if err := c.submit(ctx, "updateNodes", http.MethodPut, "/api/nodes", bodyParam(updates), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RestClient) ListTags(ctx context.Context) ([]Tag, error) {
	var out []Tag
	if err := c.submit(ctx, "listTags", http.MethodGet, "/api/tags", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RestClient) CreateTag(ctx context.Context, tag Tag) (*Tag, error) {
	var out Tag
	if err := c.submit(ctx, "createTag", http.MethodPost, "/api/tags", bodyParam(tag), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RestClient) DeleteTag(ctx context.Context, tagID int) error {
	return c.submit(ctx, "deleteTag", http.MethodDelete, "/api/tags/{tag_id}", pathParam("tag_id", tagID), nil)
}

func (c *RestClient) AssignTags(ctx context.Context, nodeID int, tagIDs []int) error {
	return c.submit(ctx, "assignTags", http.MethodPost, "/api/nodes/{node_id}/tags",
		allParams(pathParam("node_id", nodeID), bodyParam(tagIDs)), nil)
}

func (c *RestClient) UnassignTags(ctx context.Context, nodeID int, tagIDs []int) error {
	return c.submit(ctx, "unassignTags", http.MethodDelete, "/api/nodes/{node_id}/tags",
		allParams(pathParam("node_id", nodeID), func(req runtime.ClientRequest) error {
			return req.SetQueryParam("tags", joinIDs(tagIDs))
		}), nil)
}
