package nailgun

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-openapi/runtime"
)

func (c *RestClient) CreateComponent(ctx context.Context, component Component) (*Component, error) {
	var out Component
	if err := c.submit(ctx, "createComponent", http.MethodPost, "/api/config/components", bodyParam(component), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RestClient) GetComponent(ctx context.Context, componentID int) (*Component, error) {
	var out Component
	err := c.submit(ctx, "getComponent", http.MethodGet, "/api/config/components/{component_id}",
		pathParam("component_id", componentID), &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RestClient) CreateConfigEnvironment(ctx context.Context, env ConfigEnvironment) (*ConfigEnvironment, error) {
	var out ConfigEnvironment
	if err := c.submit(ctx, "createConfigEnvironment", http.MethodPost, "/api/config/environments", bodyParam(env), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func resourceParams(envID int, resource string) requestParams {
	return allParams(pathParam("env_id", envID), func(req runtime.ClientRequest) error {
		return req.SetPathParam("resource", resource)
	})
}

// PutResourceValues sets the environment level values of a resource,
// addressed by definition name or id.
func (c *RestClient) PutResourceValues(ctx context.Context, envID int, resource string, values map[string]interface{}) error {
	return c.submit(ctx, "putResourceValues", http.MethodPut,
		"/api/config/environments/{env_id}/resources/{resource}/values",
		allParams(resourceParams(envID, resource), bodyParam(values)), nil)
}

// GetResourceValues reads the values of a resource; effective merges all
// hierarchy levels instead of returning the environment level only.
func (c *RestClient) GetResourceValues(ctx context.Context, envID int, resource string, effective bool) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	params := resourceParams(envID, resource)
	if effective {
		params = allParams(params, func(req runtime.ClientRequest) error {
			return req.SetQueryParam("effective", strconv.FormatBool(true))
		})
	}
	err := c.submit(ctx, "getResourceValues", http.MethodGet,
		"/api/config/environments/{env_id}/resources/{resource}/values", params, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}
