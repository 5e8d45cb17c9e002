package nailgun

import (
	"context"
	"net/http"
)

func (c *RestClient) ListOSTFTestSets(ctx context.Context, clusterID int) ([]OSTFTestSet, error) {
	var out []OSTFTestSet
	err := c.submit(ctx, "listOSTFTestSets", http.MethodGet, "/ostf/testsets/{cluster_id}",
		pathParam("cluster_id", clusterID), &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StartOSTFTestSets starts one run per test set.
func (c *RestClient) StartOSTFTestSets(ctx context.Context, clusterID int, testSets []string) ([]OSTFTestRun, error) {
	body := make([]ostfTestRunRequest, 0, len(testSets))
	for _, set := range testSets {
		var r ostfTestRunRequest
		r.TestSet = set
		r.Metadata.ClusterID = clusterID
		r.Metadata.Config = map[string]interface{}{}
		body = append(body, r)
	}
	var out []OSTFTestRun
	if err := c.submit(ctx, "startOSTFTestRuns", http.MethodPost, "/ostf/testruns", bodyParam(body), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RestClient) LastOSTFTestRuns(ctx context.Context, clusterID int) ([]OSTFTestRun, error) {
	var out []OSTFTestRun
	err := c.submit(ctx, "lastOSTFTestRuns", http.MethodGet, "/ostf/testruns/last/{cluster_id}",
		pathParam("cluster_id", clusterID), &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}
