package node_tags

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/openstack-archive/fuel-qa-sub001/common"
	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/fueltest"
	"github.com/openstack-archive/fuel-qa-sub001/common/nailgun"
)

const (
	clusterName = "node_tags"
	tagName     = "custom-monitoring"
	// node tags appeared in Fuel 9.0
	minVersion = "9.0"
)

func findTag(tags []nailgun.Tag, name string, clusterID int) *nailgun.Tag {
	for i := range tags {
		if tags[i].Tag == name && tags[i].OwnerType == "cluster" && tags[i].OwnerID == clusterID {
			return &tags[i]
		}
	}
	return nil
}

func ManageClusterTag(ctx context.Context) {
	tb := fueltest.Env()
	failure.Raise(tb.RevertSnapshot(ctx, common.SnapshotReady3Slaves))
	ok, err := tb.FuelWeb.FuelVersionAtLeast(ctx, minVersion)
	failure.Raise(err)
	if !ok {
		Skip("node tags require Fuel " + minVersion)
	}

	fw := tb.FuelWeb
	client := fw.Client
	clusterID, err := fw.CreateCluster(ctx, clusterName, common.DeploymentModeHA, tb.ClusterSettings(nil))
	Expect(err).ToNot(HaveOccurred())
	nodes, err := fw.UpdateNodes(ctx, clusterID, map[string][]string{
		common.NodeName(1): {common.RoleController},
		common.NodeName(2): {common.RoleCompute},
	}, true)
	Expect(err).ToNot(HaveOccurred())
	Expect(nodes).To(HaveLen(2))

	By("creating a tag")
	created, err := client.CreateTag(ctx, nailgun.Tag{
		Tag:       tagName,
		OwnerType: "cluster",
		OwnerID:   clusterID,
	})
	failure.Raise(err)
	tags, err := client.ListTags(ctx)
	failure.Raise(err)
	if findTag(tags, tagName, clusterID) == nil {
		failure.Prod("tag_missing", fmt.Sprintf("tag %s of cluster %d is not listed", tagName, clusterID))
	}

	By("assigning the tag")
	for _, n := range nodes {
		failure.Raise(client.AssignTags(ctx, n.ID, []int{created.ID}))
	}
	logf.Log.Info("Tag assigned", "tag", created.ID, "nodes", len(nodes))

	By("unassigning the tag")
	for _, n := range nodes {
		failure.Raise(client.UnassignTags(ctx, n.ID, []int{created.ID}))
	}

	By("deleting the tag")
	failure.Raise(client.DeleteTag(ctx, created.ID))
	tags, err = client.ListTags(ctx)
	failure.Raise(err)
	if findTag(tags, tagName, clusterID) != nil {
		failure.Prod("tag_not_deleted", fmt.Sprintf("tag %s of cluster %d is still listed", tagName, clusterID))
	}
}
