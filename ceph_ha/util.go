package ceph_ha

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/openstack-archive/fuel-qa-sub001/common"
	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/fuelweb"
	"github.com/openstack-archive/fuel-qa-sub001/common/fueltest"
	"github.com/openstack-archive/fuel-qa-sub001/common/openstack"
)

const (
	clusterName = "ceph_ha"
	snapshot    = "ceph_ha"
)

func DeployCephHA(ctx context.Context) {
	tb := fueltest.Env()
	tb.CheckRunOrSkip(ctx, snapshot)
	failure.Raise(tb.RevertSnapshot(ctx, common.SnapshotReady5Slaves))

	fw := tb.FuelWeb
	clusterID, err := fw.CreateCluster(ctx, clusterName, common.DeploymentModeHA, tb.ClusterSettings(fuelweb.Settings{
		"volumes_ceph":          true,
		"images_ceph":           true,
		"ephemeral_ceph":        true,
		"objects_ceph":          true,
		"volumes_lvm":           false,
		"osd_pool_size":         "2",
		fuelweb.SettingTenant:   "cephHA",
		fuelweb.SettingUser:     "cephHA",
		fuelweb.SettingPassword: "cephHA",
	}))
	Expect(err).ToNot(HaveOccurred())

	_, err = fw.UpdateNodes(ctx, clusterID, map[string][]string{
		common.NodeName(1): {common.RoleController, common.RoleCephOSD},
		common.NodeName(2): {common.RoleController, common.RoleCephOSD},
		common.NodeName(3): {common.RoleController, common.RoleCephOSD},
		common.NodeName(4): {common.RoleCompute, common.RoleCephOSD},
		common.NodeName(5): {common.RoleCompute, common.RoleCephOSD},
	}, true)
	Expect(err).ToNot(HaveOccurred())

	By("deploying")
	failure.Raise(fw.DeployClusterWait(ctx, clusterID))
	failure.Raise(fw.VerifyNetwork(ctx, clusterID))

	By("checking ceph")
	failure.Raise(fw.CheckCephHealth(ctx, clusterID, 10*time.Minute))

	By("running OSTF")
	_, err = fw.RunOSTF(ctx, clusterID, []string{common.OSTFSetSmoke, common.OSTFSetSanity, common.OSTFSetHA},
		fuelweb.OSTFOpts{})
	failure.Raise(err)

	Expect(tb.MakeSnapshot(ctx, snapshot, true)).To(Succeed())
}

func MigrateInstance(ctx context.Context) {
	tb := fueltest.Env()
	failure.Raise(tb.RevertSnapshot(ctx, snapshot))

	clusters, err := tb.FuelWeb.Client.ListClusters(ctx)
	Expect(err).ToNot(HaveOccurred())
	Expect(clusters).To(HaveLen(1))
	cloud, err := tb.OpenStack(ctx, clusters[0].ID)
	failure.Raise(err)

	hypervisors, err := cloud.ListHypervisors()
	Expect(err).ToNot(HaveOccurred())
	Expect(len(hypervisors)).To(BeNumerically(">=", 2), "live migration needs two computes")

	timeout := 10 * time.Minute
	image, err := cloud.FindImage("TestVM")
	failure.Raise(err)
	network, err := cloud.FindNetwork("admin_internal_net")
	failure.Raise(err)
	flavor, err := cloud.CreateFlavor(openstack.RandName("flavor"), 64, 1, 1)
	Expect(err).ToNot(HaveOccurred())
	defer func() { _ = openstack.IgnoreNotFound(cloud.DeleteFlavor(flavor.ID)) }()

	server, err := cloud.CreateServer(openstack.ServerOpts{
		Name:      openstack.RandName("vm"),
		FlavorID:  flavor.ID,
		ImageID:   image.ID,
		NetworkID: network.ID,
	})
	Expect(err).ToNot(HaveOccurred())
	defer func() {
		if err := openstack.IgnoreNotFound(cloud.DeleteServer(server.ID)); err == nil {
			_ = cloud.WaitServerDeleted(server.ID, timeout)
		}
	}()
	server, err = cloud.WaitServerStatus(server.ID, "ACTIVE", timeout)
	failure.Raise(err)

	By("migrating the instance")
	migrated, err := cloud.MigrateServer(server.ID, true, timeout)
	failure.Raise(err)
	logf.Log.Info("Instance migrated", "from", server.HostID, "to", migrated.HostID)
	Expect(migrated.HostID).ToNot(Equal(server.HostID))

	failure.Raise(tb.FuelWeb.CheckCephHealth(ctx, clusters[0].ID, 5*time.Minute))
}
