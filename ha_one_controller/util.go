package ha_one_controller

import (
	"context"
	"sort"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/openstack-archive/fuel-qa-sub001/common"
	"github.com/openstack-archive/fuel-qa-sub001/common/checkers"
	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/fuelweb"
	"github.com/openstack-archive/fuel-qa-sub001/common/fueltest"
	"github.com/openstack-archive/fuel-qa-sub001/common/openstack"
)

const (
	clusterName = "ha_one_controller"
	snapshot    = "deploy_ha_one_controller_neutron"
	// cirros image uploaded by the deployment
	testImage = "TestVM"
)

func DeployHAOneController(ctx context.Context) {
	tb := fueltest.Env()
	tb.CheckRunOrSkip(ctx, snapshot)
	failure.Raise(tb.RevertSnapshot(ctx, common.SnapshotReady3Slaves))

	fw := tb.FuelWeb
	clusterID, err := fw.CreateCluster(ctx, clusterName, common.DeploymentModeHA, tb.ClusterSettings(fuelweb.Settings{
		fuelweb.SettingTenant:   "haOneController",
		fuelweb.SettingUser:     "haOneController",
		fuelweb.SettingPassword: "haOneController",
	}))
	Expect(err).ToNot(HaveOccurred())

	_, err = fw.UpdateNodes(ctx, clusterID, map[string][]string{
		common.NodeName(1): {common.RoleController},
		common.NodeName(2): {common.RoleCompute},
		common.NodeName(3): {common.RoleCinder},
	}, true)
	Expect(err).ToNot(HaveOccurred())

	By("deploying")
	failure.Raise(fw.DeployClusterWait(ctx, clusterID))

	By("verifying networks")
	failure.Raise(fw.VerifyNetwork(ctx, clusterID))

	By("checking the controller")
	controllers, err := fw.NodeIPsByRole(ctx, clusterID, common.RoleController)
	Expect(err).ToNot(HaveOccurred())
	Expect(controllers).To(HaveLen(1))
	failure.Raise(checkers.CheckFreeSpace(ctx, tb.Remote, controllers[0], "/", 1024))
	failure.Raise(checkers.CheckFreeInodes(ctx, tb.Remote, controllers[0], "/", 10000))
	for _, service := range []string{"nova-api", "neutron-server", "cinder-scheduler"} {
		failure.Raise(checkers.CheckServiceRunning(ctx, tb.Remote, controllers[0], service))
	}

	By("running OSTF")
	_, err = fw.RunOSTF(ctx, clusterID, []string{common.OSTFSetSmoke, common.OSTFSetSanity, common.OSTFSetHA},
		fuelweb.OSTFOpts{})
	failure.Raise(err)

	Expect(tb.MakeSnapshot(ctx, snapshot, true)).To(Succeed())
}

func BootInstanceWithVolume(ctx context.Context) {
	tb := fueltest.Env()
	failure.Raise(tb.RevertSnapshot(ctx, snapshot))

	clusters, err := tb.FuelWeb.Client.ListClusters(ctx)
	Expect(err).ToNot(HaveOccurred())
	Expect(clusters).To(HaveLen(1))
	cloud, err := tb.OpenStack(ctx, clusters[0].ID)
	failure.Raise(err)

	timeout := 5 * time.Minute
	image, err := cloud.FindImage(testImage)
	failure.Raise(err)
	network, err := cloud.FindNetwork("admin_internal_net")
	failure.Raise(err)
	flavorList, err := cloud.ListFlavors()
	Expect(err).ToNot(HaveOccurred())
	Expect(flavorList).ToNot(BeEmpty())
	sort.Slice(flavorList, func(i, j int) bool { return flavorList[i].RAM < flavorList[j].RAM })

	group, err := cloud.CreateSecurityGroup(openstack.RandName("sg"))
	Expect(err).ToNot(HaveOccurred())
	defer func() { _ = openstack.IgnoreNotFound(cloud.DeleteSecurityGroup(group.ID)) }()

	By("booting an instance")
	server, err := cloud.CreateServer(openstack.ServerOpts{
		Name:           openstack.RandName("vm"),
		FlavorID:       flavorList[0].ID,
		ImageID:        image.ID,
		NetworkID:      network.ID,
		SecurityGroups: []string{group.Name},
	})
	Expect(err).ToNot(HaveOccurred())
	defer func() {
		if err := openstack.IgnoreNotFound(cloud.DeleteServer(server.ID)); err == nil {
			_ = cloud.WaitServerDeleted(server.ID, timeout)
		}
	}()
	_, err = cloud.WaitServerStatus(server.ID, "ACTIVE", timeout)
	failure.Raise(err)

	By("attaching a volume")
	volume, err := cloud.CreateVolume(openstack.RandName("vol"), 1)
	Expect(err).ToNot(HaveOccurred())
	defer func() { _ = openstack.IgnoreNotFound(cloud.DeleteVolume(volume.ID)) }()
	_, err = cloud.WaitVolumeStatus(volume.ID, "available", timeout)
	failure.Raise(err)
	attachment, err := cloud.AttachVolume(server.ID, volume.ID)
	Expect(err).ToNot(HaveOccurred())
	_, err = cloud.WaitVolumeStatus(volume.ID, "in-use", timeout)
	failure.Raise(err)
	logf.Log.Info("Volume attached", "server", server.ID, "volume", volume.ID, "attachment", attachment)

	Expect(cloud.DetachVolume(server.ID, attachment)).To(Succeed())
	_, err = cloud.WaitVolumeStatus(volume.ID, "available", timeout)
	failure.Raise(err)
}
