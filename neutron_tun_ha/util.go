package neutron_tun_ha

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/openstack-archive/fuel-qa-sub001/common"
	"github.com/openstack-archive/fuel-qa-sub001/common/checkers"
	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/fuelweb"
	"github.com/openstack-archive/fuel-qa-sub001/common/fueltest"
	"github.com/openstack-archive/fuel-qa-sub001/common/wait"
)

const (
	clusterName = "neutron_tun_ha"
	snapshot    = "deploy_neutron_tun_ha"
	ml2Config   = "/etc/neutron/plugins/ml2/ml2_conf.ini"
)

var controllers = []string{common.NodeName(1), common.NodeName(2), common.NodeName(3)}

func DeployNeutronTunHA(ctx context.Context) {
	tb := fueltest.Env()
	tb.CheckRunOrSkip(ctx, snapshot)
	failure.Raise(tb.RevertSnapshot(ctx, common.SnapshotReady5Slaves))

	fw := tb.FuelWeb
	clusterID, err := fw.CreateCluster(ctx, clusterName, common.DeploymentModeHA, tb.ClusterSettings(fuelweb.Settings{
		fuelweb.SettingNetProvider:    string(common.NetProviderNeutron),
		fuelweb.SettingNetSegmentType: string(common.SegmentTun),
		fuelweb.SettingTenant:         "haTun",
		fuelweb.SettingUser:           "haTun",
		fuelweb.SettingPassword:       "haTun",
	}))
	Expect(err).ToNot(HaveOccurred())

	roles := map[string][]string{
		common.NodeName(4): {common.RoleCompute},
		common.NodeName(5): {common.RoleCompute},
	}
	for _, name := range controllers {
		roles[name] = []string{common.RoleController}
	}
	_, err = fw.UpdateNodes(ctx, clusterID, roles, true)
	Expect(err).ToNot(HaveOccurred())

	By("deploying")
	failure.Raise(fw.DeployClusterWait(ctx, clusterID))
	failure.Raise(fw.VerifyNetwork(ctx, clusterID))

	ips, err := fw.NodeIPsByRole(ctx, clusterID, common.RoleController)
	Expect(err).ToNot(HaveOccurred())
	Expect(ips).To(HaveLen(len(controllers)))

	By("checking the galera cluster and the tunnelling configuration")
	for _, ip := range ips {
		ip := ip
		_, err := wait.Prod(func() (bool, error) {
			return checkers.GaleraReady(ctx, tb.Remote, ip)
		}, "galera", fw.Interval(), 10*time.Minute, fmt.Sprintf("galera is not synced on %s", ip))
		failure.Raise(err)
		failure.Raise(checkers.CheckIniValue(ctx, tb.Remote, ip, ml2Config, "ml2", "tenant_network_types", "vxlan"))
	}

	By("running OSTF")
	_, err = fw.RunOSTF(ctx, clusterID, []string{common.OSTFSetSmoke, common.OSTFSetSanity, common.OSTFSetHA},
		fuelweb.OSTFOpts{})
	failure.Raise(err)

	Expect(tb.MakeSnapshot(ctx, snapshot, true)).To(Succeed())
}

func ShutdownPrimaryController(ctx context.Context) {
	tb := fueltest.Env()
	failure.Raise(tb.RevertSnapshot(ctx, snapshot))
	fw := tb.FuelWeb

	clusters, err := fw.Client.ListClusters(ctx)
	Expect(err).ToNot(HaveOccurred())
	Expect(clusters).To(HaveLen(1))
	clusterID := clusters[0].ID

	primary := ""
	for _, name := range controllers {
		node, err := fw.NailgunNodeByDevopsName(ctx, name)
		Expect(err).ToNot(HaveOccurred())
		if node.HasRole(common.RolePrimaryPrefix + common.RoleController) {
			primary = name
		}
	}
	if primary == "" {
		primary = controllers[0]
	}
	logf.Log.Info("Powering off the primary controller", "node", primary)

	Expect(tb.Lab.PowerOffNode(ctx, primary)).To(Succeed())
	failure.Raise(fw.WaitNodesOnline(ctx, []string{primary}, false, 10*time.Minute))

	By("running OSTF with one controller down")
	_, err = fw.RunOSTF(ctx, clusterID, []string{common.OSTFSetSmoke, common.OSTFSetSanity, common.OSTFSetHA},
		fuelweb.OSTFOpts{
			ShouldFail:      1,
			FailedTestNames: []string{"Check state of haproxy backends on controllers"},
		})
	failure.Raise(err)

	Expect(tb.Lab.PowerOnNode(ctx, primary)).To(Succeed())
	failure.Raise(fw.WaitNodesOnline(ctx, []string{primary}, true, 10*time.Minute))
}
