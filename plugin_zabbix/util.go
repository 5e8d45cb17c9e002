package plugin_zabbix

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/openstack-archive/fuel-qa-sub001/common"
	"github.com/openstack-archive/fuel-qa-sub001/common/e2e_config"
	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/fuelweb"
	"github.com/openstack-archive/fuel-qa-sub001/common/fueltest"
	"github.com/openstack-archive/fuel-qa-sub001/common/locations"
	"github.com/openstack-archive/fuel-qa-sub001/common/wait"
	"github.com/openstack-archive/fuel-qa-sub001/common/zabbix"
)

const (
	clusterName = "deploy_zabbix_ha"
	snapshot    = "deploy_zabbix_ha"
	pluginName  = "zabbix_monitoring"
)

func zabbixURL(ctx context.Context, tb *fueltest.TestBasic, clusterID int) string {
	vip, err := tb.FuelWeb.PublicVIP(ctx, clusterID)
	failure.Raise(err)
	return fmt.Sprintf("http://%s/zabbix", vip)
}

func DeployZabbixHA(ctx context.Context) {
	tb := fueltest.Env()
	tb.CheckRunOrSkip(ctx, snapshot)
	cfg := e2e_config.GetConfig()
	if cfg.Plugins.ZabbixPath == "" {
		Skip("no zabbix plugin package configured")
	}
	failure.Raise(tb.RevertSnapshot(ctx, common.SnapshotReady5Slaves))

	fw := tb.FuelWeb
	By("installing the plugin")
	failure.Raise(fw.InstallPlugin(ctx, locations.GetPluginPath(cfg.Plugins.ZabbixPath)))

	clusterID, err := fw.CreateCluster(ctx, clusterName, common.DeploymentModeHA, tb.ClusterSettings(nil))
	Expect(err).ToNot(HaveOccurred())
	failure.Raise(fw.EnablePlugin(ctx, clusterID, pluginName, map[string]interface{}{
		"zabbix_username": cfg.Zabbix.Username,
		"zabbix_password": cfg.Zabbix.Password,
	}))

	_, err = fw.UpdateNodes(ctx, clusterID, map[string][]string{
		common.NodeName(1): {common.RoleController},
		common.NodeName(2): {common.RoleController},
		common.NodeName(3): {common.RoleController},
		common.NodeName(4): {common.RoleCompute},
		common.NodeName(5): {common.RoleCinder},
	}, true)
	Expect(err).ToNot(HaveOccurred())

	By("deploying")
	failure.Raise(fw.DeployClusterWait(ctx, clusterID))
	_, err = fw.RunOSTF(ctx, clusterID, []string{common.OSTFSetSmoke, common.OSTFSetSanity, common.OSTFSetHA},
		fuelweb.OSTFOpts{})
	failure.Raise(err)

	By("checking the zabbix dashboard")
	web := zabbix.NewWeb(zabbixURL(ctx, tb, clusterID), cfg.Zabbix.Username, cfg.Zabbix.Password)
	// the dashboard answers 503 while pacemaker moves the vip
	_, err = wait.ProdExpecting(func() (interface{}, error) {
		return nil, web.Login(ctx)
	}, wait.Or(wait.NetworkError, wait.ErrorAs(&zabbix.StatusError{})), "zabbix_login",
		fw.Interval(), 5*time.Minute, "zabbix dashboard did not accept the login")
	failure.Raise(err)

	problems, err := web.Problems(ctx)
	Expect(err).ToNot(HaveOccurred())
	if len(problems) > 0 {
		failure.Prod("zabbix_problems", fmt.Sprintf("zabbix reports problems: %+v", problems))
	}
	screens, err := web.Screens(ctx)
	Expect(err).ToNot(HaveOccurred())
	logf.Log.Info("Zabbix screens", "screens", screens)

	Expect(tb.MakeSnapshot(ctx, snapshot, true)).To(Succeed())
}

func CheckZabbixAPI(ctx context.Context) {
	tb := fueltest.Env()
	failure.Raise(tb.RevertSnapshot(ctx, snapshot))
	cfg := e2e_config.GetConfig()

	clusters, err := tb.FuelWeb.Client.ListClusters(ctx)
	Expect(err).ToNot(HaveOccurred())
	Expect(clusters).To(HaveLen(1))
	clusterID := clusters[0].ID

	api := zabbix.NewAPI(zabbixURL(ctx, tb, clusterID), cfg.Zabbix.Username, cfg.Zabbix.Password)
	hosts, err := api.HostNames(ctx)
	failure.Raise(err)
	nodes, err := tb.FuelWeb.Client.ListClusterNodes(ctx, clusterID)
	Expect(err).ToNot(HaveOccurred())
	for _, n := range nodes {
		Expect(hosts).To(ContainElement(n.Hostname), "node %s is not monitored", n.Name)
	}

	triggers, err := api.ActiveTriggers(ctx)
	failure.Raise(err)
	if len(triggers) > 0 {
		failure.Prod("zabbix_triggers", fmt.Sprintf("%d triggers in PROBLEM state: %+v", len(triggers), triggers))
	}
}
