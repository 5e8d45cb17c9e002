package nessus_scan

import (
	"context"
	"fmt"
	"io/ioutil"
	"path"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/openstack-archive/fuel-qa-sub001/common"
	"github.com/openstack-archive/fuel-qa-sub001/common/e2e_config"
	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/fueltest"
	"github.com/openstack-archive/fuel-qa-sub001/common/locations"
	"github.com/openstack-archive/fuel-qa-sub001/common/nessus"
)

const (
	scanTimeout   = 2 * time.Hour
	exportTimeout = 10 * time.Minute
	reportFormat  = "html"
	// produced by the ha_one_controller suite
	deployedSnapshot = "deploy_ha_one_controller_neutron"
)

func newScanner() *nessus.Client {
	cfg := e2e_config.GetConfig()
	if cfg.Nessus.Address == "" {
		Skip("no nessus scanner configured")
	}
	return nessus.New(fmt.Sprintf("https://%s:%d", cfg.Nessus.Address, cfg.Nessus.Port),
		cfg.Nessus.Username, cfg.Nessus.Password, cfg.Nessus.SSL)
}

// scan runs a scan of targets to completion and saves its report.
func scan(ctx context.Context, client *nessus.Client, prefix string, targets []string) {
	template := e2e_config.GetConfig().Nessus.PolicyTemplate

	families, err := client.ListPluginFamilies(ctx)
	failure.Raise(err)
	Expect(families).ToNot(BeEmpty(), "scanner has no plugins")

	name := fmt.Sprintf("%s_%d", prefix, time.Now().Unix())
	templateUUID, err := client.TemplateUUID(ctx, template)
	failure.Raise(err)
	policyID, err := client.CreatePolicy(ctx, template, name, "Policy for "+prefix)
	failure.Raise(err)
	scanID, err := client.CreateScan(ctx, name, "Scan of "+prefix, targets, policyID, templateUUID)
	failure.Raise(err)

	By("scanning " + prefix)
	runUUID, err := client.LaunchScan(ctx, scanID)
	failure.Raise(err)
	logf.Log.Info("Scan launched", "scan", scanID, "run", runUUID, "targets", targets)
	failure.Raise(client.WaitScanCompleted(ctx, scanID, time.Minute, scanTimeout))

	By("exporting the report")
	report, err := client.ExportScan(ctx, scanID, reportFormat, 10*time.Second, exportTimeout)
	failure.Raise(err)
	file := path.Join(locations.GetNessusReportsDir(), fmt.Sprintf("%s.%s", name, reportFormat))
	Expect(ioutil.WriteFile(file, report, 0644)).To(Succeed())
	logf.Log.Info("Scan report saved", "file", file)
}

func ScanMasterNode(ctx context.Context) {
	client := newScanner()
	tb := fueltest.Env()
	failure.Raise(tb.RevertSnapshot(ctx, common.SnapshotReady))
	defer func() { _ = client.Logout(ctx) }()

	scan(ctx, client, "fuel_master", []string{tb.Remote.AdminIP()})
}

func ScanEnvironment(ctx context.Context) {
	client := newScanner()
	tb := fueltest.Env()
	exists, err := tb.SnapshotExists(ctx, deployedSnapshot)
	Expect(err).ToNot(HaveOccurred())
	if !exists {
		Skip(fmt.Sprintf("snapshot %s is not available", deployedSnapshot))
	}
	failure.Raise(tb.RevertSnapshot(ctx, deployedSnapshot))
	defer func() { _ = client.Logout(ctx) }()

	clusters, err := tb.FuelWeb.Client.ListClusters(ctx)
	Expect(err).ToNot(HaveOccurred())
	Expect(clusters).To(HaveLen(1))
	nodes, err := tb.FuelWeb.Client.ListClusterNodes(ctx, clusters[0].ID)
	Expect(err).ToNot(HaveOccurred())
	targets := make([]string, 0, len(nodes))
	for _, n := range nodes {
		targets = append(targets, n.IP)
	}
	vip, err := tb.FuelWeb.PublicVIP(ctx, clusters[0].ID)
	failure.Raise(err)
	targets = append(targets, vip)

	scan(ctx, client, "fuel_environment", targets)
}
