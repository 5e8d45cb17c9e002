package fuelweb

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/openstack-archive/fuel-qa-sub001/common"
	"github.com/openstack-archive/fuel-qa-sub001/common/checkers"
	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/nailgun"
	"github.com/openstack-archive/fuel-qa-sub001/common/ssh"
	"github.com/openstack-archive/fuel-qa-sub001/common/wait"
)

// WaitTask polls a task until it leaves the running states. A task ending
// in error is a ProdError tagged "<etype>_failed".
func (f *FuelWeb) WaitTask(ctx context.Context, task *nailgun.Task, etype string, timeout time.Duration) (*nailgun.Task, error) {
	f.log.Info("Waiting for task", "task", task.Name, "id", task.ID, "timeout", timeout)
	v, err := wait.Until(func() wait.Outcome {
		t, err := f.Client.GetTask(ctx, task.ID)
		if err != nil {
			return wait.FatalError(err)
		}
		switch t.Status {
		case common.TaskStatusReady:
			return wait.ReadyWith(t)
		case common.TaskStatusError:
			return wait.FatalError(failure.NewProdError(etype+"_failed", fmt.Sprintf("%s failed: %s", t.Name, t.Message)))
		}
		return wait.NotReadyBecause(fmt.Errorf("%s", t))
	}, wait.Options{
		Action:     etype,
		Interval:   f.Interval(),
		Timeout:    timeout,
		TimeoutMsg: fmt.Sprintf("task %s (%d) did not finish in %v", task.Name, task.ID, timeout),
	})
	if err != nil {
		return nil, err
	}
	return v.(*nailgun.Task), nil
}

// DeployClusterWait applies pending changes and waits for the deployment.
func (f *FuelWeb) DeployClusterWait(ctx context.Context, clusterID int) error {
	task, err := f.Client.DeployClusterChanges(ctx, clusterID)
	if err != nil {
		return err
	}
	if _, err := f.WaitTask(ctx, task, "deployment", f.opts.Timeouts.Deploy); err != nil {
		return err
	}
	return f.AssertClusterReady(ctx, clusterID)
}

// ProvisionAndDeployNodes provisions then deploys the given nodes only.
func (f *FuelWeb) ProvisionAndDeployNodes(ctx context.Context, clusterID int, nodeIDs []int) error {
	task, err := f.Client.ProvisionNodes(ctx, clusterID, nodeIDs)
	if err != nil {
		return err
	}
	if _, err := f.WaitTask(ctx, task, "provisioning", f.opts.Timeouts.Deploy); err != nil {
		return err
	}
	if task, err = f.Client.DeployNodes(ctx, clusterID, nodeIDs); err != nil {
		return err
	}
	_, err = f.WaitTask(ctx, task, "deployment", f.opts.Timeouts.Deploy)
	return err
}

// VerifyNetwork runs the network verification of the cluster.
func (f *FuelWeb) VerifyNetwork(ctx context.Context, clusterID int) error {
	cluster, err := f.Client.GetCluster(ctx, clusterID)
	if err != nil {
		return err
	}
	cfg, err := f.Client.GetNetworkConfiguration(ctx, clusterID, cluster.NetProvider)
	if err != nil {
		return err
	}
	task, err := f.Client.VerifyNetworks(ctx, clusterID, cluster.NetProvider, cfg)
	if err != nil {
		return err
	}
	_, err = f.WaitTask(ctx, task, "network_verification", f.opts.Timeouts.Network)
	return err
}

// OSTFOpts tolerate known failures of a health check run.
type OSTFOpts struct {
	// ShouldFail is the number of failed tests allowed.
	ShouldFail int
	// FailedTestNames lists the names allowed to fail; empty allows any.
	FailedTestNames []string
	Timeout         time.Duration
}

// OSTFResult summarises a health check run.
type OSTFResult struct {
	Passed      int
	Failed      int
	Skipped     int
	FailedTests []string
}

// RunOSTF runs the test sets and checks the failures against opts.
func (f *FuelWeb) RunOSTF(ctx context.Context, clusterID int, testSets []string, opts OSTFOpts) (*OSTFResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = f.opts.Timeouts.OSTF
	}
	f.log.Info("Running OSTF", "cluster", clusterID, "sets", testSets)
	if _, err := f.Client.StartOSTFTestSets(ctx, clusterID, testSets); err != nil {
		return nil, err
	}
	v, err := wait.Until(func() wait.Outcome {
		runs, err := f.Client.LastOSTFTestRuns(ctx, clusterID)
		if err != nil {
			return wait.FatalError(err)
		}
		status := map[string]string{}
		for _, r := range runs {
			status[r.TestSet] = r.Status
		}
		for _, set := range testSets {
			if status[set] != common.OSTFRunFinished {
				return wait.NotReadyBecause(fmt.Errorf("test set %s is %q", set, status[set]))
			}
		}
		return wait.ReadyWith(runs)
	}, wait.Options{
		Action:     "ostf",
		Interval:   f.Interval(),
		Timeout:    timeout,
		TimeoutMsg: fmt.Sprintf("OSTF sets %v did not finish in %v", testSets, timeout),
	})
	if err != nil {
		return nil, err
	}

	result := summarise(v.([]nailgun.OSTFTestRun), testSets)
	f.log.Info("OSTF finished", "passed", result.Passed, "failed", result.Failed, "skipped", result.Skipped)
	return result, checkOSTF(result, opts)
}

func summarise(runs []nailgun.OSTFTestRun, testSets []string) *OSTFResult {
	result := &OSTFResult{}
	for _, r := range runs {
		if !contains(testSets, r.TestSet) {
			continue
		}
		for _, t := range r.Tests {
			switch t.Status {
			case common.OSTFStatusFailure, common.OSTFStatusError:
				result.Failed++
				result.FailedTests = append(result.FailedTests, t.Name)
			case common.OSTFStatusSkipped:
				result.Skipped++
			case common.OSTFStatusSuccess:
				result.Passed++
			}
		}
	}
	sort.Strings(result.FailedTests)
	return result
}

func checkOSTF(result *OSTFResult, opts OSTFOpts) error {
	if len(opts.FailedTestNames) > 0 {
		for _, name := range result.FailedTests {
			if !contains(opts.FailedTestNames, name) {
				return failure.NewProdError("ostf_failed", fmt.Sprintf("test %q failed and is not expected to", name))
			}
		}
	}
	if result.Failed > opts.ShouldFail {
		return failure.NewProdError("ostf_failed", fmt.Sprintf("failed %d OSTF tests; should fail %d tests. Names of failed tests: %s",
			result.Failed, opts.ShouldFail, strings.Join(result.FailedTests, ", ")))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// WaitNodesOnline waits until nailgun reports the lab nodes online (or
// offline when online is false).
func (f *FuelWeb) WaitNodesOnline(ctx context.Context, names []string, online bool, timeout time.Duration) error {
	state := "offline"
	if online {
		state = "online"
	}
	_, err := wait.Prod(func() (bool, error) {
		for _, name := range names {
			node, err := f.NailgunNodeByDevopsName(ctx, name)
			if err != nil {
				if failure.IsInfra(err) {
					return false, nil
				}
				return false, err
			}
			if node.Online != online {
				return false, nil
			}
		}
		return true, nil
	}, "nodes_"+state, f.Interval(), timeout, fmt.Sprintf("nodes %v are not %s after %v", names, state, timeout))
	return err
}

// CheckCephHealth waits for ceph to settle on a controller of the cluster.
func (f *FuelWeb) CheckCephHealth(ctx context.Context, clusterID int, timeout time.Duration) error {
	ips, err := f.NodeIPsByRole(ctx, clusterID, common.RoleController)
	if err != nil {
		return err
	}
	if len(ips) == 0 {
		return failure.NewInfraError("ceph_health", fmt.Sprintf("cluster %d has no controllers", clusterID))
	}
	var last error
	_, err = wait.Prod(func() (bool, error) {
		last = checkers.CheckCephHealth(ctx, f.Remote, ips[0], true)
		if last != nil && failure.IsProd(last) {
			return false, nil
		}
		return last == nil, last
	}, "ceph_health", f.Interval(), timeout, "ceph did not become healthy")
	if failure.Etype(err) == "ceph_health_timeout" && last != nil {
		return failure.NewProdError("ceph_health_timeout", last.Error())
	}
	return err
}

// InstallPlugin uploads a plugin package to the master node and installs it.
func (f *FuelWeb) InstallPlugin(ctx context.Context, localPath string) error {
	admin := f.Remote.AdminIP()
	target := path.Join("/var", path.Base(localPath))
	if err := f.Remote.UploadToRemote(admin, localPath, target); err != nil {
		return failure.NewInfraError("plugin_upload", err.Error())
	}
	_, err := ssh.ExecuteOnRemote(ctx, f.Remote, admin, "fuel plugins --install "+target,
		ssh.Check{Infra: true, Etype: "plugin_install", Message: "installing " + path.Base(localPath)})
	return err
}

// EnablePlugin turns the plugin on in the cluster and sets its options.
func (f *FuelWeb) EnablePlugin(ctx context.Context, clusterID int, plugin string, options map[string]interface{}) error {
	plugins, err := f.Client.ListPlugins(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, p := range plugins {
		if p.Name == plugin {
			found = true
			break
		}
	}
	if !found {
		return failure.NewInfraError("plugin_missing", fmt.Sprintf("plugin %s is not installed", plugin))
	}
	attrs, err := f.Client.GetClusterAttributes(ctx, clusterID)
	if err != nil {
		return err
	}
	attrs.EnablePlugin(plugin, true)
	for option, value := range options {
		attrs.SetEditable(plugin, option, value)
	}
	return f.Client.UpdateClusterAttributes(ctx, clusterID, attrs)
}
