// Package fueltest holds the lifecycle shared by the scenario suites:
// snapshots, slave bootstrap and access to the master node.
package fueltest

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo"
	"github.com/pkg/errors"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/openstack-archive/fuel-qa-sub001/common"
	"github.com/openstack-archive/fuel-qa-sub001/common/devops"
	"github.com/openstack-archive/fuel-qa-sub001/common/e2e_config"
	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/fuelweb"
	"github.com/openstack-archive/fuel-qa-sub001/common/nailgun"
	"github.com/openstack-archive/fuel-qa-sub001/common/ssh"
)

// Remote is the ssh access of a test; Close drops connections that a
// revert made stale.
type Remote interface {
	fuelweb.Remote
	Close()
}

// TestBasic is the state every scenario starts from.
type TestBasic struct {
	Cfg     e2e_config.E2EConfig
	Lab     devops.LabController
	Remote  Remote
	FuelWeb *fuelweb.FuelWeb
	log     logr.Logger
}

func NewTestBasic(cfg e2e_config.E2EConfig, lab devops.LabController, remote Remote, client nailgun.Client) *TestBasic {
	return &TestBasic{
		Cfg:     cfg,
		Lab:     lab,
		Remote:  remote,
		FuelWeb: fuelweb.New(client, remote, lab, fuelWebOptions(cfg)),
		log:     logf.Log.WithName("fueltest").WithValues("env", cfg.Env.Name),
	}
}

func (tb *TestBasic) Close() {
	tb.Remote.Close()
}

// RevertSnapshot brings the lab back to snapshot name and waits for the
// master node to serve again. A missing snapshot is an InfraError: the
// test producing it has not run.
func (tb *TestBasic) RevertSnapshot(ctx context.Context, name string) error {
	ok, err := tb.Lab.HasSnapshot(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return failure.NewInfraError("snapshot_missing", fmt.Sprintf("snapshot %s does not exist", name))
	}

	tb.log.Info("Reverting", "snapshot", name)
	if err := tb.Lab.RevertSnapshot(ctx, name); err != nil {
		if errors.Is(err, devops.ErrSnapshotNotFound) {
			return failure.NewInfraError("snapshot_missing", err.Error())
		}
		return err
	}
	tb.Remote.Close()

	timeout := e2e_config.Duration(tb.Cfg.Timeouts.Revert, 10*time.Minute)
	if _, err := ssh.ExecuteOnRemote(ctx, tb.Remote, tb.Remote.AdminIP(), "uptime",
		ssh.Check{Infra: true, Etype: "admin_unreachable", Message: "master node after revert"}); err != nil {
		if failure.Etype(err) == "" {
			return failure.NewInfraError("admin_unreachable", fmt.Sprintf("master node after revert: %v", err))
		}
		return err
	}
	if err := tb.Lab.SyncTime(ctx, nil); err != nil {
		return errors.Wrapf(err, "syncing time after reverting %s", name)
	}
	return tb.FuelWeb.WaitNailgunAvailable(ctx, timeout)
}

// MakeSnapshot saves the lab as name when isMake is set or snapshots are
// forced by configuration.
func (tb *TestBasic) MakeSnapshot(ctx context.Context, name string, isMake bool) error {
	if !isMake && !tb.Cfg.MakeSnapshots {
		tb.log.Info("Skipping snapshot", "snapshot", name)
		return nil
	}
	return tb.Lab.MakeSnapshot(ctx, name, fmt.Sprintf("%s made at %s", name, time.Now().UTC().Format(time.RFC3339)))
}

// SnapshotExists reports whether a producing test may be skipped.
// MakeSnapshots forces producers to run again.
func (tb *TestBasic) SnapshotExists(ctx context.Context, name string) (bool, error) {
	if tb.Cfg.MakeSnapshots {
		return false, nil
	}
	return tb.Lab.HasSnapshot(ctx, name)
}

// CheckRunOrSkip skips the running test when the snapshot it produces exists.
func (tb *TestBasic) CheckRunOrSkip(ctx context.Context, name string) {
	exists, err := tb.SnapshotExists(ctx, name)
	failure.Raise(err)
	if exists {
		Skip(fmt.Sprintf("snapshot %s already exists", name))
	}
}

// BootstrapNodes starts the first count slaves and waits for nailgun to
// discover them.
func (tb *TestBasic) BootstrapNodes(ctx context.Context, count int) ([]string, error) {
	if count < 1 || count > tb.Cfg.Env.SlaveCount {
		return nil, failure.NewInfraError("lab_capacity",
			fmt.Sprintf("cannot bootstrap %d of %d slaves", count, tb.Cfg.Env.SlaveCount))
	}
	names := common.NodeNames(1, count)
	tb.log.Info("Bootstrapping", "nodes", strings.Join(names, ","))
	if err := tb.Lab.StartNodes(ctx, names); err != nil {
		return nil, err
	}
	timeout := e2e_config.Duration(tb.Cfg.Timeouts.Bootstrap, 15*time.Minute)
	if err := tb.FuelWeb.WaitNodesOnline(ctx, names, true, timeout); err != nil {
		return nil, err
	}
	return names, tb.Lab.SyncTime(ctx, names)
}

// SnapshotOnFailure keeps diagnostics of a failed test: the Nailgun task
// list when a logs directory is configured, and a lab snapshot when
// snapshots are enabled. Call it from AfterEach.
func (tb *TestBasic) SnapshotOnFailure(ctx context.Context) {
	desc := CurrentGinkgoTestDescription()
	if !desc.Failed {
		return
	}
	name := "error_" + strings.NewReplacer(" ", "_", "/", "_").Replace(desc.TestText)
	if tb.Cfg.LogsDir != "" {
		if err := tb.DumpTasks(ctx, path.Join(tb.Cfg.LogsDir, name+"-tasks.json")); err != nil {
			tb.log.Info("Failed to save tasks after failure", "error", err)
		}
	}
	if !tb.Cfg.MakeSnapshots {
		return
	}
	if err := tb.Lab.MakeSnapshot(ctx, name, desc.FullTestText); err != nil {
		tb.log.Info("Failed to snapshot after failure", "snapshot", name, "error", err)
	}
}

// DumpTasks writes the Nailgun task list to file as indented JSON.
func (tb *TestBasic) DumpTasks(ctx context.Context, file string) error {
	tasks, err := tb.FuelWeb.Client.ListTasks(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(path.Dir(file), 0755); err != nil {
		return err
	}
	return errors.Wrapf(ioutil.WriteFile(file, data, 0644), "writing %s", file)
}

// CheckFuelVersion fails when the master node is not the configured version.
func (tb *TestBasic) CheckFuelVersion(ctx context.Context) error {
	if tb.Cfg.Fuel.Version == "" {
		return nil
	}
	v, err := tb.FuelWeb.Client.FuelVersion(ctx)
	if err != nil {
		return err
	}
	if v.Release != tb.Cfg.Fuel.Version {
		return failure.NewProdError("fuel_version", fmt.Sprintf("master node runs %s, expected %s", v.Release, tb.Cfg.Fuel.Version))
	}
	return nil
}
