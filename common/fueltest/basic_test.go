package fueltest_test

import (
	"context"
	"io/ioutil"
	"os"
	"path"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/openstack-archive/fuel-qa-sub001/common/devops"
	"github.com/openstack-archive/fuel-qa-sub001/common/e2e_config"
	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/fueltest"
	"github.com/openstack-archive/fuel-qa-sub001/common/nailgun"
	"github.com/openstack-archive/fuel-qa-sub001/common/ssh"
)

type fakeLab struct {
	devops.LabController
	snapshots []string
	calls     []string
	revertErr error
	started   []string
}

func (l *fakeLab) HasSnapshot(_ context.Context, name string) (bool, error) {
	for _, s := range l.snapshots {
		if s == name {
			return true, nil
		}
	}
	return false, nil
}

func (l *fakeLab) RevertSnapshot(_ context.Context, name string) error {
	l.calls = append(l.calls, "revert "+name)
	return l.revertErr
}

func (l *fakeLab) MakeSnapshot(_ context.Context, name string, _ string) error {
	l.calls = append(l.calls, "snapshot "+name)
	l.snapshots = append(l.snapshots, name)
	return nil
}

func (l *fakeLab) SyncTime(_ context.Context, nodes []string) error {
	l.calls = append(l.calls, "sync "+strings.Join(nodes, ","))
	return nil
}

func (l *fakeLab) StartNodes(_ context.Context, nodes []string) error {
	l.calls = append(l.calls, "start "+strings.Join(nodes, ","))
	l.started = append(l.started, nodes...)
	return nil
}

func (l *fakeLab) NodeMacs(_ context.Context, node string) ([]string, error) {
	return []string{"mac-" + node}, nil
}

type fakeRemote struct {
	calls    *[]string
	exitCode int
	err      error
}

func (r *fakeRemote) AdminIP() string { return "10.109.0.2" }

func (r *fakeRemote) UploadToRemote(string, string, string) error { return nil }

func (r *fakeRemote) Close() { *r.calls = append(*r.calls, "close") }

func (r *fakeRemote) Execute(_ context.Context, ip string, cmd string) (*ssh.Result, error) {
	*r.calls = append(*r.calls, "ssh "+ip+" "+cmd)
	if r.err != nil {
		return nil, r.err
	}
	return &ssh.Result{Command: cmd, ExitCode: r.exitCode}, nil
}

type fakeNailgun struct {
	nailgun.Client
	calls   *[]string
	release string
	lab     *fakeLab
}

func (n *fakeNailgun) FuelVersion(context.Context) (*nailgun.FuelVersion, error) {
	*n.calls = append(*n.calls, "version")
	return &nailgun.FuelVersion{Release: n.release}, nil
}

// ListNodes reports every started slave as discovered.
func (n *fakeNailgun) ListNodes(context.Context) ([]nailgun.Node, error) {
	var nodes []nailgun.Node
	for i, name := range n.lab.started {
		nodes = append(nodes, nailgun.Node{ID: i + 1, Mac: "mac-" + name, Online: true})
	}
	return nodes, nil
}

func (n *fakeNailgun) ListTasks(context.Context) ([]nailgun.Task, error) {
	return []nailgun.Task{{ID: 7, Name: "deployment", Status: "error", Message: "puppet failed"}}, nil
}

var _ = Describe("TestBasic", func() {
	var (
		ctx    context.Context
		cfg    e2e_config.E2EConfig
		lab    *fakeLab
		remote *fakeRemote
		ng     *fakeNailgun
		tb     *fueltest.TestBasic
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = e2e_config.E2EConfig{}
		cfg.Env.Name = "fuel_system_test"
		cfg.Env.SlaveCount = 5
		cfg.Fuel.Version = "9.0"
		cfg.Timeouts.Interval = "10ms"
		cfg.Timeouts.Revert = "1s"
		cfg.Timeouts.Bootstrap = "1s"
		lab = &fakeLab{snapshots: []string{"empty", "ready"}}
		remote = &fakeRemote{calls: &lab.calls}
		ng = &fakeNailgun{calls: &lab.calls, release: "9.0", lab: lab}
	})

	JustBeforeEach(func() {
		tb = fueltest.NewTestBasic(cfg, lab, remote, ng)
	})

	Describe("RevertSnapshot", func() {
		It("reverts and waits for the master node", func() {
			Expect(tb.RevertSnapshot(ctx, "ready")).To(Succeed())
			Expect(lab.calls).To(Equal([]string{
				"revert ready",
				"close",
				"ssh 10.109.0.2 uptime",
				"sync ",
				"version",
			}))
		})

		It("reports a missing snapshot as an infrastructure failure", func() {
			err := tb.RevertSnapshot(ctx, "ready_with_3_slaves")
			Expect(failure.IsInfra(err)).To(BeTrue())
			Expect(err).To(MatchError("snapshot_missing: snapshot ready_with_3_slaves does not exist"))
			Expect(lab.calls).To(BeEmpty())
		})

		It("classifies a snapshot the agent cannot find", func() {
			lab.revertErr = errors.Wrap(devops.ErrSnapshotNotFound, "ready")
			Expect(failure.Etype(tb.RevertSnapshot(ctx, "ready"))).To(Equal("snapshot_missing"))
		})

		It("fails when the master node does not answer", func() {
			remote.exitCode = 255
			err := tb.RevertSnapshot(ctx, "ready")
			Expect(failure.Etype(err)).To(Equal("admin_unreachable"))
		})

		It("classifies a failed ssh connection to the master node", func() {
			remote.err = errors.New("ssh: handshake failed: ssh: unable to authenticate")
			err := tb.RevertSnapshot(ctx, "ready")
			Expect(failure.IsInfra(err)).To(BeTrue())
			Expect(failure.Etype(err)).To(Equal("admin_unreachable"))
			Expect(err.Error()).To(ContainSubstring("unable to authenticate"))
		})

		It("keeps a connect timeout as reported", func() {
			remote.err = failure.NewProdError("ssh_connect_timeout", "node 10.109.0.2:22 is not reachable over ssh")
			err := tb.RevertSnapshot(ctx, "ready")
			Expect(failure.Etype(err)).To(Equal("ssh_connect_timeout"))
		})
	})

	Describe("MakeSnapshot", func() {
		It("skips unless asked to", func() {
			Expect(tb.MakeSnapshot(ctx, "ha_one_controller", false)).To(Succeed())
			Expect(lab.calls).To(BeEmpty())
			Expect(tb.MakeSnapshot(ctx, "ha_one_controller", true)).To(Succeed())
			Expect(lab.calls).To(Equal([]string{"snapshot ha_one_controller"}))
		})

		Context("when snapshots are forced", func() {
			BeforeEach(func() { cfg.MakeSnapshots = true })

			It("always snapshots and never treats a snapshot as done", func() {
				Expect(tb.MakeSnapshot(ctx, "ceph_ha", false)).To(Succeed())
				Expect(lab.calls).To(Equal([]string{"snapshot ceph_ha"}))
				exists, err := tb.SnapshotExists(ctx, "ready")
				Expect(err).ToNot(HaveOccurred())
				Expect(exists).To(BeFalse())
			})
		})

		It("finds existing snapshots", func() {
			exists, err := tb.SnapshotExists(ctx, "ready")
			Expect(err).ToNot(HaveOccurred())
			Expect(exists).To(BeTrue())
		})
	})

	Describe("BootstrapNodes", func() {
		It("starts slaves and waits for discovery", func() {
			names, err := tb.BootstrapNodes(ctx, 3)
			Expect(err).ToNot(HaveOccurred())
			Expect(names).To(Equal([]string{"slave-01", "slave-02", "slave-03"}))
			Expect(lab.calls).To(Equal([]string{
				"start slave-01,slave-02,slave-03",
				"sync slave-01,slave-02,slave-03",
			}))
		})

		It("refuses more slaves than the lab has", func() {
			_, err := tb.BootstrapNodes(ctx, 9)
			Expect(failure.Etype(err)).To(Equal("lab_capacity"))
		})
	})

	Describe("CheckFuelVersion", func() {
		It("accepts the configured version", func() {
			Expect(tb.CheckFuelVersion(ctx)).To(Succeed())
		})

		Context("on another release", func() {
			BeforeEach(func() { ng.release = "8.0" })

			It("is a product failure", func() {
				err := tb.CheckFuelVersion(ctx)
				Expect(failure.IsProd(err)).To(BeTrue())
				Expect(err).To(MatchError("fuel_version: master node runs 8.0, expected 9.0"))
			})
		})
	})
})

var _ = Describe("ClusterSettings", func() {
	It("carries the configured network and credentials", func() {
		cfg := e2e_config.E2EConfig{}
		cfg.Cluster.NetProvider = "neutron"
		cfg.Cluster.SegmentType = "tun"
		cfg.Cluster.Tenant = "admin"
		cfg.Cluster.User = "admin"
		cfg.Cluster.Password = "admin"
		calls := []string{}
		tb := fueltest.NewTestBasic(cfg, &fakeLab{}, &fakeRemote{calls: &calls}, &fakeNailgun{calls: &calls})

		settings := tb.ClusterSettings(map[string]interface{}{"volumes_ceph": true, "tenant": "cephha"})
		Expect(settings).To(HaveKeyWithValue("net_segment_type", "tun"))
		Expect(settings).To(HaveKeyWithValue("tenant", "cephha"))
		Expect(settings).To(HaveKeyWithValue("user", "admin"))
		Expect(settings).To(HaveKeyWithValue("volumes_ceph", true))

		cfg.Cluster.RandomCredentials = true
		tb = fueltest.NewTestBasic(cfg, &fakeLab{}, &fakeRemote{calls: &calls}, &fakeNailgun{calls: &calls})
		Expect(tb.ClusterSettings(nil)).ToNot(HaveKey("password"))
	})
})

var _ = Describe("DumpTasks", func() {
	It("writes the task list as JSON", func() {
		dir, err := ioutil.TempDir("", "fueltest")
		Expect(err).ToNot(HaveOccurred())
		defer os.RemoveAll(dir)

		calls := []string{}
		tb := fueltest.NewTestBasic(e2e_config.E2EConfig{}, &fakeLab{}, &fakeRemote{calls: &calls}, &fakeNailgun{calls: &calls})
		file := path.Join(dir, "logs", "error_deploy-tasks.json")
		Expect(tb.DumpTasks(context.Background(), file)).To(Succeed())

		data, err := ioutil.ReadFile(file)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`"message": "puppet failed"`))
	})
})
