package fuelweb_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/openstack-archive/fuel-qa-sub001/common"
	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/fuelweb"
	"github.com/openstack-archive/fuel-qa-sub001/common/nailgun"
	"github.com/openstack-archive/fuel-qa-sub001/common/ssh"
)

func intPtr(i int) *int { return &i }

func editable(attrs nailgun.Attributes, section, key string) interface{} {
	v, _ := attrs.Editable(section, key)
	return v
}

var _ = Describe("FuelWeb", func() {
	var (
		ctx    context.Context
		ng     *fakeNailgun
		lab    *fakeLab
		remote *fakeRemote
		fw     *fuelweb.FuelWeb
		opts   fuelweb.Options
	)

	BeforeEach(func() {
		ctx = context.Background()
		ng = newFakeNailgun()
		ng.nodes = []nailgun.Node{
			{ID: 1, Mac: "52:54:00:aa:00:01", IP: "10.109.0.3", Online: true},
			{ID: 2, Mac: "52:54:00:aa:00:02", IP: "10.109.0.4", Online: true},
		}
		lab = &fakeLab{macs: map[string][]string{
			"slave-01": {"52:54:00:AA:00:01"},
			"slave-02": {"64:00:00:00:00:09", "52:54:00:aa:00:02"},
			"slave-03": {"52:54:00:aa:00:03"},
		}}
		remote = &fakeRemote{admin: "10.109.0.2", replies: map[string]ssh.Result{}}
		opts = fuelweb.Options{
			OpenstackRelease: "ubuntu",
			Timeouts: fuelweb.Timeouts{
				Deploy:   time.Second,
				Network:  time.Second,
				OSTF:     time.Second,
				Interval: 10 * time.Millisecond,
			},
		}
	})

	JustBeforeEach(func() {
		fw = fuelweb.New(ng, remote, lab, opts)
	})

	Describe("releases", func() {
		It("picks the deployable release matching the name", func() {
			id, err := fw.ReleaseID(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(id).To(Equal(2))
		})

		Context("without a match", func() {
			BeforeEach(func() { opts.OpenstackRelease = "centos" })

			It("is an infrastructure failure", func() {
				_, err := fw.ReleaseID(ctx)
				Expect(failure.Etype(err)).To(Equal("release_missing"))
				Expect(failure.IsInfra(err)).To(BeTrue())
			})
		})
	})

	Describe("CreateCluster", func() {
		It("defaults to neutron vlan and maps settings onto attributes", func() {
			id, err := fw.CreateCluster(ctx, "ceph ha", common.DeploymentModeHA, fuelweb.Settings{
				"volumes_ceph":  true,
				"volumes_lvm":   false,
				"tenant":        "cephha",
				"syslog.server": "10.109.0.2",
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(id).To(Equal(7))
			Expect(ng.created).To(HaveLen(1))
			spec := ng.created[0]
			Expect(*spec.Name).To(Equal("ceph ha"))
			Expect(*spec.ReleaseID).To(BeEquivalentTo(2))
			Expect(spec.Mode).To(Equal("ha_compact"))
			Expect(spec.NetProvider).To(Equal("neutron"))
			Expect(spec.NetSegmentType).To(Equal("vlan"))

			Expect(ng.attrsSaved).To(Equal(1))
			Expect(editable(ng.attrs, "storage", "volumes_ceph")).To(BeTrue())
			Expect(editable(ng.attrs, "access", "tenant")).To(Equal("cephha"))
			Expect(editable(ng.attrs, "syslog", "server")).To(Equal("10.109.0.2"))
		})

		It("drops the segmentation of nova network", func() {
			_, err := fw.CreateCluster(ctx, "nova", common.DeploymentModeMultinode, fuelweb.Settings{
				"net_provider":     "nova_network",
				"net_segment_type": "gre",
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(ng.created[0].Mode).To(Equal("multinode"))
			Expect(ng.created[0].NetProvider).To(Equal("nova_network"))
			Expect(ng.created[0].NetSegmentType).To(BeEmpty())
			Expect(ng.attrsSaved).To(BeZero())
		})

		It("rejects unknown settings", func() {
			_, err := fw.CreateCluster(ctx, "x", common.DeploymentModeHA, fuelweb.Settings{"bogus": 1})
			Expect(err).To(MatchError(ContainSubstring(`unknown cluster setting "bogus"`)))
		})

		Context("with random credentials", func() {
			BeforeEach(func() { opts.RandomCredentials = true })

			It("fills in missing credentials", func() {
				_, err := fw.CreateCluster(ctx, "tun ha", common.DeploymentModeHA, fuelweb.Settings{"user": "fixed"})
				Expect(err).ToNot(HaveOccurred())
				Expect(editable(ng.attrs, "access", "tenant")).To(Equal("tun_ha_tenant"))
				Expect(editable(ng.attrs, "access", "user")).To(Equal("fixed"))
				Expect(editable(ng.attrs, "access", "password")).To(HaveLen(16))
			})

			It("leaves the caller's settings untouched", func() {
				settings := fuelweb.Settings{"user": "fixed"}
				_, err := fw.CreateCluster(ctx, "tun ha", common.DeploymentModeHA, settings)
				Expect(err).ToNot(HaveOccurred())
				Expect(settings).To(Equal(fuelweb.Settings{"user": "fixed"}))
			})
		})
	})

	Describe("nodes", func() {
		It("maps lab nodes by MAC", func() {
			node, err := fw.NailgunNodeByDevopsName(ctx, "slave-02")
			Expect(err).ToNot(HaveOccurred())
			Expect(node.ID).To(Equal(2))

			_, err = fw.NailgunNodeByDevopsName(ctx, "slave-03")
			Expect(failure.Etype(err)).To(Equal("node_missing"))
		})

		It("assigns pending roles", func() {
			_, err := fw.UpdateNodes(ctx, 7, map[string][]string{
				"slave-01": {common.RoleController},
			}, true)
			Expect(err).ToNot(HaveOccurred())
			Expect(ng.updates).To(HaveLen(1))
			u := ng.updates[0]
			Expect(u.ID).To(Equal(1))
			Expect(u.Name).To(Equal("slave-01"))
			Expect(*u.ClusterID).To(Equal(7))
			Expect(*u.PendingRoles).To(Equal([]string{common.RoleController}))
			Expect(*u.PendingAddition).To(BeTrue())
			Expect(u.PendingDeletion).To(BeNil())
		})

		It("marks nodes for deletion", func() {
			ng.nodes[0].ClusterID = intPtr(7)
			_, err := fw.UpdateNodes(ctx, 7, map[string][]string{"slave-01": nil}, false)
			Expect(err).ToNot(HaveOccurred())
			Expect(*ng.updates[0].PendingDeletion).To(BeTrue())
			Expect(ng.updates[0].PendingAddition).To(BeNil())
		})

		It("returns addresses by role", func() {
			ng.nodes[0].ClusterID = intPtr(7)
			ng.nodes[0].Roles = []string{common.RoleController}
			ng.nodes[1].ClusterID = intPtr(7)
			ng.nodes[1].PendingRoles = []string{common.RoleCompute}
			ips, err := fw.NodeIPsByRole(ctx, 7, common.RoleCompute)
			Expect(err).ToNot(HaveOccurred())
			Expect(ips).To(Equal([]string{"10.109.0.4"}))
		})

		It("waits for nodes to go offline", func() {
			go func() {
				defer GinkgoRecover()
				time.Sleep(30 * time.Millisecond)
				ng.setOnline("52:54:00:aa:00:01", false)
			}()
			Expect(fw.WaitNodesOnline(ctx, []string{"slave-01"}, false, time.Second)).To(Succeed())
		})

		It("times out as a product failure", func() {
			err := fw.WaitNodesOnline(ctx, []string{"slave-03"}, true, 50*time.Millisecond)
			Expect(failure.Etype(err)).To(Equal("nodes_online_timeout"))
		})
	})

	Describe("deployment", func() {
		It("waits for the task and checks the cluster", func() {
			ng.tasks = []nailgun.Task{
				{ID: 3, Name: "deploy", Status: "running", Progress: 10},
				{ID: 3, Name: "deploy", Status: "running", Progress: 60},
				{ID: 3, Name: "deploy", Status: "ready", Progress: 100},
			}
			ng.cluster.Status = common.ClusterStatusOperational
			Expect(fw.DeployClusterWait(ctx, 7)).To(Succeed())
			Expect(ng.taskPolls).To(Equal(3))
		})

		It("reports a failed task as a product failure", func() {
			ng.tasks = []nailgun.Task{{ID: 3, Name: "deploy", Status: "error", Message: "puppet failed on node-1"}}
			err := fw.DeployClusterWait(ctx, 7)
			Expect(failure.IsProd(err)).To(BeTrue())
			Expect(err).To(MatchError("deployment_failed: deploy failed: puppet failed on node-1"))
		})

		It("reports a cluster that is not operational", func() {
			ng.tasks = []nailgun.Task{{ID: 3, Status: "ready"}}
			ng.cluster.Status = common.ClusterStatusError
			Expect(failure.Etype(fw.DeployClusterWait(ctx, 7))).To(Equal("cluster_not_ready"))
		})

		It("times out a task that keeps running", func() {
			opts.Timeouts.Deploy = 50 * time.Millisecond
			ng.tasks = []nailgun.Task{{ID: 3, Status: "running"}}
			fw = fuelweb.New(ng, remote, lab, opts)
			Expect(failure.Etype(fw.DeployClusterWait(ctx, 7))).To(Equal("deployment_timeout"))
		})

		It("provisions before deploying nodes", func() {
			ng.tasks = []nailgun.Task{{ID: 4, Status: "ready"}}
			Expect(fw.ProvisionAndDeployNodes(ctx, 7, []int{1, 2})).To(Succeed())
			Expect(ng.taskPolls).To(Equal(2))
		})

		It("verifies the network", func() {
			ng.tasks = []nailgun.Task{{ID: 5, Name: "verify_networks", Status: "ready"}}
			Expect(fw.VerifyNetwork(ctx, 7)).To(Succeed())
			Expect(ng.verified).To(Equal(1))

			ng.taskPolls = 0
			ng.tasks = []nailgun.Task{{ID: 5, Name: "verify_networks", Status: "error", Message: "vlan 101 missing"}}
			Expect(failure.Etype(fw.VerifyNetwork(ctx, 7))).To(Equal("network_verification_failed"))
		})
	})

	Describe("RunOSTF", func() {
		finished := func(tests ...nailgun.OSTFTest) []nailgun.OSTFTestRun {
			return []nailgun.OSTFTestRun{
				{TestSet: common.OSTFSetSmoke, Status: common.OSTFRunFinished, Tests: tests},
				{TestSet: common.OSTFSetHA, Status: "running"},
			}
		}

		BeforeEach(func() {
			ng.ostfRuns = [][]nailgun.OSTFTestRun{
				{{TestSet: common.OSTFSetSmoke, Status: "running"}},
				finished(
					nailgun.OSTFTest{Name: "Create volume", Status: "success"},
					nailgun.OSTFTest{Name: "Launch instance", Status: "failure"},
					nailgun.OSTFTest{Name: "Check heat", Status: "skipped"},
				),
			}
		})

		It("counts results once the sets finish", func() {
			result, err := fw.RunOSTF(ctx, 7, []string{common.OSTFSetSmoke}, fuelweb.OSTFOpts{ShouldFail: 1})
			Expect(err).ToNot(HaveOccurred())
			Expect(ng.ostfStart).To(Equal([]string{common.OSTFSetSmoke}))
			Expect(ng.ostfPolls).To(Equal(2))
			Expect(*result).To(Equal(fuelweb.OSTFResult{
				Passed: 1, Failed: 1, Skipped: 1, FailedTests: []string{"Launch instance"},
			}))
		})

		It("fails when more tests fail than allowed", func() {
			_, err := fw.RunOSTF(ctx, 7, []string{common.OSTFSetSmoke}, fuelweb.OSTFOpts{})
			Expect(failure.IsProd(err)).To(BeTrue())
			Expect(err).To(MatchError(ContainSubstring("failed 1 OSTF tests; should fail 0 tests")))
		})

		It("fails when an unexpected test fails", func() {
			_, err := fw.RunOSTF(ctx, 7, []string{common.OSTFSetSmoke}, fuelweb.OSTFOpts{
				ShouldFail:      1,
				FailedTestNames: []string{"Create volume"},
			})
			Expect(failure.Etype(err)).To(Equal("ostf_failed"))
			Expect(err).To(MatchError(ContainSubstring(`"Launch instance"`)))
		})

		It("accepts allowed failures", func() {
			_, err := fw.RunOSTF(ctx, 7, []string{common.OSTFSetSmoke}, fuelweb.OSTFOpts{
				ShouldFail:      1,
				FailedTestNames: []string{"Launch instance"},
			})
			Expect(err).ToNot(HaveOccurred())
		})

		It("times out on unfinished sets", func() {
			_, err := fw.RunOSTF(ctx, 7, []string{common.OSTFSetHA}, fuelweb.OSTFOpts{Timeout: 50 * time.Millisecond})
			Expect(failure.Etype(err)).To(Equal("ostf_timeout"))
		})
	})

	Describe("plugins", func() {
		It("uploads and installs the package", func() {
			Expect(fw.InstallPlugin(ctx, "/tmp/plugins/zabbix_monitoring-2.5-2.5.0-1.noarch.rpm")).To(Succeed())
			Expect(remote.uploads).To(Equal([]string{
				"10.109.0.2:/tmp/plugins/zabbix_monitoring-2.5-2.5.0-1.noarch.rpm->/var/zabbix_monitoring-2.5-2.5.0-1.noarch.rpm",
			}))
			Expect(remote.commands).To(Equal([]string{
				"10.109.0.2 fuel plugins --install /var/zabbix_monitoring-2.5-2.5.0-1.noarch.rpm",
			}))
		})

		It("reports a failed install as an infrastructure failure", func() {
			remote.replies["fuel plugins"] = ssh.Result{ExitCode: 1, Stderr: []string{"already installed"}}
			err := fw.InstallPlugin(ctx, "/tmp/p.rpm")
			Expect(failure.IsInfra(err)).To(BeTrue())
			Expect(failure.Etype(err)).To(Equal("plugin_install"))
		})

		It("enables an installed plugin with options", func() {
			ng.plugins = []nailgun.Plugin{{Name: "zabbix_monitoring"}}
			Expect(fw.EnablePlugin(ctx, 7, "zabbix_monitoring", map[string]interface{}{"username": "admin"})).To(Succeed())
			Expect(editable(ng.attrs, "zabbix_monitoring", "username")).To(Equal("admin"))
			tree := ng.attrs["editable"].(map[string]interface{})
			meta := tree["zabbix_monitoring"].(map[string]interface{})["metadata"].(map[string]interface{})
			Expect(meta["enabled"]).To(BeTrue())
		})

		It("refuses plugins that are not installed", func() {
			err := fw.EnablePlugin(ctx, 7, "zabbix_monitoring", nil)
			Expect(failure.Etype(err)).To(Equal("plugin_missing"))
		})
	})

	Describe("ceph", func() {
		BeforeEach(func() {
			ng.nodes[0].ClusterID = intPtr(7)
			ng.nodes[0].Roles = []string{common.RoleController}
		})

		It("waits for HEALTH_OK", func() {
			remote.replies["ceph health"] = ssh.Result{Stdout: []string{"HEALTH_OK"}}
			Expect(fw.CheckCephHealth(ctx, 7, time.Second)).To(Succeed())
			Expect(remote.commands[0]).To(HavePrefix("10.109.0.3 ceph health"))
		})

		It("reports the last health on timeout", func() {
			remote.replies["ceph health"] = ssh.Result{Stdout: []string{"HEALTH_ERR 12 pgs stuck"}}
			err := fw.CheckCephHealth(ctx, 7, 50*time.Millisecond)
			Expect(failure.Etype(err)).To(Equal("ceph_health_timeout"))
			Expect(err).To(MatchError(ContainSubstring("HEALTH_ERR")))
		})
	})

	It("finds the public VIP", func() {
		_, err := fw.PublicVIP(ctx, 7)
		Expect(failure.Etype(err)).To(Equal("public_vip_missing"))

		ng.netConfig["vips"] = map[string]interface{}{
			"public": map[string]interface{}{"ipaddr": "10.109.1.3"},
		}
		Expect(fw.PublicVIP(ctx, 7)).To(Equal("10.109.1.3"))
		ng.netConfig["public_vip"] = "10.109.1.2"
		Expect(fw.PublicVIP(ctx, 7)).To(Equal("10.109.1.2"))
	})

	It("compares the fuel version", func() {
		ok, err := fw.FuelVersionAtLeast(ctx, "9.0")
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())
		ng.version = "8.0"
		ok, _ = fw.FuelVersionAtLeast(ctx, "9.0")
		Expect(ok).To(BeFalse())
	})
})
