package fuelweb_test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/openstack-archive/fuel-qa-sub001/common/devops"
	"github.com/openstack-archive/fuel-qa-sub001/common/nailgun"
	"github.com/openstack-archive/fuel-qa-sub001/common/ssh"
)

// fakeNailgun overrides the calls the orchestration makes; anything else
// panics on the nil embedded interface.
type fakeNailgun struct {
	nailgun.Client

	mu         sync.Mutex
	releases   []nailgun.Release
	version    string
	created    []nailgun.ClusterSpec
	cluster    nailgun.Cluster
	attrs      nailgun.Attributes
	attrsSaved int
	nodes      []nailgun.Node
	updates    []nailgun.NodeUpdate
	plugins    []nailgun.Plugin
	tasks      []nailgun.Task
	taskPolls  int
	ostfStart  []string
	ostfRuns   [][]nailgun.OSTFTestRun
	ostfPolls  int
	verified   int
	netConfig  nailgun.NetworkConfiguration
}

func newFakeNailgun() *fakeNailgun {
	return &fakeNailgun{
		version: "9.0",
		releases: []nailgun.Release{
			{ID: 1, Name: "Liberty on CentOS 6.5", OperatingSystem: "CentOS", IsDeployable: false},
			{ID: 2, Name: "Mitaka on Ubuntu 14.04", OperatingSystem: "Ubuntu", IsDeployable: true},
		},
		cluster:   nailgun.Cluster{ID: 7, Status: "new", NetProvider: "neutron"},
		attrs:     nailgun.Attributes{},
		netConfig: nailgun.NetworkConfiguration{"networks": []interface{}{}},
	}
}

func (f *fakeNailgun) FuelVersion(context.Context) (*nailgun.FuelVersion, error) {
	return &nailgun.FuelVersion{Release: f.version}, nil
}

func (f *fakeNailgun) ListReleases(context.Context) ([]nailgun.Release, error) {
	return f.releases, nil
}

func (f *fakeNailgun) CreateCluster(_ context.Context, spec nailgun.ClusterSpec) (*nailgun.Cluster, error) {
	f.created = append(f.created, spec)
	c := f.cluster
	c.Name = *spec.Name
	return &c, nil
}

func (f *fakeNailgun) GetCluster(context.Context, int) (*nailgun.Cluster, error) {
	c := f.cluster
	return &c, nil
}

func (f *fakeNailgun) GetClusterAttributes(context.Context, int) (nailgun.Attributes, error) {
	return f.attrs, nil
}

func (f *fakeNailgun) UpdateClusterAttributes(_ context.Context, _ int, attrs nailgun.Attributes) error {
	f.attrs = attrs
	f.attrsSaved++
	return nil
}

func (f *fakeNailgun) ListNodes(context.Context) ([]nailgun.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]nailgun.Node{}, f.nodes...), nil
}

func (f *fakeNailgun) ListClusterNodes(_ context.Context, clusterID int) ([]nailgun.Node, error) {
	var out []nailgun.Node
	for _, n := range f.nodes {
		if n.ClusterID != nil && *n.ClusterID == clusterID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNailgun) UpdateNodes(_ context.Context, updates []nailgun.NodeUpdate) ([]nailgun.Node, error) {
	f.updates = append(f.updates, updates...)
	return f.nodes, nil
}

func (f *fakeNailgun) setOnline(mac string, online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.nodes {
		if f.nodes[i].Mac == mac {
			f.nodes[i].Online = online
		}
	}
}

// task returns the next scripted state on every poll, repeating the last.
func (f *fakeNailgun) task() *nailgun.Task {
	i := f.taskPolls
	if i >= len(f.tasks) {
		i = len(f.tasks) - 1
	}
	f.taskPolls++
	t := f.tasks[i]
	return &t
}

func (f *fakeNailgun) DeployClusterChanges(context.Context, int) (*nailgun.Task, error) {
	return &nailgun.Task{ID: f.tasks[0].ID, Name: "deploy", Status: "running"}, nil
}

func (f *fakeNailgun) ProvisionNodes(_ context.Context, _ int, ids []int) (*nailgun.Task, error) {
	return &nailgun.Task{ID: f.tasks[0].ID, Name: "provision", Status: "running"}, nil
}

func (f *fakeNailgun) DeployNodes(_ context.Context, _ int, ids []int) (*nailgun.Task, error) {
	return &nailgun.Task{ID: f.tasks[0].ID, Name: "deployment", Status: "running"}, nil
}

func (f *fakeNailgun) GetTask(context.Context, int) (*nailgun.Task, error) {
	return f.task(), nil
}

func (f *fakeNailgun) GetNetworkConfiguration(_ context.Context, _ int, provider string) (nailgun.NetworkConfiguration, error) {
	if provider != "neutron" {
		return nil, fmt.Errorf("unexpected provider %s", provider)
	}
	return f.netConfig, nil
}

func (f *fakeNailgun) VerifyNetworks(_ context.Context, _ int, _ string, cfg nailgun.NetworkConfiguration) (*nailgun.Task, error) {
	f.verified++
	return &nailgun.Task{ID: f.tasks[0].ID, Name: "verify_networks", Status: "running"}, nil
}

func (f *fakeNailgun) ListPlugins(context.Context) ([]nailgun.Plugin, error) {
	return f.plugins, nil
}

func (f *fakeNailgun) StartOSTFTestSets(_ context.Context, _ int, sets []string) ([]nailgun.OSTFTestRun, error) {
	f.ostfStart = append(f.ostfStart, sets...)
	return nil, nil
}

func (f *fakeNailgun) LastOSTFTestRuns(context.Context, int) ([]nailgun.OSTFTestRun, error) {
	i := f.ostfPolls
	if i >= len(f.ostfRuns) {
		i = len(f.ostfRuns) - 1
	}
	f.ostfPolls++
	return f.ostfRuns[i], nil
}

type fakeLab struct {
	devops.LabController
	macs map[string][]string
}

func (l *fakeLab) NodeMacs(_ context.Context, node string) ([]string, error) {
	macs, ok := l.macs[node]
	if !ok {
		return nil, &devops.StatusError{Code: 404, Message: "no node " + node}
	}
	return macs, nil
}

type fakeRemote struct {
	admin    string
	commands []string
	uploads  []string
	replies  map[string]ssh.Result
}

func (r *fakeRemote) AdminIP() string {
	return r.admin
}

func (r *fakeRemote) UploadToRemote(ip string, source string, target string) error {
	r.uploads = append(r.uploads, ip+":"+source+"->"+target)
	return nil
}

func (r *fakeRemote) Execute(_ context.Context, ip string, cmd string) (*ssh.Result, error) {
	r.commands = append(r.commands, ip+" "+cmd)
	for prefix, reply := range r.replies {
		if strings.HasPrefix(cmd, prefix) {
			res := reply
			res.Command = cmd
			return &res, nil
		}
	}
	return &ssh.Result{Command: cmd}, nil
}
