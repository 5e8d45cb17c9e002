// Package fuelweb composes the master node API, ssh and the lab into the
// steps of a deployment scenario.
package fuelweb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/openstack-archive/fuel-qa-sub001/common/devops"
	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/nailgun"
	"github.com/openstack-archive/fuel-qa-sub001/common/ssh"
	"github.com/openstack-archive/fuel-qa-sub001/common/wait"
)

// Remote is the ssh access the scenarios need.
type Remote interface {
	ssh.Executor
	AdminIP() string
	UploadToRemote(ip string, source string, target string) error
}

// Timeouts of the long running steps.
type Timeouts struct {
	Deploy    time.Duration
	Network   time.Duration
	OSTF      time.Duration
	Bootstrap time.Duration
	Interval  time.Duration
}

// Options of a FuelWeb.
type Options struct {
	// OpenstackRelease selects the release by a case insensitive substring
	// of its name or operating system, e.g. "ubuntu".
	OpenstackRelease string
	// RandomCredentials makes CreateCluster generate tenant credentials
	// unless the settings carry them.
	RandomCredentials bool
	Timeouts          Timeouts
}

type FuelWeb struct {
	Client nailgun.Client
	Remote Remote
	Lab    devops.LabController
	opts   Options
	log    logr.Logger
}

func New(client nailgun.Client, remote Remote, lab devops.LabController, opts Options) *FuelWeb {
	t := &opts.Timeouts
	for _, d := range []*time.Duration{&t.Deploy, &t.Network, &t.OSTF, &t.Bootstrap} {
		if *d <= 0 {
			*d = 30 * time.Minute
		}
	}
	if t.Interval <= 0 {
		t.Interval = 10 * time.Second
	}
	return &FuelWeb{
		Client: client,
		Remote: remote,
		Lab:    lab,
		opts:   opts,
		log:    logf.Log.WithName("fuelweb"),
	}
}

// Interval is the poll interval of all waits.
func (f *FuelWeb) Interval() time.Duration {
	return f.opts.Timeouts.Interval
}

// ReleaseID returns the deployable release matching the configured name.
func (f *FuelWeb) ReleaseID(ctx context.Context) (int, error) {
	releases, err := f.Client.ListReleases(ctx)
	if err != nil {
		return 0, err
	}
	want := strings.ToLower(f.opts.OpenstackRelease)
	for _, r := range releases {
		if !r.IsDeployable {
			continue
		}
		if strings.Contains(strings.ToLower(r.Name), want) || strings.Contains(strings.ToLower(r.OperatingSystem), want) {
			return r.ID, nil
		}
	}
	return 0, failure.NewInfraError("release_missing", fmt.Sprintf("no deployable release matches %q", f.opts.OpenstackRelease))
}

// WaitNailgunAvailable waits for the API to answer, e.g. after a revert.
func (f *FuelWeb) WaitNailgunAvailable(ctx context.Context, timeout time.Duration) error {
	_, err := wait.ProdExpecting(func() (interface{}, error) {
		return f.Client.FuelVersion(ctx)
	}, wait.Or(wait.NetworkError, serverError), "nailgun_available", f.Interval(), timeout,
		fmt.Sprintf("nailgun did not answer in %v", timeout))
	return err
}

func serverError(err error) bool {
	code := nailgun.StatusCode(err)
	return code >= 500 || code == 401
}

// FuelVersionAtLeast compares the master node release with want.
func (f *FuelWeb) FuelVersionAtLeast(ctx context.Context, want string) (bool, error) {
	v, err := f.Client.FuelVersion(ctx)
	if err != nil {
		return false, err
	}
	return v.AtLeast(want)
}
