// Package openstack exercises a deployed cloud through its public APIs.
package openstack

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/blockstorage/v3/volumes"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/hypervisors"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/gophercloud/gophercloud/openstack/identity/v3/projects"
	"github.com/gophercloud/gophercloud/openstack/identity/v3/users"
	"github.com/gophercloud/gophercloud/openstack/imageservice/v2/images"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/layer3/routers"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/security/groups"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/subnets"
	"github.com/pkg/errors"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

// Actions are the cloud operations used by the scenarios.
type Actions interface {
	CreateServer(opts ServerOpts) (*servers.Server, error)
	GetServer(id string) (*servers.Server, error)
	DeleteServer(id string) error
	WaitServerStatus(id string, status string, timeout time.Duration) (*servers.Server, error)
	WaitServerDeleted(id string, timeout time.Duration) error
	MigrateServer(id string, live bool, timeout time.Duration) (*servers.Server, error)

	ListFlavors() ([]flavors.Flavor, error)
	CreateFlavor(name string, ramMB, vcpus, diskGB int) (*flavors.Flavor, error)
	DeleteFlavor(id string) error

	CreateSecurityGroup(name string) (*groups.SecGroup, error)
	DeleteSecurityGroup(id string) error

	CreateNetwork(name string) (*networks.Network, error)
	FindNetwork(name string) (*networks.Network, error)
	CreateSubnet(networkID, name, cidr string) (*subnets.Subnet, error)
	CreateRouter(name, externalNetworkID string) (*routers.Router, error)
	AddRouterInterface(routerID, subnetID string) error
	DeleteNetwork(id string) error

	CreateVolume(name string, sizeGB int) (*volumes.Volume, error)
	WaitVolumeStatus(id string, status string, timeout time.Duration) (*volumes.Volume, error)
	AttachVolume(serverID, volumeID string) (string, error)
	DetachVolume(serverID, attachmentID string) error
	DeleteVolume(id string) error

	FindImage(name string) (*images.Image, error)

	CreateProject(name string) (*projects.Project, error)
	CreateUser(name, projectID, password string) (*users.User, string, error)
	DeleteProject(id string) error
	DeleteUser(id string) error

	ListHypervisors() ([]hypervisors.Hypervisor, error)
}

// AuthConfig identifies the cloud admin.
type AuthConfig struct {
	AuthURL    string
	Username   string
	Password   string
	TenantName string
	DomainName string
	Region     string
	// Interval between polls of resource states.
	Interval time.Duration
}

// Clients bundles the per service clients.
type Clients struct {
	Compute  *gophercloud.ServiceClient
	Network  *gophercloud.ServiceClient
	Volume   *gophercloud.ServiceClient
	Image    *gophercloud.ServiceClient
	Identity *gophercloud.ServiceClient
}

// Client implements Actions with gophercloud.
type Client struct {
	Clients
	interval time.Duration
	log      logr.Logger
}

var _ Actions = &Client{}

// NewClient authenticates against keystone and resolves the service endpoints.
func NewClient(cfg AuthConfig) (*Client, error) {
	domain := cfg.DomainName
	if domain == "" {
		domain = "Default"
	}
	provider, err := openstack.AuthenticatedClient(gophercloud.AuthOptions{
		IdentityEndpoint: cfg.AuthURL,
		Username:         cfg.Username,
		Password:         cfg.Password,
		TenantName:       cfg.TenantName,
		DomainName:       domain,
		AllowReauth:      true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "authenticating at %s", cfg.AuthURL)
	}
	eo := gophercloud.EndpointOpts{Region: cfg.Region}
	var c Clients
	if c.Compute, err = openstack.NewComputeV2(provider, eo); err != nil {
		return nil, errors.Wrap(err, "compute endpoint")
	}
	if c.Network, err = openstack.NewNetworkV2(provider, eo); err != nil {
		return nil, errors.Wrap(err, "network endpoint")
	}
	if c.Volume, err = openstack.NewBlockStorageV3(provider, eo); err != nil {
		return nil, errors.Wrap(err, "volume endpoint")
	}
	if c.Image, err = openstack.NewImageServiceV2(provider, eo); err != nil {
		return nil, errors.Wrap(err, "image endpoint")
	}
	if c.Identity, err = openstack.NewIdentityV3(provider, eo); err != nil {
		return nil, errors.Wrap(err, "identity endpoint")
	}
	return NewClientFromClients(c, cfg.Interval), nil
}

// NewClientFromClients wraps already authenticated service clients.
func NewClientFromClients(c Clients, interval time.Duration) *Client {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Client{Clients: c, interval: interval, log: logf.Log.WithName("openstack")}
}

// IsNotFound reports a 404 from any service.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e404 gophercloud.ErrDefault404
	if errors.As(err, &e404) {
		return true
	}
	var notFound gophercloud.ErrResourceNotFound
	return errors.As(err, &notFound)
}

// IgnoreNotFound drops 404 errors, for best effort cleanup.
func IgnoreNotFound(err error) error {
	if IsNotFound(err) {
		return nil
	}
	return err
}

// RandName returns prefix with a random suffix.
func RandName(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String()[:8])
}
