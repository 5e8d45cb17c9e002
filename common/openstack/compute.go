package openstack

import (
	"fmt"
	"time"

	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/hypervisors"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/migrate"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/gophercloud/gophercloud/openstack/imageservice/v2/images"

	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/wait"
)

// ServerOpts describes an instance to boot.
type ServerOpts struct {
	Name             string
	FlavorID         string
	ImageID          string
	NetworkID        string
	SecurityGroups   []string
	AvailabilityZone string
}

func (c *Client) CreateServer(opts ServerOpts) (*servers.Server, error) {
	create := servers.CreateOpts{
		Name:             opts.Name,
		FlavorRef:        opts.FlavorID,
		ImageRef:         opts.ImageID,
		SecurityGroups:   opts.SecurityGroups,
		AvailabilityZone: opts.AvailabilityZone,
	}
	if opts.NetworkID != "" {
		create.Networks = []servers.Network{{UUID: opts.NetworkID}}
	}
	c.log.Info("Booting server", "name", opts.Name, "flavor", opts.FlavorID, "image", opts.ImageID)
	return servers.Create(c.Compute, create).Extract()
}

func (c *Client) GetServer(id string) (*servers.Server, error) {
	return servers.Get(c.Compute, id).Extract()
}

func (c *Client) DeleteServer(id string) error {
	c.log.Info("Deleting server", "id", id)
	return servers.Delete(c.Compute, id).ExtractErr()
}

// WaitServerStatus waits for status; an ERROR server is a product failure.
func (c *Client) WaitServerStatus(id string, status string, timeout time.Duration) (*servers.Server, error) {
	v, err := wait.Until(func() wait.Outcome {
		s, err := servers.Get(c.Compute, id).Extract()
		if err != nil {
			return wait.FatalError(err)
		}
		if s.Status == status {
			return wait.ReadyWith(s)
		}
		if s.Status == "ERROR" && status != "ERROR" {
			return wait.FatalError(failure.NewProdError("server_error",
				fmt.Sprintf("server %s went to ERROR: %v", id, s.Fault.Message)))
		}
		return wait.NotReadyBecause(fmt.Errorf("server %s is %s", id, s.Status))
	}, wait.Options{
		Action:     "server_" + status,
		Interval:   c.interval,
		Timeout:    timeout,
		TimeoutMsg: fmt.Sprintf("server %s did not become %s in %v", id, status, timeout),
	})
	if err != nil {
		return nil, err
	}
	return v.(*servers.Server), nil
}

func (c *Client) WaitServerDeleted(id string, timeout time.Duration) error {
	_, err := wait.Prod(func() (bool, error) {
		_, err := servers.Get(c.Compute, id).Extract()
		if IsNotFound(err) {
			return true, nil
		}
		return false, err
	}, "server_deleted", c.interval, timeout, fmt.Sprintf("server %s was not deleted in %v", id, timeout))
	return err
}

// MigrateServer moves the server to another host. A cold migration is
// confirmed once the server reaches VERIFY_RESIZE.
func (c *Client) MigrateServer(id string, live bool, timeout time.Duration) (*servers.Server, error) {
	before, err := c.GetServer(id)
	if err != nil {
		return nil, err
	}
	c.log.Info("Migrating server", "id", id, "live", live, "from", before.HostID)
	if live {
		blockMigration := true
		err = migrate.LiveMigrate(c.Compute, id, migrate.LiveMigrateOpts{BlockMigration: &blockMigration}).ExtractErr()
		if err != nil {
			return nil, err
		}
		return c.waitMigrated(id, before.HostID, timeout)
	}
	if err := migrate.Migrate(c.Compute, id).ExtractErr(); err != nil {
		return nil, err
	}
	if _, err := c.WaitServerStatus(id, "VERIFY_RESIZE", timeout); err != nil {
		return nil, err
	}
	if err := servers.ConfirmResize(c.Compute, id).ExtractErr(); err != nil {
		return nil, err
	}
	return c.waitMigrated(id, before.HostID, timeout)
}

func (c *Client) waitMigrated(id, oldHostID string, timeout time.Duration) (*servers.Server, error) {
	s, err := c.WaitServerStatus(id, "ACTIVE", timeout)
	if err != nil {
		return nil, err
	}
	if s.HostID == oldHostID {
		return nil, failure.NewProdError("server_migration", fmt.Sprintf("server %s is still on host %s", id, oldHostID))
	}
	return s, nil
}

func (c *Client) ListFlavors() ([]flavors.Flavor, error) {
	pages, err := flavors.ListDetail(c.Compute, flavors.ListOpts{}).AllPages()
	if err != nil {
		return nil, err
	}
	return flavors.ExtractFlavors(pages)
}

func (c *Client) CreateFlavor(name string, ramMB, vcpus, diskGB int) (*flavors.Flavor, error) {
	return flavors.Create(c.Compute, flavors.CreateOpts{
		Name:  name,
		RAM:   ramMB,
		VCPUs: vcpus,
		Disk:  &diskGB,
	}).Extract()
}

func (c *Client) DeleteFlavor(id string) error {
	return flavors.Delete(c.Compute, id).ExtractErr()
}

// FindImage returns the active image called name.
func (c *Client) FindImage(name string) (*images.Image, error) {
	pages, err := images.List(c.Image, images.ListOpts{Name: name}).AllPages()
	if err != nil {
		return nil, err
	}
	list, err := images.ExtractImages(pages)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Name == name && list[i].Status == images.ImageStatusActive {
			return &list[i], nil
		}
	}
	return nil, failure.NewProdError("image_missing", fmt.Sprintf("no active image %q", name))
}

func (c *Client) ListHypervisors() ([]hypervisors.Hypervisor, error) {
	pages, err := hypervisors.List(c.Compute, nil).AllPages()
	if err != nil {
		return nil, err
	}
	return hypervisors.ExtractHypervisors(pages)
}
