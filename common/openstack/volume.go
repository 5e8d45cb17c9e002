package openstack

import (
	"fmt"
	"time"

	"github.com/gophercloud/gophercloud/openstack/blockstorage/v3/volumes"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/volumeattach"

	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/wait"
)

func (c *Client) CreateVolume(name string, sizeGB int) (*volumes.Volume, error) {
	c.log.Info("Creating volume", "name", name, "size", sizeGB)
	return volumes.Create(c.Volume, volumes.CreateOpts{Name: name, Size: sizeGB}).Extract()
}

// WaitVolumeStatus waits for status; a volume in "error" is a product failure.
func (c *Client) WaitVolumeStatus(id string, status string, timeout time.Duration) (*volumes.Volume, error) {
	v, err := wait.Until(func() wait.Outcome {
		vol, err := volumes.Get(c.Volume, id).Extract()
		if err != nil {
			return wait.FatalError(err)
		}
		switch {
		case vol.Status == status:
			return wait.ReadyWith(vol)
		case vol.Status == "error":
			return wait.FatalError(failure.NewProdError("volume_error", fmt.Sprintf("volume %s went to error", id)))
		}
		return wait.NotReadyBecause(fmt.Errorf("volume %s is %s", id, vol.Status))
	}, wait.Options{
		Action:   "volume_" + status,
		Interval: c.interval,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, err
	}
	return v.(*volumes.Volume), nil
}

// AttachVolume attaches volumeID to serverID and returns the attachment id.
func (c *Client) AttachVolume(serverID, volumeID string) (string, error) {
	va, err := volumeattach.Create(c.Compute, serverID, volumeattach.CreateOpts{VolumeID: volumeID}).Extract()
	if err != nil {
		return "", err
	}
	return va.ID, nil
}

func (c *Client) DetachVolume(serverID, attachmentID string) error {
	return volumeattach.Delete(c.Compute, serverID, attachmentID).ExtractErr()
}

func (c *Client) DeleteVolume(id string) error {
	return volumes.Delete(c.Volume, id, volumes.DeleteOpts{}).ExtractErr()
}
