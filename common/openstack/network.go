package openstack

import (
	"fmt"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/layer3/routers"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/security/groups"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/security/rules"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/subnets"

	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
)

// CreateSecurityGroup creates a group admitting ssh and ping from anywhere.
func (c *Client) CreateSecurityGroup(name string) (*groups.SecGroup, error) {
	group, err := groups.Create(c.Network, groups.CreateOpts{
		Name:        name,
		Description: "ssh and icmp from anywhere",
	}).Extract()
	if err != nil {
		return nil, err
	}
	for _, rule := range []rules.CreateOpts{
		{Protocol: rules.ProtocolTCP, PortRangeMin: 22, PortRangeMax: 22},
		{Protocol: rules.ProtocolICMP},
	} {
		rule.Direction = rules.DirIngress
		rule.EtherType = rules.EtherType4
		rule.RemoteIPPrefix = "0.0.0.0/0"
		rule.SecGroupID = group.ID
		if _, err := rules.Create(c.Network, rule).Extract(); err != nil {
			_ = groups.Delete(c.Network, group.ID).ExtractErr()
			return nil, err
		}
	}
	return group, nil
}

func (c *Client) DeleteSecurityGroup(id string) error {
	return groups.Delete(c.Network, id).ExtractErr()
}

func (c *Client) CreateNetwork(name string) (*networks.Network, error) {
	up := true
	return networks.Create(c.Network, networks.CreateOpts{Name: name, AdminStateUp: &up}).Extract()
}

func (c *Client) CreateSubnet(networkID, name, cidr string) (*subnets.Subnet, error) {
	return subnets.Create(c.Network, subnets.CreateOpts{
		NetworkID: networkID,
		Name:      name,
		CIDR:      cidr,
		IPVersion: gophercloud.IPv4,
	}).Extract()
}

func (c *Client) CreateRouter(name, externalNetworkID string) (*routers.Router, error) {
	opts := routers.CreateOpts{Name: name}
	if externalNetworkID != "" {
		opts.GatewayInfo = &routers.GatewayInfo{NetworkID: externalNetworkID}
	}
	return routers.Create(c.Network, opts).Extract()
}

func (c *Client) AddRouterInterface(routerID, subnetID string) error {
	_, err := routers.AddInterface(c.Network, routerID, routers.AddInterfaceOpts{SubnetID: subnetID}).Extract()
	return err
}

func (c *Client) DeleteNetwork(id string) error {
	return networks.Delete(c.Network, id).ExtractErr()
}

// FindNetwork returns the network called name, e.g. the tenant network
// created at deployment.
func (c *Client) FindNetwork(name string) (*networks.Network, error) {
	pages, err := networks.List(c.Network, networks.ListOpts{Name: name}).AllPages()
	if err != nil {
		return nil, err
	}
	list, err := networks.ExtractNetworks(pages)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, failure.NewProdError("network_missing", fmt.Sprintf("no network %q", name))
	}
	return &list[0], nil
}
