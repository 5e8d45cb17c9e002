package common

import "fmt"

type NetworkProvider string

const (
	NetProviderNeutron NetworkProvider = "neutron"
	NetProviderNova    NetworkProvider = "nova_network"
)

type SegmentType string

const (
	SegmentVlan SegmentType = "vlan"
	SegmentTun  SegmentType = "tun"
	SegmentGre  SegmentType = "gre"
)

type DeploymentMode int

const (
	DeploymentModeHA DeploymentMode = iota
	DeploymentModeMultinode
)

func (mode DeploymentMode) String() string {
	switch mode {
	case DeploymentModeHA:
		return "ha_compact"
	case DeploymentModeMultinode:
		return "multinode"
	default:
		return "Unknown"
	}
}

// NodeName returns the devops name of the n-th slave, counting from 1.
func NodeName(n int) string {
	return fmt.Sprintf("slave-%02d", n)
}

// NodeNames returns the devops names of slaves first to last inclusive.
func NodeNames(first, last int) []string {
	names := make([]string, 0, last-first+1)
	for n := first; n <= last; n++ {
		names = append(names, NodeName(n))
	}
	return names
}
