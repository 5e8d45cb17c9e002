package fuelweb

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/openstack-archive/fuel-qa-sub001/common"
	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/nailgun"
	"github.com/openstack-archive/fuel-qa-sub001/common/openstack"
)

// Settings of a new cluster. Well known keys are mapped onto the attribute
// tree, any other key must be "section.option".
type Settings map[string]interface{}

// Setting keys handled by CreateCluster.
const (
	SettingNetProvider    = "net_provider"
	SettingNetSegmentType = "net_segment_type"
	SettingTenant         = "tenant"
	SettingUser           = "user"
	SettingPassword       = "password"
)

var attributeSections = map[string]string{
	SettingTenant:    "access",
	SettingUser:      "access",
	SettingPassword:  "access",
	"volumes_ceph":   "storage",
	"images_ceph":    "storage",
	"ephemeral_ceph": "storage",
	"objects_ceph":   "storage",
	"volumes_lvm":    "storage",
	"osd_pool_size":  "storage",
	"sahara":         "additional_components",
	"murano":         "additional_components",
	"ceilometer":     "additional_components",
	"debug":          "common",
}

func (s Settings) copy() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// CreateCluster creates a cluster on the configured release and applies
// settings to its attributes.
func (f *FuelWeb) CreateCluster(ctx context.Context, name string, mode common.DeploymentMode, settings Settings) (int, error) {
	settings = settings.copy()
	if f.opts.RandomCredentials {
		if err := randomCredentials(name, settings); err != nil {
			return 0, err
		}
	}
	releaseID, err := f.ReleaseID(ctx)
	if err != nil {
		return 0, err
	}
	spec := nailgun.NewClusterSpec(name, releaseID)
	spec.Mode = mode.String()
	spec.NetProvider = string(common.NetProviderNeutron)
	spec.NetSegmentType = string(common.SegmentVlan)
	if v, ok := settings[SettingNetProvider].(string); ok {
		spec.NetProvider = v
	}
	if v, ok := settings[SettingNetSegmentType].(string); ok {
		spec.NetSegmentType = v
	}
	if spec.NetProvider != string(common.NetProviderNeutron) {
		spec.NetSegmentType = ""
	}

	cluster, err := f.Client.CreateCluster(ctx, spec)
	if err != nil {
		return 0, errors.Wrapf(err, "creating cluster %s", name)
	}
	f.log.Info("Cluster created", "name", name, "id", cluster.ID, "mode", spec.Mode,
		"provider", spec.NetProvider, "segmentation", spec.NetSegmentType)

	attrs, err := f.Client.GetClusterAttributes(ctx, cluster.ID)
	if err != nil {
		return 0, err
	}
	changed := false
	for key, value := range settings {
		if key == SettingNetProvider || key == SettingNetSegmentType {
			continue
		}
		section, option := attributeSections[key], key
		if section == "" {
			parts := strings.SplitN(key, ".", 2)
			if len(parts) != 2 {
				return 0, errors.Errorf("unknown cluster setting %q", key)
			}
			section, option = parts[0], parts[1]
		}
		attrs.SetEditable(section, option, value)
		changed = true
	}
	if changed {
		if err := f.Client.UpdateClusterAttributes(ctx, cluster.ID, attrs); err != nil {
			return 0, errors.Wrapf(err, "updating attributes of cluster %d", cluster.ID)
		}
	}
	return cluster.ID, nil
}

func randomCredentials(name string, settings Settings) error {
	for _, key := range []string{SettingTenant, SettingUser} {
		if _, ok := settings[key]; !ok {
			settings[key] = strings.ReplaceAll(name, " ", "_") + "_" + key
		}
	}
	if _, ok := settings[SettingPassword]; !ok {
		pass, err := openstack.GeneratePassword()
		if err != nil {
			return err
		}
		settings[SettingPassword] = pass
	}
	return nil
}

// NailgunNodeByDevopsName finds the discovered node backing a lab node by MAC.
func (f *FuelWeb) NailgunNodeByDevopsName(ctx context.Context, name string) (*nailgun.Node, error) {
	macs, err := f.Lab.NodeMacs(ctx, name)
	if err != nil {
		return nil, err
	}
	nodes, err := f.Client.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	for i := range nodes {
		for _, mac := range macs {
			if strings.EqualFold(nodes[i].Mac, mac) {
				return &nodes[i], nil
			}
		}
	}
	return nil, failure.NewInfraError("node_missing", fmt.Sprintf("lab node %s was not discovered by nailgun", name))
}

// UpdateNodes assigns roles to lab nodes, adding them to the cluster, or
// marks them for deletion when pendingAddition is false.
func (f *FuelWeb) UpdateNodes(ctx context.Context, clusterID int, roles map[string][]string, pendingAddition bool) ([]nailgun.Node, error) {
	updates := make([]nailgun.NodeUpdate, 0, len(roles))
	for name, nodeRoles := range roles {
		node, err := f.NailgunNodeByDevopsName(ctx, name)
		if err != nil {
			return nil, err
		}
		u := nailgun.NodeUpdate{ID: node.ID, Name: name}
		if pendingAddition {
			r := append([]string{}, nodeRoles...)
			add := true
			u.ClusterID = &clusterID
			u.PendingRoles = &r
			u.PendingAddition = &add
		} else {
			del := true
			u.ClusterID = node.ClusterID
			u.PendingDeletion = &del
		}
		updates = append(updates, u)
	}
	f.log.Info("Updating nodes", "cluster", clusterID, "roles", roles, "addition", pendingAddition)
	return f.Client.UpdateNodes(ctx, updates)
}

// AssertClusterReady fails with a ProdError unless the cluster is operational.
func (f *FuelWeb) AssertClusterReady(ctx context.Context, clusterID int) error {
	cluster, err := f.Client.GetCluster(ctx, clusterID)
	if err != nil {
		return err
	}
	if cluster.Status != common.ClusterStatusOperational {
		return failure.NewProdError("cluster_not_ready",
			fmt.Sprintf("cluster %d is %s, expected %s", clusterID, cluster.Status, common.ClusterStatusOperational))
	}
	return nil
}

// NodeIPsByRole returns the admin network addresses of cluster nodes having role.
func (f *FuelWeb) NodeIPsByRole(ctx context.Context, clusterID int, role string) ([]string, error) {
	nodes, err := f.Client.ListClusterNodes(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	var ips []string
	for _, n := range nodes {
		if n.HasRole(role) {
			ips = append(ips, n.IP)
		}
	}
	return ips, nil
}

// PublicVIP is the public virtual IP of a deployed cluster, the endpoint of
// its dashboard and keystone.
func (f *FuelWeb) PublicVIP(ctx context.Context, clusterID int) (string, error) {
	cluster, err := f.Client.GetCluster(ctx, clusterID)
	if err != nil {
		return "", err
	}
	cfg, err := f.Client.GetNetworkConfiguration(ctx, clusterID, cluster.NetProvider)
	if err != nil {
		return "", err
	}
	if vip, ok := cfg["public_vip"].(string); ok && vip != "" {
		return vip, nil
	}
	if vips, ok := cfg["vips"].(map[string]interface{}); ok {
		if public, ok := vips["public"].(map[string]interface{}); ok {
			if vip, ok := public["ipaddr"].(string); ok && vip != "" {
				return vip, nil
			}
		}
	}
	return "", failure.NewInfraError("public_vip_missing", fmt.Sprintf("cluster %d has no public VIP", clusterID))
}
