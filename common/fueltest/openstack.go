package fueltest

import (
	"context"
	"fmt"

	"github.com/openstack-archive/fuel-qa-sub001/common/e2e_config"
	"github.com/openstack-archive/fuel-qa-sub001/common/fuelweb"
	"github.com/openstack-archive/fuel-qa-sub001/common/openstack"
)

// ClusterSettings are the credentials configured for new clusters merged
// with extra.
func (tb *TestBasic) ClusterSettings(extra fuelweb.Settings) fuelweb.Settings {
	settings := fuelweb.Settings{
		fuelweb.SettingNetProvider:    tb.Cfg.Cluster.NetProvider,
		fuelweb.SettingNetSegmentType: tb.Cfg.Cluster.SegmentType,
	}
	if !tb.Cfg.Cluster.RandomCredentials {
		settings[fuelweb.SettingTenant] = tb.Cfg.Cluster.Tenant
		settings[fuelweb.SettingUser] = tb.Cfg.Cluster.User
		settings[fuelweb.SettingPassword] = tb.Cfg.Cluster.Password
	}
	for k, v := range extra {
		settings[k] = v
	}
	return settings
}

// OpenStack logs into the cloud of a deployed cluster with the
// credentials it was created with.
func (tb *TestBasic) OpenStack(ctx context.Context, clusterID int) (*openstack.Client, error) {
	vip, err := tb.FuelWeb.PublicVIP(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	attrs, err := tb.FuelWeb.Client.GetClusterAttributes(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	cred := func(key string) string {
		v, _ := attrs.Editable("access", key)
		s, _ := v.(string)
		return s
	}
	return openstack.NewClient(openstack.AuthConfig{
		AuthURL:    fmt.Sprintf("http://%s:%d/v2.0", vip, tb.Cfg.Fuel.KeystonePort),
		Username:   cred(fuelweb.SettingUser),
		Password:   cred(fuelweb.SettingPassword),
		TenantName: cred(fuelweb.SettingTenant),
		Interval:   e2e_config.Duration(tb.Cfg.Timeouts.Interval, 0),
	})
}
