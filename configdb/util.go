package configdb

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/openstack-archive/fuel-qa-sub001/common"
	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/fueltest"
	"github.com/openstack-archive/fuel-qa-sub001/common/nailgun"
)

// configuration DB appeared in Fuel 9.0
const minVersion = "9.0"

func prepare(ctx context.Context) *fueltest.TestBasic {
	tb := fueltest.Env()
	failure.Raise(tb.RevertSnapshot(ctx, common.SnapshotReady))
	ok, err := tb.FuelWeb.FuelVersionAtLeast(ctx, minVersion)
	failure.Raise(err)
	if !ok {
		Skip("configuration DB requires Fuel " + minVersion)
	}
	return tb
}

func newComponent(ctx context.Context, tb *fueltest.TestBasic) *nailgun.Component {
	component, err := tb.FuelWeb.Client.CreateComponent(ctx, nailgun.Component{
		Name: "component-" + uuid.New().String(),
		ResourceDefinitions: []nailgun.ResourceDefinition{
			{Name: "nova_config", Content: map[string]interface{}{}},
			{Name: "keystone_config", Content: map[string]interface{}{}},
		},
	})
	failure.Raise(err)
	return component
}

func CreateComponent(ctx context.Context) {
	tb := prepare(ctx)

	created := newComponent(ctx, tb)
	Expect(created.ID).ToNot(BeZero())

	component, err := tb.FuelWeb.Client.GetComponent(ctx, created.ID)
	failure.Raise(err)
	Expect(component.Name).To(Equal(created.Name))
	var names []string
	for _, d := range component.ResourceDefinitions {
		Expect(d.ID).ToNot(BeZero())
		names = append(names, d.Name)
	}
	Expect(names).To(ConsistOf("nova_config", "keystone_config"))
}

func ResourceValues(ctx context.Context) {
	tb := prepare(ctx)
	client := tb.FuelWeb.Client

	component := newComponent(ctx, tb)
	env, err := client.CreateConfigEnvironment(ctx, nailgun.ConfigEnvironment{
		Components:      []int{component.ID},
		HierarchyLevels: []string{"nodes"},
	})
	failure.Raise(err)
	Expect(env.ID).ToNot(BeZero())

	By("setting values by resource name")
	nova := map[string]interface{}{
		"DEFAULT/debug":      "true",
		"DEFAULT/verbose":    "false",
		"database/use_tpool": true,
	}
	failure.Raise(client.PutResourceValues(ctx, env.ID, "nova_config", nova))
	values, err := client.GetResourceValues(ctx, env.ID, "nova_config", false)
	failure.Raise(err)
	Expect(values).To(Equal(nova))
	effective, err := client.GetResourceValues(ctx, env.ID, "nova_config", true)
	failure.Raise(err)
	Expect(effective).To(Equal(nova))

	By("setting values by resource id")
	var keystoneID int
	for _, d := range component.ResourceDefinitions {
		if d.Name == "keystone_config" {
			keystoneID = d.ID
		}
	}
	Expect(keystoneID).ToNot(BeZero())
	keystone := map[string]interface{}{"token/expiration": "3600"}
	failure.Raise(client.PutResourceValues(ctx, env.ID, strconv.Itoa(keystoneID), keystone))
	values, err = client.GetResourceValues(ctx, env.ID, "keystone_config", true)
	failure.Raise(err)
	if values["token/expiration"] != "3600" {
		failure.Prod("configdb_values", fmt.Sprintf("keystone_config values were not stored: %v", values))
	}
}
