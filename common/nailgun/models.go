package nailgun

import (
	"fmt"

	"github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/go-openapi/validate"
	"github.com/hashicorp/go-version"
)

// Release is an OpenStack release known to the master node.
type Release struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	Version         string `json:"version"`
	OperatingSystem string `json:"operating_system"`
	State           string `json:"state"`
	IsDeployable    bool   `json:"is_deployable"`
}

// Cluster is the Nailgun view of an environment.
type Cluster struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Mode           string `json:"mode"`
	Status         string `json:"status"`
	ReleaseID      int    `json:"release_id"`
	NetProvider    string `json:"net_provider"`
	NetSegmentType string `json:"net_segment_type,omitempty"`
	IsLocked       bool   `json:"is_locked"`
}

// ClusterSpec is the body of a cluster creation request.
type ClusterSpec struct {
	Name           *string `json:"name"`
	ReleaseID      *int64  `json:"release"`
	Mode           string  `json:"mode,omitempty"`
	NetProvider    string  `json:"net_provider,omitempty"`
	NetSegmentType string  `json:"net_segment_type,omitempty"`
}

// NewClusterSpec builds a spec with the required fields set.
func NewClusterSpec(name string, releaseID int) ClusterSpec {
	return ClusterSpec{
		Name:      swag.String(name),
		ReleaseID: swag.Int64(int64(releaseID)),
	}
}

var clusterModes = []interface{}{"ha_compact", "multinode"}
var netProviders = []interface{}{"neutron", "nova_network"}
var segmentTypes = []interface{}{"vlan", "gre", "tun"}

// Validate checks the spec before it is sent.
func (m *ClusterSpec) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("name", "body", m.Name); err != nil {
		res = append(res, err)
	} else if err := validate.MinLength("name", "body", *m.Name, 1); err != nil {
		res = append(res, err)
	}

	if err := validate.Required("release", "body", m.ReleaseID); err != nil {
		res = append(res, err)
	} else if err := validate.MinimumInt("release", "body", *m.ReleaseID, 1, false); err != nil {
		res = append(res, err)
	}

	if m.Mode != "" {
		if err := validate.Enum("mode", "body", m.Mode, clusterModes); err != nil {
			res = append(res, err)
		}
	}
	if m.NetProvider != "" {
		if err := validate.Enum("net_provider", "body", m.NetProvider, netProviders); err != nil {
			res = append(res, err)
		}
	}
	if m.NetSegmentType != "" {
		if err := validate.Enum("net_segment_type", "body", m.NetSegmentType, segmentTypes); err != nil {
			res = append(res, err)
		}
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}

// Node is a discovered or assigned slave node.
type Node struct {
	ID              int      `json:"id"`
	Name            string   `json:"name"`
	Hostname        string   `json:"hostname"`
	Mac             string   `json:"mac"`
	IP              string   `json:"ip"`
	Status          string   `json:"status"`
	Online          bool     `json:"online"`
	ClusterID       *int     `json:"cluster"`
	Roles           []string `json:"roles"`
	PendingRoles    []string `json:"pending_roles"`
	PendingAddition bool     `json:"pending_addition"`
	PendingDeletion bool     `json:"pending_deletion"`
	Progress        int      `json:"progress"`
	ErrorType       string   `json:"error_type,omitempty"`
	Meta            struct {
		System struct {
			Fqdn string `json:"fqdn"`
		} `json:"system"`
	} `json:"meta"`
}

// HasRole reports whether the node has role either deployed or pending.
func (n Node) HasRole(role string) bool {
	for _, r := range append(append([]string{}, n.Roles...), n.PendingRoles...) {
		if r == role {
			return true
		}
	}
	return false
}

// NodeUpdate is one element of a bulk node update.
type NodeUpdate struct {
	ID              int       `json:"id"`
	Name            string    `json:"name,omitempty"`
	ClusterID       *int      `json:"cluster_id"`
	PendingRoles    *[]string `json:"pending_roles,omitempty"`
	PendingAddition *bool     `json:"pending_addition,omitempty"`
	PendingDeletion *bool     `json:"pending_deletion,omitempty"`
}

// Task is a Nailgun asynchronous task.
type Task struct {
	ID        int         `json:"id"`
	UUID      strfmt.UUID `json:"uuid"`
	Name      string      `json:"name"`
	Status    string      `json:"status"`
	Progress  int         `json:"progress"`
	Message   string      `json:"message"`
	ClusterID *int        `json:"cluster"`
}

func (t Task) String() string {
	return fmt.Sprintf("task %d (%s) %s %d%%: %s", t.ID, t.Name, t.Status, t.Progress, t.Message)
}

// Attributes is the free form attribute tree of a cluster.
type Attributes map[string]interface{}

// SetEditable sets editable.<section>.<key>.value, creating missing levels.
func (a Attributes) SetEditable(section string, key string, value interface{}) {
	editable := subtree(a, "editable")
	sec := subtree(editable, section)
	item := subtree(sec, key)
	item["value"] = value
}

// Editable returns editable.<section>.<key>.value.
func (a Attributes) Editable(section string, key string) (interface{}, bool) {
	editable, ok := a["editable"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	sec, ok := editable[section].(map[string]interface{})
	if !ok {
		return nil, false
	}
	item, ok := sec[key].(map[string]interface{})
	if !ok {
		return nil, false
	}
	v, ok := item["value"]
	return v, ok
}

// EnablePlugin toggles the plugin section metadata of an attribute tree.
func (a Attributes) EnablePlugin(plugin string, enabled bool) {
	editable := subtree(a, "editable")
	sec := subtree(editable, plugin)
	meta := subtree(sec, "metadata")
	meta["enabled"] = enabled
}

func subtree(m map[string]interface{}, key string) map[string]interface{} {
	if sub, ok := m[key].(map[string]interface{}); ok {
		return sub
	}
	if sub, ok := m[key].(Attributes); ok {
		return sub
	}
	sub := map[string]interface{}{}
	m[key] = sub
	return sub
}

// NetworkConfiguration is the network configuration of a cluster as returned
// by Nailgun; it is sent back verbatim for verification.
type NetworkConfiguration map[string]interface{}

// Plugin is an installed plugin.
type Plugin struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title"`
}

// Tag is a node tag (Fuel 9.0 and later).
type Tag struct {
	ID         int    `json:"id,omitempty"`
	Tag        string `json:"tag"`
	OwnerType  string `json:"owner_type"`
	OwnerID    int    `json:"owner_id"`
	HasPrimary bool   `json:"has_primary"`
	ReadOnly   bool   `json:"read_only"`
}

// FuelVersion as reported by the version endpoint.
type FuelVersion struct {
	Release       string   `json:"release"`
	API           string   `json:"api"`
	FeatureGroups []string `json:"feature_groups"`
}

// AtLeast compares the Fuel release with want, e.g. "9.0".
func (v FuelVersion) AtLeast(want string) (bool, error) {
	have, err := version.NewVersion(v.Release)
	if err != nil {
		return false, fmt.Errorf("unparsable fuel release %q: %v", v.Release, err)
	}
	required, err := version.NewVersion(want)
	if err != nil {
		return false, err
	}
	return have.GreaterThanOrEqual(required), nil
}

// OSTFTestSet is a named group of health checks.
type OSTFTestSet struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// OSTFTest is a single health check result.
type OSTFTest struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Taken   float64 `json:"taken"`
}

// OSTFTestRun is the execution of a test set.
type OSTFTestRun struct {
	ID        int        `json:"id"`
	TestSet   string     `json:"testset"`
	Status    string     `json:"status"`
	ClusterID int        `json:"cluster_id"`
	Tests     []OSTFTest `json:"tests"`
}

type ostfTestRunRequest struct {
	TestSet  string `json:"testset"`
	Metadata struct {
		ClusterID int                    `json:"cluster_id"`
		Config    map[string]interface{} `json:"config"`
	} `json:"metadata"`
}

// ResourceDefinition is a configuration-DB resource schema of a component.
type ResourceDefinition struct {
	ID      int                    `json:"id,omitempty"`
	Name    string                 `json:"name"`
	Content map[string]interface{} `json:"content,omitempty"`
}

// Component groups resource definitions in the configuration DB.
type Component struct {
	ID                  int                  `json:"id,omitempty"`
	Name                string               `json:"name"`
	ResourceDefinitions []ResourceDefinition `json:"resource_definitions"`
}

// ConfigEnvironment binds components and hierarchy levels together.
type ConfigEnvironment struct {
	ID              int      `json:"id,omitempty"`
	Components      []int    `json:"components"`
	HierarchyLevels []string `json:"hierarchy_levels"`
}
