// Package devops talks to the lab agent which owns the virtual lab:
// snapshots, node power and the admin node address.
package devops

import (
	"context"
	"errors"
)

// Node power states as reported by the lab agent.
const (
	NodeActive  = "active"
	NodeShutoff = "shutoff"
	NodeAbsent  = "absent"
)

// ErrSnapshotNotFound is returned when reverting to a snapshot the
// environment does not have.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// LabController is the set of lab operations the tests need.
type LabController interface {
	RevertSnapshot(ctx context.Context, name string) error
	MakeSnapshot(ctx context.Context, name string, description string) error
	HasSnapshot(ctx context.Context, name string) (bool, error)
	ListSnapshots(ctx context.Context) ([]string, error)
	StartNodes(ctx context.Context, nodes []string) error
	DestroyNodes(ctx context.Context, nodes []string) error
	PowerOffNode(ctx context.Context, node string) error
	PowerOnNode(ctx context.Context, node string) error
	NodeStatus(ctx context.Context, node string) (string, error)
	NodeMacs(ctx context.Context, node string) ([]string, error)
	AdminIP(ctx context.Context) (string, error)
	SyncTime(ctx context.Context, nodes []string) error
}

// Wire types shared by the client and the lab agent.

type NodeList struct {
	Nodes []string `json:"nodes"`
}

type SnapshotRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type SnapshotList struct {
	Snapshots []string `json:"snapshots"`
}

type NodeState struct {
	Name   string   `json:"name"`
	Status string   `json:"status"`
	Macs   []string `json:"macs,omitempty"`
}

type AdminAddress struct {
	IP string `json:"ip"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
