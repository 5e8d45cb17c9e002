// Package lab drives fuel-devops environments through the dos.py command
// line tool and virsh.
package lab

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/openstack-archive/fuel-qa-sub001/common/devops"
)

// ErrNotFound is returned for unknown environments, nodes and snapshots.
var ErrNotFound = errors.New("not found")

// Runner executes a command, returning its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands on the lab host.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	log.WithField("cmd", name+" "+strings.Join(args, " ")).Debug("Running")
	if err := cmd.Run(); err != nil {
		return stdout.String(), &CommandError{
			Command: name + " " + strings.Join(args, " "),
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}
	return stdout.String(), nil
}

// CommandError is a failed lab command.
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Dos implements the lab operations. Operations on the lab are serialized.
type Dos struct {
	runner   Runner
	dos      string
	virsh    []string
	timeout  time.Duration
	adminIPs map[string]string

	mu sync.Mutex
}

type Options struct {
	DosPath        string
	VirshPath      string
	LibvirtURI     string
	CommandTimeout time.Duration
	AdminIPs       map[string]string
}

func NewDos(runner Runner, opts Options) *Dos {
	virsh := []string{opts.VirshPath}
	if opts.LibvirtURI != "" {
		virsh = append(virsh, "-c", opts.LibvirtURI)
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 30 * time.Minute
	}
	return &Dos{
		runner:   runner,
		dos:      opts.DosPath,
		virsh:    virsh,
		timeout:  opts.CommandTimeout,
		adminIPs: opts.AdminIPs,
	}
}

func (d *Dos) run(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.runner.Run(ctx, name, args...)
}

func (d *Dos) runDos(ctx context.Context, args ...string) (string, error) {
	return d.run(ctx, d.dos, args...)
}

func (d *Dos) runVirsh(ctx context.Context, args ...string) (string, error) {
	return d.run(ctx, d.virsh[0], append(append([]string{}, d.virsh[1:]...), args...)...)
}

// domain is the libvirt name fuel-devops gives a node.
func domain(env, node string) string {
	return env + "_" + node
}

// tableRows returns the whitespace split rows following the dashed
// separator line of a dos.py or virsh table.
func tableRows(out string) [][]string {
	var rows [][]string
	seenSeparator := false
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.Trim(trimmed, "- ") == "" {
			seenSeparator = true
			continue
		}
		if seenSeparator {
			rows = append(rows, strings.Fields(trimmed))
		}
	}
	return rows
}

func (d *Dos) listSnapshots(ctx context.Context, env string) ([]string, error) {
	out, err := d.runDos(ctx, "snapshot-list", env)
	if err != nil {
		return nil, notFound(err, "environment "+env)
	}
	snapshots := []string{}
	for _, row := range tableRows(out) {
		snapshots = append(snapshots, row[0])
	}
	return snapshots, nil
}

func (d *Dos) ListSnapshots(ctx context.Context, env string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listSnapshots(ctx, env)
}

// MakeSnapshot suspends the environment around the snapshot.
func (d *Dos) MakeSnapshot(ctx context.Context, env, name, description string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.runDos(ctx, "suspend", env); err != nil {
		return notFound(err, "environment "+env)
	}
	args := []string{"snapshot", env, "--snapshot-name", name, "--force"}
	if description != "" {
		args = append(args, "--description", description)
	}
	_, err := d.runDos(ctx, args...)
	if _, rerr := d.runDos(ctx, "resume", env); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

func (d *Dos) RevertSnapshot(ctx context.Context, env, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	snapshots, err := d.listSnapshots(ctx, env)
	if err != nil {
		return err
	}
	found := false
	for _, s := range snapshots {
		found = found || s == name
	}
	if !found {
		return errors.Wrapf(ErrNotFound, "snapshot %s of %s", name, env)
	}
	if _, err := d.runDos(ctx, "revert", env, "--snapshot-name", name); err != nil {
		return err
	}
	_, err = d.runDos(ctx, "resume", env)
	return err
}

func (d *Dos) StartNode(ctx context.Context, env, node string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.runVirsh(ctx, "start", domain(env, node))
	if err != nil && isAlreadyActive(err) {
		return nil
	}
	return notFound(err, "node "+node)
}

func (d *Dos) PowerOffNode(ctx context.Context, env, node string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.runVirsh(ctx, "destroy", domain(env, node))
	if err != nil && isNotRunning(err) {
		return nil
	}
	return notFound(err, "node "+node)
}

// NodeState reports the power state and interface MACs of a node.
func (d *Dos) NodeState(ctx context.Context, env, node string) (*devops.NodeState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out, err := d.runVirsh(ctx, "domstate", domain(env, node))
	if err != nil {
		if isMissingDomain(err) {
			return &devops.NodeState{Name: node, Status: devops.NodeAbsent}, nil
		}
		return nil, err
	}
	state := &devops.NodeState{Name: node, Status: powerState(out)}
	if out, err = d.runVirsh(ctx, "domiflist", domain(env, node)); err != nil {
		return nil, err
	}
	for _, row := range tableRows(out) {
		state.Macs = append(state.Macs, row[len(row)-1])
	}
	return state, nil
}

func powerState(out string) string {
	switch strings.TrimSpace(out) {
	case "running", "paused", "idle":
		return devops.NodeActive
	default:
		return devops.NodeShutoff
	}
}

// AdminIP is the pinned address of the master node or the first IPv4
// address libvirt has leased to it.
func (d *Dos) AdminIP(ctx context.Context, env string) (string, error) {
	if ip, ok := d.adminIPs[env]; ok {
		return ip, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out, err := d.runVirsh(ctx, "domifaddr", domain(env, "admin"), "--source", "arp")
	if err != nil {
		return "", notFound(err, "admin node of "+env)
	}
	for _, row := range tableRows(out) {
		if len(row) >= 4 && row[2] == "ipv4" {
			return strings.SplitN(row[3], "/", 2)[0], nil
		}
	}
	return "", errors.Wrapf(ErrNotFound, "address of the admin node of %s", env)
}

// SyncTime syncs the clock of the given nodes, or of every node.
func (d *Dos) SyncTime(ctx context.Context, env string, nodes []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	args := []string{"time-sync", env}
	for _, n := range nodes {
		args = append(args, "--node-name", n)
	}
	_, err := d.runDos(ctx, args...)
	return err
}

func stderrContains(err error, fragments ...string) bool {
	var ce *CommandError
	if !errors.As(err, &ce) {
		return false
	}
	for _, f := range fragments {
		if strings.Contains(ce.Stderr, f) {
			return true
		}
	}
	return false
}

func isMissingDomain(err error) bool {
	return stderrContains(err, "failed to get domain", "Domain not found")
}

func isAlreadyActive(err error) bool {
	return stderrContains(err, "already active")
}

func isNotRunning(err error) bool {
	return stderrContains(err, "not running")
}

func notFound(err error, what string) error {
	if err == nil {
		return nil
	}
	if isMissingDomain(err) || stderrContains(err, "does not exist", "DoesNotExist") {
		return errors.Wrapf(ErrNotFound, "%s: %v", what, err)
	}
	return err
}
