// Package ssh runs commands on the master and slave nodes and moves files
// to them over SFTP.
package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/wait"
)

// Result of a remote command.
type Result struct {
	Command  string
	ExitCode int
	Stdout   []string
	Stderr   []string
}

// StdoutStr is the trimmed standard output.
func (r Result) StdoutStr() string {
	return strings.TrimSpace(strings.Join(r.Stdout, "\n"))
}

// StderrStr is the trimmed standard error.
func (r Result) StderrStr() string {
	return strings.TrimSpace(strings.Join(r.Stderr, "\n"))
}

func (r Result) String() string {
	return fmt.Sprintf("command %q exited with %d\nstdout:\n%s\nstderr:\n%s",
		r.Command, r.ExitCode, r.StdoutStr(), r.StderrStr())
}

// Executor runs a command on the node at ip.
type Executor interface {
	Execute(ctx context.Context, ip string, cmd string) (*Result, error)
}

// Credentials for a node. Signers take precedence over the password.
type Credentials struct {
	User     string
	Password string
	KeyFile  string
	Signers  []ssh.Signer
}

func (c Credentials) authMethods() ([]ssh.AuthMethod, error) {
	signers := append([]ssh.Signer{}, c.Signers...)
	if c.KeyFile != "" {
		pem, err := ioutil.ReadFile(c.KeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "reading ssh key")
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing ssh key %s", c.KeyFile)
		}
		signers = append(signers, signer)
	}
	var methods []ssh.AuthMethod
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	if c.Password != "" {
		methods = append(methods, ssh.Password(c.Password))
	}
	if len(methods) == 0 {
		return nil, errors.Errorf("no ssh credentials for user %s", c.User)
	}
	return methods, nil
}

// Options tune connection handling.
type Options struct {
	Port int
	// ConnectTimeout bounds the retries of an unreachable node.
	ConnectTimeout time.Duration
	// ConnectInterval is the delay between connection attempts.
	ConnectInterval time.Duration
	// CommandTimeout applies to commands run without a context deadline.
	CommandTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Port == 0 {
		o.Port = 22
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Minute
	}
	if o.ConnectInterval <= 0 {
		o.ConnectInterval = 5 * time.Second
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 10 * time.Minute
	}
	return o
}

// Manager keeps one connection per node. The master node is reached with
// the admin credentials, every other node with the slave credentials.
type Manager struct {
	opts    Options
	adminIP string
	admin   Credentials
	slave   Credentials

	mu      sync.Mutex
	clients map[string]*ssh.Client
	log     logr.Logger
}

var _ Executor = &Manager{}

func NewManager(adminIP string, admin Credentials, slave Credentials, opts Options) *Manager {
	return &Manager{
		opts:    opts.withDefaults(),
		adminIP: adminIP,
		admin:   admin,
		slave:   slave,
		clients: map[string]*ssh.Client{},
		log:     logf.Log.WithName("ssh"),
	}
}

// AdminIP of the master node.
func (m *Manager) AdminIP() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adminIP
}

// SetAdminIP changes the master node address, dropping cached connections.
func (m *Manager) SetAdminIP(ip string) {
	m.mu.Lock()
	m.adminIP = ip
	m.mu.Unlock()
	m.Close()
}

// SetSlaveSigners makes the manager use signers for slave nodes.
func (m *Manager) SetSlaveSigners(signers ...ssh.Signer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slave.Signers = signers
}

// Close drops all connections.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ip, c := range m.clients {
		_ = c.Close()
		delete(m.clients, ip)
	}
}

func (m *Manager) credentials(ip string) Credentials {
	if ip == m.adminIP {
		return m.admin
	}
	return m.slave
}

func (m *Manager) client(ip string) (*ssh.Client, error) {
	m.mu.Lock()
	if c, ok := m.clients[ip]; ok {
		m.mu.Unlock()
		return c, nil
	}
	creds := m.credentials(ip)
	m.mu.Unlock()

	methods, err := creds.authMethods()
	if err != nil {
		return nil, failure.NewInfraError("ssh_credentials", err.Error())
	}
	config := &ssh.ClientConfig{
		User:            creds.User,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}
	addr := net.JoinHostPort(ip, strconv.Itoa(m.opts.Port))
	// the lock is not held while dialing, a retry can last ConnectTimeout
	v, err := wait.ProdExpecting(func() (interface{}, error) {
		return ssh.Dial("tcp", addr, config)
	}, wait.Or(wait.NetworkError, handshakeInterrupted), "ssh_connect", m.opts.ConnectInterval, m.opts.ConnectTimeout,
		fmt.Sprintf("node %s is not reachable over ssh", addr))
	if err != nil {
		return nil, err
	}
	c := v.(*ssh.Client)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.clients[ip]; ok {
		_ = c.Close()
		return existing, nil
	}
	m.clients[ip] = c
	return c, nil
}

// handshakeInterrupted expects handshakes cut short by the peer, as seen
// while sshd is starting. x/crypto flattens the cause into the message.
func handshakeInterrupted(err error) bool {
	msg := err.Error()
	if !strings.HasPrefix(msg, "ssh: handshake failed") {
		return false
	}
	return strings.Contains(msg, "EOF") || strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe")
}

func (m *Manager) forget(ip string, c *ssh.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clients[ip] == c {
		_ = c.Close()
		delete(m.clients, ip)
	}
}

func (m *Manager) session(ip string) (*ssh.Client, *ssh.Session, error) {
	c, err := m.client(ip)
	if err != nil {
		return nil, nil, err
	}
	s, err := c.NewSession()
	if err == nil {
		return c, s, nil
	}
	// stale connection, the node was probably rebooted
	m.forget(ip, c)
	if c, err = m.client(ip); err != nil {
		return nil, nil, err
	}
	s, err = c.NewSession()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening ssh session to %s", ip)
	}
	return c, s, nil
}

// Execute runs cmd on ip. A non-zero exit code is not an error.
func (m *Manager) Execute(ctx context.Context, ip string, cmd string) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.CommandTimeout)
		defer cancel()
	}
	_, session, err := m.session(ip)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	m.log.V(1).Info("Executing", "node", ip, "cmd", cmd)
	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()
	select {
	case <-ctx.Done():
		_ = session.Close()
		return nil, errors.Wrapf(ctx.Err(), "command %q on %s", cmd, ip)
	case err = <-done:
	}

	result := &Result{Command: cmd, Stdout: splitLines(stdout.String()), Stderr: splitLines(stderr.String())}
	switch e := err.(type) {
	case nil:
	case *ssh.ExitError:
		result.ExitCode = e.ExitStatus()
	default:
		return nil, errors.Wrapf(err, "command %q on %s", cmd, ip)
	}
	return result, nil
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

// Check describes the expected outcome of ExecuteOnRemote.
type Check struct {
	// ExitCode expected, 0 by default.
	ExitCode int
	// Infra classifies a mismatch as an InfraError, otherwise it is a ProdError.
	Infra bool
	// Etype of the raised error, "ssh_exit_code" by default.
	Etype string
	// Message prefixed to the mismatch report.
	Message string
}

// ExecuteOnRemote runs cmd and returns a classified error when the exit
// code differs from the expected one.
func ExecuteOnRemote(ctx context.Context, ex Executor, ip string, cmd string, check Check) (*Result, error) {
	result, err := ex.Execute(ctx, ip, cmd)
	if err != nil {
		return nil, err
	}
	if result.ExitCode == check.ExitCode {
		return result, nil
	}
	etype := check.Etype
	if etype == "" {
		etype = "ssh_exit_code"
	}
	msg := fmt.Sprintf("unexpected exit code on %s, expected %d: %s", ip, check.ExitCode, result)
	if check.Message != "" {
		msg = check.Message + ": " + msg
	}
	if check.Infra {
		return result, failure.NewInfraError(etype, msg)
	}
	return result, failure.NewProdError(etype, msg)
}
