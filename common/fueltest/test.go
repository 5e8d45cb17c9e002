package fueltest

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/openstack-archive/fuel-qa-sub001/common/devops"
	"github.com/openstack-archive/fuel-qa-sub001/common/e2e_config"
	"github.com/openstack-archive/fuel-qa-sub001/common/fuelweb"
	"github.com/openstack-archive/fuel-qa-sub001/common/nailgun"
	"github.com/openstack-archive/fuel-qa-sub001/common/reporter"
	"github.com/openstack-archive/fuel-qa-sub001/common/ssh"
)

var gTest *TestBasic

// InitTesting initialise testing and setup class name + report filename.
func InitTesting(t *testing.T, classname string, reportname string) {
	RegisterFailHandler(Fail)
	cfg := e2e_config.GetConfig()
	fmt.Printf("Fuel environment is \"%s\"\n", cfg.Env.Name)
	RunSpecsWithDefaultAndCustomReporters(t, classname, reporter.GetReporters(reportname))
}

// SetupTestEnv connects to the lab agent, the master node API and ssh.
// Call it from BeforeSuite.
func SetupTestEnv() {
	logf.SetLogger(zap.New(zap.UseDevMode(true), zap.WriteTo(GinkgoWriter)))
	cfg := e2e_config.GetConfig()

	By("connecting to the lab")
	tb, err := NewFromConfig(context.Background(), cfg)
	Expect(err).ToNot(HaveOccurred())
	gTest = tb
}

// Env returns the TestBasic set up by SetupTestEnv.
func Env() *TestBasic {
	Expect(gTest).ToNot(BeNil(), "SetupTestEnv was not called")
	return gTest
}

func TeardownTestEnv() {
	if gTest != nil {
		gTest.Close()
	}
	logf.Log.Info("TeardownTestEnv")
}

// NewFromConfig builds the clients described by cfg. The master node
// address is taken from the configuration or asked of the lab agent.
func NewFromConfig(ctx context.Context, cfg e2e_config.E2EConfig) (*TestBasic, error) {
	lab := devops.NewAgentClient(cfg.Env.LabAgentAddr, cfg.Env.Name)
	adminIP := cfg.Env.AdminNodeIP
	if adminIP == "" {
		ip, err := lab.AdminIP(ctx)
		if err != nil {
			return nil, err
		}
		adminIP = ip
	}

	remote := ssh.NewManager(adminIP,
		ssh.Credentials{User: cfg.Env.SSHUser, Password: cfg.Env.SSHPassword, KeyFile: cfg.Env.SSHKeyFile},
		ssh.Credentials{User: "root"},
		ssh.Options{ConnectTimeout: e2e_config.Duration(cfg.Timeouts.SSH, 0)})

	client := nailgun.New(nailgun.Config{
		Host:     net.JoinHostPort(adminIP, strconv.Itoa(cfg.Fuel.APIPort)),
		SSL:      cfg.Fuel.SSL,
		User:     cfg.Fuel.User,
		Password: cfg.Fuel.Password,
		Tenant:   cfg.Fuel.Tenant,
	})

	return NewTestBasic(cfg, lab, remote, client), nil
}

func fuelWebOptions(cfg e2e_config.E2EConfig) fuelweb.Options {
	return fuelweb.Options{
		OpenstackRelease:  cfg.Fuel.OpenstackRelease,
		RandomCredentials: cfg.Cluster.RandomCredentials,
		Timeouts: fuelweb.Timeouts{
			Deploy:    e2e_config.Duration(cfg.Timeouts.Deploy, 0),
			Network:   e2e_config.Duration(cfg.Timeouts.Network, 0),
			OSTF:      e2e_config.Duration(cfg.Timeouts.OSTF, 0),
			Bootstrap: e2e_config.Duration(cfg.Timeouts.Bootstrap, 0),
			Interval:  e2e_config.Duration(cfg.Timeouts.Interval, 0),
		},
	}
}
