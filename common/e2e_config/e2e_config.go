package e2e_config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"sync"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/ilyakaznacheev/cleanenv"
)

const ConfigDir = "/configurations"
const DefaultConfigFileRelPath = ConfigDir + "/fuel_ci_e2e_config.yaml"

// E2EConfig is the configuration of a test run against a Fuel lab.
type E2EConfig struct {
	ConfigName string `yaml:"configName" env-default:"default"`

	// Root of the checkout, used to locate configuration and artifacts.
	E2eRootDir string `yaml:"e2eRootDir" env:"fuel_e2e_root_dir"`

	Env struct {
		// Name of the devops environment the lab agent manages.
		Name string `yaml:"name" env:"ENV_NAME" env-default:"fuel_system_test"`
		// Address of the lab agent exposing the devops environment.
		LabAgentAddr  string `yaml:"labAgentAddr" env:"LAB_AGENT_ADDR" env-default:"127.0.0.1:10014"`
		AdminNodeName string `yaml:"adminNodeName" env-default:"admin"`
		// AdminNodeIP overrides the address reported by the lab agent.
		AdminNodeIP string `yaml:"adminNodeIP" env:"ADMIN_NODE_IP"`
		SlaveCount  int    `yaml:"slaveCount" env:"NODES_COUNT" env-default:"10"`
		IsoPath     string `yaml:"isoPath" env:"ISO_PATH"`
		// Credentials for the admin (master) node ssh.
		SSHUser     string `yaml:"sshUser" env:"SSH_USER" env-default:"root"`
		SSHPassword string `yaml:"sshPassword" env:"SSH_PASSWORD" env-default:"r00tme"`
		SSHKeyFile  string `yaml:"sshKeyFile" env:"SSH_KEY_FILE"`
	} `yaml:"env"`

	Fuel struct {
		APIPort      int    `yaml:"apiPort" env:"FUEL_API_PORT" env-default:"8000"`
		KeystonePort int    `yaml:"keystonePort" env:"KEYSTONE_PORT" env-default:"5000"`
		SSL          bool   `yaml:"ssl" env:"FORCE_HTTPS_MASTER_NODE" env-default:"false"`
		User         string `yaml:"user" env:"KEYSTONE_USER" env-default:"admin"`
		Password     string `yaml:"password" env:"KEYSTONE_PASSWORD" env-default:"admin"`
		Tenant       string `yaml:"tenant" env:"KEYSTONE_TENANT" env-default:"admin"`
		// Release used for clusters, matched against release names.
		OpenstackRelease string `yaml:"openstackRelease" env:"OPENSTACK_RELEASE" env-default:"ubuntu"`
		// Expected Fuel version, empty disables the check.
		Version string `yaml:"version" env:"FUEL_VERSION"`
	} `yaml:"fuel"`

	Cluster struct {
		NetProvider string `yaml:"netProvider" env-default:"neutron"`
		SegmentType string `yaml:"segmentType" env:"NEUTRON_SEGMENT_TYPE" env-default:"vlan"`
		Tenant      string `yaml:"tenant" env-default:"admin"`
		User        string `yaml:"user" env-default:"admin"`
		Password    string `yaml:"password" env-default:"admin"`
		// Generate random tenant credentials for each created cluster.
		RandomCredentials bool `yaml:"randomCredentials" env-default:"false"`
	} `yaml:"cluster"`

	Timeouts struct {
		Deploy    string `yaml:"deploy" env:"DEPLOYMENT_TIMEOUT" env-default:"90m"`
		Bootstrap string `yaml:"bootstrap" env-default:"15m"`
		Revert    string `yaml:"revert" env-default:"10m"`
		OSTF      string `yaml:"ostf" env-default:"30m"`
		Network   string `yaml:"network" env-default:"5m"`
		SSH       string `yaml:"ssh" env-default:"5m"`
		// Poll interval for all waits unless overridden.
		Interval string `yaml:"interval" env-default:"10s"`
	} `yaml:"timeouts"`

	OSTF struct {
		TestSets []string `yaml:"testSets" env-default:"smoke,sanity,ha"`
	} `yaml:"ostf"`

	Plugins struct {
		Dir        string `yaml:"dir" env:"PLUGINS_DIR"`
		ZabbixPath string `yaml:"zabbixPath" env:"ZABBIX_PLUGIN_PATH"`
	} `yaml:"plugins"`

	Nessus struct {
		Address  string `yaml:"address" env:"NESSUS_ADDRESS"`
		Port     int    `yaml:"port" env:"NESSUS_PORT" env-default:"8834"`
		Username string `yaml:"username" env:"NESSUS_USERNAME"`
		Password string `yaml:"password" env:"NESSUS_PASSWORD"`
		SSL      bool   `yaml:"ssl" env:"NESSUS_SSL_VERIFY" env-default:"false"`
		// Template used to create policies.
		PolicyTemplate string `yaml:"policyTemplate" env-default:"advanced"`
	} `yaml:"nessus"`

	Zabbix struct {
		Username string `yaml:"username" env-default:"admin"`
		Password string `yaml:"password" env-default:"zabbix"`
	} `yaml:"zabbix"`

	// Run configuration
	ReportsDir string `yaml:"reportsDir" env:"fuel_e2e_reports_dir"`
	// Directory where logs and snapshot diagnostics are written.
	LogsDir string `yaml:"logsDir" env:"LOGS_DIR"`
	// Recreate snapshots even when they exist.
	MakeSnapshots bool `yaml:"makeSnapshots" env:"MAKE_SNAPSHOT" env-default:"false"`
}

var once sync.Once
var e2eConfig E2EConfig

// LoadConfig reads a configuration file, applying environment overrides and defaults.
func LoadConfig(configFile string) (E2EConfig, error) {
	var cfg E2EConfig
	if err := cleanenv.ReadConfig(configFile, &cfg); err != nil {
		return cfg, fmt.Errorf("could not read config file %s: %v", configFile, err)
	}
	return cfg, nil
}

// This function is called early from junit and various bits have not been initialised yet
// so we cannot use logf or Expect instead we use fmt.Print... and panic.
func GetConfig() E2EConfig {
	once.Do(func() {
		e2eRootDir, okE2eRootDir := os.LookupEnv("fuel_e2e_root_dir")
		// - if fuel_e2e_config_file is defined it names a file in the configuration directory
		// - otherwise the default configuration file is used
		configFile := path.Clean(e2eRootDir + DefaultConfigFileRelPath)
		if value, ok := os.LookupEnv("fuel_e2e_config_file"); ok {
			configFile = path.Clean(e2eRootDir + ConfigDir + "/" + value)
		}
		fmt.Printf("Using configuration file %s\n", configFile)
		cfg, err := LoadConfig(configFile)
		if err != nil {
			panic(fmt.Sprintf("%v", err))
		}
		e2eConfig = cfg

		// The environment variable overrides the configuration setting.
		if okE2eRootDir {
			if e2eRootDir != e2eConfig.E2eRootDir {
				fmt.Printf("overriding configuration e2e root dir from %s to %s\n", e2eConfig.E2eRootDir, e2eRootDir)
			}
			e2eConfig.E2eRootDir = e2eRootDir
		}
		if e2eConfig.E2eRootDir == "" {
			panic("E2E root directory is not specified.")
		}

		cfgBytes, _ := yaml.Marshal(e2eConfig)
		cfgUsedFile := path.Clean(e2eConfig.E2eRootDir + "/artifacts/used-" + e2eConfig.ConfigName + "-" + e2eConfig.Env.Name + ".yaml")
		err = ioutil.WriteFile(cfgUsedFile, cfgBytes, 0644)
		if err == nil {
			fmt.Printf("Resolved config written to %s\n", cfgUsedFile)
		}
	})

	return e2eConfig
}

// Duration parses one of the duration strings of the configuration,
// falling back to def when the string is empty or malformed.
func Duration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
