package config

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/viper"
)

// App config struct
type Config struct {
	Server ServerConfig
	Logger Logger
	Lab    Lab
}

// Server config struct
type ServerConfig struct {
	Listen string
}

// Logger config
type Logger struct {
	ReportCaller bool
	Encoding     string
	Level        string
	// Output is "stdout" or "file".
	Output string
	File   string
}

// Lab describes how the devops environments are driven.
type Lab struct {
	// DosPath is the fuel-devops command line tool.
	DosPath string
	// VirshPath is used for per node power and addresses.
	VirshPath string
	// Libvirt connection URI passed to virsh.
	LibvirtURI     string
	CommandTimeout time.Duration
	// AdminIPs pins the master node address per environment.
	AdminIPs map[string]string
}

// Load config file from given path
func LoadConfig(filename string) (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigName(filename)
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/lab-agent")
	v.SetEnvPrefix("LAB_AGENT")
	v.AutomaticEnv()
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, errors.New("config file not found")
		}
		return nil, err
	}

	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":10014")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "text")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file", "/var/log/lab-agent.log")
	v.SetDefault("lab.dospath", "dos.py")
	v.SetDefault("lab.virshpath", "virsh")
	v.SetDefault("lab.libvirturi", "qemu:///system")
	v.SetDefault("lab.commandtimeout", "30m")
}

// Parse config file
func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config

	err := v.Unmarshal(&c)
	if err != nil {
		log.Printf("unable to decode into struct, %v", err)
		return nil, err
	}

	return &c, nil
}
