package main

import (
	"fmt"
	"net/http"
	"os"

	flags "github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/openstack-archive/fuel-qa-sub001/tools/lab-agent/config"
	"github.com/openstack-archive/fuel-qa-sub001/tools/lab-agent/lab"
	"github.com/openstack-archive/fuel-qa-sub001/tools/lab-agent/logger"
	"github.com/openstack-archive/fuel-qa-sub001/tools/lab-agent/server"
)

type options struct {
	Config string `short:"c" long:"config" default:"lab-agent" description:"name of the configuration file, without extension"`
	Listen string `short:"l" long:"listen" description:"address to listen on, overrides the configuration"`
	Debug  bool   `long:"debug" description:"log at debug level"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.ShortDescription = "Fuel lab agent"
	parser.LongDescription = "Serves snapshot and node power operations of fuel-devops environments"
	if _, err := parser.Parse(); err != nil {
		code := 1
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			code = 0
		}
		os.Exit(code)
	}

	v, err := config.LoadConfig(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading %s: %v\n", opts.Config, err)
		os.Exit(1)
	}
	cfg, err := config.ParseConfig(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parsing %s: %v\n", opts.Config, err)
		os.Exit(1)
	}
	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}
	if opts.Debug {
		cfg.Logger.Level = "debug"
	}
	logger.InitLogger(&cfg.Logger)

	dos := lab.NewDos(lab.ExecRunner{}, lab.Options{
		DosPath:        cfg.Lab.DosPath,
		VirshPath:      cfg.Lab.VirshPath,
		LibvirtURI:     cfg.Lab.LibvirtURI,
		CommandTimeout: cfg.Lab.CommandTimeout,
		AdminIPs:       cfg.Lab.AdminIPs,
	})
	log.WithField("listen", cfg.Server.Listen).Info("Lab agent started")
	log.Fatal(http.ListenAndServe(cfg.Server.Listen, server.NewRouter(dos)))
}
