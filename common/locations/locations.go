package locations

// Paths are relative to the e2e root directory unless configured otherwise.

import (
	"os"
	"path"

	"github.com/openstack-archive/fuel-qa-sub001/common/e2e_config"

	. "github.com/onsi/gomega"
)

func locationExists(path string) string {
	_, err := os.Stat(path)
	Expect(err).To(BeNil(), "%s", err)
	return path
}

// GetPluginsDir is where plugin packages are looked up.
func GetPluginsDir() string {
	cfg := e2e_config.GetConfig()
	if cfg.Plugins.Dir != "" {
		return locationExists(path.Clean(cfg.Plugins.Dir))
	}
	return locationExists(path.Clean(cfg.E2eRootDir + "/plugins"))
}

// GetPluginPath resolves a plugin package, absolute paths are taken as is.
func GetPluginPath(name string) string {
	if path.IsAbs(name) {
		return locationExists(name)
	}
	return locationExists(path.Join(GetPluginsDir(), name))
}

// This is a generated directory, so may not exist yet.
func GetArtifactsDir() string {
	return path.Clean(e2e_config.GetConfig().E2eRootDir + "/artifacts")
}

// GetNessusReportsDir holds downloaded scan exports.
func GetNessusReportsDir() string {
	dir := path.Join(GetArtifactsDir(), "nessus")
	Expect(os.MkdirAll(dir, 0755)).To(Succeed())
	return dir
}
