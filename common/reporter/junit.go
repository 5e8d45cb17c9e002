package reporter

import (
	. "github.com/onsi/ginkgo"
	"github.com/onsi/ginkgo/reporters"

	"github.com/openstack-archive/fuel-qa-sub001/common/e2e_config"
)

const testGroupPrefix = "fuel."

// GetReporters returns the JUnit reporter writing <reportsDir>/fuel.<name>-junit.xml,
// or no reporter when no reports directory is configured.
func GetReporters(name string) []Reporter {
	return ReportersFor(e2e_config.GetConfig().ReportsDir, name)
}

func ReportersFor(reportsDir string, name string) []Reporter {
	if reportsDir == "" {
		return []Reporter{}
	}
	xmlFileSpec := reportsDir + "/" + testGroupPrefix + name + "-junit.xml"
	junitReporter := reporters.NewJUnitReporter(xmlFileSpec)
	return []Reporter{junitReporter}
}
