// Package checkers holds post deployment checks run on nodes over ssh.
package checkers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/ssh"
)

func run(ctx context.Context, ex ssh.Executor, ip, cmd string) (*ssh.Result, error) {
	return ssh.ExecuteOnRemote(ctx, ex, ip, cmd, ssh.Check{Infra: true, Etype: "remote_command"})
}

func lastInt(r *ssh.Result) (int64, error) {
	if len(r.Stdout) == 0 {
		return 0, fmt.Errorf("no output from %q", r.Command)
	}
	field := strings.TrimSpace(r.Stdout[len(r.Stdout)-1])
	field = strings.TrimSuffix(field, "M")
	v, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected output of %q: %v", r.Command, err)
	}
	return v, nil
}

// FreeSpaceMB returns the space available on the filesystem holding path.
func FreeSpaceMB(ctx context.Context, ex ssh.Executor, ip, path string) (int64, error) {
	r, err := run(ctx, ex, ip, fmt.Sprintf("df -BM --output=avail %s | tail -n 1", path))
	if err != nil {
		return 0, err
	}
	return lastInt(r)
}

// FreeInodes returns the inodes available on the filesystem holding path.
func FreeInodes(ctx context.Context, ex ssh.Executor, ip, path string) (int64, error) {
	r, err := run(ctx, ex, ip, fmt.Sprintf("df --output=iavail %s | tail -n 1", path))
	if err != nil {
		return 0, err
	}
	return lastInt(r)
}

// CheckFreeSpace fails with a ProdError when path has less than minMB free.
func CheckFreeSpace(ctx context.Context, ex ssh.Executor, ip, path string, minMB int64) error {
	free, err := FreeSpaceMB(ctx, ex, ip, path)
	if err != nil {
		return err
	}
	if free < minMB {
		return failure.NewProdError("disk_space",
			fmt.Sprintf("%s on %s has %dMB free, at least %dMB expected", path, ip, free, minMB))
	}
	return nil
}

// CheckFreeInodes fails with a ProdError when path has less than min inodes free.
func CheckFreeInodes(ctx context.Context, ex ssh.Executor, ip, path string, min int64) error {
	free, err := FreeInodes(ctx, ex, ip, path)
	if err != nil {
		return err
	}
	if free < min {
		return failure.NewProdError("disk_inodes",
			fmt.Sprintf("%s on %s has %d free inodes, at least %d expected", path, ip, free, min))
	}
	return nil
}

// ServiceRunning reports whether the init system considers service running.
func ServiceRunning(ctx context.Context, ex ssh.Executor, ip, service string) (bool, error) {
	r, err := ex.Execute(ctx, ip, fmt.Sprintf("service %s status", service))
	if err != nil {
		return false, err
	}
	return r.ExitCode == 0, nil
}

// CheckServiceRunning fails with a ProdError when service is down.
func CheckServiceRunning(ctx context.Context, ex ssh.Executor, ip, service string) error {
	ok, err := ServiceRunning(ctx, ex, ip, service)
	if err != nil {
		return err
	}
	if !ok {
		return failure.NewProdError("service_down", fmt.Sprintf("service %s is not running on %s", service, ip))
	}
	return nil
}

// IniValue reads option from section of a remote INI file. An empty section
// means the default section.
func IniValue(ctx context.Context, ex ssh.Executor, ip, file, section, option string) (string, bool, error) {
	r, err := run(ctx, ex, ip, "cat "+file)
	if err != nil {
		return "", false, err
	}
	cfg, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true, SkipUnrecognizableLines: true},
		[]byte(strings.Join(r.Stdout, "\n")))
	if err != nil {
		return "", false, fmt.Errorf("parsing %s on %s: %v", file, ip, err)
	}
	sec, err := cfg.GetSection(sectionName(section))
	if err != nil {
		return "", false, nil
	}
	if !sec.HasKey(option) {
		return "", false, nil
	}
	return sec.Key(option).String(), true, nil
}

func sectionName(section string) string {
	if section == "" {
		return ini.DefaultSection
	}
	return section
}

// CheckIniValue fails with a ProdError unless option has the expected value.
func CheckIniValue(ctx context.Context, ex ssh.Executor, ip, file, section, option, expected string) error {
	value, ok, err := IniValue(ctx, ex, ip, file, section, option)
	if err != nil {
		return err
	}
	if !ok {
		return failure.NewProdError("config_value",
			fmt.Sprintf("%s has no option %s in [%s] on %s", file, option, sectionName(section), ip))
	}
	if value != expected {
		return failure.NewProdError("config_value",
			fmt.Sprintf("%s [%s] %s is %q on %s, expected %q", file, sectionName(section), option, value, ip, expected))
	}
	return nil
}

// CephHealth returns the first word of "ceph health", e.g. HEALTH_OK.
func CephHealth(ctx context.Context, ex ssh.Executor, ip string) (string, string, error) {
	r, err := run(ctx, ex, ip, "ceph health")
	if err != nil {
		return "", "", err
	}
	out := r.StdoutStr()
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", "", failure.NewProdError("ceph_health", "ceph health returned nothing on "+ip)
	}
	return fields[0], out, nil
}

// CheckCephHealth fails with a ProdError unless ceph reports HEALTH_OK.
// Clock skew warnings are tolerated when allowClockSkew is set.
func CheckCephHealth(ctx context.Context, ex ssh.Executor, ip string, allowClockSkew bool) error {
	status, details, err := CephHealth(ctx, ex, ip)
	if err != nil {
		return err
	}
	if status == "HEALTH_OK" {
		return nil
	}
	if allowClockSkew && status == "HEALTH_WARN" && onlyClockSkew(details) {
		return nil
	}
	return failure.NewProdError("ceph_health", fmt.Sprintf("ceph is not healthy on %s: %s", ip, details))
}

func onlyClockSkew(details string) bool {
	rest := strings.TrimSpace(strings.TrimPrefix(details, "HEALTH_WARN"))
	if rest == "" {
		return false
	}
	for _, part := range strings.Split(rest, ";") {
		if !strings.Contains(part, "clock skew") {
			return false
		}
	}
	return true
}

// FileExists reports whether path exists on the node.
func FileExists(ctx context.Context, ex ssh.Executor, ip, path string) (bool, error) {
	r, err := ex.Execute(ctx, ip, fmt.Sprintf("test -e %s", path))
	if err != nil {
		return false, err
	}
	return r.ExitCode == 0, nil
}

// PackageInstalled queries dpkg on ubuntu nodes and rpm on centos ones.
func PackageInstalled(ctx context.Context, ex ssh.Executor, ip, pkg string) (bool, error) {
	r, err := ex.Execute(ctx, ip, fmt.Sprintf(
		"if which dpkg >/dev/null 2>&1; then dpkg -s %[1]s | grep -q '^Status: install ok installed'; else rpm -q %[1]s; fi", pkg))
	if err != nil {
		return false, err
	}
	return r.ExitCode == 0, nil
}

// GaleraReady reports whether the local galera node accepts queries.
func GaleraReady(ctx context.Context, ex ssh.Executor, ip string) (bool, error) {
	r, err := ex.Execute(ctx, ip, `mysql --skip-column-names -e "SHOW STATUS LIKE 'wsrep_ready'"`)
	if err != nil {
		return false, err
	}
	if r.ExitCode != 0 {
		return false, nil
	}
	fields := strings.Fields(r.StdoutStr())
	return len(fields) == 2 && fields[1] == "ON", nil
}
