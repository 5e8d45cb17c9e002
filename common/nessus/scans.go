package nessus

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/wait"
)

type Policy struct {
	ID           int64
	Name         string
	TemplateUUID string
}

type Template struct {
	UUID  string
	Name  string
	Title string
}

type Family struct {
	ID    int64
	Name  string
	Count int64
}

// Scan statuses that end a scan.
const (
	StatusCompleted = "completed"
	StatusCanceled  = "canceled"
	StatusAborted   = "aborted"
)

func (c *Client) ListPolicies(ctx context.Context) ([]Policy, error) {
	res, err := c.sendRequest(ctx, http.MethodGet, "/policies", nil)
	if err != nil {
		return nil, err
	}
	var out []Policy
	for _, p := range res.Get("policies").Array() {
		out = append(out, Policy{
			ID:           p.Get("id").Int(),
			Name:         p.Get("name").String(),
			TemplateUUID: p.Get("template_uuid").String(),
		})
	}
	return out, nil
}

func (c *Client) ListPolicyTemplates(ctx context.Context) ([]Template, error) {
	res, err := c.sendRequest(ctx, http.MethodGet, "/editor/policy/templates", nil)
	if err != nil {
		return nil, err
	}
	var out []Template
	for _, t := range res.Get("templates").Array() {
		out = append(out, Template{
			UUID:  t.Get("uuid").String(),
			Name:  t.Get("name").String(),
			Title: t.Get("title").String(),
		})
	}
	return out, nil
}

// TemplateUUID resolves a policy template by name, e.g. "advanced".
func (c *Client) TemplateUUID(ctx context.Context, name string) (string, error) {
	templates, err := c.ListPolicyTemplates(ctx)
	if err != nil {
		return "", err
	}
	for _, t := range templates {
		if t.Name == name {
			return t.UUID, nil
		}
	}
	return "", failure.NewInfraError("nessus_template", fmt.Sprintf("no policy template %q", name))
}

// CreatePolicy creates a policy from the named template.
func (c *Client) CreatePolicy(ctx context.Context, template, name, description string) (int64, error) {
	uuid, err := c.TemplateUUID(ctx, template)
	if err != nil {
		return 0, err
	}
	res, err := c.sendRequest(ctx, http.MethodPost, "/policies", map[string]interface{}{
		"uuid": uuid,
		"settings": map[string]interface{}{
			"name":        name,
			"description": description,
		},
	})
	if err != nil {
		return 0, err
	}
	return res.Get("policy_id").Int(), nil
}

// CreateScan creates a scan of targets with an existing policy.
func (c *Client) CreateScan(ctx context.Context, name, description string, targets []string, policyID int64, templateUUID string) (int64, error) {
	res, err := c.sendRequest(ctx, http.MethodPost, "/scans", map[string]interface{}{
		"uuid": templateUUID,
		"settings": map[string]interface{}{
			"name":         name,
			"description":  description,
			"policy_id":    policyID,
			"text_targets": strings.Join(targets, ","),
			"enabled":      false,
			"launch_now":   false,
		},
	})
	if err != nil {
		return 0, err
	}
	id := res.Get("scan.id").Int()
	if id == 0 {
		return 0, errors.Errorf("nessus did not return a scan id: %s", res.Raw)
	}
	c.log.Info("Scan created", "id", id, "name", name, "targets", targets)
	return id, nil
}

// LaunchScan starts a scan and returns the uuid of its run.
func (c *Client) LaunchScan(ctx context.Context, scanID int64) (string, error) {
	res, err := c.sendRequest(ctx, http.MethodPost, fmt.Sprintf("/scans/%d/launch", scanID), nil)
	if err != nil {
		return "", err
	}
	return res.Get("scan_uuid").String(), nil
}

func (c *Client) ScanStatus(ctx context.Context, scanID int64) (string, error) {
	res, err := c.sendRequest(ctx, http.MethodGet, fmt.Sprintf("/scans/%d", scanID), nil)
	if err != nil {
		return "", err
	}
	return res.Get("info.status").String(), nil
}

// WaitScanCompleted waits for the scan to finish; a canceled or aborted
// scan is an infrastructure failure.
func (c *Client) WaitScanCompleted(ctx context.Context, scanID int64, interval, timeout time.Duration) error {
	_, err := wait.Until(func() wait.Outcome {
		status, err := c.ScanStatus(ctx, scanID)
		if err != nil {
			return wait.FatalError(err)
		}
		switch status {
		case StatusCompleted:
			return wait.ReadyWith(status)
		case StatusCanceled, StatusAborted:
			return wait.FatalError(failure.NewInfraError("nessus_scan", fmt.Sprintf("scan %d %s", scanID, status)))
		}
		return wait.NotReadyBecause(fmt.Errorf("scan %d is %s", scanID, status))
	}, wait.Options{Action: "nessus_scan", Interval: interval, Timeout: timeout})
	return err
}

// ExportScan requests a report, waits for it and returns its content.
func (c *Client) ExportScan(ctx context.Context, scanID int64, format string, interval, timeout time.Duration) ([]byte, error) {
	req := map[string]interface{}{"format": format}
	if format == "html" || format == "pdf" {
		req["chapters"] = "vuln_hosts_summary"
	}
	res, err := c.sendRequest(ctx, http.MethodPost, fmt.Sprintf("/scans/%d/export", scanID), req)
	if err != nil {
		return nil, err
	}
	fileID := res.Get("file").Int()

	_, err = wait.Prod(func() (bool, error) {
		res, err := c.sendRequest(ctx, http.MethodGet, fmt.Sprintf("/scans/%d/export/%d/status", scanID, fileID), nil)
		if err != nil {
			return false, err
		}
		return res.Get("status").String() == "ready", nil
	}, "nessus_export", interval, timeout, fmt.Sprintf("report %d of scan %d was not ready in %v", fileID, scanID, timeout))
	if err != nil {
		return nil, err
	}

	token, err := c.Login(ctx)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodGet, fmt.Sprintf("/scans/%d/export/%d/download", scanID, fileID), token, nil)
}

func (c *Client) ListPluginFamilies(ctx context.Context) ([]Family, error) {
	res, err := c.sendRequest(ctx, http.MethodGet, "/plugins/families", nil)
	if err != nil {
		return nil, err
	}
	var out []Family
	for _, f := range res.Get("families").Array() {
		out = append(out, Family{ID: f.Get("id").Int(), Name: f.Get("name").String(), Count: f.Get("count").Int()})
	}
	return out, nil
}
