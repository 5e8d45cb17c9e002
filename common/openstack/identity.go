package openstack

import (
	"github.com/gophercloud/gophercloud/openstack/identity/v3/projects"
	"github.com/gophercloud/gophercloud/openstack/identity/v3/users"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-password/password"
)

func (c *Client) CreateProject(name string) (*projects.Project, error) {
	return projects.Create(c.Identity, projects.CreateOpts{Name: name, Description: "created by fuel-qa"}).Extract()
}

// GeneratePassword returns a random password acceptable to keystone.
func GeneratePassword() (string, error) {
	return password.Generate(16, 4, 0, false, true)
}

// CreateUser creates an enabled user in projectID. An empty pass is
// replaced by a generated one, which is returned.
func (c *Client) CreateUser(name, projectID, pass string) (*users.User, string, error) {
	if pass == "" {
		var err error
		if pass, err = GeneratePassword(); err != nil {
			return nil, "", errors.Wrap(err, "generating password")
		}
	}
	enabled := true
	user, err := users.Create(c.Identity, users.CreateOpts{
		Name:             name,
		DefaultProjectID: projectID,
		Password:         pass,
		Enabled:          &enabled,
	}).Extract()
	if err != nil {
		return nil, "", err
	}
	return user, pass, nil
}

func (c *Client) DeleteProject(id string) error {
	return projects.Delete(c.Identity, id).ExtractErr()
}

func (c *Client) DeleteUser(id string) error {
	return users.Delete(c.Identity, id).ExtractErr()
}
