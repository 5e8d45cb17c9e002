package ssh

import (
	"io"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

func (m *Manager) sftpClient(ip string) (*sftp.Client, error) {
	c, err := m.client(ip)
	if err != nil {
		return nil, err
	}
	sc, err := sftp.NewClient(c)
	if err != nil {
		m.forget(ip, c)
		if c, err = m.client(ip); err != nil {
			return nil, err
		}
		if sc, err = sftp.NewClient(c); err != nil {
			return nil, errors.Wrapf(err, "starting sftp on %s", ip)
		}
	}
	return sc, nil
}

// UploadToRemote copies a local file or directory tree to target on ip.
// A directory source is copied into target, which is created.
func (m *Manager) UploadToRemote(ip string, source string, target string) error {
	sc, err := m.sftpClient(ip)
	if err != nil {
		return err
	}
	defer sc.Close()

	info, err := os.Stat(source)
	if err != nil {
		return errors.Wrap(err, "upload source")
	}
	m.log.Info("Uploading", "node", ip, "source", source, "target", target)
	if !info.IsDir() {
		return uploadFile(sc, source, target, info.Mode())
	}
	return filepath.Walk(source, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, p)
		if err != nil {
			return err
		}
		dst := path.Join(target, filepath.ToSlash(rel))
		if fi.IsDir() {
			return sc.MkdirAll(dst)
		}
		return uploadFile(sc, p, dst, fi.Mode())
	})
}

func uploadFile(sc *sftp.Client, source, target string, mode os.FileMode) error {
	src, err := os.Open(source)
	if err != nil {
		return err
	}
	defer src.Close()
	if err := sc.MkdirAll(path.Dir(target)); err != nil {
		return errors.Wrapf(err, "creating %s", path.Dir(target))
	}
	dst, err := sc.Create(target)
	if err != nil {
		return errors.Wrapf(err, "creating %s", target)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return errors.Wrapf(err, "writing %s", target)
	}
	return sc.Chmod(target, mode.Perm())
}

// ReadFile returns the content of a remote file.
func (m *Manager) ReadFile(ip string, name string) ([]byte, error) {
	sc, err := m.sftpClient(ip)
	if err != nil {
		return nil, err
	}
	defer sc.Close()
	f, err := sc.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s on %s", name, ip)
	}
	defer f.Close()
	return ioutil.ReadAll(f)
}

// WriteFile replaces the content of a remote file.
func (m *Manager) WriteFile(ip string, name string, data []byte) error {
	sc, err := m.sftpClient(ip)
	if err != nil {
		return err
	}
	defer sc.Close()
	f, err := sc.Create(name)
	if err != nil {
		return errors.Wrapf(err, "creating %s on %s", name, ip)
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// LoadSlaveKeys reads the private keys the master node uses for the slaves
// and makes them the slave credentials.
func (m *Manager) LoadSlaveKeys(keyFiles ...string) error {
	if len(keyFiles) == 0 {
		keyFiles = []string{"/root/.ssh/id_rsa"}
	}
	var signers []ssh.Signer
	for _, name := range keyFiles {
		pem, err := m.ReadFile(m.AdminIP(), name)
		if err != nil {
			return err
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return errors.Wrapf(err, "parsing %s", name)
		}
		signers = append(signers, signer)
	}
	m.SetSlaveSigners(signers...)
	return nil
}
