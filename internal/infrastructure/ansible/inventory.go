// Package ansible drives ansible-runner as the automation backend.
package ansible

import (
	"fmt"
	"os"
	"strings"

	"github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

const windowsConnectionVars = "ansible_connection=winrm ansible_winrm_transport=ntlm ansible_winrm_server_cert_validation=ignore"

// BastionRoute holds the jump settings rendered into ssh common args.
type BastionRoute struct {
	Address     string
	User        string
	JumpKeyPath string
}

// InventoryWriter renders one-host INI inventories into a scratch directory.
type InventoryWriter struct {
	dir   string
	route BastionRoute
}

// NewInventoryWriter writes inventories under dir. An empty dir uses the
// system temp directory.
func NewInventoryWriter(dir string, route BastionRoute) *InventoryWriter {
	return &InventoryWriter{dir: dir, route: route}
}

// Render builds the inventory text for req. keyPath is the leased key and is
// only used for key auth through the bastion.
func (w *InventoryWriter) Render(req remotecall.Request, keyPath string) string {
	params := []string{
		req.Host(),
		"ansible_user=" + req.Username(),
		fmt.Sprintf("ansible_port=%d", req.Port()),
	}
	params = append(params, authParams(req, keyPath)...)
	if args := w.sshArgs(req); args != "" {
		params = append(params, fmt.Sprintf("ansible_ssh_common_args='%s'", args))
	}
	if req.OS() == remotecall.OSWindows {
		params = append(params, windowsConnectionVars)
	}
	return fmt.Sprintf("[%s]\n%s\n", req.GroupName(), strings.Join(params, " "))
}

func authParams(req remotecall.Request, keyPath string) []string {
	if password, ok := req.Password(); ok {
		return []string{"ansible_password=" + password}
	}
	if req.UseBastion() && keyPath != "" {
		return []string{"ansible_ssh_private_key_file=" + keyPath}
	}
	return nil
}

func (w *InventoryWriter) sshArgs(req remotecall.Request) string {
	if req.IsPasswordAuth() {
		return ""
	}
	if !req.UseBastion() {
		return "-o StrictHostKeyChecking=no"
	}
	return fmt.Sprintf("-o ProxyJump=%s@%s -o StrictHostKeyChecking=no -i %s",
		w.route.User, w.route.Address, w.route.JumpKeyPath)
}

// Write renders and stores the inventory for req. The returned cleanup
// removes the file and may be called more than once.
func (w *InventoryWriter) Write(req remotecall.Request, keyPath string) (string, func(), error) {
	file, err := os.CreateTemp(w.dir, "inventory-*.ini")
	if err != nil {
		return "", func() {}, fmt.Errorf("create inventory: %w", err)
	}
	path := file.Name()
	cleanup := func() { _ = os.Remove(path) }

	if err := file.Chmod(0o600); err != nil {
		_ = file.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("chmod inventory: %w", err)
	}
	if _, err := file.WriteString(w.Render(req, keyPath)); err != nil {
		_ = file.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("write inventory: %w", err)
	}
	if err := file.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close inventory: %w", err)
	}
	return path, cleanup, nil
}

var _ ports.InventoryWriter = (*InventoryWriter)(nil)
