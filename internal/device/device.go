// Package device manages the stable per-installation identity used to
// attribute manifest changes and disambiguate conflicts.
package device

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/kettleworks/storysync/internal/logging"
)

// identityFileName is the name of the persisted identity file.
const identityFileName = "device.toml"

// Identity is this installation's stable identifier and label. The ID is
// generated once and never changes; the name is a best-effort platform
// label the user may override. Used only for attribution, never for
// authorization.
type Identity struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

// Manager loads and persists the device identity for one data directory.
type Manager struct {
	path string
}

// NewManager creates a manager that keeps the identity file inside dataDir.
func NewManager(dataDir string) *Manager {
	return &Manager{path: filepath.Join(dataDir, identityFileName)}
}

// Load returns the persisted identity, generating and persisting a new one
// on first use. A corrupt identity file is replaced rather than surfaced;
// losing the ID only costs conflict attribution accuracy.
func (m *Manager) Load() (Identity, error) {
	var id Identity
	if _, err := toml.DecodeFile(m.path, &id); err == nil && id.ID != "" {
		if id.Name == "" {
			id.Name = defaultName()
		}
		return id, nil
	} else if err != nil && !os.IsNotExist(err) {
		logging.Warn("device identity file unreadable, regenerating",
			logging.Path(m.path),
			logging.Err(err),
		)
	}

	id = Identity{
		ID:   "device-" + uuid.NewString(),
		Name: defaultName(),
	}
	if err := m.save(id); err != nil {
		return Identity{}, fmt.Errorf("failed to persist device identity: %w", err)
	}

	logging.Info("generated device identity",
		logging.Device(id.ID),
	)
	return id, nil
}

// SetName overrides the device name and persists it.
func (m *Manager) SetName(name string) (Identity, error) {
	id, err := m.Load()
	if err != nil {
		return Identity{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return Identity{}, fmt.Errorf("device name must not be empty")
	}

	id.Name = name
	if err := m.save(id); err != nil {
		return Identity{}, fmt.Errorf("failed to persist device name: %w", err)
	}
	return id, nil
}

// save writes the identity file, creating the data directory if needed.
func (m *Manager) save(id Identity) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
		return err
	}

	f, err := os.OpenFile(m.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(id)
}

// defaultName derives a human-readable label from the host.
func defaultName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return platformLabel()
	}
	// Strip the local domain suffix some platforms append.
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	return host
}

// platformLabel is the fallback label when the hostname is unavailable.
func platformLabel() string {
	switch runtime.GOOS {
	case "darwin":
		return "Mac"
	case "windows":
		return "Windows PC"
	case "linux":
		return "Linux"
	default:
		return runtime.GOOS
	}
}
