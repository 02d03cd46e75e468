package ipc

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/config"
)

const (
	endpointFileName = "core.endpoint.json"
	leaseFileName    = "core.lease.json"
)

// Endpoint is the discoverable connection descriptor a running core writes
// to disk, and that clients (the CLI, the TUI) read to connect without
// starting a second instance.
type Endpoint struct {
	TransportType string `json:"transport_type"`
	Address       string `json:"address"`
	Port          int    `json:"port,omitempty"`
	HandshakeKey  string `json:"handshake_token,omitempty"`
	BearerToken   string `json:"bearer_token"`
	PID           int    `json:"pid"`
	StartedAt     string `json:"started_at"`
}

func runtimeDir() string { return config.GetRuntimeDir() }

func endpointPath() string { return filepath.Join(runtimeDir(), endpointFileName) }
func leasePath() string    { return filepath.Join(runtimeDir(), leaseFileName) }

// WriteEndpoint persists the endpoint descriptor for a freshly started core.
// It is written last, after the listener is bound and the lease is held, so
// its mere presence is a reliable "core is ready" signal for clients.
func WriteEndpoint(ep Endpoint) error {
	if err := os.MkdirAll(runtimeDir(), 0o700); err != nil {
		return err
	}
	raw, err := json.Marshal(ep)
	if err != nil {
		return err
	}
	return os.WriteFile(endpointPath(), raw, 0o600)
}

// RemoveEndpoint deletes the endpoint descriptor on graceful shutdown.
func RemoveEndpoint() error {
	err := os.Remove(endpointPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// DiscoverEndpoint reads the endpoint descriptor and validates that its
// owning process, the PID recorded in the descriptor, is still alive. A
// descriptor whose owner is dead, or which records no PID, is treated as
// absent; the instance lease is not consulted.
func DiscoverEndpoint() (*Endpoint, error) {
	raw, err := os.ReadFile(endpointPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ep Endpoint
	if err := json.Unmarshal(raw, &ep); err != nil {
		return nil, nil
	}
	if ep.PID == 0 || !pidExists(ep.PID) {
		return nil, nil
	}
	return &ep, nil
}

// Lease is the exclusive-owner marker a core instance holds for its
// lifetime; an owner_pid whose process has died marks the lease stale and
// safe to reclaim by the next launcher.
type Lease struct {
	OwnerPID  int    `json:"owner_pid"`
	StartedAt string `json:"started_at"`
}

// AcquireLease writes the instance lease for the calling process, reaping a
// stale lease left by a crashed core first.
func AcquireLease() error {
	if err := os.MkdirAll(runtimeDir(), 0o700); err != nil {
		return err
	}
	if live, _ := HasLiveLease(); live {
		return errors.New("another core instance already holds the lease")
	}
	lease := Lease{OwnerPID: os.Getpid(), StartedAt: time.Now().UTC().Format(time.RFC3339)}
	raw, err := json.Marshal(lease)
	if err != nil {
		return err
	}
	return os.WriteFile(leasePath(), raw, 0o600)
}

// ReleaseLease removes the instance lease on graceful shutdown.
func ReleaseLease() error {
	err := os.Remove(leasePath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// HasLiveLease reports whether a lease file names a PID that is still
// alive, reaping (deleting) the file when its owner has died.
func HasLiveLease() (bool, error) {
	raw, err := os.ReadFile(leasePath())
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	var lease Lease
	if err := json.Unmarshal(raw, &lease); err != nil || lease.OwnerPID == 0 {
		_ = os.Remove(leasePath())
		return false, nil
	}
	if pidExists(lease.OwnerPID) {
		return true, nil
	}
	_ = os.Remove(leasePath())
	return false, nil
}
