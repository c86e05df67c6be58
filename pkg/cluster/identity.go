package cluster

import (
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const nodeIDFile = "node.id"

// LoadOrCreateNodeID returns the node's stable identity. The id is a
// UUID minted on first start and persisted under the data path so it
// survives restarts.
func LoadOrCreateNodeID(dataPath string) (string, error) {
	path := filepath.Join(dataPath, nodeIDFile)

	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", err
	}
	return id, nil
}

// DetectSelfIP picks the first non-loopback IPv4 address of an up
// interface. Returns ErrNoSelfAddress when the host has none.
func DetectSelfIP() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
				return ip4.String(), nil
			}
		}
	}
	return "", ErrNoSelfAddress
}
