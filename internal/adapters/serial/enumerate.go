package serial

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// devicePatterns lists the tty device names serial adapters show up under.
var devicePatterns = []string{
	"/dev/ttyS*",
	"/dev/ttyUSB*",
	"/dev/ttyXRUSB*",
	"/dev/ttyACM*",
	"/dev/ttyAMA*",
	"/dev/ttyAP*",
}

// PortInfo describes an available serial device.
type PortInfo struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// ListPorts returns the tty devices that are backed by hardware, sorted by
// path.
func ListPorts() ([]PortInfo, error) {
	return listPorts("/dev", "/sys/class/tty")
}

func listPorts(devRoot, sysRoot string) ([]PortInfo, error) {
	seen := make(map[string]bool)
	var out []PortInfo
	for _, pattern := range devicePatterns {
		pattern = filepath.Join(devRoot, strings.TrimPrefix(pattern, "/dev/"))
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, device := range matches {
			name := filepath.Base(device)
			if seen[device] || !strings.HasPrefix(name, "tty") {
				continue
			}
			// Legacy ttyS entries exist for every UART slot; only those
			// with a device link are real.
			if _, err := os.Stat(filepath.Join(sysRoot, name, "device")); err != nil {
				continue
			}
			seen[device] = true
			out = append(out, PortInfo{Path: device, Name: name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
