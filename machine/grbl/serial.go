package grbl

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tarm/serial"
)

// DefaultBaud is the Grbl default serial rate.
const DefaultBaud = 115200

// DefaultReadTimeout bounds a single serial Read so that the reply loop
// can notice a disconnect or an expired reply timeout.
const DefaultReadTimeout = 100 * time.Millisecond

// PortInfo describes a serial device that can be passed to Connect.
type PortInfo struct {
	Name        string `json:"port"`
	Description string `json:"description"`
}

// An Opener opens a serial device at the given baud rate.
type Opener func(name string, baud int) (io.ReadWriteCloser, error)

// SerialOpener returns an Opener backed by github.com/tarm/serial.
func SerialOpener(readTimeout time.Duration) Opener {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return func(name string, baud int) (io.ReadWriteCloser, error) {
		p, err := serial.OpenPort(&serial.Config{
			Name:        name,
			Baud:        baud,
			ReadTimeout: readTimeout,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

var portPatterns = []string{
	"/dev/ttyUSB*",
	"/dev/ttyACM*",
	"/dev/ttyAMA*",
	"/dev/ttyS*",
	"/dev/tty.usb*",
	"/dev/cu.usb*",
}

// ListPorts returns the serial devices present on this host, sorted by name.
func ListPorts() []PortInfo {
	seen := make(map[string]bool)
	ports := []PortInfo{}
	for _, pattern := range portPatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, name := range matches {
			if seen[name] {
				continue
			}
			seen[name] = true
			ports = append(ports, PortInfo{Name: name, Description: describePort(name)})
		}
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports
}

// describePort reads the USB product string from sysfs, falling back
// to the device name.
func describePort(name string) string {
	base := filepath.Base(name)
	for _, p := range []string{
		filepath.Join("/sys/class/tty", base, "device/../product"),
		filepath.Join("/sys/class/tty", base, "device/../../product"),
	} {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if desc := strings.TrimSpace(string(data)); desc != "" {
			return desc
		}
	}
	return name
}
