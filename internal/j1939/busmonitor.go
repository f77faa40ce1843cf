package j1939

import (
	"os"
	"strings"
)

// BusMonitor answers whether a CAN interface looks able to pass frames.
// The precise bus state (ERROR_ACTIVE/ERROR_WARNING) lives behind a
// CAN-specific rtnetlink query; an interface whose carrier is down can't
// be in either state, so the sysfs carrier flag is a conservative proxy
// for "the bus is worth trying".
type BusMonitor struct {
	ifaceName string
}

// NewBusMonitor returns a BusMonitor for the named interface (e.g. "can0").
func NewBusMonitor(ifaceName string) *BusMonitor {
	return &BusMonitor{ifaceName: ifaceName}
}

// Active reports whether the interface's carrier is up.
func (b *BusMonitor) Active() bool {
	data, err := os.ReadFile("/sys/class/net/" + b.ifaceName + "/carrier")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}
