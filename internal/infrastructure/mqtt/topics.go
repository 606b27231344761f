package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every netmuxd topic.
const TopicPrefix = "netmuxd"

// Topics provides builders for netmuxd MQTT topics.
//
//	netmuxd/system/status                        retained online/offline (LWT)
//	netmuxd/device/{serial}/state                retained attached/detached
//	netmuxd/supervisor/{target}/status           retained connect state
//	netmuxd/command/supervisor/{target}/wake     wake request (not retained)
type Topics struct{}

// SystemStatus returns the daemon status topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// DeviceState returns the retained state topic for a device.
func (Topics) DeviceState(serial string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, segment(serial))
}

// SupervisorStatus returns the retained status topic for a supervisor.
func (Topics) SupervisorStatus(target string) string {
	return fmt.Sprintf("%s/supervisor/%s/status", TopicPrefix, segment(target))
}

// SupervisorWake returns the wake command topic for one supervisor.
func (Topics) SupervisorWake(target string) string {
	return fmt.Sprintf("%s/command/supervisor/%s/wake", TopicPrefix, segment(target))
}

// AllSupervisorWakes matches the wake command topic of every supervisor.
func (Topics) AllSupervisorWakes() string {
	return TopicPrefix + "/command/supervisor/+/wake"
}

// ParseSupervisorWake extracts the target from a wake command topic.
func ParseSupervisorWake(topic string) (target string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefix+"/command/supervisor/")
	if !found {
		return "", false
	}
	target, found = strings.CutSuffix(rest, "/wake")
	if !found || target == "" || strings.Contains(target, "/") {
		return "", false
	}
	return target, true
}

// segment makes s safe as a single topic level. Wildcards and level
// separators are replaced; IP literals pass through unchanged.
func segment(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
