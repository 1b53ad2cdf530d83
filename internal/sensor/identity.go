package sensor

import "strings"

// chipIdentityMap maps sensor key prefixes to friendly component names.
var chipIdentityMap = []struct {
	prefix string
	name   string
}{
	{"bcm2835_thermal", "CPU"},
	{"cpu_thermal", "CPU"},
	{"cpu-thermal", "CPU"},
	{"soc_thermal", "CPU"},
	{"coretemp", "CPU"},
	{"k10temp", "CPU"},
	{"zenpower", "CPU"},
	{"acpitz", "ACPI Thermal"},
	{"amdgpu", "GPU (AMD)"},
	{"radeon", "GPU (AMD)"},
	{"nouveau", "GPU (NVIDIA)"},
	{"gpu_thermal", "GPU"},
	{"gpu-thermal", "GPU"},
	{"nvme", "NVMe SSD"},
	{"drivetemp", "HDD/SSD"},
	{"iwlwifi", "WiFi"},
	{"pch", "PCH (Chipset)"},
	{"bat", "Battery"},
}

// FriendlyName returns a human-readable component name for a sensor key.
func FriendlyName(key string) string {
	lower := strings.ToLower(key)
	for _, entry := range chipIdentityMap {
		if strings.HasPrefix(lower, entry.prefix) {
			return entry.name
		}
	}
	return "Sensor"
}

// matchKey returns the first key that starts with one of the prefixes.
// Prefix order wins over key order.
func matchKey(keys []string, prefixes []string) (string, bool) {
	for _, prefix := range prefixes {
		p := strings.ToLower(prefix)
		for _, key := range keys {
			if strings.HasPrefix(strings.ToLower(key), p) {
				return key, true
			}
		}
	}
	return "", false
}
