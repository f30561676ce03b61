package capture

// Hardware identifies the sensor model a capture was recorded from.
type Hardware int

const (
	HardwareUnknown Hardware = iota
	HardwareVLP16
	HardwareHDL32E
	HardwareVLP32C
)

func (h Hardware) String() string {
	switch h {
	case HardwareVLP16:
		return "VLP-16"
	case HardwareHDL32E:
		return "HDL-32E"
	case HardwareVLP32C:
		return "VLP-32C"
	default:
		return "unknown"
	}
}

// Factory product ID bytes carried in the trailing factory field of each
// data packet. Documented in the respective sensor programming guides; the
// field is listed as reserved in the older HDL-32E manual.
const (
	productIDVLP16  = 0x22
	productIDHDL32E = 0x21
	productIDVLP32C = 0x28
)

// HardwareConfig describes the decode geometry of one sensor model.
//
// The decoder treats one wire packet as one "block" row of the scan:
// BlocksPerScan is the number of packets making up a revolution and
// FiringSequencesPerBlock the number of firings decoded from each packet.
//
// Packets per revolution at the nominal 600 rpm spin rate:
//
//	VLP-16:  block firing cycle 55.296us, 24 firings/packet -> ~76 packets
//	HDL-32E: block firing cycle 46.08us,  12 firings/packet -> ~181 packets
//	VLP-32C: block firing cycle 55.296us, 12 firings/packet -> ~151 packets
type HardwareConfig struct {
	BlocksPerScan           int  // wire packets per revolution
	FiringSequencesPerBlock int  // firings decoded per packet
	BeamsPerFiring          int  // laser channels per firing
	Interleaved             bool // two firings share each wire block
}

// Per-hardware decode configurations.
var (
	VLP16Config  = HardwareConfig{BlocksPerScan: 76, FiringSequencesPerBlock: 24, BeamsPerFiring: 16, Interleaved: true}
	HDL32EConfig = HardwareConfig{BlocksPerScan: 181, FiringSequencesPerBlock: 12, BeamsPerFiring: 32}
	VLP32CConfig = HardwareConfig{BlocksPerScan: 151, FiringSequencesPerBlock: 12, BeamsPerFiring: 32}
)

// identifyHardware maps a factory product ID byte to a hardware variant.
// Unrecognised IDs report HardwareUnknown; decoding then proceeds with the
// default configuration.
func identifyHardware(productID uint8) Hardware {
	switch productID {
	case productIDVLP16:
		return HardwareVLP16
	case productIDHDL32E:
		return HardwareHDL32E
	case productIDVLP32C:
		return HardwareVLP32C
	default:
		return HardwareUnknown
	}
}

// ConfigFor returns the decode configuration for a hardware variant.
// Unknown hardware falls back to the HDL-32E configuration, which matches
// the most common units in the capture archive.
func ConfigFor(h Hardware) HardwareConfig {
	switch h {
	case HardwareVLP16:
		return VLP16Config
	case HardwareHDL32E:
		return HDL32EConfig
	case HardwareVLP32C:
		return VLP32CConfig
	default:
		return HDL32EConfig
	}
}
