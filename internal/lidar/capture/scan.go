package capture

// Beam is a single laser reading: range in sensor ticks (0 = no return)
// and reflectivity 0-255.
type Beam struct {
	Range        uint16
	Reflectivity uint8
}

// Firing is one azimuth-indexed sampling instant: one reading per laser
// channel at one horizontal angle.
type Firing struct {
	Flag    uint16 // wire block flag (FlagBlockLower for all supported units)
	Azimuth uint16 // hundredths of a degree, 0-35999
	Beams   []Beam // one per channel, length = HardwareConfig.BeamsPerFiring
}

// Scan is one full sensor revolution of decoded firing data. The decoding
// session owns a single Scan and overwrites it in place on every call to
// NextScan; callers that need to retain data must copy it out.
type Scan struct {
	Hardware        Hardware
	Timestamp       uint64   // microseconds; timestamp of the last block
	BlockTimestamps []uint64 // microseconds, one per wire packet read
	Firings         []Firing // BlocksPerScan * FiringSequencesPerBlock entries
}

// newScan allocates a scan sized for the detected hardware configuration
// rather than for the largest supported unit. Beam storage is one flat
// backing array sliced per firing.
func newScan(hw Hardware, cfg HardwareConfig) *Scan {
	firingCount := cfg.BlocksPerScan * cfg.FiringSequencesPerBlock
	beams := make([]Beam, firingCount*cfg.BeamsPerFiring)

	s := &Scan{
		Hardware:        hw,
		BlockTimestamps: make([]uint64, cfg.BlocksPerScan),
		Firings:         make([]Firing, firingCount),
	}
	for i := range s.Firings {
		s.Firings[i].Beams = beams[i*cfg.BeamsPerFiring : (i+1)*cfg.BeamsPerFiring]
	}
	return s
}
