package capture

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/freespace.report/internal/monitoring"
)

// TimeScaling selects how the raw (seconds, microseconds) fields of a
// record header convert to microseconds. The original capture tool wrote
// timestamps with an incorrect scale for a period of time; files from that
// era need the Legacy conversion, later files the Corrected one.
type TimeScaling int

const (
	// ScalingLegacy reproduces the historical writer bug: both raw fields
	// are multiplied by 1000.
	ScalingLegacy TimeScaling = iota
	// ScalingCorrected converts normally, modulo the downstream time base
	// rollover at 2^32-1 microseconds (about 72 minutes).
	ScalingCorrected
)

func (s TimeScaling) String() string {
	if s == ScalingCorrected {
		return "corrected"
	}
	return "legacy"
}

// ScalingConfidence reports how robust a scaling determination was.
type ScalingConfidence int

const (
	// ConfidenceLow marks the conservative Legacy fallback taken when the
	// delta statistics were inconclusive or the sample too small.
	ConfidenceLow ScalingConfidence = iota
	// ConfidenceMedium marks a 2-of-3 majority vote.
	ConfidenceMedium
	// ConfidenceHigh marks a unanimous vote or an unambiguous file version.
	ConfidenceHigh
)

func (c ScalingConfidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

// timeBaseRollover is the downstream time base rollover period in
// microseconds.
const timeBaseRollover = (1 << 32) - 1

// ConvertTimestamp converts a record header's raw (seconds, microseconds)
// pair into microseconds under the given scaling convention.
func ConvertTimestamp(scaling TimeScaling, sec, usec uint32) uint64 {
	switch scaling {
	case ScalingCorrected:
		return (1_000_000*uint64(sec) + uint64(usec)) % timeBaseRollover
	default:
		return 1000*uint64(sec) + 1000*uint64(usec)
	}
}

// Empirical thresholds for the version-2.4 scaling vote, taken from delta
// statistics observed across the capture archive.
const (
	minDeltaCorrected  = 5.0
	maxDeltaCorrected  = 25.0
	meanDeltaCorrected = 7.0
	minDeltaLegacy     = 1.0
	maxDeltaLegacy     = 5.0
	meanDeltaLegacy    = 3.0
)

// maxArbitrationSamples bounds the number of record headers inspected when
// sampling deltas for arbitration.
const maxArbitrationSamples = 100

// ArbitrateScaling decides the timestamp scaling for a capture file.
//
// Versions other than 2.4 are unambiguous. Version 2.4 files were written
// by both tool generations, so the decision falls to statistics over the
// supplied consecutive inter-packet microsecond deltas: min, max and mean
// each vote Corrected or Legacy against empirical thresholds. A unanimous
// vote decides at high confidence, a majority at medium; a tie or a sample
// of fewer than two deltas falls back to Legacy at low confidence.
func ArbitrateScaling(versionMajor, versionMinor uint16, deltas []float64) (TimeScaling, ScalingConfidence) {
	if versionMajor > 2 || (versionMajor == 2 && versionMinor > 4) {
		return ScalingCorrected, ConfidenceHigh
	}
	if versionMajor < 2 || (versionMajor == 2 && versionMinor < 4) {
		return ScalingLegacy, ConfidenceHigh
	}

	if len(deltas) < 2 {
		return ScalingLegacy, ConfidenceLow
	}

	minDelta := floats.Min(deltas)
	maxDelta := floats.Max(deltas)
	meanDelta := stat.Mean(deltas, nil)

	minCorrected := minDelta >= minDeltaCorrected
	maxCorrected := maxDelta >= maxDeltaCorrected
	meanCorrected := meanDelta >= meanDeltaCorrected
	minLegacy := minDelta <= minDeltaLegacy
	maxLegacy := maxDelta <= maxDeltaLegacy
	meanLegacy := meanDelta <= meanDeltaLegacy

	if minCorrected && maxCorrected && meanCorrected {
		return ScalingCorrected, ConfidenceHigh
	}
	if minLegacy && maxLegacy && meanLegacy {
		return ScalingLegacy, ConfidenceHigh
	}

	correctedVotes := boolToVote(minCorrected) + boolToVote(maxCorrected) + boolToVote(meanCorrected)
	legacyVotes := boolToVote(minLegacy) + boolToVote(maxLegacy) + boolToVote(meanLegacy)

	switch {
	case correctedVotes > legacyVotes:
		return ScalingCorrected, ConfidenceMedium
	case legacyVotes > correctedVotes:
		return ScalingLegacy, ConfidenceMedium
	default:
		return ScalingLegacy, ConfidenceLow
	}
}

func boolToVote(b bool) int {
	if b {
		return 1
	}
	return 0
}

// sampleTimestampDeltas reads record headers from the current stream
// position, collecting the consecutive microsecond-field deltas of data and
// positioning packets, then restores the stream to where it started. Other
// record types advance the scan but contribute no delta.
//
// Deltas use uint32 wraparound subtraction: the sub-second field wraps at
// each whole second and the wrapped difference is the signal the thresholds
// were tuned against.
func (s *Session) sampleTimestampDeltas() ([]float64, error) {
	start, err := s.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("sample deltas: stream position: %w", err)
	}

	var (
		deltas   []float64
		lastUsec uint32
		haveLast bool
		hdrBuf   [RecordHeaderLen]byte
	)
	for i := 0; i < maxArbitrationSamples; i++ {
		if _, err := io.ReadFull(s.f, hdrBuf[:]); err != nil {
			break // end of stream: arbitrate with what we have
		}
		hdr, err := decodeRecordHeader(hdrBuf[:], s.byteOrder)
		if err != nil {
			break
		}

		isData := hdr.OrigLen == DataPacketLen
		isPositioning := hdr.OrigLen == PositioningPacketLen
		if isData || isPositioning {
			if haveLast {
				deltas = append(deltas, float64(hdr.TsUsec-lastUsec))
			}
			lastUsec = hdr.TsUsec
			haveLast = true
		}

		if _, err := s.f.Seek(int64(hdr.InclLen), io.SeekCurrent); err != nil {
			break
		}
	}

	// The sampling pass must fully restore the stream before the first
	// decoder read; failing to do so corrupts the whole session.
	if _, err := s.f.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("sample deltas: restore stream position: %w", err)
	}
	return deltas, nil
}

// arbitrateScaling runs delta sampling and the pure vote for this session's
// capture file, logging non-confident outcomes.
func (s *Session) arbitrateScaling(versionMajor, versionMinor uint16) error {
	var deltas []float64
	// Only version 2.4 needs the sampling pass.
	if versionMajor == 2 && versionMinor == 4 {
		var err error
		deltas, err = s.sampleTimestampDeltas()
		if err != nil {
			return err
		}
	}

	s.scaling, s.confidence = ArbitrateScaling(versionMajor, versionMinor, deltas)
	switch s.confidence {
	case ConfidenceLow:
		monitoring.Logf("capture: could not robustly determine timestamp scaling for %s (samples=%d); falling back to %s scaling",
			s.path, len(deltas), s.scaling)
	case ConfidenceMedium:
		monitoring.Logf("capture: chose %s timestamp scaling for %s by majority vote", s.scaling, s.path)
	}
	return nil
}
