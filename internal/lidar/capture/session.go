// Package capture decodes spinning-LiDAR capture files into per-revolution
// scans of raw firing data.
//
// A capture file is read through a Session, which owns the file handle for
// its lifetime: OpenSession validates the file header and arbitrates the
// historical timestamp scaling, NextScan decodes one revolution at a time,
// and Close releases the handle. Decoding failures are returned as values:
// io.EOF when the stream has no more complete scans, ErrFormat when the
// file header is not a recognised capture format, and plain errors for any
// other I/O failure.
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/freespace.report/internal/lidar"
	"github.com/banshee-data/freespace.report/internal/monitoring"
)

// ErrFormat reports a capture file whose global header magic is not one of
// the accepted values. It is fatal to the session.
var ErrFormat = errors.New("capture: unrecognised file format")

// maxSkipAttempts bounds the number of consecutive non-data records the
// decoder will skip before declaring the stream unreadable. Positioning
// packets arrive at around 1 Hz against ~1500 Hz of sensor data, so any
// healthy capture stays far below this.
const maxSkipAttempts = 4096

// Session decodes one capture file. It owns the underlying file handle
// exclusively: a Session must not be shared between concurrent readers.
type Session struct {
	f    *os.File
	path string

	byteOrder  binary.ByteOrder
	versionMaj uint16
	versionMin uint16
	scaling    TimeScaling
	confidence ScalingConfidence

	detected bool
	hw       Hardware
	cfg      HardwareConfig
	scan     *Scan

	// lastAzimuthDelta carries the most recent interpolated azimuth step
	// across packets for the interleaved decode, where the final firing of
	// a packet has no following block to interpolate against.
	lastAzimuthDelta uint16

	pktBuf [DataPacketLen]byte
}

// OpenSession opens a capture file, validates its global header and
// resolves the timestamp scaling. The sampling pass used for arbitration
// restores the stream position before returning, so the first NextScan
// reads from the first record.
func OpenSession(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", path, err)
	}

	s := &Session{f: f, path: path, cfg: ConfigFor(HardwareUnknown)}

	var hdrBuf [GlobalHeaderLen]byte
	if _, err := io.ReadFull(f, hdrBuf[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("capture: read global header of %s: %w", path, err)
	}
	hdr, bo, err := decodeGlobalHeader(hdrBuf[:])
	if err != nil {
		f.Close()
		if errors.Is(err, ErrFormat) {
			return nil, fmt.Errorf("%w: %s (magic 0x%08x)", ErrFormat, path, hdr.Magic)
		}
		return nil, err
	}
	s.byteOrder = bo
	s.versionMaj = hdr.VersionMajor
	s.versionMin = hdr.VersionMinor

	if err := s.arbitrateScaling(hdr.VersionMajor, hdr.VersionMinor); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the capture file handle. It is safe to call more than
// once.
func (s *Session) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// Hardware returns the detected sensor hardware. Before the first scan has
// been decoded it reports HardwareUnknown.
func (s *Session) Hardware() Hardware { return s.hw }

// Scaling returns the arbitrated timestamp scaling and its confidence.
func (s *Session) Scaling() (TimeScaling, ScalingConfidence) {
	return s.scaling, s.confidence
}

// Version returns the capture file's declared format version.
func (s *Session) Version() (major, minor uint16) {
	return s.versionMaj, s.versionMin
}

// readNextDataPacket advances the stream to the next sensor data record,
// skipping records of any other length, and decodes it into pkt along with
// its scaling-converted timestamp. The skip loop is bounded: a stream that
// keeps yielding non-data records is reported as an I/O error rather than
// spinning forever.
func (s *Session) readNextDataPacket(pkt *dataPacket) (timestampUS uint64, err error) {
	var hdrBuf [RecordHeaderLen]byte
	for attempt := 0; attempt < maxSkipAttempts; attempt++ {
		if _, err := io.ReadFull(s.f, hdrBuf[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("capture: read record header: %w", err)
		}
		hdr, err := decodeRecordHeader(hdrBuf[:], s.byteOrder)
		if err != nil {
			return 0, err
		}

		if hdr.OrigLen == DataPacketLen && hdr.InclLen >= DataPacketLen {
			if _, err := io.ReadFull(s.f, s.pktBuf[:]); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					return 0, io.EOF
				}
				return 0, fmt.Errorf("capture: read data packet: %w", err)
			}
			// Captures with a snap length above the packet size store
			// trailing padding; step over it.
			if extra := int64(hdr.InclLen) - DataPacketLen; extra > 0 {
				if _, err := s.f.Seek(extra, io.SeekCurrent); err != nil {
					return 0, fmt.Errorf("capture: skip packet padding: %w", err)
				}
			}
			if err := decodeDataPacket(s.pktBuf[:], pkt); err != nil {
				return 0, err
			}
			return ConvertTimestamp(s.scaling, hdr.TsSec, hdr.TsUsec), nil
		}

		// Positioning and any other records: advance by the stored payload
		// length and try the next record header.
		if _, err := s.f.Seek(int64(hdr.InclLen), io.SeekCurrent); err != nil {
			return 0, fmt.Errorf("capture: skip record (%d bytes): %w", hdr.InclLen, err)
		}
	}
	return 0, fmt.Errorf("capture: no data packet within %d records", maxSkipAttempts)
}

// NextScan decodes the next full revolution. The returned scan is owned by
// the session and overwritten by the following call.
//
// On the first call the sensor hardware is identified from the factory
// field of the first data packet and the scan buffers are sized for it;
// unknown factory IDs fall back to the default configuration with a
// warning and decoding continues.
func (s *Session) NextScan() (*Scan, error) {
	if s.f == nil {
		return nil, fmt.Errorf("capture: session closed")
	}

	var pkt dataPacket
	for block := 0; block < s.cfg.BlocksPerScan; block++ {
		ts, err := s.readNextDataPacket(&pkt)
		if err != nil {
			return nil, err
		}

		if !s.detected {
			s.hw = identifyHardware(pkt.ProductID)
			s.cfg = ConfigFor(s.hw)
			if s.hw == HardwareUnknown {
				monitoring.Logf("capture: unknown sensor hardware (factory 0x%02x) in %s; decoding with %s configuration",
					pkt.ProductID, s.path, HardwareHDL32E)
			}
			s.scan = newScan(s.hw, s.cfg)
			s.detected = true
		}

		s.scan.BlockTimestamps[block] = ts
		base := block * s.cfg.FiringSequencesPerBlock
		if s.cfg.Interleaved {
			s.decodeInterleaved(&pkt, base)
		} else {
			s.decodeDirect(&pkt, base)
		}
	}

	s.scan.Timestamp = s.scan.BlockTimestamps[len(s.scan.BlockTimestamps)-1]
	return s.scan, nil
}

// decodeDirect maps each wire block onto one firing. HDL-32E and VLP-32C
// packets carry exactly one firing per block, so the beam bytes copy over
// unchanged.
func (s *Session) decodeDirect(pkt *dataPacket, base int) {
	for i := 0; i < s.cfg.FiringSequencesPerBlock; i++ {
		blk := &pkt.Blocks[i]
		firing := &s.scan.Firings[base+i]
		firing.Flag = blk.Flag
		firing.Azimuth = blk.Azimuth
		copy(firing.Beams, blk.Beams[:s.cfg.BeamsPerFiring])
	}
}

// decodeInterleaved unpacks VLP-16 packets, where each wire block carries
// two firing instants sharing one azimuth field: the even firing takes the
// stored azimuth and the lower 16 beams, the odd firing synthesises its
// azimuth by interpolating half-way to the next block and takes the upper
// 16 beams. The last firing of a packet has no next block, so it reuses
// the previously computed azimuth step.
func (s *Session) decodeInterleaved(pkt *dataPacket, base int) {
	n := s.cfg.FiringSequencesPerBlock
	half := s.cfg.BeamsPerFiring
	for i := 0; i < n; i++ {
		blk := &pkt.Blocks[i/2]
		firing := &s.scan.Firings[base+i]

		if i%2 == 0 {
			firing.Flag = blk.Flag
			firing.Azimuth = blk.Azimuth
			copy(firing.Beams, blk.Beams[:half])
			continue
		}

		prev := &s.scan.Firings[base+i-1]
		firing.Flag = prev.Flag
		if i != n-1 {
			next := pkt.Blocks[i/2+1].Azimuth
			s.lastAzimuthDelta = azimuthStep(blk.Azimuth, next)
		}
		firing.Azimuth = (prev.Azimuth + s.lastAzimuthDelta) % lidar.RotationTicks
		copy(firing.Beams, blk.Beams[half:half*2])
	}
}

// azimuthStep returns half the forward angular distance from cur to next,
// accounting for the 36000-tick wrap of a revolution.
func azimuthStep(cur, next uint16) uint16 {
	return uint16((int(next) + lidar.RotationTicks - int(cur)) % lidar.RotationTicks / 2)
}
