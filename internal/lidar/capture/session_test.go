package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/require"
)

// captureBuilder assembles raw capture files byte by byte so tests control
// the header version, byte order and record framing exactly.
type captureBuilder struct {
	buf bytes.Buffer
	bo  binary.ByteOrder
}

func newCaptureBuilder(magic uint32, versionMajor, versionMinor uint16) *captureBuilder {
	b := &captureBuilder{bo: byteOrderForMagic(magic)}

	var hdr [GlobalHeaderLen]byte
	binary.LittleEndian.PutUint32(hdr[0:4], magic)
	b.bo.PutUint16(hdr[4:6], versionMajor)
	b.bo.PutUint16(hdr[6:8], versionMinor)
	b.bo.PutUint32(hdr[16:20], 65536) // snaplen
	b.bo.PutUint32(hdr[20:24], 1)    // ethernet
	b.buf.Write(hdr[:])
	return b
}

func (b *captureBuilder) addRecord(tsSec, tsUsec uint32, payload []byte) {
	var hdr [RecordHeaderLen]byte
	b.bo.PutUint32(hdr[0:4], tsSec)
	b.bo.PutUint32(hdr[4:8], tsUsec)
	b.bo.PutUint32(hdr[8:12], uint32(len(payload)))
	b.bo.PutUint32(hdr[12:16], uint32(len(payload)))
	b.buf.Write(hdr[:])
	b.buf.Write(payload)
}

func (b *captureBuilder) writeFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pcap")
	if err := os.WriteFile(path, b.buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write capture fixture: %v", err)
	}
	return path
}

// testPacketSpec fills a packet with a distinctive, per-block beam pattern.
func testPacketSpec(productID uint8, baseAzimuth uint16) *PacketSpec {
	spec := &PacketSpec{ProductID: productID}
	for b := 0; b < BlocksPerPacket; b++ {
		spec.Azimuths[b] = (baseAzimuth + uint16(b)*40) % 36000
		for i := 0; i < BeamsPerBlock; i++ {
			spec.Ranges[b][i] = uint16(1000 + b*100 + i)
			spec.Reflectivities[b][i] = uint8((b*BeamsPerBlock + i) % 256)
		}
	}
	return spec
}

func TestOpenSessionRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.pcap")
	data := make([]byte, GlobalHeaderLen)
	binary.LittleEndian.PutUint32(data[0:4], 0xdeadbeef)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := OpenSession(path)
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("OpenSession(bad magic) error = %v, want ErrFormat", err)
	}
}

func TestOpenSessionMissingFile(t *testing.T) {
	if _, err := OpenSession(filepath.Join(t.TempDir(), "nope.pcap")); err == nil {
		t.Fatal("OpenSession(missing file) succeeded, want error")
	}
}

func TestSessionDirectDecodeHDL32E(t *testing.T) {
	// Version 2.5 is unambiguously Corrected; no sampling pass runs.
	b := newCaptureBuilder(magicMicroseconds, 2, 5)
	for p := 0; p < HDL32EConfig.BlocksPerScan; p++ {
		b.addRecord(10, uint32(p), EncodeDataPacket(testPacketSpec(productIDHDL32E, uint16(p))))
	}
	path := b.writeFile(t)

	s, err := OpenSession(path)
	require.NoError(t, err)
	defer s.Close()

	scaling, confidence := s.Scaling()
	require.Equal(t, ScalingCorrected, scaling)
	require.Equal(t, ConfidenceHigh, confidence)

	scan, err := s.NextScan()
	require.NoError(t, err)
	require.Equal(t, HardwareHDL32E, scan.Hardware)
	require.Len(t, scan.Firings, HDL32EConfig.BlocksPerScan*HDL32EConfig.FiringSequencesPerBlock)

	// Direct layout: the decoded beams are byte-for-byte the wire beams.
	spec := testPacketSpec(productIDHDL32E, 0)
	for blk := 0; blk < BlocksPerPacket; blk++ {
		firing := scan.Firings[blk]
		if firing.Azimuth != spec.Azimuths[blk] {
			t.Fatalf("firing %d azimuth = %d, want %d", blk, firing.Azimuth, spec.Azimuths[blk])
		}
		for i, beam := range firing.Beams {
			if beam.Range != spec.Ranges[blk][i] || beam.Reflectivity != spec.Reflectivities[blk][i] {
				t.Fatalf("firing %d beam %d = %+v, want range %d refl %d",
					blk, i, beam, spec.Ranges[blk][i], spec.Reflectivities[blk][i])
			}
		}
	}

	// Block timestamps follow the Corrected formula at read time; the scan
	// timestamp is the last block's.
	require.Equal(t, ConvertTimestamp(ScalingCorrected, 10, 0), scan.BlockTimestamps[0])
	last := HDL32EConfig.BlocksPerScan - 1
	require.Equal(t, ConvertTimestamp(ScalingCorrected, 10, uint32(last)), scan.BlockTimestamps[last])
	require.Equal(t, scan.BlockTimestamps[last], scan.Timestamp)

	// Exactly one revolution in the file.
	_, err = s.NextScan()
	require.ErrorIs(t, err, io.EOF)
}

func TestSessionInterleavedDecodeVLP16(t *testing.T) {
	b := newCaptureBuilder(magicMicroseconds, 2, 5)
	for p := 0; p < VLP16Config.BlocksPerScan; p++ {
		b.addRecord(0, uint32(p), EncodeDataPacket(testPacketSpec(productIDVLP16, 1000)))
	}
	path := b.writeFile(t)

	s, err := OpenSession(path)
	require.NoError(t, err)
	defer s.Close()

	scan, err := s.NextScan()
	require.NoError(t, err)
	require.Equal(t, HardwareVLP16, scan.Hardware)
	require.Len(t, scan.Firings, VLP16Config.BlocksPerScan*VLP16Config.FiringSequencesPerBlock)
	require.Len(t, scan.Firings[0].Beams, 16)

	spec := testPacketSpec(productIDVLP16, 1000)
	// Wire blocks are 40 ticks apart, so interleaved firings step by 20.
	for i := 0; i < VLP16Config.FiringSequencesPerBlock; i++ {
		firing := scan.Firings[i]
		blockAz := spec.Azimuths[i/2]

		if i%2 == 0 {
			require.Equal(t, blockAz, firing.Azimuth, "even firing %d copies the block azimuth", i)
			for n, beam := range firing.Beams {
				require.Equal(t, spec.Ranges[i/2][n], beam.Range, "even firing %d takes the lower beams", i)
			}
		} else {
			require.Equal(t, (blockAz+20)%36000, firing.Azimuth, "odd firing %d interpolates half the block delta", i)
			for n, beam := range firing.Beams {
				require.Equal(t, spec.Ranges[i/2][16+n], beam.Range, "odd firing %d takes the upper beams", i)
			}
		}
	}
}

func TestSessionInterleavedLastFiringReusesDelta(t *testing.T) {
	// The last odd firing of a packet has no next block: it must reuse the
	// previously interpolated step. Blocks 0..10 step by 40 ticks but block
	// 11 jumps by 100, so the step carried into firing 23 is the one
	// computed at firing 21 between blocks 10 and 11 (50 ticks), not the
	// regular 20.
	spec := &PacketSpec{ProductID: productIDVLP16}
	for blk := 0; blk <= 10; blk++ {
		spec.Azimuths[blk] = uint16(2000 + blk*40)
	}
	spec.Azimuths[11] = spec.Azimuths[10] + 100

	b := newCaptureBuilder(magicMicroseconds, 2, 5)
	for p := 0; p < VLP16Config.BlocksPerScan; p++ {
		b.addRecord(0, uint32(p), EncodeDataPacket(spec))
	}
	s, err := OpenSession(b.writeFile(t))
	require.NoError(t, err)
	defer s.Close()

	scan, err := s.NextScan()
	require.NoError(t, err)

	require.Equal(t, spec.Azimuths[10]+50, scan.Firings[21].Azimuth)
	require.Equal(t, spec.Azimuths[11], scan.Firings[22].Azimuth)
	require.Equal(t, spec.Azimuths[11]+50, scan.Firings[23].Azimuth)
}

func TestSessionInterleavedAzimuthWrap(t *testing.T) {
	// Block azimuths straddling the revolution wrap: 35960, 0, 40, ...
	// Interpolation must step forward through 36000, not backwards, and
	// every synthesized azimuth must normalize into [0, 36000).
	spec := &PacketSpec{ProductID: productIDVLP16}
	for blk := 0; blk < BlocksPerPacket; blk++ {
		spec.Azimuths[blk] = uint16((35960 + blk*40) % 36000)
	}

	b := newCaptureBuilder(magicMicroseconds, 2, 5)
	for p := 0; p < VLP16Config.BlocksPerScan; p++ {
		b.addRecord(0, uint32(p), EncodeDataPacket(spec))
	}
	s, err := OpenSession(b.writeFile(t))
	require.NoError(t, err)
	defer s.Close()

	scan, err := s.NextScan()
	require.NoError(t, err)

	require.Equal(t, uint16(35960), scan.Firings[0].Azimuth)
	require.Equal(t, uint16(35980), scan.Firings[1].Azimuth, "odd firing interpolates across the wrap")
	require.Equal(t, uint16(0), scan.Firings[2].Azimuth)
	require.Equal(t, uint16(20), scan.Firings[3].Azimuth)
	for i, firing := range scan.Firings {
		require.Less(t, firing.Azimuth, uint16(36000), "firing %d", i)
	}
}

func TestSessionOnlyNonDataRecords(t *testing.T) {
	// A stream that never yields a data packet must come back as an error,
	// not spin forever and not report a clean end of stream.
	b := newCaptureBuilder(magicMicroseconds, 2, 5)
	for i := 0; i < maxSkipAttempts+8; i++ {
		b.addRecord(0, uint32(i), make([]byte, 8))
	}
	s, err := OpenSession(b.writeFile(t))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.NextScan()
	require.Error(t, err)
	require.NotErrorIs(t, err, io.EOF)
	require.NotErrorIs(t, err, ErrFormat)
}

func TestSessionSkipsNonDataRecords(t *testing.T) {
	b := newCaptureBuilder(magicMicroseconds, 2, 5)
	positioning := make([]byte, PositioningPacketLen)
	for p := 0; p < HDL32EConfig.BlocksPerScan; p++ {
		// A positioning record and an oddball record before every packet.
		b.addRecord(0, uint32(2*p), positioning)
		b.addRecord(0, uint32(2*p), make([]byte, 99))
		b.addRecord(0, uint32(2*p+1), EncodeDataPacket(testPacketSpec(productIDHDL32E, 0)))
	}
	s, err := OpenSession(b.writeFile(t))
	require.NoError(t, err)
	defer s.Close()

	scan, err := s.NextScan()
	require.NoError(t, err)
	require.Equal(t, HardwareHDL32E, scan.Hardware)
}

func TestSessionUnknownHardwareFallsBack(t *testing.T) {
	b := newCaptureBuilder(magicMicroseconds, 2, 5)
	for p := 0; p < HDL32EConfig.BlocksPerScan; p++ {
		b.addRecord(0, uint32(p), EncodeDataPacket(testPacketSpec(0x7f, 0)))
	}
	s, err := OpenSession(b.writeFile(t))
	require.NoError(t, err)
	defer s.Close()

	// Decoding continues with the default configuration.
	scan, err := s.NextScan()
	require.NoError(t, err)
	require.Equal(t, HardwareUnknown, scan.Hardware)
	require.Len(t, scan.Firings, HDL32EConfig.BlocksPerScan*HDL32EConfig.FiringSequencesPerBlock)
}

func TestSessionArbitrationRestoresStreamPosition(t *testing.T) {
	// Version 2.4 triggers the sampling pass. Deltas of 553us vote
	// Corrected unanimously; the first decoded block must still be the
	// first record of the file.
	b := newCaptureBuilder(magicMicroseconds, 2, 4)
	for p := 0; p < HDL32EConfig.BlocksPerScan; p++ {
		b.addRecord(7, uint32(553*p), EncodeDataPacket(testPacketSpec(productIDHDL32E, uint16(p))))
	}
	s, err := OpenSession(b.writeFile(t))
	require.NoError(t, err)
	defer s.Close()

	scaling, confidence := s.Scaling()
	require.Equal(t, ScalingCorrected, scaling)
	require.Equal(t, ConfidenceHigh, confidence)

	scan, err := s.NextScan()
	require.NoError(t, err)
	require.Equal(t, ConvertTimestamp(ScalingCorrected, 7, 0), scan.BlockTimestamps[0])
}

func TestSessionAmbiguousSmallSampleDefaultsLegacy(t *testing.T) {
	// A 2.4 file with a single data record gives at most zero deltas: the
	// conservative Legacy fallback applies at low confidence.
	b := newCaptureBuilder(magicMicroseconds, 2, 4)
	b.addRecord(3, 0, EncodeDataPacket(testPacketSpec(productIDHDL32E, 0)))
	s, err := OpenSession(b.writeFile(t))
	require.NoError(t, err)
	defer s.Close()

	scaling, confidence := s.Scaling()
	require.Equal(t, ScalingLegacy, scaling)
	require.Equal(t, ConfidenceLow, confidence)
}

func TestSessionBigEndianCapture(t *testing.T) {
	b := newCaptureBuilder(magicMicrosecondsSwapped, 2, 5)
	for p := 0; p < HDL32EConfig.BlocksPerScan; p++ {
		b.addRecord(10, uint32(p), EncodeDataPacket(testPacketSpec(productIDHDL32E, 0)))
	}
	s, err := OpenSession(b.writeFile(t))
	require.NoError(t, err)
	defer s.Close()

	major, minor := s.Version()
	require.Equal(t, uint16(2), major)
	require.Equal(t, uint16(5), minor)

	scan, err := s.NextScan()
	require.NoError(t, err)
	require.Equal(t, HardwareHDL32E, scan.Hardware)
	require.Equal(t, ConvertTimestamp(ScalingCorrected, 10, 0), scan.BlockTimestamps[0])
}

func TestSessionReadsPcapgoOutput(t *testing.T) {
	// Files produced by the standard pcap writer (as gen-capture does)
	// must decode: version 2.4 framing with microsecond timestamps.
	path := filepath.Join(t.TempDir(), "generated.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	ts := time.Unix(100, 0)
	for p := 0; p < HDL32EConfig.BlocksPerScan; p++ {
		payload := EncodeDataPacket(testPacketSpec(productIDHDL32E, uint16(p)))
		ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(payload), Length: len(payload)}
		require.NoError(t, w.WritePacket(ci, payload))
		ts = ts.Add(553 * time.Microsecond)
	}
	require.NoError(t, f.Close())

	s, err := OpenSession(path)
	require.NoError(t, err)
	defer s.Close()

	scaling, _ := s.Scaling()
	require.Equal(t, ScalingCorrected, scaling)

	scan, err := s.NextScan()
	require.NoError(t, err)
	require.Equal(t, HardwareHDL32E, scan.Hardware)
	require.Equal(t, ConvertTimestamp(ScalingCorrected, 100, 0), scan.BlockTimestamps[0])
}

func TestNextScanAfterClose(t *testing.T) {
	b := newCaptureBuilder(magicMicroseconds, 2, 5)
	b.addRecord(0, 0, EncodeDataPacket(testPacketSpec(productIDHDL32E, 0)))
	s, err := OpenSession(b.writeFile(t))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "Close must be idempotent")

	if _, err := s.NextScan(); err == nil {
		t.Fatal("NextScan on closed session succeeded, want error")
	}
}

func TestSessionTruncatedMidScan(t *testing.T) {
	// EOF inside a revolution means no more complete scans.
	b := newCaptureBuilder(magicMicroseconds, 2, 5)
	for p := 0; p < 10; p++ {
		b.addRecord(0, uint32(p), EncodeDataPacket(testPacketSpec(productIDHDL32E, 0)))
	}
	s, err := OpenSession(b.writeFile(t))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.NextScan()
	require.ErrorIs(t, err, io.EOF)
}
