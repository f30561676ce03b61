package capture

import (
	"encoding/binary"
	"fmt"
)

// Capture file wire format constants.
//
// A capture file is a pcap-style stream: one 24-byte global header followed
// by records, each a 16-byte record header plus payload. Sensor data packets
// and positioning packets are identified purely by their declared lengths.
const (
	GlobalHeaderLen = 24 // magic + version + zone + sigfigs + snaplen + network
	RecordHeaderLen = 16 // ts_sec + ts_usec + incl_len + orig_len

	LinkHeaderLen = 42 // Ethernet + IP + UDP headers preceding the sensor payload

	// DataPacketLen is the on-wire length of one sensor data packet:
	// 42-byte link header + 12 blocks x 100 bytes + 4-byte device timestamp
	// + 2-byte factory field.
	DataPacketLen = 1248

	// PositioningPacketLen is the on-wire length of a positioning (GPS/IMU)
	// packet. These are skipped by the decoder but count towards timestamp
	// arbitration sampling.
	PositioningPacketLen = 554

	BlocksPerPacket = 12  // wire data blocks per sensor packet
	BeamsPerBlock   = 32  // laser readings per wire block
	BlockLen        = 100 // flag(2) + azimuth(2) + 32 x (range(2) + refl(1))
)

// Wire block flag values identifying the beam group carried by a block.
const (
	FlagBlockLower = 0xeeff // beams 0-31
	FlagBlockUpper = 0xddff // beams 32-63 (64-beam units, unused here)
)

// Accepted global header magic values. The byte-swapped variants mark a
// capture written on an opposite-endian host; integer fields in the global
// and record headers are then decoded big-endian. The nanosecond variants
// are accepted but their timestamps are treated identically: the historical
// Legacy/Corrected scaling convention is arbitrated separately.
const (
	magicMicroseconds        = 0xa1b2c3d4
	magicMicrosecondsSwapped = 0xd4c3b2a1
	magicNanoseconds         = 0xa1b23c4d
	magicNanosecondsSwapped  = 0x4d3cb2a1
)

// globalHeader is the decoded 24-byte capture file header.
type globalHeader struct {
	Magic        uint32
	VersionMajor uint16
	VersionMinor uint16
	ThisZone     int32
	SigFigs      uint32
	SnapLen      uint32
	Network      uint32
}

// byteOrderForMagic returns the integer byte order implied by the magic
// value, or nil when the magic is not one of the four accepted values.
func byteOrderForMagic(magic uint32) binary.ByteOrder {
	switch magic {
	case magicMicroseconds, magicNanoseconds:
		return binary.LittleEndian
	case magicMicrosecondsSwapped, magicNanosecondsSwapped:
		return binary.BigEndian
	default:
		return nil
	}
}

// decodeGlobalHeader decodes the capture file header field by field.
// The magic is always read little-endian; the remaining fields follow the
// byte order the magic implies.
func decodeGlobalHeader(buf []byte) (globalHeader, binary.ByteOrder, error) {
	if len(buf) < GlobalHeaderLen {
		return globalHeader{}, nil, fmt.Errorf("global header: need %d bytes, have %d", GlobalHeaderLen, len(buf))
	}

	magic := binary.LittleEndian.Uint32(buf[0:4])
	bo := byteOrderForMagic(magic)
	if bo == nil {
		return globalHeader{Magic: magic}, nil, ErrFormat
	}

	hdr := globalHeader{
		Magic:        magic,
		VersionMajor: bo.Uint16(buf[4:6]),
		VersionMinor: bo.Uint16(buf[6:8]),
		ThisZone:     int32(bo.Uint32(buf[8:12])),
		SigFigs:      bo.Uint32(buf[12:16]),
		SnapLen:      bo.Uint32(buf[16:20]),
		Network:      bo.Uint32(buf[20:24]),
	}
	return hdr, bo, nil
}

// recordHeader is the decoded 16-byte per-record header.
type recordHeader struct {
	TsSec   uint32 // raw capture timestamp, seconds field
	TsUsec  uint32 // raw capture timestamp, sub-second field
	InclLen uint32 // bytes of payload stored in the file
	OrigLen uint32 // original on-wire payload length
}

// decodeRecordHeader decodes a record header using the byte order
// established by the global header.
func decodeRecordHeader(buf []byte, bo binary.ByteOrder) (recordHeader, error) {
	if len(buf) < RecordHeaderLen {
		return recordHeader{}, fmt.Errorf("record header: need %d bytes, have %d", RecordHeaderLen, len(buf))
	}
	return recordHeader{
		TsSec:   bo.Uint32(buf[0:4]),
		TsUsec:  bo.Uint32(buf[4:8]),
		InclLen: bo.Uint32(buf[8:12]),
		OrigLen: bo.Uint32(buf[12:16]),
	}, nil
}

// wireBlock is one decoded data block: one azimuth instant with a reading
// from each of 32 lasers. Lower-beam-count hardware uses a prefix (or, for
// interleaved layouts, both halves) of the beam array.
type wireBlock struct {
	Flag    uint16
	Azimuth uint16 // hundredths of a degree, 0-35999
	Beams   [BeamsPerBlock]Beam
}

// dataPacket is one fully decoded sensor data packet.
type dataPacket struct {
	Blocks          [BlocksPerPacket]wireBlock
	DeviceTimestamp uint32 // sensor-internal microsecond counter
	ReturnMode      uint8  // factory field, first byte
	ProductID       uint8  // factory field, second byte; selects hardware
}

// decodeDataPacket decodes a sensor data packet payload (including its
// 42-byte link header) field by field. Sensor fields are always
// little-endian regardless of the capture file's byte order: the sensor
// defines the packet format, the capturing host only wraps it.
func decodeDataPacket(buf []byte, pkt *dataPacket) error {
	if len(buf) < DataPacketLen {
		return fmt.Errorf("data packet: need %d bytes, have %d", DataPacketLen, len(buf))
	}

	off := LinkHeaderLen
	for b := 0; b < BlocksPerPacket; b++ {
		blk := &pkt.Blocks[b]
		blk.Flag = binary.LittleEndian.Uint16(buf[off : off+2])
		blk.Azimuth = binary.LittleEndian.Uint16(buf[off+2 : off+4])
		off += 4
		for i := 0; i < BeamsPerBlock; i++ {
			blk.Beams[i] = Beam{
				Range:        binary.LittleEndian.Uint16(buf[off : off+2]),
				Reflectivity: buf[off+2],
			}
			off += 3
		}
	}

	pkt.DeviceTimestamp = binary.LittleEndian.Uint32(buf[off : off+4])
	pkt.ReturnMode = buf[off+4]
	pkt.ProductID = buf[off+5]
	return nil
}
