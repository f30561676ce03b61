package capture

import "encoding/binary"

// PacketSpec describes one synthetic sensor data packet for capture
// synthesis. Fixtures and the gen-capture tool use it to build wire-exact
// payloads; the decoder itself never touches this path.
type PacketSpec struct {
	Flags           [BlocksPerPacket]uint16
	Azimuths        [BlocksPerPacket]uint16
	Ranges          [BlocksPerPacket][BeamsPerBlock]uint16
	Reflectivities  [BlocksPerPacket][BeamsPerBlock]uint8
	DeviceTimestamp uint32
	ReturnMode      uint8
	ProductID       uint8
}

// EncodeDataPacket renders a PacketSpec as a DataPacketLen-byte payload:
// a zeroed link header followed by the twelve wire blocks and the trailing
// timestamp and factory fields. Zero flags default to FlagBlockLower.
func EncodeDataPacket(spec *PacketSpec) []byte {
	buf := make([]byte, DataPacketLen)

	off := LinkHeaderLen
	for b := 0; b < BlocksPerPacket; b++ {
		flag := spec.Flags[b]
		if flag == 0 {
			flag = FlagBlockLower
		}
		binary.LittleEndian.PutUint16(buf[off:off+2], flag)
		binary.LittleEndian.PutUint16(buf[off+2:off+4], spec.Azimuths[b])
		off += 4
		for i := 0; i < BeamsPerBlock; i++ {
			binary.LittleEndian.PutUint16(buf[off:off+2], spec.Ranges[b][i])
			buf[off+2] = spec.Reflectivities[b][i]
			off += 3
		}
	}

	binary.LittleEndian.PutUint32(buf[off:off+4], spec.DeviceTimestamp)
	buf[off+4] = spec.ReturnMode
	buf[off+5] = spec.ProductID
	return buf
}
