// Command gen-capture synthesizes a LiDAR capture file for development and
// testing. The output is a standard pcap-framed capture (version 2.4, the
// ambiguous one) containing evenly rotating sensor data packets for the
// selected hardware, so the whole decode path can be exercised without a
// real sensor.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/freespace.report/internal/lidar"
	"github.com/banshee-data/freespace.report/internal/lidar/capture"
	"github.com/banshee-data/freespace.report/internal/version"
)

func main() {
	var (
		outPath     = flag.String("out", "synthetic.pcap", "output capture path")
		hardware    = flag.String("hardware", "hdl32e", "sensor hardware: vlp16, hdl32e or vlp32c")
		scans       = flag.Int("scans", 5, "number of revolutions to synthesize")
		rangeM      = flag.Float64("range", 10.0, "synthetic target range in meters")
		deltaUS     = flag.Int("delta-us", 553, "inter-packet capture timestamp delta in microseconds")
		showVersion = flag.Bool("version", false, "print the build version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("gen-capture", version.String())
		return
	}

	var productID uint8
	var cfg capture.HardwareConfig
	switch *hardware {
	case "vlp16":
		productID = 0x22
		cfg = capture.VLP16Config
	case "hdl32e":
		productID = 0x21
		cfg = capture.HDL32EConfig
	case "vlp32c":
		productID = 0x28
		cfg = capture.VLP32CConfig
	default:
		log.Fatalf("unknown hardware %q", *hardware)
	}

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("create %s: %v", *outPath, err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("write file header: %v", err)
	}

	rangeTicks := uint16(*rangeM / 0.002)
	packets := *scans * cfg.BlocksPerScan
	ticksPerPacket := lidar.RotationTicks / cfg.BlocksPerScan
	ts := time.Unix(0, 0)

	azimuth := 0
	for p := 0; p < packets; p++ {
		var spec capture.PacketSpec
		spec.ProductID = productID
		spec.DeviceTimestamp = uint32(p)
		for b := 0; b < capture.BlocksPerPacket; b++ {
			spec.Azimuths[b] = uint16(azimuth % lidar.RotationTicks)
			azimuth += ticksPerPacket / capture.BlocksPerPacket
			for i := 0; i < capture.BeamsPerBlock; i++ {
				spec.Ranges[b][i] = rangeTicks
				spec.Reflectivities[b][i] = uint8(i * 8)
			}
		}

		payload := capture.EncodeDataPacket(&spec)
		ci := gopacket.CaptureInfo{
			Timestamp:     ts,
			CaptureLength: len(payload),
			Length:        len(payload),
		}
		if err := w.WritePacket(ci, payload); err != nil {
			log.Fatalf("write packet %d: %v", p, err)
		}
		ts = ts.Add(time.Duration(*deltaUS) * time.Microsecond)
	}

	fmt.Printf("wrote %d packets (%d scans, %s) to %s\n", packets, *scans, *hardware, *outPath)
}
