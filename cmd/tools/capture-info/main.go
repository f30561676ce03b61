// Command capture-info decodes a LiDAR capture end to end: every
// revolution is decoded, projected into a point cloud and fed through the
// virtual-sensor mapping, and a summary is printed. Optionally the session
// is recorded to a sqlite metadata store and the final hulls rendered to a
// PNG.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/plot/plotter"

	"github.com/banshee-data/freespace.report/internal/lidar"
	"github.com/banshee-data/freespace.report/internal/lidar/capture"
	"github.com/banshee-data/freespace.report/internal/lidar/capturedb"
	"github.com/banshee-data/freespace.report/internal/lidar/mapping"
	"github.com/banshee-data/freespace.report/internal/lidar/monitor"
	"github.com/banshee-data/freespace.report/internal/lidar/project"
	"github.com/banshee-data/freespace.report/internal/version"
)

func main() {
	var (
		capturePath = flag.String("capture", "", "capture file to decode (required)")
		maxRange    = flag.Float64("max-range", 120.0, "range cutoff in meters")
		layout      = flag.String("layout", "ring", "zone layout: ring or perimeter")
		floorHeight = flag.Float64("floor", -1.8, "ground classification height in meters")
		dbPath      = flag.String("db", "", "optional sqlite session store path")
		plotPath    = flag.String("plot", "", "optional hull plot PNG path")
		showVersion = flag.Bool("version", false, "print the build version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("capture-info", version.String())
		return
	}

	if *capturePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*capturePath, *maxRange, *layout, *floorHeight, *dbPath, *plotPath); err != nil {
		log.Fatalf("capture-info: %v", err)
	}
}

// defaultContour is a stand-in vehicle body footprint used when no profile
// loader is present: a 4.6 m x 1.9 m rectangle about the origin.
var defaultContour = []r2.Vec{
	{X: -1.6, Y: -0.95},
	{X: 3.0, Y: -0.95},
	{X: 3.0, Y: 0.95},
	{X: -1.6, Y: 0.95},
}

func run(capturePath string, maxRange float64, layout string, floorHeight float64, dbPath, plotPath string) error {
	session, err := capture.OpenSession(capturePath)
	if err != nil {
		return err
	}
	defer session.Close()

	cfg := mapping.DefaultRingConfig()
	if layout == "perimeter" {
		cfg = mapping.DefaultPerimeterConfig()
	}
	cfg.FloorHeight = floorHeight
	vmap := mapping.New(cfg)
	vmap.SetVehicleContour(defaultContour)

	var (
		projector  *project.Projector
		points     []lidar.Point
		scansCount int
		pointCount int
		firstTS    uint64
		lastTS     uint64
	)
	for {
		scan, err := session.NextScan()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		if projector == nil {
			projector = project.NewProjector(scan.Hardware, maxRange)
		}
		points = projector.Project(scan, points[:0])
		vmap.UpdatePoints(points)

		if scansCount == 0 {
			firstTS = scan.Timestamp
		}
		lastTS = scan.Timestamp
		scansCount++
		pointCount += len(points)
	}

	scaling, confidence := session.Scaling()
	major, minor := session.Version()
	fmt.Printf("capture:    %s (version %d.%d)\n", capturePath, major, minor)
	fmt.Printf("scaling:    %s (%s confidence)\n", scaling, confidence)
	fmt.Printf("hardware:   %s\n", session.Hardware())
	fmt.Printf("scans:      %d (timestamps %d..%d us)\n", scansCount, firstTS, lastTS)
	fmt.Printf("points:     %d\n", pointCount)
	fmt.Printf("hulls:      %d non-ground, %d ground (of %d zones)\n",
		len(vmap.NonGroundHull()), len(vmap.GroundHull()), vmap.ZoneCount())

	if dbPath != "" {
		db, err := capturedb.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		id, err := db.InsertSession(&capturedb.SessionRecord{
			CapturePath:       capturePath,
			VersionMajor:      int(major),
			VersionMinor:      int(minor),
			TimeScaling:       scaling.String(),
			ScalingConfidence: confidence.String(),
			Hardware:          session.Hardware().String(),
			ScansDecoded:      scansCount,
			PointsProjected:   pointCount,
			FirstTimestampUS:  firstTS,
			LastTimestampUS:   lastTS,
		})
		if err != nil {
			return err
		}
		fmt.Printf("session:    %s recorded in %s\n", id, dbPath)
	}

	if plotPath != "" {
		contour := make([]plotter.XY, 0, len(defaultContour))
		for _, v := range defaultContour {
			contour = append(contour, plotter.XY{X: v.X, Y: v.Y})
		}
		hp := &monitor.HullPlotter{}
		if err := hp.SavePlot(vmap, contour, plotPath); err != nil {
			return err
		}
		fmt.Printf("plot:       %s\n", plotPath)
	}
	return nil
}
