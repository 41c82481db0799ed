package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"volseg/internal/models"
	"volseg/pkg/config"
	"volseg/pkg/segmentation"
	"volseg/pkg/visualization"
	"volseg/pkg/volume"
)

func main() {
	defaults := config.DefaultConfig()

	// Parse command line arguments
	configPath := flag.String("config", "volseg.yaml", "YAML configuration file (missing file means defaults)")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	volumeDir := flag.String("volume", "", "Directory containing the volume slices and meta.yaml")
	inputPath := flag.String("input", "", "Point set to continue (YAML)")
	outputPath := flag.String("output", "", "Output point set (default: overwrite -input)")
	method := flag.String("method", defaults.Segmentation.Method, "Segmentation method: lrps or stps")
	startIndex := flag.Int("start-index", defaults.Segmentation.StartIndex, "Starting slice index (-1: highest z in the point set)")
	endIndex := flag.Int("end-index", defaults.Segmentation.EndIndex, "Ending slice index. Mutually exclusive with -stride")
	stride := flag.Int("stride", defaults.Segmentation.Stride, "Number of slices to propagate past the start. Mutually exclusive with -end-index")
	stepSize := flag.Int("step-size", defaults.Segmentation.StepSize, "Number of slices advanced per step")
	numIters := flag.Int("num-iters", defaults.LRPS.OptimizationIterations, "LRPS relaxation iterations per step")
	resliceSize := flag.Int("reslice-size", defaults.LRPS.ResliceSize, "LRPS reslice window size")
	alpha := flag.Float64("alpha", defaults.LRPS.Alpha, "LRPS tension coefficient")
	beta := flag.Float64("beta", defaults.LRPS.Beta, "LRPS candidate pull coefficient")
	delta := flag.Float64("delta", defaults.LRPS.Delta, "LRPS bending coefficient")
	k1 := flag.Float64("k1", defaults.LRPS.K1, "LRPS first derivative weight")
	k2 := flag.Float64("k2", defaults.LRPS.K2, "LRPS second derivative weight")
	distanceWeight := flag.Float64("distance-weight", defaults.LRPS.DistanceWeight, "LRPS: percent of lateral velocity used to predict the next column, in [0, 100]")
	considerPrevious := flag.Bool("consider-previous", defaults.LRPS.ConsiderPrevious, "LRPS: use the previous position as a neighbor")
	gravityScale := flag.Float64("gravity-scale", defaults.STPS.GravityScale, "STPS gravity scale in [0, 1]")
	threshold := flag.Float64("threshold", defaults.STPS.Threshold, "STPS minimum intensity")
	endOffset := flag.Int("end-offset", defaults.STPS.EndOffset, "STPS: stop this many slices past the start (-1: disabled)")
	cacheMemory := flag.String("cache-memory", defaults.Volume.CacheMemory, "Slice cache budget, e.g. 4GB (empty: count based)")
	cacheSlices := flag.Int("cache-slices", defaults.Volume.CacheSlices, "Slice cache capacity in slices")
	verbose := flag.Bool("verbose", defaults.Output.Verbose, "Log per-step progress")
	dumpVis := flag.Bool("dump-vis", defaults.Output.DumpVis, "Write per-step reslice images (LRPS)")
	dumpDir := flag.String("dump-dir", defaults.Output.DumpDir, "Directory for -dump-vis images and overlays")
	overlay := flag.Bool("overlay", false, "Save the result drawn over every segmented slice")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Explicit flags override the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "volume":
			cfg.Volume.Path = *volumeDir
		case "method":
			cfg.Segmentation.Method = *method
		case "start-index":
			cfg.Segmentation.StartIndex = *startIndex
		case "end-index":
			cfg.Segmentation.EndIndex = *endIndex
		case "stride":
			cfg.Segmentation.Stride = *stride
		case "step-size":
			cfg.Segmentation.StepSize = *stepSize
		case "num-iters":
			cfg.LRPS.OptimizationIterations = *numIters
		case "reslice-size":
			cfg.LRPS.ResliceSize = *resliceSize
		case "alpha":
			cfg.LRPS.Alpha = *alpha
		case "beta":
			cfg.LRPS.Beta = *beta
		case "delta":
			cfg.LRPS.Delta = *delta
		case "k1":
			cfg.LRPS.K1 = *k1
		case "k2":
			cfg.LRPS.K2 = *k2
		case "distance-weight":
			cfg.LRPS.DistanceWeight = *distanceWeight
		case "consider-previous":
			cfg.LRPS.ConsiderPrevious = *considerPrevious
		case "gravity-scale":
			cfg.STPS.GravityScale = *gravityScale
		case "threshold":
			cfg.STPS.Threshold = *threshold
		case "end-offset":
			cfg.STPS.EndOffset = *endOffset
		case "cache-memory":
			cfg.Volume.CacheMemory = *cacheMemory
		case "cache-slices":
			cfg.Volume.CacheSlices = *cacheSlices
		case "verbose":
			cfg.Output.Verbose = *verbose
		case "dump-vis":
			cfg.Output.DumpVis = *dumpVis
		case "dump-dir":
			cfg.Output.DumpDir = *dumpDir
		}
	})

	// Validate inputs
	if cfg.Volume.Path == "" || *inputPath == "" {
		flag.Usage()
		os.Exit(1)
	}
	if *outputPath == "" {
		*outputPath = *inputPath
	}

	level := slog.LevelInfo
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	segmentation.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Warning: metrics server stopped: %v", err)
			}
		}()
	}

	fmt.Println("================================")
	fmt.Println("VOLUMETRIC SURFACE SEGMENTATION")
	fmt.Println("================================")

	// Open the volume
	vol, err := volume.Open(cfg.Volume.Path)
	if err != nil {
		log.Fatalf("Failed to open volume: %v", err)
	}
	cacheBytes, err := cfg.CacheBytes()
	if err != nil {
		log.Fatalf("Invalid cache memory: %v", err)
	}
	if cacheBytes > 0 {
		vol.SetCacheMemory(cacheBytes)
	} else {
		vol.SetCacheCapacity(cfg.Volume.CacheSlices)
	}
	info := vol.Info()
	fmt.Printf("Volume: %dx%d, %d slices (cache holds %d slices)\n",
		info.Width, info.Height, info.Slices, vol.CacheCapacity())

	// Load the point set to continue
	master, err := models.ReadPointSet(*inputPath)
	if err != nil {
		log.Fatalf("Failed to read point set: %v", err)
	}
	fmt.Printf("Input point set: %d columns, %d rows\n", master.Width(), master.Height())

	// Build the strategy
	sc := cfg.StrategyConfig()
	var dumper *visualization.Dumper
	if cfg.Output.DumpVis {
		dumper, err = visualization.NewDumper(filepath.Join(cfg.Output.DumpDir, "reslices"))
		if err != nil {
			log.Fatalf("Failed to prepare dump directory: %v", err)
		}
		sc.LRPS.Visualizer = dumper
	}
	strategy, err := segmentation.NewStrategy(sc)
	if err != nil {
		log.Fatalf("Invalid segmentation method: %v", err)
	}
	fmt.Printf("Segmentation method: %s\n", strategy.Name())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Run the segmentation
	startTime := time.Now()
	result, err := segmentation.Segment(ctx, vol, master, strategy, cfg.RunOptions())
	if err != nil {
		log.Fatalf("Segmentation failed: %v", err)
	}
	processingTime := time.Since(startTime)

	if err := models.WritePointSet(*outputPath, result); err != nil {
		log.Fatalf("Failed to write point set: %v", err)
	}

	if strategy.Status() == segmentation.ReturnedEarly {
		fmt.Println("\nSegmentation interrupted, partial result saved.")
	} else {
		fmt.Printf("\nSegmentation completed in %.2f seconds!\n", processingTime.Seconds())
	}
	fmt.Printf("Output point set saved to: %s\n\n", *outputPath)

	metrics := segmentation.ComputeRunMetrics(result)
	stats := vol.CacheStats()
	fmt.Printf("Run Metrics:\n")
	fmt.Printf("============\n")
	fmt.Printf("Rows x Columns: %d x %d\n", metrics.Rows, metrics.Width)
	fmt.Printf("Mean displacement per row: %.3f voxels (std %.3f, max %.3f)\n",
		metrics.MeanDisplacement, metrics.StdDisplacement, metrics.MaxDisplacement)
	fmt.Printf("Active at last row: %.1f%%\n", 100*metrics.ActiveFraction)
	fmt.Printf("Slice cache: %d hits, %d misses, %d evictions, %s resident\n",
		stats.Hits, stats.Misses, stats.Evictions, config.FormatMemorySize(stats.Bytes))

	if dumper != nil {
		if err := dumper.Err(); err != nil {
			log.Printf("Warning: some debug images could not be written: %v", err)
		}
	}

	// Save overlays of the result over each slice it touches
	if *overlay {
		minZ, maxZ, ok := result.ZRange()
		if !ok {
			return
		}
		viewer := visualization.NewViewer(vol)
		overlayDir := filepath.Join(cfg.Output.DumpDir, "overlay")
		if err := os.MkdirAll(overlayDir, 0755); err != nil {
			log.Fatalf("Failed to create overlay directory: %v", err)
		}
		fmt.Printf("\nSaving overlays to: %s\n", overlayDir)
		for z := int(minZ); z <= int(maxZ); z++ {
			img, err := viewer.OverlayPointSet(result, z)
			if err != nil {
				log.Printf("Warning: Failed to render slice %d: %v", z, err)
				continue
			}
			filename := filepath.Join(overlayDir, fmt.Sprintf("slice_z_%03d.png", z))
			if err := viewer.SaveSlice(img, filename); err != nil {
				log.Printf("Warning: Failed to save slice %d: %v", z, err)
			}
		}
	}
}
