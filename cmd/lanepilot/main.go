// Command lanepilot drives the vehicle around the track, records the camera,
// or both.
//
//	lanepilot [flags] d|r|dr
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/lanepilot/internal/actuator"
	"github.com/banshee-data/lanepilot/internal/autodrive"
	"github.com/banshee-data/lanepilot/internal/camera"
	"github.com/banshee-data/lanepilot/internal/camera/gocvcam"
	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/drive"
	"github.com/banshee-data/lanepilot/internal/perception/gocvvision"
	"github.com/banshee-data/lanepilot/internal/perception/lane"
	"github.com/banshee-data/lanepilot/internal/perception/objects"
	"github.com/banshee-data/lanepilot/internal/recorder"
	"github.com/banshee-data/lanepilot/internal/recorder/gocvrec"
	"github.com/banshee-data/lanepilot/internal/report"
	"github.com/banshee-data/lanepilot/internal/serialmux"
	"github.com/banshee-data/lanepilot/internal/telemetry"
	"github.com/banshee-data/lanepilot/internal/timeutil"
	"github.com/banshee-data/lanepilot/internal/version"
)

var (
	configFile = flag.String("config", config.DefaultConfigPath, "Path to drive config JSON")
	devMode    = flag.Bool("dev", false, "Synthetic camera and no vehicle board")
	port       = flag.String("port", "/dev/ttyACM0", "Vehicle board serial port (ignored in dev mode)")
	device     = flag.String("camera", "0", "Camera index or GStreamer pipeline ending in appsink")
	dbFile     = flag.String("db", "lanepilot.db", "Telemetry database (empty disables telemetry)")
	listen     = flag.String("listen", "localhost:8080", "Admin listen address (empty disables)")
	recordDir  = flag.String("record-dir", "recordings", "Directory for recorded video")
	reportDir  = flag.String("report-dir", "", "Write a run report here on exit")
	showVer    = flag.Bool("version", false, "Print the version and exit")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] d|r|dr\n\n", os.Args[0])
	fmt.Fprintln(flag.CommandLine.Output(), "  d   drive")
	fmt.Fprintln(flag.CommandLine.Output(), "  r   record")
	fmt.Fprintln(flag.CommandLine.Output(), "  dr  drive and record")
	fmt.Fprintln(flag.CommandLine.Output())
	flag.PrintDefaults()
}

// parseMode takes the single positional argument.
func parseMode(args []string) (autodrive.Mode, error) {
	if len(args) != 1 {
		return "", errors.New("exactly one mode argument is required")
	}
	return autodrive.ParseMode(args[0])
}

// loadConfig reads the drive config at path. Only dev mode may fall back to
// the built-in defaults, and only when the file does not exist.
func loadConfig(path string, dev bool) (*config.DriveConfig, error) {
	cfg, err := config.LoadDriveConfig(path)
	if err != nil && dev && errors.Is(err, fs.ErrNotExist) {
		log.Printf("no config at %s, using built-in defaults", path)
		return config.EmptyDriveConfig(), nil
	}
	return cfg, err
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVer {
		fmt.Println("lanepilot", version.String())
		return
	}

	mode, err := parseMode(flag.Args())
	if err != nil {
		fmt.Fprintln(flag.CommandLine.Output(), err)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configFile, *devMode)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("lanepilot %s, mode %s", version.String(), mode)

	policy, err := actuator.ParsePolicy(cfg.GetActuatorFailurePolicy())
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	var board serialmux.Board
	if *devMode || !mode.Drives() {
		board = serialmux.NewDisabled()
	} else {
		board, err = serialmux.Open(*port, serialmux.PortOptions{BaudRate: cfg.GetSerialBaudRate()})
		if err != nil {
			log.Fatalf("failed to open vehicle board: %v", err)
		}
	}
	defer board.Close()

	var cam camera.Source
	if *devMode {
		cam = camera.NewSynthetic(cfg.GetFrameWidth(), cfg.GetFrameHeight(), nil)
	} else {
		cam = gocvcam.New(*device, cfg.GetFrameWidth(), cfg.GetFrameHeight())
	}

	clock := timeutil.RealClock{}
	opts := autodrive.Options{
		Mode:            mode,
		Camera:          cam,
		Policy:          policy,
		BarrierTimeout:  cfg.GetBarrierTimeout(),
		CaptureInterval: cfg.GetCaptureInterval(),
		Clock:           clock,
	}

	if mode.Drives() {
		cls := gocvvision.NewClassifier(autodrive.ClassifierParams(cfg))
		opts.Lane = lane.NewDetector(autodrive.LaneConfig(cfg, cls))
		opts.Objects = objects.NewDetector(autodrive.ObjectsConfig(cfg, cls, gocvvision.Vision{}))
		opts.Overlay = gocvvision.NewOverlay(cls)
		opts.Controller = drive.NewController(autodrive.ControllerConfig(cfg), clock)
		opts.Operator = board
		if *devMode {
			opts.Actuator = actuator.NewMemory()
		} else {
			opts.Actuator = actuator.NewSerial(board)
		}
	}

	if mode.Records() {
		path, err := recorder.NewPath(*recordDir, clock.Now())
		if err != nil {
			log.Fatalf("failed to prepare recording: %v", err)
		}
		fps := int(cfg.GetRecordFPS())
		opts.Recorder = recorder.NewPaced(gocvrec.New(path, fps), fps, clock)
		log.Printf("recording to %s at %d fps", path, fps)
	}

	var (
		store  *telemetry.Store
		run    telemetry.Run
		runLog *telemetry.RunLog
	)
	if *dbFile != "" {
		store, err = telemetry.Open(*dbFile)
		if err != nil {
			log.Fatalf("failed to open telemetry database: %v", err)
		}
		defer store.Close()

		run, err = store.StartRun(string(mode), cfg, clock.Now())
		if err != nil {
			log.Fatalf("failed to start run: %v", err)
		}
		runLog = store.NewRunLog(run.ID, 1024)
		opts.Telemetry = runLog
		log.Printf("run %s started", run.ID)
	}

	pipeline, err := autodrive.New(opts)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := board.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	if *listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()

			mux := http.NewServeMux()

			// admin routes are only served to localhost and the tailnet
			board.AttachAdminRoutes(mux)
			pipeline.AttachAdminRoutes(mux)
			if store != nil {
				store.AttachAdminRoutes(mux)
				report.AttachAdminRoutes(mux, store)
			}

			server := &http.Server{Addr: *listen, Handler: mux}
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Printf("admin server failed: %v", err)
				}
			}()

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}
		}()
	}

	runErr := pipeline.Run(ctx)
	stop()

	status := telemetry.StatusFinished
	if runErr != nil {
		status = telemetry.StatusAborted
		log.Printf("pipeline stopped: %v", runErr)
	}

	if runLog != nil {
		if err := runLog.Close(); err != nil {
			log.Printf("failed to flush telemetry: %v", err)
		}
		if dropped, failed := runLog.Counts(); dropped+failed > 0 {
			log.Printf("telemetry: %d records dropped, %d failed", dropped, failed)
		}
		if err := store.FinishRun(run.ID, status, clock.Now()); err != nil {
			log.Printf("failed to finish run: %v", err)
		}
		if *reportDir != "" {
			files, err := report.WriteFiles(store, run.ID, *reportDir, report.HTMLOptions{})
			if err != nil {
				log.Printf("failed to write report: %v", err)
			}
			for _, f := range files {
				log.Printf("wrote %s", f)
			}
		}
	}

	wg.Wait()
	log.Printf("%+v", pipeline.Status())

	if runErr != nil {
		// os.Exit skips the deferred closes
		if store != nil {
			store.Close()
		}
		board.Close()
		os.Exit(1)
	}
}
