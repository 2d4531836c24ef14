package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"videodetect/internal/capture"
	"videodetect/internal/config"
	"videodetect/internal/frame"
	"videodetect/internal/gate"
	"videodetect/internal/logger"
	"videodetect/internal/model"
	"videodetect/internal/pipeline"
	"videodetect/internal/repository/sqlite"
	"videodetect/internal/route"
	"videodetect/internal/services/ai"
	"videodetect/internal/services/camera"
	"videodetect/internal/services/recorder"
	"videodetect/internal/services/relay"
	"videodetect/internal/services/storage"
	"videodetect/internal/services/websocket"
	"videodetect/internal/sink"
)

// Detector is a pipeline detector that holds a model.
type Detector interface {
	pipeline.Detector
	Close() error
}

// Request selects the source and the mode of one run.
type Request struct {
	Mode   model.Mode
	Source capture.Descriptor
}

// App wires the configured backends into pipeline runs.
type App struct {
	config *config.Config
	logger *logger.Logger
	clock  clock.Clock

	opener      capture.Opener
	newDetector func() (Detector, error)
	newWriter   func(path string, props frame.Props) (sink.Writer, error)
	newWindow   func(title string) sink.Preview
	encode      websocket.Encoder
}

func NewApp(cfg *config.Config, logger *logger.Logger) *App {
	return &App{
		config: cfg,
		logger: logger,
		clock:  clock.New(),
		opener: camera.Open,
		newDetector: func() (Detector, error) {
			return ai.New(cfg, logger.Named("ai"))
		},
		newWriter: func(path string, props frame.Props) (sink.Writer, error) {
			return recorder.NewFileWriter(path, cfg.VideoCodec, props)
		},
		newWindow: func(title string) sink.Preview {
			return recorder.NewWindow(title)
		},
		encode: camera.EncodeJPEG,
	}
}

// VideoPath is the output video of an inline run or the raw recording of a live run.
func VideoPath(dir, runID string) string {
	return filepath.Join(dir, "capture_"+runID+".mp4")
}

// AnnotatedPath is the output video of the annotate pass.
func AnnotatedPath(dir, runID string) string {
	return filepath.Join(dir, "capture_"+runID+"_annotated.mp4")
}

// LogPath is the detection workbook of a run.
func LogPath(dir, runID string) string {
	return filepath.Join(dir, "detections_"+runID+".xlsx")
}

// NewRun creates the immutable description of a run starting now.
func (a *App) NewRun(req Request) *model.Run {
	started := a.clock.Now()
	id := model.RunID(started)
	dir := a.config.OutputDirectory

	run := &model.Run{
		ID:        id,
		UUID:      uuid.NewString(),
		Mode:      req.Mode,
		Source:    req.Source.String(),
		VideoPath: VideoPath(dir, id),
		LogPath:   LogPath(dir, id),
		StartedAt: started,
	}
	if req.Mode == model.RecordThenAnnotate {
		run.VideoPath = AnnotatedPath(dir, id)
	}
	return run
}

// Run executes one pipeline run and releases everything it acquired.
func (a *App) Run(ctx context.Context, req Request) (*model.Run, pipeline.Result, error) {
	if req.Mode == model.Inline && req.Source.Kind != capture.File {
		return nil, pipeline.Result{}, fmt.Errorf("inline mode needs a video file, got %s source", req.Source.Kind)
	}

	run := a.NewRun(req)
	a.logger.Info("Run %s (%s) on %s", run.ID, run.Mode, run.Source)

	exporters := []storage.Exporter{storage.XLSXExporter{}}
	if a.config.ExportCSV {
		exporters = append(exporters, storage.CSVExporter{})
	}
	if a.config.DatabasePath != "" {
		db, err := sqlite.New(a.config.DatabasePath)
		if err != nil {
			a.logger.Warning("Detection archive disabled: %v", err)
		} else {
			defer db.Close()
			exporters = append(exporters, storage.ArchiveExporter{Runs: sqlite.NewRunRepository(db)})
		}
	}
	log := storage.NewLog(a.logger.Named("log"), exporters...)

	detector, err := a.newDetector()
	if err != nil {
		return run, pipeline.Result{}, fmt.Errorf("load detector: %w", err)
	}
	defer func() {
		if err := detector.Close(); err != nil {
			a.logger.Warning("Failed to release detector: %v", err)
		}
	}()

	if req.Source.Kind == capture.Stream {
		proc, err := relay.Start(ctx, a.config.RelayPath, a.config.RelayArgs,
			a.config.RelayStartupDelay, a.config.RelayStopTimeout, a.logger.Named("relay"))
		if err != nil {
			a.logger.Warning("Continuing without relay: %v", err)
		}
		defer func() {
			if err := proc.Stop(); err != nil {
				a.logger.Warning("Failed to stop relay: %v", err)
			}
		}()
	}

	controller := pipeline.New(run, log, a.logger.Named("pipeline"))

	var hub *websocket.HubService
	if a.config.PreviewAddr != "" {
		var stop func()
		hub, stop = a.servePreview(controller.Stats)
		defer stop()
	}

	result, err := controller.Run(ctx, a.passes(run, req, detector, hub)...)
	if err != nil {
		return run, result, err
	}

	a.logger.Info("Video saved to %s", run.VideoPath)
	a.logger.Info("Detections saved to %s (%d rows)", run.LogPath, log.Len())
	return run, result, nil
}

func (a *App) passes(run *model.Run, req Request, detector Detector, hub *websocket.HubService) []pipeline.Pass {
	interval := a.config.DetectionInterval

	if req.Mode == model.Inline {
		return []pipeline.Pass{{
			Name:     "inline",
			Open:     a.openSource(req.Source),
			Sink:     a.openSink(run.VideoPath, "inline", req.Source.String(), hub),
			Gate:     gate.New(interval, a.clock),
			Detector: detector,
		}}
	}

	recording := VideoPath(a.config.OutputDirectory, run.ID)
	return []pipeline.Pass{
		{
			Name: "record",
			Open: a.openSource(req.Source),
			Sink: a.openSink(recording, "record", req.Source.String(), hub),
			Gate: gate.Disabled{Clock: a.clock},
		},
		{
			Name:     "annotate",
			Open:     a.openSource(capture.FileDescriptor(recording)),
			Sink:     a.openSink(run.VideoPath, "annotate", recording, hub),
			Gate:     gate.New(interval, a.clock),
			Detector: detector,
		},
	}
}

func (a *App) openSource(d capture.Descriptor) func() (pipeline.Source, error) {
	return func() (pipeline.Source, error) {
		return capture.Open(d, a.opener, a.config.DefaultFPS, a.logger.Named("capture"))
	}
}

func (a *App) openSink(path, pass, source string, hub *websocket.HubService) func(frame.Props) (pipeline.Sink, error) {
	return func(props frame.Props) (pipeline.Sink, error) {
		writer, err := a.newWriter(path, props)
		if err != nil {
			return nil, err
		}

		var previews []sink.Preview
		if a.config.PreviewWindow {
			previews = append(previews, a.newWindow("videodetect - "+pass))
		}
		if hub != nil {
			previews = append(previews, websocket.NewPreview(hub, source, a.encode, a.logger.Named("preview")))
		}
		return sink.New(props, writer, a.logger.Named("sink"), previews...), nil
	}
}

// servePreview starts the browser preview and returns its hub and a stop function.
func (a *App) servePreview(status func() pipeline.Result) (*websocket.HubService, func()) {
	hub := websocket.NewHubService(a.logger.Named("hub"), 8)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := &http.Server{
		Addr:              a.config.PreviewAddr,
		Handler:           route.SetupRoutes(a.config, a.logger.Named("http"), hub, status),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warning("Preview server stopped: %v", err)
		}
	}()
	a.logger.Info("Preview available at http://%s", a.config.PreviewAddr)

	return hub, func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warning("Preview server shutdown: %v", err)
		}
		cancel()
	}
}
