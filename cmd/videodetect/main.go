package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v2"

	"videodetect/internal/app"
	"videodetect/internal/capture"
	"videodetect/internal/config"
	"videodetect/internal/logger"
	"videodetect/internal/model"
)

const (
	flagMode      = "mode"
	flagInterval  = "interval"
	flagOutputDir = "output-dir"
	flagDevice    = "device"
	flagHost      = "host"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		log.Fatalf("videodetect: %v", err)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:            "videodetect",
		Usage:           "record video and log object detections at a fixed interval",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagMode,
				Usage: "override the pipeline mode (`inline` or `record`)",
			},
			&cli.DurationFlag{
				Name:  flagInterval,
				Usage: "minimum time between two detections",
			},
			&cli.StringFlag{
				Name:  flagOutputDir,
				Usage: "write videos and detection logs into `DIR`",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "file",
				Usage:     "detect on a video file while copying it",
				ArgsUsage: "[PATH]",
				Action:    fileAction,
			},
			{
				Name:  "webcam",
				Usage: "record a local camera, then annotate the recording",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagDevice,
						Value: -1,
						Usage: "camera index (defaults to CAMERA_INDEX)",
					},
				},
				Action: webcamAction,
			},
			{
				Name:  "drone",
				Usage: "start the relay, record its stream, then annotate the recording",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagHost,
						Usage: "relay host `IP`",
					},
				},
				Action: droneAction,
			},
		},
		Action: promptAction,
	}
}

func fileAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		var err error
		if path, err = askText("Path to the video file", ""); err != nil {
			return err
		}
	}
	return run(c, model.Inline, capture.FileDescriptor(path))
}

func webcamAction(c *cli.Context) error {
	cfg := config.Load()
	index := c.Int(flagDevice)
	if index < 0 {
		index = cfg.CameraIndex
	}
	return run(c, model.RecordThenAnnotate, capture.DeviceDescriptor(index))
}

func droneAction(c *cli.Context) error {
	host := c.String(flagHost)
	if host == "" {
		var err error
		if host, err = askText("Relay host IP", "192.168.0.10"); err != nil {
			return err
		}
	}
	return run(c, model.RecordThenAnnotate, capture.StreamDescriptor(host))
}

// promptAction asks for the source when no subcommand was given.
func promptAction(c *cli.Context) error {
	var source string
	err := huh.NewSelect[string]().
		Title("Video source").
		Options(
			huh.NewOption("Video file", "file"),
			huh.NewOption("Webcam", "webcam"),
			huh.NewOption("Drone stream", "drone"),
		).
		Value(&source).
		Run()
	if err != nil {
		return err
	}

	switch source {
	case "file":
		return fileAction(c)
	case "webcam":
		answer, err := askText("Camera index", strconv.Itoa(config.Load().CameraIndex))
		if err != nil {
			return err
		}
		index, err := strconv.Atoi(answer)
		if err != nil {
			return fmt.Errorf("invalid camera index %q", answer)
		}
		return run(c, model.RecordThenAnnotate, capture.DeviceDescriptor(index))
	default:
		return droneAction(c)
	}
}

func askText(title, placeholder string) (string, error) {
	var value string
	err := huh.NewInput().
		Title(title).
		Placeholder(placeholder).
		Value(&value).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" && placeholder == "" {
				return errors.New("a value is required")
			}
			return nil
		}).
		Run()
	if err != nil {
		return "", err
	}
	if value = strings.TrimSpace(value); value == "" {
		value = placeholder
	}
	return value, nil
}

func run(c *cli.Context, mode model.Mode, source capture.Descriptor) error {
	cfg := config.Load()
	if c.IsSet(flagInterval) {
		cfg.DetectionInterval = c.Duration(flagInterval)
	}
	if dir := c.String(flagOutputDir); dir != "" {
		cfg.OutputDirectory = dir
	}
	if s := c.String(flagMode); s != "" {
		m, err := model.ParseMode(s)
		if err != nil {
			return err
		}
		mode = m
	}
	if cfg.DetectionInterval <= 0 {
		return fmt.Errorf("detection interval must be positive, got %s", cfg.DetectionInterval)
	}

	logger, err := logger.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	application := app.NewApp(cfg, logger)
	run, result, err := application.Run(c.Context, app.Request{Mode: mode, Source: source})
	if err != nil {
		return err
	}

	fmt.Printf("Video saved to %s\n", run.VideoPath)
	fmt.Printf("Detections saved to %s (%d)\n", run.LogPath, result.Detections)
	return nil
}
