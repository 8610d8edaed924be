package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/peterbourgon/ff/v4/ffyaml"
	"github.com/zombor/nutriscan/internal/camera"
	"github.com/zombor/nutriscan/internal/console"
	"github.com/zombor/nutriscan/internal/decode"
	"github.com/zombor/nutriscan/internal/meallog"
	"github.com/zombor/nutriscan/internal/remote"
	"github.com/zombor/nutriscan/internal/workflow"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	_ = godotenv.Load()

	fs := ff.NewFlagSet("nutriscan")
	var (
		serverURL   = fs.StringLong("server", "http://localhost:8080", "Lookup service base URL")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		userID      = fs.StringLong("user-id", "", "User identifier for daily quotas")
		device      = fs.StringLong("device", "/dev/video0", "Video4Linux camera device")
		width       = fs.IntLong("width", 1280, "Preferred capture width")
		height      = fs.IntLong("height", 720, "Preferred capture height")
		imagePath   = fs.StringLong("image", "", "Use an image file as the camera feed instead of a device")
		interval    = fs.DurationLong("interval", decode.DefaultInterval, "Frame sampling interval")
		callTimeout = fs.DurationLong("timeout", 45*time.Second, "Timeout for lookup and analysis calls")
		mealLog     = fs.StringLong("meal-log", "meals.jsonl", "Meal log file (.csv for CSV, otherwise JSON lines)")
		mqttBroker  = fs.StringLong("mqtt-broker", "", "Also publish meal entries to this MQTT broker (e.g. tcp://localhost:1883)")
		mqttTopic   = fs.StringLong("mqtt-topic", meallog.DefaultTopic, "MQTT topic for meal entries")
		mqttUser    = fs.StringLong("mqtt-user", "", "MQTT username (optional)")
		mqttPass    = fs.StringLong("mqtt-pass", "", "MQTT password (optional)")
		_           = fs.StringLong("config", "", "YAML config file (optional)")
		verbose     = fs.BoolLong("verbose", "Log workflow events to stderr")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("NUTRISCAN"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffyaml.Parse),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *interval < decode.MinInterval || *interval > decode.MaxInterval {
		fmt.Fprintf(os.Stderr, "error: --interval must be between %s and %s\n", decode.MinInterval, decode.MaxInterval)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var source camera.FrameSource
	if *imagePath != "" {
		slog.Info("Using image file as camera feed", "path", *imagePath)
		source = camera.NewImageFileSource(*imagePath)
	} else {
		slog.Info("Using camera device", "device", *device, "width", *width, "height", *height)
		source = camera.NewV4L2Source(camera.V4L2Config{
			Device: *device,
			Width:  *width,
			Height: *height,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	primary, err := meallog.Open(*mealLog)
	if err != nil {
		slog.Error("Failed to open meal log", "error", err)
		os.Exit(1)
	}
	entries := meallog.Tee{Primary: primary}
	if *mqttBroker != "" {
		publisher, err := meallog.DialMQTT(ctx, meallog.MQTTConfig{
			Broker:   *mqttBroker,
			ClientID: "nutriscan-" + uuid.NewString()[:8],
			Username: *mqttUser,
			Password: *mqttPass,
			Topic:    *mqttTopic,
			QoS:      1,
		})
		if err != nil {
			slog.Error("Failed to connect to MQTT broker", "error", err)
			os.Exit(1)
		}
		entries.Mirrors = append(entries.Mirrors, publisher)
	}
	defer entries.Close()

	opts := []remote.Option{remote.WithTimeout(*callTimeout)}
	if *authUser != "" || *authPass != "" {
		opts = append(opts, remote.WithBasicAuth(*authUser, *authPass))
	}
	client := remote.NewClient(*serverURL, opts...)

	c := console.New(os.Stdout)
	wf := workflow.New(workflow.Deps{
		Camera:    camera.NewManager(source),
		Decoder:   decode.NewMultiFormat(),
		Resolver:  client,
		Analyzer:  client,
		Persister: client,
		Emitter:   entries,
	},
		workflow.WithObserver(workflow.SlogObserver{Next: c.Observer()}),
		workflow.WithUserID(*userID),
		workflow.WithInterval(*interval),
		workflow.WithCallTimeout(*callTimeout),
	)
	defer wf.Close()

	c.Attach(wf)

	fmt.Printf("nutriscan %s, logging meals to %s\n", version, *mealLog)
	if err := c.Run(ctx, os.Stdin); err != nil {
		slog.Error("Console error", "error", err)
	}
}
