// Command overlay shows the position stream of a running tracker in a
// debug window. It can run on another machine than the tracker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"github.com/tarkov-map/tracker/internal/config"
	"github.com/tarkov-map/tracker/internal/logging"
	"github.com/tarkov-map/tracker/internal/maps"
	"github.com/tarkov-map/tracker/internal/overlay"
	"github.com/tarkov-map/tracker/internal/stream"
)

const helloTimeout = 10 * time.Second

type options struct {
	url       string
	mapID     string
	mapsFile  string
	configDir string
	level     string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("overlay", flag.ContinueOnError)
	fs.StringVar(&o.url, "url", "", "stream URL (default: built from the stream config)")
	fs.StringVar(&o.mapID, "map", "", "map to draw (default: the map the tracker announces)")
	fs.StringVar(&o.mapsFile, "maps", "", "maps.json (default: mapsFile from config)")
	fs.StringVar(&o.configDir, "config", "", "directory containing "+config.FileName)
	fs.StringVar(&o.level, "log", "info", "log level")
	return o, fs.Parse(args)
}

// streamURL builds ws://listen/path from the stream config.
func streamURL(sc config.StreamConfig) string {
	return "ws://" + sc.Listen + sc.Path
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts options) error {
	slogs := logging.NewSlogManager()
	slogs.Setup(nil, opts.level, nil)
	logger := slogs.Logger()

	if opts.configDir != "" {
		if err := config.Load(opts.configDir); err != nil {
			return err
		}
	} else {
		config.SetDefaults()
	}

	url := opts.url
	if url == "" {
		url = streamURL(config.GetStreamConfig())
	}
	mapsFile := opts.mapsFile
	if mapsFile == "" {
		mapsFile = viper.GetString("mapsFile")
	}
	catalog, err := maps.Load(mapsFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := stream.NewClient(url, config.GetPublishConfig().StaleAfter, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = client.Run(ctx)
	}()

	mapID := opts.mapID
	if mapID == "" {
		if mapID, err = waitForMap(ctx, client, helloTimeout); err != nil {
			stop()
			<-done
			return err
		}
	}
	m, err := catalog.Get(mapID)
	if err != nil {
		stop()
		<-done
		return err
	}
	logger.Info("Opening overlay", "map", mapID, "url", url)

	oc := config.GetOverlayConfig()
	o, err := overlay.New(overlay.Config{
		Title:    "tracker overlay: " + m.Name,
		Width:    oc.Width,
		Height:   oc.Height,
		MapImage: maps.ResolveImage(m, filepath.Dir(mapsFile)),
	}, m, client)
	if err == nil {
		err = o.Run()
	}
	stop()
	<-done
	return err
}

// waitForMap returns the map announced by the tracker's greeting.
func waitForMap(ctx context.Context, client *stream.Client, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if id := client.Hello().MapID; id != "" {
			return id, nil
		}
		select {
		case <-ctx.Done():
			return "", errors.New("tracker did not announce a map; pass -map")
		case <-ticker.C:
		}
	}
}
