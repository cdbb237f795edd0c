package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/viper"
	"github.com/tarkov-map/tracker/internal/api"
	"github.com/tarkov-map/tracker/internal/config"
	"github.com/tarkov-map/tracker/internal/database"
	"github.com/tarkov-map/tracker/internal/maps"
	"github.com/tarkov-map/tracker/internal/report"
	gormstorage "github.com/tarkov-map/tracker/internal/storage/gorm"
	"github.com/tarkov-map/tracker/internal/storage/memory"
	"gorm.io/gorm"
)

const usage = `usage:
  tracker [-config dir] [-map id] [-overlay]
  tracker report [-o out.png] [-maps maps.json] <session.json.gz>
  tracker sessions [-db file.db|dir]
  tracker export [-db file.db|dir] [-o dir] <session-id>...
  tracker upload [-config dir] <session.json.gz>...
  tracker maps [-maps maps.json]
  tracker version`

// runCLI handles the offline subcommands.
func runCLI(cmd string, args []string) int {
	var err error
	switch strings.ToLower(cmd) {
	case "report":
		err = cmdReport(args, os.Stdout)
	case "sessions":
		err = cmdSessions(args, os.Stdout)
	case "export":
		err = cmdExport(args, os.Stdout)
	case "upload":
		err = cmdUpload(args, os.Stdout)
	case "maps":
		err = cmdMaps(args, os.Stdout)
	case "version":
		fmt.Printf("%s %s (%s)\n", AppName, Version, BuildDate)
	case "help":
		fmt.Println(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", cmd, usage)
		return 2
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// cmdReport plots a session file next to it, or to -o.
func cmdReport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	output := fs.String("o", "", "output image (.png, .svg or .pdf)")
	mapsFile := fs.String("maps", "", "maps.json used to draw spawns and extracts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("report needs one session file")
	}
	in := fs.Arg(0)

	exp, err := memory.ReadExport(in)
	if err != nil {
		return err
	}

	opts := report.DefaultOptions()
	if *mapsFile != "" {
		catalog, err := maps.Load(*mapsFile)
		if err != nil {
			return err
		}
		if m, err := catalog.Get(exp.Session.MapID); err == nil {
			opts.Annotations = maps.Annotations(m)
		}
	}

	path := *output
	if path == "" {
		path = reportPath(in)
	}
	if err := report.Render(exp, path, opts); err != nil {
		return err
	}
	fmt.Fprintln(out, report.Describe(exp))
	fmt.Fprintln(out, "wrote", path)
	return nil
}

// reportPath maps "x.json.gz" and "x.json" to "x.png".
func reportPath(in string) string {
	base := strings.TrimSuffix(strings.TrimSuffix(in, ".gz"), ".json")
	return base + ".png"
}

// openDB opens a sqlite dump, or the newest dump in a directory, when path
// is set, and postgres from config otherwise.
func openDB(path string) (*database.DB, error) {
	if path != "" {
		dump, err := database.ResolveDump(path)
		if err != nil {
			return nil, err
		}
		return database.OpenDump(dump)
	}
	config.SetDefaults()
	return database.OpenPostgres(config.GetDBConfig().DSN(), 1)
}

func dbFlags(name string) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	dbPath := fs.String("db", "", "SQLite dump or dump directory to read (default: postgres from config)")
	configDir := fs.String("config", "", "directory containing "+config.FileName)
	return fs, dbPath, configDir
}

func loadConfigIfSet(dir string) error {
	if dir == "" {
		return nil
	}
	return config.Load(dir)
}

func cmdSessions(args []string, out io.Writer) error {
	fs, dbPath, configDir := dbFlags("sessions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := loadConfigIfSet(*configDir); err != nil {
		return err
	}
	m, err := openDB(*dbPath)
	if err != nil {
		return err
	}
	defer m.Close()
	return listSessions(m.DB, out)
}

func listSessions(db *gorm.DB, out io.Writer) error {
	sessions, err := gormstorage.ListSessions(db)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMAP\tSTARTED\tDURATION")
	for _, s := range sessions {
		dur := "open"
		if !s.EndedAt.IsZero() {
			dur = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.MapID, s.StartedAt.Local().Format(time.DateTime), dur)
	}
	return tw.Flush()
}

// cmdExport writes recorded sessions as session files readable by report.
func cmdExport(args []string, out io.Writer) error {
	fs, dbPath, configDir := dbFlags("export")
	outDir := fs.String("o", ".", "output directory")
	plain := fs.Bool("plain", false, "write uncompressed JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("no session IDs provided")
	}
	if err := loadConfigIfSet(*configDir); err != nil {
		return err
	}
	m, err := openDB(*dbPath)
	if err != nil {
		return err
	}
	defer m.Close()
	return exportSessions(m.DB, fs.Args(), *outDir, !*plain, out)
}

func exportSessions(db *gorm.DB, ids []string, outDir string, compress bool, out io.Writer) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	for _, id := range ids {
		start := time.Now()
		exp, err := gormstorage.LoadExport(db, id)
		if err != nil {
			return err
		}
		path := filepath.Join(outDir, memory.FileName(exp.Session, compress))
		if err := memory.WriteExport(path, *exp, compress); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d positions -> %s (%s)\n", id, len(exp.Positions), path, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// cmdUpload sends session files to the configured web viewer.
func cmdUpload(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	configDir := fs.String("config", "", "directory containing "+config.FileName)
	url := fs.String("url", "", "viewer URL (default: upload.url from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("no session files provided")
	}
	if err := loadConfigIfSet(*configDir); err != nil {
		return err
	}
	config.SetDefaults()
	uc := config.GetUploadConfig()
	if *url != "" {
		uc.URL = *url
	}
	return uploadFiles(api.New(uc.URL, uc.APIKey), fs.Args(), out)
}

func uploadFiles(client *api.Client, paths []string, out io.Writer) error {
	if err := client.Healthcheck(); err != nil {
		return err
	}
	for _, path := range paths {
		exp, err := memory.ReadExport(path)
		if err != nil {
			return err
		}
		if err := client.Upload(path, api.MetadataFor(exp.Session, exp.Summary.Duration)); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintln(out, "uploaded", path)
	}
	return nil
}

func cmdMaps(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("maps", flag.ContinueOnError)
	mapsFile := fs.String("maps", "", "maps.json (default: mapsFile from config)")
	configDir := fs.String("config", "", "directory containing "+config.FileName)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := *mapsFile
	if path == "" {
		if err := loadConfigIfSet(*configDir); err != nil {
			return err
		}
		config.SetDefaults()
		path = viper.GetString("mapsFile")
	}
	catalog, err := maps.Load(path)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCALIBRATION\tSPAWNS\tEXTRACTS")
	for _, id := range catalog.IDs() {
		m, _ := catalog.Get(id)
		cal := "none"
		if _, _, err := catalog.ReferencePairs(id); err == nil {
			cal = fmt.Sprintf("%d points", len(m.Calibration))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", id, m.Name, cal, len(m.Spawns), len(m.Extracts))
	}
	return tw.Flush()
}
