package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/darianmavgo/geoio/config"
	"github.com/darianmavgo/geoio/converters"
	"github.com/darianmavgo/geoio/converters/all"
	"github.com/darianmavgo/geoio/converters/common"
)

type options struct {
	DB     string `short:"d" long:"db" env:"GEOIO_DB" default:"geoio.db" description:"sqlite database to import into or export from"`
	Config string `short:"c" long:"config" env:"GEOIO_CONFIG" description:"HCL configuration file"`

	Import string `short:"i" long:"import" description:"file to import"`
	Table  string `short:"t" long:"table" description:"target table, defaults to the file name"`
	Append bool   `long:"append" description:"insert into an existing table"`
	Delete bool   `long:"delete" description:"drop an existing table, or overwrite an existing file on export"`

	Export string `short:"e" long:"export" description:"table to export"`
	File   string `short:"f" long:"file" description:"export destination"`

	Encoding  string `long:"encoding" description:"charset of the file, e.g. UTF-8, cp1252, MS949"`
	Separator string `long:"separator" description:"csv separator: a character, tab or auto"`
	BatchSize int    `long:"batch" description:"rows per insert batch"`
	List      bool   `short:"l" long:"list" description:"list the file drivers"`
	Dbg       bool   `long:"dbg" description:"debug mode"`
}

var revision = "latest"

var exitFunc = os.Exit

func main() {
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		exitFunc(1) // can be redefined in tests
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		setupLog(opts.Dbg)
		log.Printf("[ERROR] %v", err)
		exitFunc(1)
	}
	setupLog(opts.Dbg || cfg.Verbose)
	log.Printf("[DEBUG] geoio %s", revision)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, cfg, os.Stdout); err != nil {
		log.Printf("[ERROR] %v", err)
		stop()
		exitFunc(1)
	}
}

// loadConfig reads the configuration file if any and applies the command
// line overrides.
func loadConfig(opts options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			return nil, err
		}
	}
	if opts.BatchSize > 0 {
		cfg.BatchSize = opts.BatchSize
	}
	if opts.Encoding != "" {
		cfg.Encoding = opts.Encoding
	}
	if opts.Separator != "" {
		cfg.CSVSeparator = opts.Separator
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, opts options, cfg *config.Config, out io.Writer) error {
	registry := all.NewRegistry()

	switch {
	case opts.List:
		return listDrivers(registry, out)
	case opts.Import != "" && opts.Export != "":
		return errors.New("--import and --export are mutually exclusive")
	case opts.Import == "" && opts.Export == "":
		return errors.New("nothing to do, use --import, --export or --list")
	case opts.Export != "" && opts.File == "":
		return errors.New("--export needs --file")
	}

	engine, err := converters.OpenSQLite(opts.DB)
	if err != nil {
		return err
	}
	defer engine.Close()

	timeout, err := cfg.Timeout()
	if err != nil {
		return err
	}
	watchdog := common.NewWatchdogProgress(timeout, common.ContextProgress(ctx))
	defer watchdog.Stop()

	if opts.Import != "" {
		importOpts, err := cfg.ImportOptions()
		if err != nil {
			return err
		}
		importOpts.Append = opts.Append
		importOpts.DeleteExisting = opts.Delete
		table := opts.Table
		if table == "" {
			table = tableName(opts.Import)
		}
		progress := common.LogProgress("import "+filepath.Base(opts.Import), watchdog)
		if err := registry.ImportFile(ctx, engine, opts.Import, table, importOpts, progress); err != nil {
			return fmt.Errorf("failed to import %s: %w", opts.Import, err)
		}
		fmt.Fprintf(out, "imported %s into %s\n", opts.Import, opts.DB)
		return nil
	}

	exportOpts, err := cfg.ExportOptions()
	if err != nil {
		return err
	}
	exportOpts.DeleteExisting = opts.Delete
	progress := common.LogProgress("export "+opts.Export, watchdog)
	if err := registry.ExportTable(ctx, engine, opts.Export, opts.File, exportOpts, progress); err != nil {
		return fmt.Errorf("failed to export %s: %w", opts.Export, err)
	}
	fmt.Fprintf(out, "exported %s to %s\n", opts.Export, opts.File)
	return nil
}

// tableName derives a table name from the file name without extensions.
func tableName(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return common.GenTableNames([]string{base})[0]
}

func listDrivers(registry *converters.Registry, out io.Writer) error {
	name := color.New(color.FgGreen).SprintFunc()
	for _, n := range registry.Drivers() {
		d, _ := registry.Get(n)
		desc := d.Descriptor()
		var dirs []string
		if desc.CanImport() {
			dirs = append(dirs, "import")
		}
		if desc.CanExport() {
			dirs = append(dirs, "export")
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\t%s\n\timport: %s\n\texport: %s\n", name(n), strings.Join(dirs, "/"),
			desc.Description(""), strings.Join(desc.ImportFormats(), " "), strings.Join(desc.ExportFormats(), " ")); err != nil {
			return err
		}
	}
	return nil
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
