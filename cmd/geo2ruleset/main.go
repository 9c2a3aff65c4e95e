// package main ...
package main

// import ...
import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"
	"paepcke.de/geo2ruleset"
	"paepcke.de/geo2ruleset/config"
)

// const shortcuts
const (
	_APPNAME = "geo2ruleset"

	// log file rotation
	_LOG_MAXSIZE_MB = 10
	_LOG_BACKUPS    = 3
	_LOG_MAXAGE     = 28
)

// main ..
func main() {
	os.Exit(run(os.Args[1:]))
}

// options holds the raw command line values.
type options struct {
	configFile string
	licenseKey string
	countries  string
	asnListURL string
	asnListTag string
	extraASNs  string
	asnSource  string
	extractDir string
	outputDir  string
	format     string
	logFile    string
	verbose    bool
	clean      bool
	workers    int
}

// run parses args, generates all rule-sets and returns the exit code.
func run(args []string) int {
	fs := flag.NewFlagSet(_APPNAME, flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	o := options{}
	fs.StringVar(&o.configFile, "config", "", "yaml config file [default: $GEO2RULESET_CONFIG or ./geo2ruleset.yaml]")
	fs.BoolVar(&o.verbose, "v", false, "enable verbose output")
	fs.BoolVar(&o.verbose, "verbose", false, "enable verbose output")
	fs.StringVar(&o.licenseKey, "l", "", "MaxMind license key for downloading GeoLite2 databases")
	fs.StringVar(&o.licenseKey, "license-key", "", "MaxMind license key for downloading GeoLite2 databases")
	fs.StringVar(&o.countries, "c", "", "country codes to include, comma separated [default: RU]")
	fs.StringVar(&o.countries, "countries", "", "country codes to include, comma separated [default: RU]")
	fs.StringVar(&o.asnListURL, "a", "", "url of the asn list [default: "+config.DefaultASNListURL+"]")
	fs.StringVar(&o.asnListURL, "asn-list-url", "", "url of the asn list")
	fs.StringVar(&o.asnListTag, "t", "", "asn list tag used in file names [default: "+config.DefaultASNListTag+"]")
	fs.StringVar(&o.extraASNs, "x", "", "additional asns, comma separated")
	fs.StringVar(&o.asnSource, "s", "", "asn table source: maxmind | iptoasn [default: maxmind]")
	fs.StringVar(&o.extractDir, "e", "", "directory for downloads and extracted files [default: "+config.DefaultExtractDir+"]")
	fs.StringVar(&o.extractDir, "extract-dir", "", "directory for downloads and extracted files")
	fs.StringVar(&o.outputDir, "o", "", "output directory, recreated on every run [default: "+config.DefaultOutputDir+"]")
	fs.StringVar(&o.outputDir, "output-dir", "", "output directory, recreated on every run")
	fs.BoolVar(&o.clean, "clean", false, "clean extracted files if any before running")
	fs.StringVar(&o.format, "f", "", "output format: ruleset | pf [default: ruleset]")
	fs.StringVar(&o.logFile, "log", "", "additionally log into this (rotated) file")
	fs.IntVar(&o.workers, "w", 0, "concurrent aggregations [default: number of cpus]")
	fs.Usage = func() { syntax(fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() > 0 {
		errOut("unexpected argument [" + fs.Arg(0) + "]")
		syntax(fs)
		return 2
	}

	cfg, err := config.Load(o.configFile)
	if err != nil {
		errOut(err.Error())
		return 1
	}
	o.apply(fs, cfg)

	if cfg.LogFile != "" {
		logFile := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    _LOG_MAXSIZE_MB,
			MaxBackups: _LOG_BACKUPS,
			MaxAge:     _LOG_MAXAGE,
			Compress:   true,
		}
		defer logFile.Close()
		geo2ruleset.SetLogOutput(io.MultiWriter(os.Stdout, logFile))
		defer geo2ruleset.SetLogOutput(os.Stdout)
	}
	geo2ruleset.SetVerbose(cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if _, err := geo2ruleset.Generate(ctx, cfg); err != nil {
		errOut(err.Error())
		return 1
	}
	return 0
}

// apply copies the explicitly set flags over cfg.
func (o options) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "v", "verbose":
			cfg.Verbose = o.verbose
		case "l", "license-key":
			cfg.LicenseKey = o.licenseKey
		case "c", "countries":
			cfg.Countries = config.SplitList(o.countries)
		case "a", "asn-list-url":
			cfg.ASNListURL = o.asnListURL
		case "t":
			cfg.ASNListTag = o.asnListTag
		case "x":
			cfg.ExtraASNs = append(cfg.ExtraASNs, config.SplitList(o.extraASNs)...)
		case "s":
			cfg.ASNSource = o.asnSource
		case "e", "extract-dir":
			cfg.ExtractDir = o.extractDir
		case "o", "output-dir":
			cfg.OutputDir = o.outputDir
		case "clean":
			cfg.Clean = o.clean
		case "f":
			cfg.Format = o.format
		case "log":
			cfg.LogFile = o.logFile
		case "w":
			cfg.Workers = o.workers
		}
	})
	cfg.Normalize()
}

// syntax ...
func syntax(fs *flag.FlagSet) {
	out("syntax : geo2ruleset -l <license key> [options]")
	out("example: geo2ruleset -l XXXX -c RU,BY -o ./out")
	out(_empty)
	fs.PrintDefaults()
	out(_empty)
	out("env vars")
	out("GEO2RULESET_[CONFIG|LICENSE_KEY|COUNTRIES|ASN_LIST_URL|EXTRACT_DIR|OUTPUT_DIR|LOG_FILE]")
	out("NO_[IPV4|IPV6]")
	out("HTTPS_PROXY, SSL_CERT_[FILE|DIR]")
}

//
// LITTLE GENERIC HELPER SECTION
//

const _empty = ""

// out ...
func out(msg string) {
	os.Stdout.Write([]byte(msg + "\n"))
}

// errOut ...
func errOut(msg string) {
	os.Stderr.Write([]byte("[" + _APPNAME + "] [error] " + msg + "\n"))
}
