// Command extract drives the indexing pipeline for one coin: extract, sort,
// then the six groupers, in the strict order the Phase Orchestrator
// enforces. It is the Go analogue of extract.py's command-line entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	flags "github.com/jessevdk/go-flags"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jeremyandrews/addrindex/config"
	"github.com/jeremyandrews/addrindex/group"
	"github.com/jeremyandrews/addrindex/logger"
	"github.com/jeremyandrews/addrindex/meta"
	"github.com/jeremyandrews/addrindex/notify"
	"github.com/jeremyandrews/addrindex/phase"
	"github.com/jeremyandrews/addrindex/rpc"
	"github.com/jeremyandrews/addrindex/sortutil"
	"github.com/jeremyandrews/addrindex/store"
	"github.com/jeremyandrews/addrindex/util/panics"
)

var log = logger.Get(logger.SubsystemTags.EXTR)

type cliOptions struct {
	Config        string `short:"c" long:"config" description:"path to settings JSON file" default:"settings.json"`
	CoinType      string `short:"t" long:"type" description:"coin type, as configured in the settings file" required:"true"`
	Phase         string `short:"p" long:"phase" description:"re-run the pipeline starting at this phase"`
	Limit         int64  `short:"l" long:"limit" description:"maximum number of blocks to extract this run"`
	Working       string `long:"working" description:"working directory for staging files and metadata" default:"."`
	Regenerate    bool   `short:"r" long:"regenerate" description:"clear metadata and truncate all tables before running"`
	Initial       bool   `long:"initial" description:"run in initial bulk-load mode"`
	Cleanup       bool   `long:"cleanup" description:"remove staging files on successful completion"`
	Single        bool   `long:"single" description:"run a single phase then exit"`
	CompressLevel int    `long:"compress-level" description:"gzip compression level for staging files (0-9)" default:"6"`
	Host          string `long:"host" description:"override the configured node host:port"`
	Verbose       bool   `short:"v" long:"verbose" description:"enable debug logging"`
}

func main() {
	defer panics.HandlePanic(log)

	opts, settings, coin, err := parseArgs()
	if err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if opts.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if err := run(opts, settings, coin); err != nil {
		log.Errorf("%+v", err)
		os.Exit(1)
	}
}

func parseArgs() (*cliOptions, *config.Settings, config.CoinConfig, error) {
	var opts cliOptions
	if _, err := flags.Parse(&opts); err != nil {
		return nil, nil, config.CoinConfig{}, err
	}

	if opts.Phase != "" && opts.Regenerate {
		return nil, nil, config.CoinConfig{}, errors.New("--phase and --regenerate are mutually exclusive")
	}
	if opts.Phase != "" && opts.Cleanup {
		return nil, nil, config.CoinConfig{}, errors.New("--phase and --cleanup are mutually exclusive")
	}
	if opts.Regenerate && opts.Cleanup {
		return nil, nil, config.CoinConfig{}, errors.New("--regenerate and --cleanup are mutually exclusive")
	}

	settings, err := config.Load(opts.Config)
	if err != nil {
		return nil, nil, config.CoinConfig{}, err
	}

	coin, ok := settings.Coin(opts.CoinType)
	if !ok {
		return nil, nil, config.CoinConfig{}, errors.Errorf("unconfigured coin type %q: must be one of %v", opts.CoinType, settings.CoinNames())
	}
	if opts.Host != "" {
		coin.Server = opts.Host
	}

	return &opts, settings, coin, nil
}

func run(opts *cliOptions, settings *config.Settings, coin config.CoinConfig) error {
	ctx := context.Background()

	if settings.ExtractLog.File != "" {
		if err := logger.InitLogRotators(settings.ExtractLog.File, settings.ExtractLog.File+".err"); err != nil {
			return errors.Wrap(err, "initializing log rotation")
		}
	}
	if settings.ExtractLog.SnapshotMemory && settings.ExtractLog.SnapshotTimerS > 0 {
		stop := make(chan struct{})
		defer close(stop)
		go logMemorySnapshots(time.Duration(settings.ExtractLog.SnapshotTimerS)*time.Second, stop)
	}

	dbCfg := settings.DatabaseFor(opts.CoinType)
	s, err := store.Connect(dbCfg)
	if err != nil {
		return errors.Wrap(err, "connecting to store")
	}
	defer s.Close()

	if err := s.Migrate(); err != nil {
		return errors.Wrap(err, "migrating tables")
	}

	metaPath := fmt.Sprintf("%s/metadata.json", opts.Working)
	m, err := meta.Load(metaPath)
	if err != nil {
		return errors.Wrap(err, "loading metadata")
	}

	if opts.Regenerate {
		m.Clear()
		for _, table := range store.Tables() {
			if err := s.Truncate(table); err != nil {
				return errors.Wrapf(err, "truncating %s", table)
			}
		}
	}
	if opts.Phase != "" {
		m.ClearFrom(opts.Phase)
	}

	client := rpc.NewClient(coin.Server, coin.RPCAuth)

	mode := group.ModeUpsert
	if opts.Initial {
		mode = group.ModeBulk
	}

	startHash := coin.GenesisHash

	orch := &phase.Orchestrator{
		Store:    s,
		Client:   client,
		Notifier: notify.New(settings.NewBlockNotification),
		Meta:     m,
		MetaPath: metaPath,
	}

	runErr := orch.Run(ctx, phase.Options{
		WorkingDir:    opts.Working,
		CompressLevel: opts.CompressLevel,
		Limit:         opts.Limit,
		StartHash:     startHash,
		Mode:          mode,
		Single:        opts.Single,
		SortConfig:    sortutil.Config{CommandTemplate: settings.SystemSortCommand},
		SkipCap:       group.DefaultSkipCap,
		Symbol:        coin.Symbol,
	})
	if runErr != nil {
		return runErr
	}

	if opts.Cleanup {
		cleanupStaging(opts.Working)
	}

	return nil
}

// logMemorySnapshots periodically logs heap usage, for operators tailing
// the extract log on a long-running initial bulk load.
func logMemorySnapshots(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			log.Debugf("memory snapshot: alloc=%dMB sys=%dMB numGC=%d",
				stats.Alloc/1024/1024, stats.Sys/1024/1024, stats.NumGC)
		}
	}
}

func cleanupStaging(workingDir string) {
	for _, table := range []string{"vout", "address", "vin_spent", "vin_txid", "coinbase", "block"} {
		for _, suffix := range []string{".csv.gz", "_sorted.csv.gz", "_bulk.csv"} {
			path := fmt.Sprintf("%s/%s%s", workingDir, table, suffix)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				log.Warnf("cleanup: could not remove %s: %s", path, err)
			}
		}
	}
}
