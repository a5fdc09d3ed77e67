// Command apiserver serves the address/tx/block query HTTP API across
// every coin configured in the settings file, mirroring the
// apiserver/main.go daemon-lifecycle idiom: parse flags, open connections,
// start the HTTP server, wait on the interrupt channel, shut down cleanly.
package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	"github.com/pkg/errors"

	"github.com/jeremyandrews/addrindex/apiserver/server"
	"github.com/jeremyandrews/addrindex/config"
	"github.com/jeremyandrews/addrindex/logger"
	"github.com/jeremyandrews/addrindex/query"
	"github.com/jeremyandrews/addrindex/rpc"
	"github.com/jeremyandrews/addrindex/signal"
	"github.com/jeremyandrews/addrindex/store"
	"github.com/jeremyandrews/addrindex/util/panics"
)

var log = logger.Get(logger.SubsystemTags.HTTP)

type cliOptions struct {
	Config string `short:"c" long:"config" description:"path to settings JSON file" default:"settings.json"`
	Listen string `long:"listen" description:"HTTP listen address" default:":8080"`
	Debug  bool   `long:"debug" description:"include per-request debug trace in responses"`
}

func main() {
	defer panics.HandlePanic(log)

	var opts cliOptions
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	settings, err := config.Load(opts.Config)
	if err != nil {
		panic(errors.Wrap(err, "loading settings"))
	}

	reg, closeAll, err := buildRegistry(settings)
	if err != nil {
		panic(errors.Wrap(err, "connecting coins"))
	}
	defer closeAll()

	shutdown := server.Start(opts.Listen, reg, opts.Debug)
	defer shutdown()

	interrupt := signal.InterruptListener()
	<-interrupt
	log.Infof("interrupt received, shutting down")
}

// buildRegistry opens one store connection and one node client per
// configured coin, wiring both into a Query Engine under the coin's type
// name. The returned closer releases every store connection.
func buildRegistry(settings *config.Settings) (*server.Registry, func(), error) {
	reg := server.NewRegistry()
	var stores []*store.Store

	closeAll := func() {
		for _, s := range stores {
			if err := s.Close(); err != nil {
				log.Errorf("error closing store: %s", err)
			}
		}
	}

	for coinType, coin := range settings.Coins {
		s, err := store.Connect(settings.DatabaseFor(coinType))
		if err != nil {
			closeAll()
			return nil, nil, errors.Wrapf(err, "connecting store for %s", coinType)
		}
		stores = append(stores, s)

		if err := s.Migrate(); err != nil {
			closeAll()
			return nil, nil, errors.Wrapf(err, "migrating tables for %s", coinType)
		}

		client := rpc.NewClient(coin.Server, coin.RPCAuth)
		reg.Add(coinType, coin.Symbol, query.New(s, client))
	}

	if len(reg.CoinTypes()) == 0 {
		closeAll()
		return nil, nil, errors.New("no coins configured")
	}

	return reg, closeAll, nil
}
