// Command trace is a developer tool: given an address, it prints the raw
// address document and the address's balance, then resolves through the
// Query Engine up to 100 of the transactions listed in that document (the
// ones that paid the address), for inspecting what the indexer actually
// produced. Transactions that spent the address's outputs are not resolved
// separately, and no unspent-output listing is printed. It is the
// replacement for the stale trace.py — see
// SPEC_FULL.md's note that trace.py's fields don't match the extractor's
// actual document shape and must not be treated as schema.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
	_ "github.com/jinzhu/gorm/dialects/mysql"

	"github.com/jeremyandrews/addrindex/config"
	"github.com/jeremyandrews/addrindex/query"
	"github.com/jeremyandrews/addrindex/rpc"
	"github.com/jeremyandrews/addrindex/store"
)

const maxResolvedTx = 100

type cliOptions struct {
	Config   string `short:"c" long:"config" description:"path to settings JSON file" default:"settings.json"`
	CoinType string `short:"t" long:"type" description:"coin type, as configured in the settings file" required:"true"`
	Address  string `short:"a" long:"address" description:"address to trace" required:"true"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var opts cliOptions
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		return err
	}

	settings, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	coin, ok := settings.Coin(opts.CoinType)
	if !ok {
		return fmt.Errorf("unconfigured coin type %q: must be one of %v", opts.CoinType, settings.CoinNames())
	}

	s, err := store.Connect(settings.DatabaseFor(opts.CoinType))
	if err != nil {
		return err
	}
	defer s.Close()

	client := rpc.NewClient(coin.Server, coin.RPCAuth)
	engine := query.New(s, client)

	ctx := context.Background()

	var doc store.AddressDoc
	found, err := s.Select(store.TableAddress, opts.Address, &doc)
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("address %s has no record\n", opts.Address)
		return nil
	}
	printJSON("address document", doc)

	detail, err := engine.AddressDetail(ctx, opts.Address)
	if err != nil {
		return err
	}
	fmt.Printf("balance: %v\n", detail.Balance)

	txids := make([]string, 0, len(doc.Transactions))
	for txid := range doc.Transactions {
		txids = append(txids, txid)
	}
	if len(txids) > maxResolvedTx {
		fmt.Printf("address carries %d transactions; resolving only the first %d\n", len(txids), maxResolvedTx)
		txids = txids[:maxResolvedTx]
	}

	for _, txid := range txids {
		tx, err := engine.Tx(ctx, txid)
		if err != nil {
			fmt.Printf("tx %s: %s\n", txid, err)
			continue
		}
		printJSON(fmt.Sprintf("tx %s", txid), tx)
	}

	return nil
}

func printJSON(label string, v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%s: <error marshaling: %s>\n", label, err)
		return
	}
	fmt.Printf("%s:\n%s\n", label, out)
}
