// Command coin-cli issues a single JSON-RPC call against a configured
// coin's node and prints the raw JSON result, the Go analogue of
// Bitcoin Core's bitcoin-cli used directly against the node's RPC port.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/jeremyandrews/addrindex/config"
	"github.com/jeremyandrews/addrindex/rpc"
)

type cliOptions struct {
	Config   string `short:"c" long:"config" description:"path to settings JSON file" default:"settings.json"`
	CoinType string `short:"t" long:"type" description:"coin type, as configured in the settings file" required:"true"`
	Host     string `long:"host" description:"override the configured node host:port"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var opts cliOptions
	parser := flags.NewParser(&opts, flags.Default|flags.IgnoreUnknown)
	rest, err := parser.Parse()
	if err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		return err
	}
	if len(rest) == 0 {
		return errors.New("missing rpc-method argument")
	}
	method := rest[0]
	params, err := parseParams(rest[1:])
	if err != nil {
		return err
	}

	settings, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	coin, ok := settings.Coin(opts.CoinType)
	if !ok {
		return errors.Errorf("unconfigured coin type %q: must be one of %v", opts.CoinType, settings.CoinNames())
	}
	if opts.Host != "" {
		coin.Server = opts.Host
	}

	client := rpc.NewClient(coin.Server, coin.RPCAuth)

	var result interface{}
	if err := client.Call(context.Background(), method, params, &result); err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// parseParams turns "--name value" pairs trailing the method name into a
// positional JSON-RPC parameter list, coercing each value to a number or
// bool when it parses as one and leaving it as a string otherwise.
func parseParams(args []string) ([]interface{}, error) {
	var params []interface{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, errors.Errorf("unexpected argument %q: parameters must be passed as --name value", arg)
		}
		if i+1 >= len(args) {
			return nil, errors.Errorf("missing value for parameter %q", arg)
		}
		params = append(params, coerce(args[i+1]))
		i++
	}
	return params, nil
}

func coerce(value string) interface{} {
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}
