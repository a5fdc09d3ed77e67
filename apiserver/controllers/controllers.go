// Package controllers resolves a coin type against the apiserver's
// Registry and translates Query Engine results and errors into the
// ({interface{}, errCount int, *utils.HandlerError}) shape the route
// wrapper serializes into the response envelope.
package controllers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/jeremyandrews/addrindex/apiserver/utils"
	"github.com/jeremyandrews/addrindex/query"
	"github.com/jeremyandrews/addrindex/rpc"
)

// EngineLookup resolves a coin type to its Query Engine, mirroring
// server.Registry.Engine without an import cycle back to the
// apiserver/server package (routes.go passes the registry in directly).
type EngineLookup interface {
	Engine(coinType string) (*query.Engine, bool)
	CoinTypes() []string
}

// ValidateCoinType returns a 400 HandlerError naming every configured coin
// type when coinType isn't registered.
func ValidateCoinType(reg EngineLookup, coinType string) *utils.HandlerError {
	if _, ok := reg.Engine(coinType); ok {
		return nil
	}
	types := reg.CoinTypes()
	sort.Strings(types)
	return &utils.HandlerError{
		Code:    http.StatusBadRequest,
		Message: "unrecognized coin type",
		Details: fmt.Sprintf("must be one of: [%s]", strings.Join(types, ", ")),
	}
}

// GetAddressDetail resolves the full address-detail response.
func GetAddressDetail(ctx context.Context, reg EngineLookup, coinType, address string) (interface{}, int, *utils.HandlerError) {
	if address == "" {
		return nil, 0, &utils.HandlerError{Code: http.StatusBadRequest, Message: "address not sent", Details: "address is required"}
	}
	engine, _ := reg.Engine(coinType)
	detail, err := engine.AddressDetail(ctx, address)
	if err != nil {
		return nil, 0, translateErr(err)
	}
	return detail, detail.Errors, nil
}

// GetUnspent resolves the unspent-output listing response.
func GetUnspent(ctx context.Context, reg EngineLookup, coinType, address string) (interface{}, int, *utils.HandlerError) {
	if address == "" {
		return nil, 0, &utils.HandlerError{Code: http.StatusBadRequest, Message: "address not sent", Details: "address is required"}
	}
	engine, _ := reg.Engine(coinType)
	result, err := engine.Unspent(ctx, address)
	if err != nil {
		return nil, 0, translateErr(err)
	}
	return result, 0, nil
}

// GetTx resolves a transaction lookup.
func GetTx(ctx context.Context, reg EngineLookup, coinType, txid string) (interface{}, int, *utils.HandlerError) {
	if txid == "" {
		return nil, 0, &utils.HandlerError{Code: http.StatusBadRequest, Message: "txid not sent", Details: "txid is required"}
	}
	engine, _ := reg.Engine(coinType)
	result, err := engine.Tx(ctx, txid)
	if err != nil {
		return nil, 0, translateErr(err)
	}
	return result, 0, nil
}

// GetBlock resolves a block lookup.
func GetBlock(ctx context.Context, reg EngineLookup, coinType, hash string) (interface{}, int, *utils.HandlerError) {
	if hash == "" {
		return nil, 0, &utils.HandlerError{Code: http.StatusBadRequest, Message: "hash not sent", Details: "block hash is required"}
	}
	engine, _ := reg.Engine(coinType)
	result, err := engine.Block(ctx, hash)
	if err != nil {
		return nil, 0, translateErr(err)
	}
	return result, 0, nil
}

func translateErr(err error) *utils.HandlerError {
	switch {
	case err == query.ErrNotFound:
		return &utils.HandlerError{Code: http.StatusNotFound, Message: "not found"}
	case err == query.ErrInvalidAddress:
		return &utils.HandlerError{Code: http.StatusBadRequest, Message: "address is invalid"}
	default:
		switch err.(type) {
		case *rpc.TransportError, *rpc.PermanentHTTPError, *rpc.ErrExhausted:
			return &utils.HandlerError{Code: http.StatusServiceUnavailable, Message: "node unreachable"}
		}
		return &utils.HandlerError{Code: http.StatusInternalServerError, Message: err.Error()}
	}
}
