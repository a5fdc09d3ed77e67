package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jeremyandrews/addrindex/apiserver/controllers"
	"github.com/jeremyandrews/addrindex/apiserver/utils"
)

const (
	routeParamType    = "type"
	routeParamAddress = "address"
	routeParamTxID    = "txid"
	routeParamHash    = "hash"
)

type handlerFunc func(r *http.Request, reg *Registry) (data interface{}, errCount int, hErr *utils.HandlerError)

func makeHandler(reg *Registry, debugOn bool, handler handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, rc := utils.NewRequestContext(r.Context(), debugOn)
		data, errCount, hErr := handler(r.WithContext(ctx), reg)
		if hErr != nil {
			rc.Warnf("request %s failed: %s", r.URL.Path, hErr.Message)
			writeError(w, rc, hErr)
			return
		}
		if errCount > 0 {
			writeSuccessWithErrors(w, rc, data, errCount)
			return
		}
		writeSuccess(w, rc, data)
	}
}

func addRoutes(router *mux.Router, reg *Registry, debugOn bool) {
	h := func(f handlerFunc) http.HandlerFunc { return makeHandler(reg, debugOn, f) }

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "addrindex API server is running")
	})

	router.HandleFunc(fmt.Sprintf("/api/address/{%s}", routeParamType), h(missingAddressHandler)).Methods(http.MethodGet)
	router.HandleFunc(fmt.Sprintf("/api/address/{%s}/{%s}", routeParamType, routeParamAddress), h(addressDetailHandler)).Methods(http.MethodGet)
	router.HandleFunc(fmt.Sprintf("/api/address/{%s}/{%s}/unspent", routeParamType, routeParamAddress), h(unspentHandler)).Methods(http.MethodGet)
	router.HandleFunc(fmt.Sprintf("/api/tx/{%s}/{%s}", routeParamType, routeParamTxID), h(txHandler)).Methods(http.MethodGet)
	router.HandleFunc(fmt.Sprintf("/api/block/{%s}/{%s}", routeParamType, routeParamHash), h(blockHandler)).Methods(http.MethodGet)
}

func missingAddressHandler(r *http.Request, reg *Registry) (interface{}, int, *utils.HandlerError) {
	coinType := mux.Vars(r)[routeParamType]
	if hErr := controllers.ValidateCoinType(reg, coinType); hErr != nil {
		return nil, 0, hErr
	}
	return nil, 0, &utils.HandlerError{Code: http.StatusBadRequest, Message: "address not sent", Details: "address is required"}
}

func addressDetailHandler(r *http.Request, reg *Registry) (interface{}, int, *utils.HandlerError) {
	vars := mux.Vars(r)
	coinType := vars[routeParamType]
	if hErr := controllers.ValidateCoinType(reg, coinType); hErr != nil {
		return nil, 0, hErr
	}
	return controllers.GetAddressDetail(r.Context(), reg, coinType, vars[routeParamAddress])
}

func unspentHandler(r *http.Request, reg *Registry) (interface{}, int, *utils.HandlerError) {
	vars := mux.Vars(r)
	coinType := vars[routeParamType]
	if hErr := controllers.ValidateCoinType(reg, coinType); hErr != nil {
		return nil, 0, hErr
	}
	return controllers.GetUnspent(r.Context(), reg, coinType, vars[routeParamAddress])
}

func txHandler(r *http.Request, reg *Registry) (interface{}, int, *utils.HandlerError) {
	vars := mux.Vars(r)
	coinType := vars[routeParamType]
	if hErr := controllers.ValidateCoinType(reg, coinType); hErr != nil {
		return nil, 0, hErr
	}
	return controllers.GetTx(r.Context(), reg, coinType, vars[routeParamTxID])
}

func blockHandler(r *http.Request, reg *Registry) (interface{}, int, *utils.HandlerError) {
	vars := mux.Vars(r)
	coinType := vars[routeParamType]
	if hErr := controllers.ValidateCoinType(reg, coinType); hErr != nil {
		return nil, 0, hErr
	}
	return controllers.GetBlock(r.Context(), reg, coinType, vars[routeParamHash])
}
