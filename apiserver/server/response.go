package server

import (
	"encoding/json"
	"net/http"

	"github.com/jeremyandrews/addrindex/apiserver/utils"
)

// envelope is the {status, code, data, error?, debug?, errors?} shape every
// API response wraps, per §6.
type envelope struct {
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details string      `json:"details,omitempty"`
	Debug   []string    `json:"debug,omitempty"`
	Errors  int         `json:"errors,omitempty"`
}

func writeSuccess(w http.ResponseWriter, rc *utils.RequestContext, data interface{}) {
	writeEnvelope(w, http.StatusOK, envelope{
		Status: http.StatusText(http.StatusOK),
		Code:   http.StatusOK,
		Data:   data,
		Debug:  debugMessages(rc),
	})
}

// writeSuccessWithErrors is used where the query engine reports a nonzero
// invariant-violation count alongside an otherwise-successful response.
func writeSuccessWithErrors(w http.ResponseWriter, rc *utils.RequestContext, data interface{}, errCount int) {
	writeEnvelope(w, http.StatusOK, envelope{
		Status: http.StatusText(http.StatusOK),
		Code:   http.StatusOK,
		Data:   data,
		Errors: errCount,
		Debug:  debugMessages(rc),
	})
}

func writeError(w http.ResponseWriter, rc *utils.RequestContext, hErr *utils.HandlerError) {
	writeEnvelope(w, hErr.Code, envelope{
		Status:  http.StatusText(hErr.Code),
		Code:    hErr.Code,
		Error:   hErr.Message,
		Details: hErr.Details,
		Debug:   debugMessages(rc),
	})
}

func debugMessages(rc *utils.RequestContext) []string {
	if rc == nil || len(rc.Messages) == 0 {
		return nil
	}
	return rc.Messages
}

func writeEnvelope(w http.ResponseWriter, statusCode int, e envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(e); err != nil {
		panic(err)
	}
}
