package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"stablemint/native/collateral"
	nativecommon "stablemint/native/common"
)

type errorBody struct {
	Error string `json:"error"`
}

// errBadRequest marks malformed request payloads before they reach the
// engine.
var errBadRequest = errors.New("bad request")

// writeError translates engine failures into HTTP responses. Validation
// problems map to 400, solvency conflicts to 409, upstream token and oracle
// problems to gateway-style statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var (
		broken      *collateral.HealthFactorBrokenError
		healthy     *collateral.HealthFactorOkError
		notImproved *collateral.HealthFactorNotImprovedError
	)
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, collateral.ErrInvalidAmount),
		errors.Is(err, collateral.ErrUnsupportedAsset):
		status = http.StatusBadRequest
	case errors.As(err, &broken),
		errors.As(err, &healthy),
		errors.As(err, &notImproved),
		errors.Is(err, collateral.ErrInsufficientCollateral),
		errors.Is(err, collateral.ErrNoDebt):
		status = http.StatusConflict
	case errors.Is(err, collateral.ErrTransferFailed),
		errors.Is(err, collateral.ErrMintFailed):
		status = http.StatusBadGateway
	case errors.Is(err, collateral.ErrStalePrice),
		errors.Is(err, collateral.ErrInvalidPrice),
		errors.Is(err, nativecommon.ErrModulePaused):
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
