package http

import (
	"encoding/json"
	"net/http"

	"github.com/influxdata/taskstats/kit/errors"
)

// ErrorCodeHeader carries the error code of a failed request.
const ErrorCodeHeader = "X-Taskstats-Error-Code"

// WriteError encodes err as {"code", "message"} with the status code
// matching its error code, and sets ErrorCodeHeader on the response.
func WriteError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	code := errors.ErrorCode(err)
	httpCode, ok := statusCodes[code]
	if !ok {
		httpCode = http.StatusBadRequest
	}
	w.Header().Set(ErrorCodeHeader, code)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(httpCode)

	e := struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}{
		Code:    code,
		Message: errors.ErrorMessage(err),
	}
	b, _ := json.Marshal(e)
	_, _ = w.Write(b)
}

// WriteJSON encodes v as the JSON body of a response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		WriteError(w, &errors.Error{Code: errors.EInternal, Msg: "encoding response", Err: err})
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

var statusCodes = map[string]int{
	errors.EInternal:  http.StatusInternalServerError,
	errors.EInvalid:   http.StatusBadRequest,
	errors.EMalformed: http.StatusBadRequest,
	errors.EConflict:  http.StatusUnprocessableEntity,
	errors.ENotFound:  http.StatusNotFound,
}
