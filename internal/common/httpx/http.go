// Package httpx writes the proxy's JSON envelopes and adapts request handlers
// that return (*Response, error) to net/http. Every response body, success or
// failure, is an envelope with a "success" member.
package httpx

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/csfam/pawprint/internal/common/apperrors"
)

// Response represents a successful handler result. Body is written as-is when
// it is already an envelope, and wrapped as {"success":true,"data":...}
// otherwise.
type Response struct {
	StatusCode int
	Body       any
}

// RequestHandler defines a function type for handling HTTP requests.
type RequestHandler func(r *http.Request) (*Response, error)

// WrapHttpRsp adapts a RequestHandler. Errors are written as failure
// envelopes: *Error values as given, apperrors with their own code and
// status, anything else as an unknown application error.
func WrapHttpRsp(handler RequestHandler) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rsp, err := handler(r)
		if err != nil {
			if httperror, ok := err.(*Error); ok {
				httperror.Send(w)
			} else if appErr, ok := apperrors.As(err); ok {
				FromAppError(appErr, true).Send(w)
			} else {
				ErrApplicationError(err.Error()).Send(w)
			}
			return
		}
		if rsp == nil {
			ErrApplicationError().Send(w)
			return
		}
		statusCode := rsp.StatusCode
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		body, ok := rsp.Body.(*Envelope)
		if !ok {
			body = DataEnvelope(rsp.Body)
		}
		SendJsonRsp(r.Context(), w, statusCode, body)
	})
}

// Values holds the flat string parameters of a request.
type Values map[string]string

// Get returns the named value, or "" when absent.
func (v Values) Get(name string) string {
	return v[name]
}

// GetRequestParams collects request parameters from the query string and the
// body. Form-encoded and JSON object bodies are accepted; in a JSON body only
// string and number members are kept. Body values win over query values.
func GetRequestParams(r *http.Request) (Values, error) {
	values := make(Values)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			values[k] = v[0]
		}
	}
	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return values, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			log.Ctx(r.Context()).Debug().Err(err).Msg("unable to parse json body")
			return nil, ErrUnableToParseReqData()
		}
		for k, v := range body {
			switch val := v.(type) {
			case string:
				values[k] = val
			case json.Number:
				values[k] = val.String()
			}
		}
		return values, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, ErrUnableToParseReqData()
	}
	for k, v := range r.PostForm {
		if len(v) > 0 {
			values[k] = v[0]
		}
	}
	return values, nil
}
