package httpx

import "encoding/json"

// Envelope is the body of every response the proxy writes. A success carries
// either a token or a data member, a failure carries a reason.
type Envelope struct {
	Success bool    `json:"success"`
	Token   string  `json:"token,omitempty"`
	Data    any     `json:"data,omitempty"`
	Reason  *Reason `json:"reason,omitempty"`
}

// Reason describes a failure to the client.
type Reason struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// MarshalJSON emits exactly one of token, data or reason. Data is always
// present on a data envelope, even when empty.
func (e Envelope) MarshalJSON() ([]byte, error) {
	m := map[string]any{"success": e.Success}
	switch {
	case !e.Success:
		m["reason"] = e.Reason
	case e.Token != "":
		m["token"] = e.Token
	default:
		m["data"] = e.Data
	}
	return json.Marshal(m)
}

// TokenEnvelope is the success body of a login.
func TokenEnvelope(token string) *Envelope {
	return &Envelope{Success: true, Token: token}
}

// DataEnvelope is the success body of a proxied operation.
func DataEnvelope(data any) *Envelope {
	return &Envelope{Success: true, Data: data}
}

// FailureEnvelope is the body of every failed request.
func FailureEnvelope(code int, msg string) *Envelope {
	return &Envelope{
		Success: false,
		Reason: &Reason{
			ErrCode: code,
			ErrMsg:  msg,
		},
	}
}
