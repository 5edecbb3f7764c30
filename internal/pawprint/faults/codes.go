package faults

import (
	"fmt"
	"reflect"
)

// Codes assigns the client-facing number of every kind. Clients key their
// messages off these numbers, so they only change through configuration.
type Codes struct {
	MissingParameter         int `toml:"missing_parameter"`
	SessionExpired           int `toml:"session_expired"`
	ServerUnreachable        int `toml:"server_unreachable"`
	AuthenticationFailed     int `toml:"authentication_failed"`
	RPCUnsupported           int `toml:"rpc_unsupported"`
	InvalidProtocol          int `toml:"invalid_protocol"`
	MethodNotFound           int `toml:"method_not_found"`
	InvalidMethodParams      int `toml:"invalid_method_params"`
	InternalServerError      int `toml:"internal_server_error"`
	MalformedRequest         int `toml:"malformed_request"`
	UnsupportedEncoding      int `toml:"unsupported_encoding"`
	InvalidEncodingCharacter int `toml:"invalid_encoding_character"`
	RPCFault                 int `toml:"rpc_fault"`
	Unknown                  int `toml:"unknown"`
	LoginUnknown             int `toml:"login_unknown"`
}

// DefaultCodes returns the historical numbering.
func DefaultCodes() Codes {
	return Codes{
		MissingParameter:         307,
		SessionExpired:           317,
		ServerUnreachable:        327,
		AuthenticationFailed:     337,
		RPCUnsupported:           347,
		InvalidProtocol:          356,
		MethodNotFound:           357,
		InvalidMethodParams:      358,
		InternalServerError:      359,
		MalformedRequest:         367,
		UnsupportedEncoding:      368,
		InvalidEncodingCharacter: 369,
		RPCFault:                 998,
		Unknown:                  999,
		LoginUnknown:             0,
	}
}

// Validate rejects negative codes and any two kinds sharing a code.
func (c Codes) Validate() error {
	seen := make(map[int]string)
	v := reflect.ValueOf(c)
	for i := 0; i < v.NumField(); i++ {
		name := v.Type().Field(i).Tag.Get("toml")
		code := int(v.Field(i).Int())
		if code < 0 {
			return fmt.Errorf("error code %s must not be negative", name)
		}
		if other, ok := seen[code]; ok {
			return fmt.Errorf("error codes %s and %s share the value %d", other, name, code)
		}
		seen[code] = name
	}
	return nil
}
