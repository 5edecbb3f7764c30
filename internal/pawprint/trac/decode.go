package trac

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// jsonClassKey marks typed values in Trac's JSON-RPC encoding, e.g.
// {"__jsonclass__": ["datetime", "2024-05-01T09:30:00"]}.
const jsonClassKey = "__jsonclass__"

var timeType = reflect.TypeOf(time.Time{})

var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// datetimeHook decodes Trac datetimes into time.Time. Trac sends naive UTC
// timestamps, and 0 for unset dates, which decodes to the zero value or nil.
func datetimeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	target := to
	if target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	if target != timeType {
		return data, nil
	}
	switch v := data.(type) {
	case map[string]any:
		class, ok := v[jsonClassKey].([]any)
		if !ok || len(class) != 2 || class[0] != "datetime" {
			return nil, fmt.Errorf("unsupported json class %v", v[jsonClassKey])
		}
		s, ok := class[1].(string)
		if !ok {
			return nil, fmt.Errorf("datetime value %v is not a string", class[1])
		}
		return parseDatetime(s)
	case float64:
		if v == 0 {
			return zeroTime(to), nil
		}
	case int:
		if v == 0 {
			return zeroTime(to), nil
		}
	}
	return data, nil
}

func zeroTime(to reflect.Type) any {
	if to.Kind() == reflect.Ptr {
		return nil
	}
	return time.Time{}
}

func parseDatetime(s string) (time.Time, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q", s)
}

// decode maps a Trac struct into out.
func decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: datetimeHook,
		Result:     out,
		TagName:    "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
