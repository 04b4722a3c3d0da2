package dylib

import (
	"encoding/json"

	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/native"
)

// contextEnvelope is the tc_create_context response.
type contextEnvelope struct {
	Result *uint32         `json:"result"`
	Error  json.RawMessage `json:"error"`
}

func decodeContext(data []byte) (native.ContextHandle, error) {
	var env contextEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, errors.New(errors.PhaseNative, errors.KindNativeError).
			Method("tc_create_context").
			Payload(data).
			Cause(err).
			Detail("malformed response").
			Build()
	}
	if len(env.Error) > 0 && string(env.Error) != "null" {
		return 0, errors.NativeError("tc_create_context", 0, env.Error)
	}
	if env.Result == nil {
		return 0, errors.New(errors.PhaseNative, errors.KindNativeError).
			Method("tc_create_context").
			Payload(data).
			Detail("response has neither result nor error").
			Build()
	}
	return native.ContextHandle(*env.Result), nil
}
