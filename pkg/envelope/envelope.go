// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package envelope defines the uniform {code, msg, data} wrapper returned by
// every endpoint of the proxy.
package envelope

import "fmt"

const (
	// CodeSuccess marks an envelope whose data is the upstream payload.
	CodeSuccess = 0
	// CodeFailure marks an envelope carrying only a diagnostic message.
	CodeFailure = -1

	// MsgSuccess is the fixed message of every successful envelope.
	MsgSuccess = "success"
)

// Envelope is the response body written for every proxied call.
type Envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	// Data is nil on failure so the field is omitted, while an empty
	// upstream body still yields "data": "".
	Data *string `json:"data,omitempty"`
}

// Success wraps the raw upstream body.
func Success(body []byte) Envelope {
	data := string(body)
	return Envelope{
		Code: CodeSuccess,
		Msg:  MsgSuccess,
		Data: &data,
	}
}

// Failure builds an envelope whose message is prefix followed by the error
// description.
func Failure(prefix string, err error) Envelope {
	msg := prefix
	if err != nil {
		msg = fmt.Sprintf("%s: %v", prefix, err)
	}
	return Envelope{
		Code: CodeFailure,
		Msg:  msg,
	}
}
