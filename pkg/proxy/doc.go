// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package proxy exposes the model-serving process over HTTP. It forwards the
// model listing and prediction calls to the configured upstream and wraps
// every outcome in the {code, msg, data} envelope, mapping any failure to a
// 500 response.
package proxy
