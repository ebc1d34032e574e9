// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package envelope

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessEncodesRawBodyAsString(t *testing.T) {
	env := Success([]byte(`["modelA","modelB"]`))

	out, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":0,"msg":"success","data":"[\"modelA\",\"modelB\"]"}`, string(out))
	assert.Equal(t, CodeSuccess, env.Code)
}

func TestSuccessKeepsEmptyData(t *testing.T) {
	out, err := json.Marshal(Success(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":0,"msg":"success","data":""}`, string(out))
}

func TestFailureOmitsData(t *testing.T) {
	env := Failure("prediction failed", errors.New("connection refused"))

	out, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":-1,"msg":"prediction failed: connection refused"}`, string(out))
	assert.Equal(t, CodeFailure, env.Code)
}

func TestFailureWithoutCause(t *testing.T) {
	env := Failure("failed to retrieve model list", nil)
	assert.Equal(t, "failed to retrieve model list", env.Msg)
	assert.Nil(t, env.Data)
}
