// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHTTPRecoveryRendersFailureEnvelope(t *testing.T) {
	r := gin.New()
	r.Use(HTTPLogger(), HTTPRecovery())
	r.GET("/boom", func(c *gin.Context) {
		panic("model table exploded")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"code":-1,"msg":"internal error: model table exploded"}`, rec.Body.String())
}

func TestHTTPLoggerPassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(HTTPLogger(), HTTPRecovery())
	r.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, "fine")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fine", rec.Body.String())
}
