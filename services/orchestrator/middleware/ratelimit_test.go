// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateLimitedRouter(rl *RateLimiter, trustProxy bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(rl, trustProxy))
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func pingFrom(router *gin.Engine, remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware_AllowsWithinBurst(t *testing.T) {
	router := rateLimitedRouter(NewRateLimiter(1, 3), false)

	for i := 0; i < 3; i++ {
		w := pingFrom(router, "10.0.0.1:50000", nil)
		require.Equal(t, http.StatusOK, w.Code, "Request %d within burst should pass", i)
	}
}

func TestRateLimitMiddleware_RejectsOverBurst(t *testing.T) {
	router := rateLimitedRouter(NewRateLimiter(0.001, 2), false)

	pingFrom(router, "10.0.0.2:50000", nil)
	pingFrom(router, "10.0.0.2:50000", nil)
	w := pingFrom(router, "10.0.0.2:50000", nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	router := rateLimitedRouter(NewRateLimiter(0.001, 1), false)

	pingFrom(router, "10.0.0.3:50000", nil)
	w := pingFrom(router, "10.0.0.4:50000", nil)

	assert.Equal(t, http.StatusOK, w.Code, "A different client should have its own bucket")
}

func TestClientIP_IgnoresHeadersWithoutTrustProxy(t *testing.T) {
	req := httptest.NewRequest("GET", "/ping", nil)
	req.RemoteAddr = "10.0.0.5:40000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")

	assert.Equal(t, "10.0.0.5", clientIP(req, false))
}

func TestClientIP_TrustProxyHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "x-real-ip wins",
			headers: map[string]string{"X-Real-IP": "203.0.113.7", "X-Forwarded-For": "203.0.113.8"},
			want:    "203.0.113.7",
		},
		{
			name:    "first forwarded-for entry",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.8, 10.0.0.1"},
			want:    "203.0.113.8",
		},
		{
			name:    "garbage header falls back to remote addr",
			headers: map[string]string{"X-Real-IP": "not-an-ip"},
			want:    "10.0.0.6",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ping", nil)
			req.RemoteAddr = "10.0.0.6:40000"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req, true))
		})
	}
}
