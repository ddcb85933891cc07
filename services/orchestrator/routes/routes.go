// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianAnswers/pkg/extensions"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/approaches"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/handlers"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/middleware"
)

// RouteConfig carries the cross-cutting settings for route registration.
type RouteConfig struct {
	// Limiter is the shared per-IP rate limiter for the /v1 group.
	// Nil disables rate limiting (tests, trusted internal deployments).
	Limiter *middleware.RateLimiter

	// TrustProxyHeaders enables X-Real-IP / X-Forwarded-For client
	// identification. Only set behind a reverse proxy that strips
	// client-supplied values.
	TrustProxyHeaders bool
}

// SetupRoutes registers all HTTP routes on the given router.
//
// The /v1 group runs behind the rate limiter and auth middleware so that
// every pipeline call is budgeted and sees the caller's identity; /health
// and /metrics stay open for probes and scrapers.
func SetupRoutes(router *gin.Engine, chatApproach approaches.Approach,
	askApproach *approaches.RetrieveThenRead, opts extensions.ServiceOptions, rc RouteConfig) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	if rc.Limiter != nil {
		v1.Use(middleware.RateLimitMiddleware(rc.Limiter, rc.TrustProxyHeaders))
	}
	v1.Use(middleware.AuthMiddleware(opts.AuthProvider))
	{
		v1.POST("/chat", handlers.HandleChatRequest(chatApproach, opts))
		v1.GET("/chat/ws", handlers.HandleChatWebSocket(chatApproach, opts))
		v1.POST("/ask", handlers.HandleAskRequest(askApproach, opts))
	}
}
