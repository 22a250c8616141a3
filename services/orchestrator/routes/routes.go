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

	"github.com/AleutianAI/echomind/services/auth"
	"github.com/AleutianAI/echomind/services/museum"
	"github.com/AleutianAI/echomind/services/orchestrator/conversation"
	"github.com/AleutianAI/echomind/services/orchestrator/handlers"
	"github.com/AleutianAI/echomind/services/orchestrator/observability"
	"github.com/AleutianAI/echomind/services/rag"
	"github.com/AleutianAI/echomind/services/userstate"
)

func SetupRoutes(router *gin.Engine, convSvc *conversation.Service, store *userstate.BadgerStore,
	creds *auth.FileStore, index *rag.Index, gallery *museum.Gallery,
	metrics *observability.TurnMetrics) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/chat", handlers.HandleChatTurn(convSvc))
		v1.POST("/chat/reset", handlers.HandleChatReset(convSvc))
		v1.POST("/analysis/maxims", handlers.HandleMaximAnalysis(convSvc))
		// Account routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/signup", handlers.HandleSignup(creds, store))
			authGroup.POST("/login", handlers.HandleLogin(creds))
		}
		// Per-user state routes
		users := v1.Group("/users")
		{
			users.GET("/:userId/profile", handlers.HandleGetProfile(store))
			users.PUT("/:userId/profile", handlers.HandleUpdateProfile(store))
			users.GET("/:userId/history", handlers.HandleGetHistory(store))
		}
		// Retrieval index administration routes
		indexAdmin := v1.Group("/index")
		{
			indexAdmin.POST("/rebuild", handlers.HandleIndexRebuild(index, metrics))
			indexAdmin.GET("/stats", handlers.HandleIndexStats(index))
		}
		v1.GET("/museum/artworks", handlers.HandleListArtworks(gallery))
	}
}
