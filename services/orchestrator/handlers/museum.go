// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/echomind/services/museum"
	"github.com/AleutianAI/echomind/services/orchestrator/datatypes"
)

// HandleListArtworks serves GET /v1/museum/artworks: the gallery available
// to museum-mode conversations. An empty gallery is a valid, empty list.
func HandleListArtworks(gallery *museum.Gallery) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := handlerTracer.Start(c.Request.Context(), "HandleListArtworks")
		defer span.End()

		artworks, err := gallery.LoadArtworks()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Gallery load failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "gallery load failed"})
			return
		}

		entries := make([]datatypes.ArtworkEntry, len(artworks))
		for i, art := range artworks {
			entries[i] = datatypes.ArtworkEntry{
				Name:        art.Name,
				Painter:     art.Painter,
				Image:       art.Image,
				Description: art.Description,
			}
		}
		c.JSON(http.StatusOK, datatypes.ArtworksResponse{Artworks: entries})
	}
}
