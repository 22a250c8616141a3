// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains the retrieval index admin types.
package datatypes

import "time"

// IndexStatsResponse reports the retrieval index state after the most
// recent build pass. NewChunks counts chunks embedded during that pass;
// chunks of deleted documents remain counted in TotalChunks because the
// index never removes entries.
type IndexStatsResponse struct {
	Documents   int       `json:"documents"`
	TotalChunks int       `json:"total_chunks"`
	NewChunks   int       `json:"new_chunks"`
	LastBuild   time.Time `json:"last_build"`
}

// IndexRebuildResponse acknowledges a completed rebuild pass.
type IndexRebuildResponse struct {
	Status      string `json:"status"`
	TotalChunks int    `json:"total_chunks"`
	NewChunks   int    `json:"new_chunks"`
}

// ArtworksResponse lists the gallery available to museum mode.
type ArtworksResponse struct {
	Artworks []ArtworkEntry `json:"artworks"`
}

// ArtworkEntry is one gallery item: the image path plus the parsed name,
// painter and description text.
type ArtworkEntry struct {
	Name        string `json:"name"`
	Painter     string `json:"painter"`
	Image       string `json:"image"`
	Description string `json:"description"`
}
