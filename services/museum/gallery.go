// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package museum loads the artwork gallery backing the museum conversation
// mode. Artworks are plain files in a directory: a PNG image named
// "artworkname_{name}_paintername_{painter}.png" paired with a .txt
// description of the piece.
package museum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Artwork is one gallery piece. Description is the curator text handed to
// the conversation service as grounding context.
type Artwork struct {
	Image       string `json:"image"`
	Name        string `json:"name"`
	Painter     string `json:"painter"`
	Description string `json:"description"`
}

// Gallery serves artworks from a data directory. Loads are on demand, so
// dropping new files into the directory needs no restart.
type Gallery struct {
	dir string
}

// NewGallery creates a gallery over dir.
func NewGallery(dir string) *Gallery {
	return &Gallery{dir: dir}
}

// LoadArtworks scans the gallery directory.
//
// Images that do not follow the naming convention, or that lack a matching
// .txt description, are skipped with a warning rather than failing the
// whole gallery. A missing directory yields an empty gallery.
func (g *Gallery) LoadArtworks() ([]Artwork, error) {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("Museum data directory does not exist", "dir", g.dir)
			return []Artwork{}, nil
		}
		return nil, fmt.Errorf("read museum dir %s: %w", g.dir, err)
	}

	artworks := []Artwork{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".png") {
			continue
		}

		base := strings.TrimSuffix(entry.Name(), ".png")
		name, painter, ok := parseArtworkName(base)
		if !ok {
			slog.Warn("Skipping artwork with unexpected filename", "file", entry.Name())
			continue
		}

		descPath := filepath.Join(g.dir, base+".txt")
		desc, err := os.ReadFile(descPath)
		if err != nil {
			slog.Warn("Skipping artwork without description", "file", entry.Name(), "error", err)
			continue
		}

		artworks = append(artworks, Artwork{
			Image:       filepath.Join(g.dir, entry.Name()),
			Name:        name,
			Painter:     painter,
			Description: string(desc),
		})
	}
	return artworks, nil
}

// Find returns the artwork with the given display name.
func (g *Gallery) Find(name string) (Artwork, bool, error) {
	artworks, err := g.LoadArtworks()
	if err != nil {
		return Artwork{}, false, err
	}
	for _, a := range artworks {
		if a.Name == name {
			return a, true, nil
		}
	}
	return Artwork{}, false, nil
}

// parseArtworkName splits "artworkname_The_Starry_Night_paintername_Vincent
// _van_Gogh" into display names. Underscores inside names become spaces.
func parseArtworkName(base string) (name, painter string, ok bool) {
	parts := strings.Split(base, "_")
	if len(parts) < 4 || parts[0] != "artworkname" {
		return "", "", false
	}

	painterIdx := -1
	for i, p := range parts {
		if p == "paintername" {
			painterIdx = i
			break
		}
	}
	if painterIdx <= 1 || painterIdx == len(parts)-1 {
		return "", "", false
	}

	name = strings.Join(parts[1:painterIdx], " ")
	painter = strings.Join(parts[painterIdx+1:], " ")
	return name, painter, true
}
