// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package museum

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadArtworks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "artworkname_The_Starry_Night_paintername_Vincent_van_Gogh.png", "png-bytes")
	writeFile(t, dir, "artworkname_The_Starry_Night_paintername_Vincent_van_Gogh.txt", "A swirling night sky.")

	gallery := NewGallery(dir)
	artworks, err := gallery.LoadArtworks()
	require.NoError(t, err)
	require.Len(t, artworks, 1)

	art := artworks[0]
	assert.Equal(t, "The Starry Night", art.Name)
	assert.Equal(t, "Vincent van Gogh", art.Painter)
	assert.Equal(t, "A swirling night sky.", art.Description)
	assert.Equal(t, filepath.Join(dir, "artworkname_The_Starry_Night_paintername_Vincent_van_Gogh.png"), art.Image)
}

func TestLoadArtworks_SkipsMalformedEntries(t *testing.T) {
	dir := t.TempDir()
	// No description file.
	writeFile(t, dir, "artworkname_Lonely_paintername_Nobody.png", "png-bytes")
	// Wrong naming convention.
	writeFile(t, dir, "random_picture.png", "png-bytes")
	writeFile(t, dir, "random_picture.txt", "text")
	// Not an image at all.
	writeFile(t, dir, "notes.txt", "text")

	gallery := NewGallery(dir)
	artworks, err := gallery.LoadArtworks()
	require.NoError(t, err)
	assert.Empty(t, artworks)
}

func TestLoadArtworks_MissingDirectory(t *testing.T) {
	gallery := NewGallery(filepath.Join(t.TempDir(), "does-not-exist"))
	artworks, err := gallery.LoadArtworks()
	require.NoError(t, err)
	assert.Empty(t, artworks)
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "artworkname_Guernica_paintername_Pablo_Picasso.png", "png-bytes")
	writeFile(t, dir, "artworkname_Guernica_paintername_Pablo_Picasso.txt", "A mural on the bombing of Guernica.")

	gallery := NewGallery(dir)

	art, found, err := gallery.Find("Guernica")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Pablo Picasso", art.Painter)

	_, found, err = gallery.Find("Mona Lisa")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestParseArtworkName(t *testing.T) {
	tests := []struct {
		base        string
		wantName    string
		wantPainter string
		wantOK      bool
	}{
		{"artworkname_The_Scream_paintername_Edvard_Munch", "The Scream", "Edvard Munch", true},
		{"artworkname_X_paintername_Y", "X", "Y", true},
		{"artworkname_paintername_Y", "", "", false},
		{"artworkname_X_paintername", "", "", false},
		{"painting_X_by_Y", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			name, painter, ok := parseArtworkName(tt.base)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantPainter, painter)
		})
	}
}
