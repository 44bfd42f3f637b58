// Package channels discovers channel image files in an input directory and
// produces the deterministic ordering used everywhere downstream: the nuclear
// stain (DAPI) first, then the remaining markers in ascending lexicographic
// order by normalized name.
package channels

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"channelpyramid/internal/models"
)

const (
	// NuclearChannel is the canonical display name of the nuclear stain.
	// When present it always occupies logical channel index 0.
	NuclearChannel = "DAPI"

	// nuclearAlternate is the alternate spelling some acquisition runs use
	// for the nuclear stain; it is collapsed to NuclearChannel.
	nuclearAlternate = "DAPI-01"

	// blankPrefix marks calibration/autofluorescence placeholder files that
	// must never become channels.
	blankPrefix = "BLANK"
)

// Resolve enumerates the TIF files in dir, excludes blank/calibration
// placeholders, normalizes display names and returns the channels in
// canonical order. The ordering depends only on the set of filenames, never
// on filesystem enumeration order.
//
// Returns an error if the directory cannot be read or if no eligible channel
// files remain after filtering.
func Resolve(dir string) ([]models.Channel, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %v", err)
	}

	var found []models.Channel
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".tif" && ext != ".tiff" {
			continue
		}

		base := strings.TrimSuffix(name, filepath.Ext(name))
		if strings.HasPrefix(base, blankPrefix) {
			continue
		}

		display := NormalizeName(base)
		if prev, ok := seen[display]; ok {
			return nil, fmt.Errorf("duplicate channel name %q (%s and %s)", display, prev, name)
		}
		seen[display] = name

		found = append(found, models.Channel{
			Name:       display,
			SourcePath: filepath.Join(dir, name),
		})
	}

	if len(found) == 0 {
		return nil, fmt.Errorf("no channel TIF files found in %s", dir)
	}

	// DAPI first, everything else alphabetical by normalized name.
	sort.Slice(found, func(i, j int) bool {
		if found[i].Name == NuclearChannel {
			return found[j].Name != NuclearChannel
		}
		if found[j].Name == NuclearChannel {
			return false
		}
		return found[i].Name < found[j].Name
	})

	return found, nil
}

// NormalizeName maps a source file base name to its display name, collapsing
// the recognized nuclear-stain variant to the canonical short form.
func NormalizeName(base string) string {
	if base == nuclearAlternate {
		return NuclearChannel
	}
	return base
}

// Names returns the display names of the channels in order
func Names(chs []models.Channel) []string {
	names := make([]string, len(chs))
	for i, ch := range chs {
		names[i] = ch.Name
	}
	return names
}
