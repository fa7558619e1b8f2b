package mock

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/ochronus/storageportal/internal/services/portal"
)

var words = []string{
	"amber", "basalt", "cedar", "delta", "ember", "fjord", "glacier", "harbor",
	"island", "juniper", "kelp", "lagoon", "meadow", "nebula", "orchid", "prairie",
	"quartz", "reef", "summit", "tundra", "umber", "valley", "willow", "xenon",
	"yarrow", "zephyr",
}

// GenerateFiles returns n random file entries in the shape of the portal's
// development fixtures: a word as the name, 3 to 50 MB, a last-modified time
// within the year before now, and a location chosen among the prefixes of
// sites.
func GenerateFiles(rng *rand.Rand, n int, sites []portal.Site, now time.Time) []portal.FileEntry {
	entries := make([]portal.FileEntry, 0, n)
	used := make(map[string]int, n)

	for len(entries) < n {
		name := words[rng.IntN(len(words))]
		used[name]++
		if used[name] > 1 {
			name = fmt.Sprintf("%s-%d", name, used[name])
		}

		age := time.Duration(rng.Int64N(int64(365 * 24 * time.Hour)))
		var location []portal.Site
		if len(sites) > 0 {
			location = append(location, sites[:1+rng.IntN(min(len(sites), 3))]...)
		}

		entries = append(entries, portal.FileEntry{
			Filename:     name,
			Size:         fmt.Sprintf("%d MB", 3+rng.IntN(48)),
			LastModified: portal.Timestamp{Time: now.Add(-age).Truncate(time.Second).UTC()},
			Location:     location,
		})
	}

	return entries
}

// placeholder is the content served for generated entries.
func placeholder(entry portal.FileEntry) []byte {
	return []byte(fmt.Sprintf("mock content of %s (%s)\n", entry.Filename, entry.Size))
}

// humanSize formats n bytes the way the list endpoint reports sizes.
func humanSize(n int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%d %s", int64(math.Round(v)), units[i])
}
