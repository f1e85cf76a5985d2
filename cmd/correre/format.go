package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/correre-org/devsync/api/device"
)

const progressWidth = 20

// formatFile renders one line of a file listing.
func formatFile(f device.File, now time.Time) string {
	return fmt.Sprintf("%5d  %-16s  %9s  %s",
		f.Index,
		humanize.RelTime(f.Date, now, "ago", "from now"),
		humanize.Bytes(uint64(f.Size)),
		f.Filename(),
	)
}

// formatProgress renders a transfer progress bar.
func formatProgress(fraction float64) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	filled := int(fraction * progressWidth)

	return fmt.Sprintf("[%s%s] %3.0f%%",
		strings.Repeat("#", filled),
		strings.Repeat(" ", progressWidth-filled),
		fraction*100,
	)
}

func sortedTypes(fs device.FileSet) []device.FileType {
	types := make([]device.FileType, 0, len(fs))
	for t := range fs {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}
