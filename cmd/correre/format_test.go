package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/correre-org/devsync/api/device"
)

func TestFormatFile(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	f := device.File{
		Index:  7,
		Type:   device.FileTypeActivity,
		Number: 3,
		Size:   2048,
		Date:   now.Add(-2 * time.Hour),
	}

	line := formatFile(f, now)
	assert.Contains(t, line, "    7")
	assert.Contains(t, line, "2 hours ago")
	assert.Contains(t, line, "2.0 kB")
	assert.Contains(t, line, f.Filename())
}

func TestFormatProgress(t *testing.T) {
	assert.Equal(t, "[                    ]   0%", formatProgress(0))
	assert.Equal(t, "[##########          ]  50%", formatProgress(0.5))
	assert.Equal(t, "[####################] 100%", formatProgress(1))
	assert.Equal(t, formatProgress(1), formatProgress(3))
	assert.Equal(t, formatProgress(0), formatProgress(-1))
}

func TestParseIndex(t *testing.T) {
	index, err := parseIndex("12")
	assert.NoError(t, err)
	assert.Equal(t, uint16(12), index)

	_, err = parseIndex("")
	assert.Error(t, err)

	_, err = parseIndex("70000")
	assert.Error(t, err)
}

func TestSortedTypes(t *testing.T) {
	types := sortedTypes(device.NewFileSet(nil))

	assert.Len(t, types, len(device.Directories))
	assert.Contains(t, types, device.FileTypeActivity)
	assert.IsIncreasing(t, types)
}
