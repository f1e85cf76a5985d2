package device

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FileType is the FIT sub type of a file stored on the device.
type FileType uint8

const (
	FileTypeDevice      FileType = 1
	FileTypeSettings    FileType = 2
	FileTypeSports      FileType = 3
	FileTypeActivity    FileType = 4
	FileTypeWorkout     FileType = 5
	FileTypeCourse      FileType = 6
	FileTypeWeight      FileType = 9
	FileTypeTotals      FileType = 10
	FileTypeMonitoringB FileType = 32
)

// Directories maps every known file type to its profile sub-directory.
var Directories = map[FileType]string{
	FileTypeDevice:      ".",
	FileTypeSettings:    "settings",
	FileTypeSports:      "sports",
	FileTypeActivity:    "activities",
	FileTypeWorkout:     "workouts",
	FileTypeCourse:      "courses",
	FileTypeWeight:      "weight",
	FileTypeTotals:      "totals",
	FileTypeMonitoringB: "monitoring_b",
}

const fileDateLayout = "2006-01-02_15-04-05"

// Known reports whether t has a profile sub-directory.
func (t FileType) Known() bool {
	_, ok := Directories[t]
	return ok
}

// Directory returns the profile sub-directory of the file type.
func (t FileType) Directory() string {
	return Directories[t]
}

// File describes one file in the device directory.
type File struct {
	Index  uint16    `json:"index"`
	Type   FileType  `json:"type"`
	Number uint16    `json:"number"`
	Size   uint32    `json:"size"`
	Date   time.Time `json:"date"`
}

// Filename returns the name the file is saved under on the host.
func (f File) Filename() string {
	return fmt.Sprintf("%s_%d_%d.fit", f.Date.UTC().Format(fileDateLayout), f.Type, f.Number)
}

// Directory returns the profile sub-directory the file is saved in.
func (f File) Directory() string {
	return f.Type.Directory()
}

// Path returns the location of the file inside a device profile directory.
func (f File) Path(profile string) string {
	return filepath.Join(profile, f.Directory(), f.Filename())
}

// ParseFilename parses a name produced by File.Filename.
// Index and Size are not part of the name and are left zero.
func ParseFilename(name string) (File, error) {
	var f File

	base := strings.TrimSuffix(filepath.Base(name), ".fit")
	parts := strings.Split(base, "_")
	if len(parts) != 4 {
		return f, fmt.Errorf("malformed file name %q", name)
	}

	date, err := time.Parse(fileDateLayout, parts[0]+"_"+parts[1])
	if err != nil {
		return f, fmt.Errorf("malformed file date in %q: %w", name, err)
	}

	subtype, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return f, fmt.Errorf("malformed file type in %q: %w", name, err)
	}

	number, err := strconv.ParseUint(parts[3], 10, 16)
	if err != nil {
		return f, fmt.Errorf("malformed file number in %q: %w", name, err)
	}

	f.Date = date.UTC()
	f.Type = FileType(subtype)
	f.Number = uint16(number)

	return f, nil
}

// FileSet groups the files of a device directory by type.
type FileSet map[FileType][]File

// NewFileSet groups files by type. Files of unknown types are dropped, and
// every known type is present in the result, possibly empty.
func NewFileSet(files []File) FileSet {
	set := make(FileSet, len(Directories))
	for t := range Directories {
		set[t] = []File{}
	}

	for _, f := range files {
		if !f.Type.Known() {
			continue
		}

		set[f.Type] = append(set[f.Type], f)
	}

	return set
}

// Activities returns the activity files, newest first.
func (s FileSet) Activities() []File {
	activities := append([]File(nil), s[FileTypeActivity]...)
	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].Date.After(activities[j].Date)
	})

	return activities
}

// Len returns the number of files in the set.
func (s FileSet) Len() int {
	n := 0
	for _, files := range s {
		n += len(files)
	}

	return n
}

// Find returns the file with the given directory index.
func (s FileSet) Find(index uint16) (File, bool) {
	for _, files := range s {
		for _, f := range files {
			if f.Index == index {
				return f, true
			}
		}
	}

	return File{}, false
}
