package session

import (
	"time"

	"github.com/correre-org/devsync/api/device"
	"github.com/correre-org/devsync/api/dispatch"
)

// Operation is a device operation that can be queued.
type Operation int

// The different queueable operations.
const (
	OpListFiles Operation = iota + 1
	OpDownloadFile
	OpDeleteFile
)

var operationNames = map[Operation]string{
	OpListFiles:    "list_files",
	OpDownloadFile: "download_file",
	OpDeleteFile:   "delete_file",
}

// String returns the name of the operation.
func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}

	return "unknown"
}

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	_, ok := operationNames[o]
	return ok
}

// TaskID identifies a queued task.
type TaskID = uint64

// Request describes one operation to run on the device.
// Index is used by OpDownloadFile and OpDeleteFile. Progress, when set, is
// called on the caller's dispatch context during a download.
type Request struct {
	Op       Operation
	Index    uint16
	Progress device.ProgressFunc
}

// Result is delivered exactly once per task to its callback.
// Only the field matching Op is set when Err is nil.
type Result struct {
	Task    TaskID
	Op      Operation
	Files   device.FileSet
	Data    []byte
	Deleted bool
	Err     error
}

type task struct {
	id       TaskID
	req      Request
	dc       dispatch.Context
	cb       func(Result)
	enqueued time.Time
}
