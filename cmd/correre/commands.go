package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"github.com/correre-org/devsync/api/device"
	"github.com/correre-org/devsync/api/dispatch"
	"github.com/correre-org/devsync/api/errorkinds"
	"github.com/correre-org/devsync/internal/serde"
)

func (a *app) list(ctx context.Context, jsonOut, all bool) error {
	var files device.FileSet

	err := a.call(ctx, func(dc dispatch.Context, _ func() device.Identity, finish func(error)) error {
		_, err := a.queue.ListFiles(dc, func(fs device.FileSet, err error) {
			files = fs
			finish(err)
		})

		return err
	})
	if err != nil {
		return err
	}

	selected := files.Activities()
	if all {
		selected = allFiles(files)
	}

	if jsonOut {
		data, err := serde.MarshalJson(selected)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(a.out, "%s\n", data)
		return err
	}

	if len(selected) == 0 {
		fmt.Fprintln(a.out, "No files on the device.")
		return nil
	}

	now := time.Now()
	for _, f := range selected {
		fmt.Fprintln(a.out, formatFile(f, now))
	}

	return nil
}

func (a *app) download(ctx context.Context, index uint16) error {
	var saved string

	err := a.call(ctx, func(dc dispatch.Context, identity func() device.Identity, finish func(error)) error {
		_, err := a.queue.ListFiles(dc, func(fs device.FileSet, err error) {
			if err != nil {
				finish(err)
				return
			}

			file, ok := fs.Find(index)
			if !ok {
				finish(fileNotFound(index))
				return
			}

			progress := func(fraction float64) {
				fmt.Fprintf(a.errOut, "\r%s %s", file.Filename(), formatProgress(fraction))
			}

			_, err = a.queue.DownloadFile(dc, index, progress, func(data []byte, err error) {
				fmt.Fprintln(a.errOut)
				if err != nil {
					finish(err)
					return
				}

				saved = file.Path(device.ProfilePath(a.cfg.ProfileDir, identity().Serial))
				finish(writeDownload(saved, data))
			})
			if err != nil {
				finish(err)
			}
		})

		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Saved %s\n", saved)

	return nil
}

func (a *app) remove(ctx context.Context, index uint16) error {
	var deleted bool

	err := a.call(ctx, func(dc dispatch.Context, _ func() device.Identity, finish func(error)) error {
		_, err := a.queue.DeleteFile(dc, index, func(ok bool, err error) {
			deleted = ok
			finish(err)
		})

		return err
	})
	if err != nil {
		return err
	}

	if !deleted {
		fmt.Fprintf(a.out, "The device did not delete file %d.\n", index)
		return nil
	}

	fmt.Fprintf(a.out, "Deleted file %d.\n", index)

	return nil
}

func writeDownload(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func allFiles(fs device.FileSet) []device.File {
	files := make([]device.File, 0, fs.Len())
	for _, t := range sortedTypes(fs) {
		files = append(files, fs[t]...)
	}

	return files
}

func fileNotFound(index uint16) error {
	return fault.Wrap(errorkinds.ErrFileNotFound,
		fctx.With(context.Background(), "error_at", "find-file"),
		ftag.With(ftag.NotFound),
		fmsg.With(fmt.Sprintf("No file with index %d", index)),
	)
}
