package archive

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	pkgerrors "github.com/Skryldev/ivr-studio/pkg/errors"
)

// ZipWriter implements ports.ArchiveWriter with maximum deflate compression
type ZipWriter struct {
	level int
}

// NewZipWriter creates a writer using flate.BestCompression
func NewZipWriter() *ZipWriter {
	return &ZipWriter{level: flate.BestCompression}
}

// WriteArchive zips every regular file under srcDir into dst.
// The archive is built under a temporary name and renamed into place.
func (z *ZipWriter) WriteArchive(ctx context.Context, srcDir, dst string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return pkgerrors.NewArchiveError(dst, "failed to create archive", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	zw := zip.NewWriter(tmp)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, z.level)
	})

	absDst, _ := filepath.Abs(dst)
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == absDst {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		return addFile(zw, path, filepath.ToSlash(rel))
	})
	if walkErr != nil {
		return pkgerrors.NewArchiveError(dst, "failed to add files", walkErr)
	}

	if err = zw.Close(); err != nil {
		return pkgerrors.NewArchiveError(dst, "failed to finalize archive", err)
	}
	if err = tmp.Close(); err != nil {
		return pkgerrors.NewArchiveError(dst, "failed to close archive", err)
	}
	if err = os.Rename(tmpName, dst); err != nil {
		return pkgerrors.NewArchiveError(dst, "failed to move archive into place", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
