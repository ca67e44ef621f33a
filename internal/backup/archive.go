package backup

import (
	"archive/tar"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"

	"github.com/manyworlds/server/internal/fault"
)

// writeArchive packs the given partition directories into one tar.zst at
// dstPath. Entries are prefixed with the partition storage name so a restore
// recovers every dimension. Returns the archive size and its blake2b-256
// digest.
func writeArchive(srcDirs []string, dstPath string) (int64, string, error) {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return 0, "", fault.IOWrap(err, "create backup dir")
	}
	f, err := os.Create(dstPath)
	if err != nil {
		return 0, "", fault.IOWrap(err, "create archive %s", filepath.Base(dstPath))
	}
	defer f.Close()

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return 0, "", fault.IOWrap(err, "init digest")
	}
	enc, err := zstd.NewWriter(io.MultiWriter(f, hasher),
		zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, "", fault.IOWrap(err, "init compressor")
	}
	tw := tar.NewWriter(enc)

	for _, dir := range srcDirs {
		if err := addDir(tw, dir); err != nil {
			tw.Close()
			enc.Close()
			os.Remove(dstPath)
			return 0, "", err
		}
	}
	if err := tw.Close(); err != nil {
		enc.Close()
		os.Remove(dstPath)
		return 0, "", fault.IOWrap(err, "finish archive")
	}
	if err := enc.Close(); err != nil {
		os.Remove(dstPath)
		return 0, "", fault.IOWrap(err, "finish compression")
	}
	if err := f.Close(); err != nil {
		os.Remove(dstPath)
		return 0, "", fault.IOWrap(err, "finish archive file")
	}

	info, err := os.Stat(dstPath)
	if err != nil {
		return 0, "", fault.IOWrap(err, "stat archive")
	}
	return info.Size(), hex.EncodeToString(hasher.Sum(nil)), nil
}

func addDir(tw *tar.Writer, dir string) error {
	base := filepath.Base(dir)
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fault.IOWrap(err, "walk %s", dir)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return fault.IOWrap(err, "resolve %s", path)
		}
		name := base
		if rel != "." {
			name = filepath.ToSlash(filepath.Join(base, rel))
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fault.IOWrap(err, "header for %s", path)
		}
		hdr.Name = name
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fault.IOWrap(err, "write header %s", name)
		}
		if info.IsDir() {
			return nil
		}
		src, err := os.Open(path)
		if err != nil {
			return fault.IOWrap(err, "open %s", path)
		}
		defer src.Close()
		if _, err := io.Copy(tw, src); err != nil {
			return fault.IOWrap(err, "copy %s", path)
		}
		return nil
	})
}

// extractArchive unpacks a tar.zst into dstDir, one subdirectory per
// partition. Entry names are rejected if they escape dstDir.
func extractArchive(srcPath, dstDir string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fault.Missingf("archive %s not found", filepath.Base(srcPath))
		}
		return fault.IOWrap(err, "open archive")
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return fault.IOWrap(err, "init decompressor")
	}
	defer dec.Close()
	tr := tar.NewReader(dec)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fault.IOWrap(err, "read archive")
		}
		name := filepath.FromSlash(hdr.Name)
		if strings.Contains(name, "..") || filepath.IsAbs(name) {
			return fault.Validationf("archive entry %q escapes target", hdr.Name)
		}
		target := filepath.Join(dstDir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fault.IOWrap(err, "create %s", name)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fault.IOWrap(err, "create parent of %s", name)
			}
			out, err := os.Create(target)
			if err != nil {
				return fault.IOWrap(err, "create %s", name)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fault.IOWrap(err, "extract %s", name)
			}
			if err := out.Close(); err != nil {
				return fault.IOWrap(err, "finish %s", name)
			}
		}
	}
}

// digestFile recomputes an archive's blake2b-256 digest for verification.
func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fault.IOWrap(err, "open archive")
	}
	defer f.Close()
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return "", fault.IOWrap(err, "init digest")
	}
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fault.IOWrap(err, "digest archive")
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
