package bundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/keithlinneman/assetgate/internal/xerrors"
)

const (
	// maxBundleSize is the maximum size of a compressed bundle from s3
	maxBundleSize int64 = 50 * 1024 * 1024 // 50MB

	// maxSingleFile is the maximum size of a single file in the bundle
	maxSingleFile int64 = 10 * 1024 * 1024 // 10MB

	// maxTotalExtract is the maximum total size of extracted content
	maxTotalExtract int64 = 100 * 1024 * 1024 // 100MB

	// maxEntries bounds the number of archive entries
	maxEntries = 10000

	// maxSignatureSize caps the detached signature sidecar
	maxSignatureSize int64 = 64 * 1024 // 64KB
)

// readWithHash reads all bytes from r up to maxSize, computing SHA256
// as it reads. Returns the data, hex-encoded hash, and any error.
// Used by Download to verify bundle integrity without temp files.
func readWithHash(r io.Reader, maxSize int64) ([]byte, string, error) {
	h := sha256.New()
	lr := io.LimitReader(r, maxSize+1)
	tr := io.TeeReader(lr, h)

	data, err := io.ReadAll(tr)
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxSize {
		return nil, "", fmt.Errorf("content exceeds max size (%d bytes, limit %d)", len(data), maxSize)
	}

	return data, hex.EncodeToString(h.Sum(nil)), nil
}

// extractTarGz extracts an in-memory .tar.gz to destDir. Only regular files
// and directories are accepted; entry count, per-file size, and total size
// are bounded and paths are sanitized against traversal. Returns the file
// count and total extracted bytes.
func extractTarGz(data []byte, destDir string) (int, int64, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return 0, 0, xerrors.Wrap(err, "open gzip")
	}
	defer gr.Close()

	tr := tar.NewReader(gr)

	var (
		fileCount  int
		totalBytes int64
		entries    int
	)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, 0, xerrors.Wrap(err, "read tar header")
		}

		entries++
		if entries > maxEntries {
			return 0, 0, xerrors.Newf("archive exceeds max entry count (%d)", maxEntries)
		}

		target, err := sanitizeTarPath(destDir, hdr.Name)
		if err != nil {
			return 0, 0, err
		}
		if target == "" {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return 0, 0, xerrors.Wrapf(err, "create dir %s", hdr.Name)
			}

		case tar.TypeReg:
			if hdr.Size > maxSingleFile {
				return 0, 0, xerrors.Newf("file %s exceeds max size (%d > %d)",
					hdr.Name, hdr.Size, maxSingleFile)
			}

			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return 0, 0, xerrors.Wrapf(err, "create parent dir for %s", hdr.Name)
			}

			n, err := writeFile(target, tr, hdr.FileInfo().Mode().Perm())
			if err != nil {
				return 0, 0, err
			}

			fileCount++
			totalBytes += n
			if totalBytes > maxTotalExtract {
				return 0, 0, xerrors.Newf("total extracted size exceeds limit (%d bytes, max %d)",
					totalBytes, maxTotalExtract)
			}

		default:
			return 0, 0, xerrors.Newf("unsupported file type in archive: %s (type=%d)",
				hdr.Name, hdr.Typeflag)
		}
	}

	return fileCount, totalBytes, nil
}

// sanitizeTarPath prevents directory traversal attacks. Returns the joined
// target path, or "" for entries that resolve to the destination itself.
func sanitizeTarPath(dst, name string) (string, error) {
	name = filepath.Clean(filepath.FromSlash(name))
	if name == "." || name == "" {
		return "", nil
	}

	// reject absolute paths
	if filepath.IsAbs(name) {
		return "", xerrors.Newf("absolute path in tar: %s", name)
	}

	// reject paths with ..
	if strings.Contains(name, "..") {
		return "", xerrors.Newf("path traversal in tar: %s", name)
	}

	target := filepath.Join(dst, name)

	// double-check the result is within dst
	if !strings.HasPrefix(filepath.Clean(target)+string(os.PathSeparator), filepath.Clean(dst)+string(os.PathSeparator)) {
		if filepath.Clean(target) != filepath.Clean(dst) {
			return "", xerrors.Newf("path escapes destination: %s", name)
		}
	}

	return target, nil
}

// writeFile writes one file from the tar reader with a size limit, returning
// the byte count.
func writeFile(path string, r io.Reader, mode os.FileMode) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, xerrors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	lr := io.LimitReader(r, maxSingleFile+1)
	n, err := io.Copy(f, lr)
	if err != nil {
		return n, xerrors.Wrapf(err, "write %s", path)
	}
	if n > maxSingleFile {
		return n, xerrors.Newf("file too large: %s (%d bytes)", path, n)
	}

	return n, nil
}
