// Copyright 2020 Aerospike, Inc. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package segfile enumerates the stage files an asmt destination directory
// holds, mirroring internal/segment's view of live shared memory but backed
// by the filesystem.
package segfile

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"

	"github.com/aerospike/asmt/internal/gzipfile"
	"github.com/aerospike/asmt/internal/key"
)

const (
	namespaceOffsetBase = 1024
	namespaceOffsetData = 12
	namespaceLen        = 32

	peekChunk = 1 << 20 // 1 MiB, per SPEC_FULL.md §4.2.2
)

var fileNamePattern = regexp.MustCompile(`^([0-9A-Fa-f]{8})\.dat(\.gz)?$`)

// File describes one stage file found in the destination directory.
//
// UID/GID/Mode come from the file's own on-disk ownership and permission
// bits rather than from any in-band field: the compressed-file header (see
// internal/gzipfile) carries only {magic, version, segsz, crc32}, and a
// backup write sets a destination file's ownership and mode to match the
// source segment's (internal/ioqueue's rawWrite/compressedWrite) for both
// raw and compressed files alike, so the file's own stat metadata is the
// one source that works uniformly across both forms.
type File struct {
	Key           key.Key
	Raw           uint32
	Path          string
	Compressed    bool
	Size          int64 // on-disk size
	Segsz         int64 // uncompressed segment size: Size for raw, header value for compressed
	NamespaceName string
	UID, GID      uint32
	Mode          uint32
}

// GroupKey and GroupNamespaceName satisfy internal/group.Member.
func (f File) GroupKey() key.Key           { return f.Key }
func (f File) GroupNamespaceName() string { return f.NamespaceName }

// Filter narrows enumeration like segment.Filter does.
type Filter struct {
	Instance       uint8
	NamespaceNames map[string]bool
}

func (f Filter) namespaceAllowed(name string) bool {
	if len(f.NamespaceNames) == 0 {
		return true
	}
	return f.NamespaceNames[name]
}

// List scans dir for well-formed stage files, decodes their keys, reads
// namespace names where applicable, applies Filter, and returns the result
// sorted ascending by key.
func List(dir string, f Filter) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read destination directory %q", dir)
	}

	var files []File

	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}

		m := fileNamePattern.FindStringSubmatch(ent.Name())
		if m == nil {
			continue
		}

		raw64, err := strconv.ParseUint(m[1], 16, 32)
		if err != nil {
			continue
		}
		raw := uint32(raw64)

		k, err := key.Decode(raw)
		if err != nil {
			continue
		}

		if k.Instance != f.Instance {
			continue
		}

		info, err := ent.Info()
		if err != nil {
			return nil, errors.Wrapf(err, "stat %q", ent.Name())
		}

		path := filepath.Join(dir, ent.Name())
		compressed := m[2] != ""

		file := File{
			Key:        k,
			Raw:        raw,
			Path:       path,
			Compressed: compressed,
			Size:       info.Size(),
			Segsz:      info.Size(),
		}
		if st, ok := info.Sys().(*syscall.Stat_t); ok {
			file.UID = st.Uid
			file.GID = st.Gid
			file.Mode = uint32(info.Mode().Perm())
		}

		needsNamespaceName := (k.Class != key.Secondary && k.IsBase()) || k.Class == key.Data

		if needsNamespaceName || compressed {
			if err := fillFromBody(&file, k, needsNamespaceName); err != nil {
				return nil, errors.Wrapf(err, "read %q", ent.Name())
			}
		}

		if k.Class != key.Secondary && k.IsBase() && !f.namespaceAllowed(file.NamespaceName) {
			continue
		}
		if k.Class == key.Data && !f.namespaceAllowed(file.NamespaceName) {
			continue
		}

		files = append(files, file)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Raw < files[j].Raw })

	return files, nil
}

// ExistingKeys scans dir for every well-formed stage file name, regardless
// of instance or namespace, and returns the set of keys already present.
// The Operation Driver's backup-sanity check (SPEC_FULL.md §4.3 "no file in
// the destination directory may already carry a key belonging to this
// group") uses this: a name collision disqualifies backup no matter which
// namespace or instance the existing file belongs to.
func ExistingKeys(dir string) (map[uint32]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read destination directory %q", dir)
	}

	keys := make(map[uint32]bool)
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		m := fileNamePattern.FindStringSubmatch(ent.Name())
		if m == nil {
			continue
		}
		raw64, err := strconv.ParseUint(m[1], 16, 32)
		if err != nil {
			continue
		}
		raw := uint32(raw64)
		if _, err := key.Decode(raw); err != nil {
			continue
		}
		keys[raw] = true
	}
	return keys, nil
}

// ReadBody reads the byte range [off, off+n) from f's body: a direct
// ReadAt for raw files, or a decompress-leading-chunk read (capped the same
// way the namespace-name read is) for compressed ones. It is used by the
// Grouper/Validator to read version, shutdown-status, and arena-count
// fields from restore-side files.
func ReadBody(f File, off int64, n int) ([]byte, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %q", f.Path)
	}
	defer fh.Close()

	if !f.Compressed {
		buf := make([]byte, n)
		if _, err := fh.ReadAt(buf, off); err != nil {
			return nil, errors.Wrapf(err, "read %q at offset %d", f.Path, off)
		}
		return buf, nil
	}

	want := int(off) + n
	if want > peekChunk {
		return nil, errors.Errorf("%q: requested range [%d,%d) exceeds the %d-byte leading-chunk budget", f.Path, off, want, peekChunk)
	}
	prefix, err := gzipfile.DecompressPrefix(fh, want)
	if err != nil {
		return nil, errors.Wrapf(err, "decompress leading chunk of %q", f.Path)
	}
	if len(prefix) < want {
		return nil, errors.Errorf("%q: truncated before offset %d", f.Path, want)
	}
	return prefix[off:want], nil
}

// fillFromBody populates Segsz (for compressed files, from the header) and,
// when needsNamespaceName is set, NamespaceName, per SPEC_FULL.md §4.2.2.
func fillFromBody(f *File, k key.Key, needsNamespaceName bool) error {
	fh, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer fh.Close()

	off := namespaceOffsetBase
	if k.Class == key.Data {
		off = namespaceOffsetData
	}

	if !f.Compressed {
		if !needsNamespaceName {
			return nil
		}
		buf := make([]byte, namespaceLen)
		if _, err := fh.ReadAt(buf, int64(off)); err != nil {
			// A short/truncated file just yields an empty namespace name;
			// the Grouper will reject it on its own validation pass.
			return nil
		}
		f.NamespaceName = nulTerminated(buf)
		return nil
	}

	r, err := gzipfile.NewReader(fh)
	if err != nil {
		return errors.Wrap(err, "open compressed stage file")
	}
	defer r.Close()

	f.Segsz = int64(r.Header.Segsz)

	if !needsNamespaceName {
		return nil
	}

	prefix, err := decompressPrefix(fh, off+namespaceLen)
	if err != nil {
		return err
	}
	if len(prefix) < off+namespaceLen {
		return nil
	}
	f.NamespaceName = nulTerminated(prefix[off : off+namespaceLen])
	return nil
}

// decompressPrefix rewinds the file to the start (the header-reading
// Reader above already advanced past the header) and inflates at most n
// bytes of the segment body, skipping the fixed header along the way.
func decompressPrefix(fh *os.File, n int) ([]byte, error) {
	if _, err := fh.Seek(0, 0); err != nil {
		return nil, err
	}
	return gzipfile.DecompressPrefix(fh, min(n, peekChunk))
}

func nulTerminated(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
