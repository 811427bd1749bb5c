// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package sortbuf

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"

	"github.com/carbonadodb/carbonado/internal/cursor"
	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const trailerSize = blake2b.Size256

// writeEntries serializes values to f sequentially, starting at offset
// 0, as a zstd-compressed stream of (uint32 length, payload) records
// followed by a blake2b-256 trailer over the uncompressed stream — so
// a work file left half-written by a killed process is detected on its
// next read rather than silently merged in as truncated garbage.
func writeEntries[S any](f *os.File, codec Codec[S], values []S) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return errors.WithStack(err)
	}

	sum, err := blake2b.New256(nil)
	if err != nil {
		return errors.Wrap(err, "sortbuf: init checksum")
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		return errors.Wrap(err, "sortbuf: open zstd writer for spill file")
	}
	w := io.MultiWriter(zw, sum)

	var lenBuf [4]byte
	for _, v := range values {
		payload, err := codec.Encode(v)
		if err != nil {
			_ = zw.Close()
			return errors.Wrap(err, "sortbuf: encode spilled entry")
		}
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			_ = zw.Close()
			return errors.WithStack(err)
		}
		if _, err := w.Write(payload); err != nil {
			_ = zw.Close()
			return errors.WithStack(err)
		}
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "sortbuf: close zstd writer for spill file")
	}
	if _, err := f.Write(sum.Sum(nil)); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// fileCursor reads back a stream written by writeEntries, verifying
// the trailing checksum before yielding any entry.
type fileCursor[S any] struct {
	codec   Codec[S]
	r       *bufio.Reader
	pending *S
	done    bool
	closed  bool
}

// newFileCursor returns a Cursor over f's contents from its current
// start; f is rewound to offset 0 first. Close does not close f — the
// caller (the owning MergeSortBuffer) manages the file's lifetime.
func newFileCursor[S any](f *os.File, codec Codec[S]) (cursor.Cursor[S], error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.WithStack(err)
	}
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if size < trailerSize {
		return nil, types.NewFetchError(types.FetchCorruptEncoding,
			"sortbuf: spill file shorter than its checksum trailer", nil)
	}
	compressedLen := size - trailerSize

	wantSum := make([]byte, trailerSize)
	if _, err := f.ReadAt(wantSum, compressedLen); err != nil {
		return nil, errors.WithStack(err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.WithStack(err)
	}
	zr, err := zstd.NewReader(io.NewSectionReader(f, 0, compressedLen))
	if err != nil {
		return nil, errors.Wrap(err, "sortbuf: open zstd reader for spill file")
	}

	gotSum, plain, err := decodeAndHash(zr)
	zr.Close()
	if err != nil {
		return nil, types.NewFetchError(types.FetchCorruptEncoding, "sortbuf: decompress spill file", err)
	}
	if !bytes.Equal(gotSum, wantSum) {
		return nil, types.NewFetchError(types.FetchCorruptEncoding, "sortbuf: spill file checksum mismatch", nil)
	}

	return &fileCursor[S]{codec: codec, r: bufio.NewReader(plain)}, nil
}

// decodeAndHash drains r into memory (work files are bounded by the
// same sizes the build pipeline already batches by) while hashing it,
// returning both the checksum and a reader over the plaintext so
// fileCursor can decode records from it without re-reading the file.
func decodeAndHash(r io.Reader) ([]byte, io.Reader, error) {
	sum, err := blake2b.New256(nil)
	if err != nil {
		return nil, nil, err
	}
	buf, err := io.ReadAll(io.TeeReader(r, sum))
	if err != nil {
		return nil, nil, err
	}
	return sum.Sum(nil), bytes.NewReader(buf), nil
}

func (c *fileCursor[S]) HasNext(context.Context) (bool, error) {
	if c.closed || c.done {
		return false, nil
	}
	if c.pending != nil {
		return true, nil
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			c.done = true
			return false, nil
		}
		return false, types.NewFetchError(types.FetchGeneric, "sortbuf: read spill file length", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return false, types.NewFetchError(types.FetchGeneric, "sortbuf: read spill file payload", err)
	}
	v, err := c.codec.Decode(payload)
	if err != nil {
		return false, types.NewFetchError(types.FetchCorruptEncoding, "sortbuf: decode spilled entry", err)
	}
	c.pending = &v
	return true, nil
}

func (c *fileCursor[S]) Next(ctx context.Context) (S, error) {
	has, err := c.HasNext(ctx)
	if err != nil || !has {
		var zero S
		if err == nil {
			err = errors.WithStack(types.ErrNoSuchElement)
		}
		return zero, err
	}
	v := *c.pending
	c.pending = nil
	return v, nil
}

func (c *fileCursor[S]) SkipNext(ctx context.Context, n int) (int, error) {
	skipped := 0
	for skipped < n {
		has, err := c.HasNext(ctx)
		if err != nil {
			return skipped, err
		}
		if !has {
			break
		}
		if _, err := c.Next(ctx); err != nil {
			return skipped, err
		}
		skipped++
	}
	return skipped, nil
}

func (c *fileCursor[S]) Close() { c.closed = true }
