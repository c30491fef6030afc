// zlib stream compression, picked by Negotiate when lz4 isn't offered by
// both sides — better compression ratio at higher CPU cost (spec §4.4).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ripc

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/ripc-core/rtmd/rtderr"
)

type zlibCompressor struct{}

func newZlibCompressor() *zlibCompressor { return &zlibCompressor{} }

func (c *zlibCompressor) Compress(dst, src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, rtderr.Wrap(rtderr.Failure, 0, err, "zlib compress")
	}
	if err := w.Close(); err != nil {
		return nil, rtderr.Wrap(rtderr.Failure, 0, err, "zlib compress: close")
	}
	return buf.Bytes(), nil
}

func (c *zlibCompressor) Decompress(dst, src []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, rtderr.Wrap(rtderr.InvalidData, 0, err, "zlib decompress: open")
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, rtderr.Wrap(rtderr.InvalidData, 0, err, "zlib decompress")
	}
	return out, nil
}

func (c *zlibCompressor) Bit() CompressionBitmap { return CompressZlib }
