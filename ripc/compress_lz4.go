// lz4 block compression, picked by Negotiate when both endpoints offer
// CompressLZ4 — the lower-latency option spec §4.4 calls for preferring
// when available.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ripc

import (
	"github.com/pierrec/lz4/v3"

	"github.com/ripc-core/rtmd/rtderr"
)

type lz4Compressor struct {
	hashTable []int
}

func newLZ4Compressor() *lz4Compressor {
	return &lz4Compressor{hashTable: make([]int, 1<<16)}
}

func (c *lz4Compressor) Compress(dst, src []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(src))
	if cap(dst) < bound {
		dst = make([]byte, bound)
	}
	dst = dst[:bound]
	n, err := lz4.CompressBlock(src, dst, c.hashTable)
	if err != nil {
		return nil, rtderr.Wrap(rtderr.Failure, 0, err, "lz4 compress")
	}
	if n == 0 {
		// incompressible: lz4.CompressBlock returns n==0 when the block
		// would not shrink; falling back to storing it uncompressed is
		// the caller's job, by leaving StdFlagCompressed unset.
		return nil, rtderr.New(rtderr.Failure, 0, "lz4: block incompressible")
	}
	return dst[:n], nil
}

func (c *lz4Compressor) Decompress(dst, src []byte) ([]byte, error) {
	if cap(dst) == 0 {
		dst = make([]byte, len(src)*4)
	}
	for {
		n, err := lz4.UncompressBlock(src, dst)
		if err == nil {
			return dst[:n], nil
		}
		if err == lz4.ErrInvalidSourceShortBuffer {
			dst = make([]byte, len(dst)*2)
			continue
		}
		return nil, rtderr.Wrap(rtderr.InvalidData, 0, err, "lz4 decompress")
	}
}

func (c *lz4Compressor) Bit() CompressionBitmap { return CompressLZ4 }
