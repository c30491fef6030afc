// Compression plug-ins negotiated during the handshake (spec §4.4:
// "compression negotiated via bitmap"). Compressor is the common
// interface; compress_lz4.go and compress_zlib.go provide the two
// concrete implementations the bitmap can select between.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ripc

import "github.com/ripc-core/rtmd/rtderr"

type Compressor interface {
	Compress(dst, src []byte) ([]byte, error)
	Decompress(dst, src []byte) ([]byte, error)
	Bit() CompressionBitmap
}

func NewCompressor(bit CompressionBitmap) (Compressor, error) {
	switch bit {
	case CompressNone:
		return noopCompressor{}, nil
	case CompressLZ4:
		return newLZ4Compressor(), nil
	case CompressZlib:
		return newZlibCompressor(), nil
	default:
		return nil, rtderr.New(rtderr.UnsupportedDataType, int(bit), "unsupported compression bitmap %d", bit)
	}
}

type noopCompressor struct{}

func (noopCompressor) Compress(dst, src []byte) ([]byte, error)   { return append(dst[:0], src...), nil }
func (noopCompressor) Decompress(dst, src []byte) ([]byte, error) { return append(dst[:0], src...), nil }
func (noopCompressor) Bit() CompressionBitmap                     { return CompressNone }
