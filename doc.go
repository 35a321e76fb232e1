// Package exr provides a pure-Go implementation of the OpenEXR container format.
//
// It reads and writes single and multi-part scanline and tiled files (including mipmap
// and ripmap levels) with the NONE, RLE, ZIPS, ZIP, PIZ and PXR24 codecs. B44, DWA and
// HTJ2K are recognized in headers but their pixels cannot be decoded. Deep data is
// not supported.
//
// Reading goes through positioned reads on an io.ReaderAt, so chunks may be fetched
// concurrently. Writing needs an io.WriteSeeker: chunks are compressed as they are
// submitted and offset tables are patched in place by Writer.Finalize.
package exr
