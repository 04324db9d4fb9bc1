package layers

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	errs "github.com/bibin-skaria/rootfs/internal/errors"
)

// Compression is the detected codec of a layer byte-stream.
type Compression int

const (
	Uncompressed Compression = iota
	Gzip
	Zstd
	Xz
	Bzip2
)

var compressionMagic = map[Compression][]byte{
	Gzip:  {0x1F, 0x8B, 0x08},
	Zstd:  {0x28, 0xB5, 0x2F, 0xFD},
	Xz:    {0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00},
	Bzip2: {0x42, 0x5A, 0x68},
}

// DetectCompression sniffs the codec from the first bytes of a stream.
func DetectCompression(header []byte) Compression {
	for compression, magic := range compressionMagic {
		if bytes.HasPrefix(header, magic) {
			return compression
		}
	}
	return Uncompressed
}

// DecompressStream wraps a layer byte-stream with the decompressor its leading
// magic bytes call for. Plain tar streams pass through untouched.
func DecompressStream(r io.Reader) (io.Reader, error) {
	buf := bufio.NewReader(r)
	header, err := buf.Peek(6)
	if err != nil && err != io.EOF {
		return nil, errs.NewMalformedArchiveError("sniff layer stream", "", err)
	}

	switch DetectCompression(header) {
	case Gzip:
		gz, err := gzip.NewReader(buf)
		if err != nil {
			return nil, errs.NewMalformedArchiveError("open gzip stream", "", err)
		}
		return gz, nil
	case Zstd:
		zr, err := zstd.NewReader(buf)
		if err != nil {
			return nil, errs.NewMalformedArchiveError("open zstd stream", "", err)
		}
		return zr.IOReadCloser(), nil
	case Xz:
		xr, err := xz.NewReader(buf)
		if err != nil {
			return nil, errs.NewMalformedArchiveError("open xz stream", "", err)
		}
		return xr, nil
	case Bzip2:
		return bzip2.NewReader(buf), nil
	default:
		return buf, nil
	}
}

// EntryReader presents a decoded layer as a uniform sequence of entries,
// independent of the stream's compression.
type EntryReader struct {
	tr *tar.Reader
}

// NewEntryReader opens a layer byte-stream, detecting compression
// transparently.
func NewEntryReader(r io.Reader) (*EntryReader, error) {
	decompressed, err := DecompressStream(r)
	if err != nil {
		return nil, err
	}
	return &EntryReader{tr: tar.NewReader(decompressed)}, nil
}

// Next returns the next entry, or io.EOF when the layer is exhausted.
func (er *EntryReader) Next() (*Entry, error) {
	header, err := er.tr.Next()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errs.NewMalformedArchiveError("read tar entry", "", err)
	}

	entry := &Entry{
		Name:     header.Name,
		Linkname: header.Linkname,
		Mode:     os.FileMode(header.Mode) & modeMask,
	}

	switch header.Typeflag {
	case tar.TypeReg:
		entry.Kind = KindRegular
		entry.Body = er.tr
	case tar.TypeDir:
		entry.Kind = KindDirectory
	case tar.TypeSymlink:
		entry.Kind = KindSymlink
	case tar.TypeLink:
		entry.Kind = KindHardlink
	default:
		entry.Kind = KindOther
	}

	return entry, nil
}
