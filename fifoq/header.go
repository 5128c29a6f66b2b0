package fifoq

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

var (
	fileMagic         = [4]byte{'I', 'Q', 'F', '1'}
	fileHeaderVersion = uint16(1)
)

// fileHeaderLen is the fixed size of the data file header.
const fileHeaderLen = 16

type headerInfo struct {
	Compressed       bool
	CompressionLevel int
}

func writeFileHeader(w io.Writer, info headerInfo) error {
	var flags uint16
	if info.Compressed {
		flags |= 1
	}
	level := uint8(0)
	if info.Compressed {
		level = uint8(info.CompressionLevel)
	}

	buf := make([]byte, 0, fileHeaderLen)
	buf = append(buf, fileMagic[:]...)
	var fixed [12]byte
	binary.LittleEndian.PutUint16(fixed[0:2], fileHeaderVersion)
	binary.LittleEndian.PutUint16(fixed[2:4], flags)
	fixed[4] = level
	// fixed[5:12] reserved
	buf = append(buf, fixed[:]...)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write queue header: %w", err)
	}
	return nil
}

func readFileHeader(f *os.File) (headerInfo, error) {
	buf := make([]byte, fileHeaderLen)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return headerInfo{}, fmt.Errorf("failed to read queue header: %w", err)
	}

	var magic [4]byte
	copy(magic[:], buf[0:4])
	if magic != fileMagic {
		return headerInfo{}, fmt.Errorf("unsupported queue format: invalid header magic")
	}
	version := binary.LittleEndian.Uint16(buf[4:6])
	if version != fileHeaderVersion {
		return headerInfo{}, fmt.Errorf("unsupported queue header version: %d", version)
	}
	flags := binary.LittleEndian.Uint16(buf[6:8])

	return headerInfo{
		Compressed:       (flags & 1) != 0,
		CompressionLevel: int(buf[8]),
	}, nil
}
