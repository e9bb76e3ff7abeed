package badgerstore

import (
	"encoding/binary"
	"fmt"
)

// Key namespaces
//
// Data Type          Prefix  Key Format              Value
// ==========================================================================
// Directory          "d:"    d:<id %020d>            entity.Directory (JSON)
// Directory by path  "dp:"   dp:<path>               id (decimal)
// Client             "c:"    c:<address>             entity.Client (JSON)
// Download record    "dl:"   dl:<id %020d>           entity.DownloadRecord (JSON)
// Upload record      "ul:"   ul:<id %020d>           entity.UploadRecord (JSON)
// Sequences          "seq:"  seq:<kind>              uint64 (big endian)
//
// Zero padded ids keep prefix scans in insertion order.
const (
	prefixDirectory     = "d:"
	prefixDirectoryPath = "dp:"
	prefixClient        = "c:"
	prefixDownload      = "dl:"
	prefixUpload        = "ul:"
	prefixSequence      = "seq:"

	seqDirectory = "directory"
	seqClient    = "client"
	seqDownload  = "download"
	seqUpload    = "upload"
)

func keyDirectory(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixDirectory, id))
}

func keyDirectoryPath(path string) []byte {
	return []byte(prefixDirectoryPath + path)
}

func keyClient(address string) []byte {
	return []byte(prefixClient + address)
}

func keyDownload(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixDownload, id))
}

func keyUpload(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixUpload, id))
}

func keySequence(kind string) []byte {
	return []byte(prefixSequence + kind)
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)

	return buf
}

func decodeUint64(buf []byte) (uint64, error) {
	if len(buf) != 8 {
		return 0, fmt.Errorf("invalid uint64 length: %d", len(buf))
	}

	return binary.BigEndian.Uint64(buf), nil
}
