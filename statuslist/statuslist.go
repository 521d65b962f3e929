// Package statuslist decodes the 2-bit-per-credential revocation bitstring
// published in an issuer's status list document.
package statuslist

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
)

// Status is the decoded state of a single status list entry.
type Status string

const (
	Active    Status = "ACTIVE"
	Resumed   Status = "RESUMED"
	Suspended Status = "SUSPENDED"
	Revoked   Status = "REVOKED"
)

// statusTable maps a 2-bit entry value to its Status.
var statusTable = [4]Status{Active, Resumed, Suspended, Revoked}

type DecodeError struct {
	msg string
}

func (d *DecodeError) Error() string {
	return d.msg
}

func (d *DecodeError) Is(err error) bool {
	_, ok := err.(*DecodeError)
	return ok
}

// Decode reads the entry starting at bit index from the bitstring and maps
// it through the fixed table {00: ACTIVE, 01: RESUMED, 10: SUSPENDED,
// 11: REVOKED}. Bits are numbered MSB-first within each byte. Entries are
// two bits wide, so index and index+1 must both fall inside the list.
func Decode(list []byte, index uint) (Status, error) {
	if index+1 >= uint(len(list))*8 {
		return "", &DecodeError{fmt.Sprintf("status index %d out of range for %d-byte list", index, len(list))}
	}
	value := bit(list, index)<<1 | bit(list, index+1)
	return statusTable[value], nil
}

func bit(list []byte, i uint) byte {
	return (list[i/8] >> (7 - i%8)) & 1
}

// DecompressEncodedList decodes a base64url-encoded, gzip-compressed
// status list into its raw bitstring.
func DecompressEncodedList(encoded string) ([]byte, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &DecodeError{fmt.Sprintf("encoded list is not valid base64url: %v", err)}
	}
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, &DecodeError{fmt.Sprintf("encoded list is not valid gzip: %v", err)}
	}
	defer gz.Close()
	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, &DecodeError{fmt.Sprintf("failed to decompress encoded list: %v", err)}
	}
	return raw, nil
}
