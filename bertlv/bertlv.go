// Package bertlv decodes the BER-TLV structures returned by a UICC, such as
// the FCP and FCI templates that answer a SELECT.
//
// Decoded values are flattened into a map keyed by the tag path, in hex:
// "62", "62.82", "6F.A5.9F65". Constructed values are stored as is and
// decoded recursively.
package bertlv

import (
	"errors"
	"fmt"
)

const (
	constructedBit = 0x20
	multiByteTag   = 0x1f
	moreBit        = 0x80
	sevenBitMask   = 0x7f

	// maxLengthBytes bounds the long length form to what fits an int.
	maxLengthBytes = 3
)

// Templates returned by SELECT, depending on the P2 requested.
const (
	TagFCP = "62"
	TagFMD = "64"
	TagFCI = "6F"
)

var (
	ErrNoBytesLeft      = errors.New("no bytes left")
	ErrLengthTooLong    = errors.New("length field too long")
	ErrShortResponse    = errors.New("response shorter than a status word")
	ErrIndefiniteLength = errors.New("indefinite length is not supported")
)

// TLVData maps tag paths to values.
type TLVData map[string][]byte

// decoder walks one level of BER-TLV data.
type decoder struct {
	data []byte
}

// Parse decodes data into values, creating values when nil.
func Parse(data []byte, values TLVData) (TLVData, error) {
	if values == nil {
		values = TLVData{}
	}
	d := &decoder{data: data}
	return values, d.decode("", values)
}

func (d *decoder) readByte() (byte, error) {
	if len(d.data) == 0 {
		return 0, ErrNoBytesLeft
	}
	b := d.data[0]
	d.data = d.data[1:]
	return b, nil
}

func (d *decoder) readBytes(n int) ([]byte, error) {
	if len(d.data) < n {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrNoBytesLeft, n, len(d.data))
	}
	v := d.data[:n:n]
	d.data = d.data[n:]
	return v, nil
}

// tag reads a tag and returns its hex form and whether it is constructed.
func (d *decoder) tag() (string, bool, error) {
	first, err := d.readByte()
	if err != nil {
		return "", false, err
	}
	tag := fmt.Sprintf("%02X", first)
	if first&multiByteTag != multiByteTag {
		return tag, first&constructedBit != 0, nil
	}
	for {
		b, err := d.readByte()
		if err != nil {
			return "", false, err
		}
		tag += fmt.Sprintf("%02X", b)
		if b&moreBit == 0 {
			return tag, first&constructedBit != 0, nil
		}
	}
}

func (d *decoder) length() (int, error) {
	b, err := d.readByte()
	if err != nil {
		return 0, err
	}
	if b&moreBit == 0 {
		return int(b), nil
	}

	n := int(b & sevenBitMask)
	switch {
	case n == 0:
		return 0, ErrIndefiniteLength
	case n > maxLengthBytes:
		return 0, fmt.Errorf("%w: %d bytes", ErrLengthTooLong, n)
	}
	l := 0
	for i := 0; i < n; i++ {
		b, err := d.readByte()
		if err != nil {
			return 0, err
		}
		l = l<<8 | int(b)
	}
	return l, nil
}

func (d *decoder) decode(prefix string, values TLVData) error {
	for len(d.data) > 0 {
		// Padding between objects.
		if d.data[0] == 0x00 || d.data[0] == 0xff {
			d.data = d.data[1:]
			continue
		}

		tag, constructed, err := d.tag()
		if err != nil {
			return err
		}
		l, err := d.length()
		if err != nil {
			return fmt.Errorf("tag %s: %w", tag, err)
		}
		value, err := d.readBytes(l)
		if err != nil {
			return fmt.Errorf("tag %s: %w", tag, err)
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		values[key] = value

		if constructed {
			inner := &decoder{data: value}
			if err := inner.decode(key, values); err != nil {
				return err
			}
		}
	}
	return nil
}

// StatusWord is the SW1 SW2 trailer of a response APDU.
type StatusWord uint16

// OK reports 90 00 and the 91 xx proactive command pending variant.
func (s StatusWord) OK() bool {
	return s == 0x9000 || s>>8 == 0x91
}

func (s StatusWord) String() string {
	return fmt.Sprintf("%02X %02X", byte(s>>8), byte(s))
}

// SplitResponse separates a response APDU into its body and status word.
func SplitResponse(resp []byte) ([]byte, StatusWord, error) {
	if len(resp) < 2 {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(resp))
	}
	n := len(resp) - 2
	return resp[:n], StatusWord(resp[n])<<8 | StatusWord(resp[n+1]), nil
}

// ParseResponse decodes the body of a response APDU. A body that is not
// BER-TLV, such as the output of READ BINARY, is returned as an error with
// the status word still valid.
func ParseResponse(resp []byte) (TLVData, StatusWord, error) {
	body, sw, err := SplitResponse(resp)
	if err != nil {
		return nil, 0, err
	}
	values, err := Parse(body, nil)
	return values, sw, err
}
