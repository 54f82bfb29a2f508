package bertlv

import (
	"encoding/hex"
	"go/format"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()

	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	require.NoError(t, err)
	return b
}

func TestParseNested(t *testing.T) {
	t.Parallel()

	data := []byte{0x65, 0x09, 0x5b, 0x00, 0x5f, 0x2d, 0x00, 0x5f, 0x35, 0x01, 0x39}
	values, err := Parse(data, nil)
	require.NoError(t, err)

	assert.Equal(t, TLVData{
		"65":      data[2:],
		"65.5B":   {},
		"65.5F2D": {},
		"65.5F35": {0x39},
	}, values)
}

func TestParseFCP(t *testing.T) {
	t.Parallel()

	// SELECT MF, P2=04.
	resp := mustHex(t, "62 1A 82 02 78 21 83 02 3F 00 A5 03 80 01 71 8A 01 05 8B 03 2F 06 02 C6 03 90 01 40 90 00")
	values, sw, err := ParseResponse(resp)
	require.NoError(t, err)

	assert.True(t, sw.OK())
	assert.Equal(t, "90 00", sw.String())
	assert.Equal(t, "7821", values.Hex()["62.82"])
	assert.Equal(t, []byte{0x3f, 0x00}, values["62.83"])
	assert.Equal(t, []byte{0x71}, values["62.A5.80"])
	assert.Equal(t, []byte{0x90, 0x01, 0x40}, values["62.C6"])
	assert.Equal(t, []byte{0x05}, values["62.8A"])
}

func TestParseFCI(t *testing.T) {
	t.Parallel()

	// SELECT by AID.
	resp := mustHex(t, "6F 10 84 08 A0 00 00 01 51 00 00 00 A5 04 9F 65 01 FF 90 00")
	values, sw, err := ParseResponse(resp)
	require.NoError(t, err)

	assert.Equal(t, StatusWord(0x9000), sw)
	assert.Equal(t, mustHex(t, "A0 00 00 01 51 00 00 00"), values["6F.84"])
	assert.Equal(t, []byte{0xff}, values["6F.A5.9F65"])
}

func TestParseLongLength(t *testing.T) {
	t.Parallel()

	value := make([]byte, 200)
	data := append([]byte{0x53, 0x81, 200}, value...)
	values, err := Parse(data, nil)
	require.NoError(t, err)
	assert.Len(t, values["53"], 200)

	data = append([]byte{0x53, 0x82, 0x00, 200}, value...)
	values, err = Parse(data, nil)
	require.NoError(t, err)
	assert.Len(t, values["53"], 200)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"missing length", []byte{0x62}, ErrNoBytesLeft},
		{"short value", []byte{0x82, 0x02, 0x78}, ErrNoBytesLeft},
		{"truncated tag", []byte{0x5f}, ErrNoBytesLeft},
		{"indefinite", []byte{0x62, 0x80}, ErrIndefiniteLength},
		{"length too long", []byte{0x62, 0x84, 0x00, 0x00, 0x00, 0x01}, ErrLengthTooLong},
		{"nested short value", []byte{0x62, 0x03, 0x82, 0x02, 0x78}, ErrNoBytesLeft},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(test.data, nil)
			assert.ErrorIs(t, err, test.want)
		})
	}
}

func TestParsePadding(t *testing.T) {
	t.Parallel()

	values, err := Parse([]byte{0x00, 0x8a, 0x01, 0x05, 0xff, 0xff}, TLVData{"x": nil})
	require.NoError(t, err)
	assert.Equal(t, TLVData{"x": nil, "8A": {0x05}}, values)
}

func TestStatusWord(t *testing.T) {
	t.Parallel()

	_, _, err := SplitResponse([]byte{0x90})
	assert.ErrorIs(t, err, ErrShortResponse)

	body, sw, err := SplitResponse([]byte{0x6a, 0x82})
	require.NoError(t, err)
	assert.Empty(t, body)
	assert.False(t, sw.OK())
	assert.Equal(t, "6A 82", sw.String())

	_, sw, err = SplitResponse([]byte{0x01, 0x91, 0x10})
	require.NoError(t, err)
	assert.True(t, sw.OK())
}

func TestMakeJSONString(t *testing.T) {
	t.Parallel()

	out := MakeJSONString(TLVData{"62.83": {0x3f, 0x00}}.Hex())
	assert.Equal(t, "{\n\t\"62.83\": \"3F00\"\n}", out)
	assert.Contains(t, MakeJSONString(func() {}), "error")
}

func TestSourceFormatted(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"bertlv.go", "utils.go"} {
		src, err := os.ReadFile(name)
		require.NoError(t, err)

		formatted, err := format.Source(src)
		require.NoError(t, err)
		assert.Equal(t, string(formatted), string(src), "%s is not gofmt formatted", name)
	}
}
