package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAPDU(t *testing.T) {
	apdu, err := parseAPDU("00 a4:04 00\t")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xa4, 0x04, 0x00}, apdu)

	_, err = parseAPDU("  ")
	assert.ErrorIs(t, err, errEmptyAPDU)

	_, err = parseAPDU("0")
	assert.Error(t, err)
}

func TestFormatResponse(t *testing.T) {
	tests := []struct {
		name string
		resp []byte
		want string
	}{
		{"status only", []byte{0x90, 0x00}, "[90 00]\n"},
		{"short", []byte{0x90}, "90\n"},
		{"binary", []byte{0x01, 0x02, 0x90, 0x00}, "0102 [90 00]\n"},
		{
			"fcp",
			[]byte{0x62, 0x04, 0x83, 0x02, 0x3f, 0x00, 0x90, 0x00},
			"62048302" + "3F00 [90 00]\n{\n\t\"62\": \"83023F00\",\n\t\"62.83\": \"3F00\"\n}\n",
		},
		{
			"broken fci",
			[]byte{0x6f, 0x05, 0x84, 0x01, 0x90, 0x00},
			"6F058401 [90 00]\ndecoding template: tag 6F: no bytes left: want 5, have 2\n",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, formatResponse(test.resp))
		})
	}
}
