package tabular

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	rows, err := Decode(strings.NewReader("name,email\nbob,bob@x.com\nALICE,alice\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"name": "bob", "email": "bob@x.com"}, rows[0])
	assert.Equal(t, Row{"name": "ALICE", "email": "alice"}, rows[1])
}

func TestDecodeTrimsWhitespace(t *testing.T) {
	rows, err := Decode(strings.NewReader(" name , city \n bob , berlin \n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "bob", rows[0]["name"])
	assert.Equal(t, "berlin", rows[0]["city"])
}

func TestDecodeEmptyInput(t *testing.T) {
	rows, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDecodeHeaderOnly(t *testing.T) {
	rows, err := Decode(strings.NewReader("name,email\n"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDecodeMalformed(t *testing.T) {
	// unbalanced quote makes the reader fail
	_, err := Decode(strings.NewReader("name\n\"unterminated\n"))
	assert.Error(t, err)
}

func TestDecodePreservesRowOrder(t *testing.T) {
	rows, err := Decode(strings.NewReader("n\n0\n1\n2\n3\n"))
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for i, row := range rows {
		assert.Equal(t, string(rune('0'+i)), row["n"])
	}
}
