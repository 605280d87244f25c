package elftest

import (
	"bytes"
	"debug/dwarf"
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugELFParses(t *testing.T) {
	f, err := elf.NewFile(bytes.NewReader(DebugELF()))
	require.NoError(t, err)
	defer f.Close()

	require.NotNil(t, f.Section(".debug_info"))
	require.NotNil(t, f.Section(".debug_line"))

	d, err := f.DWARF()
	require.NoError(t, err)

	r := d.Reader()
	entry, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, dwarf.TagCompileUnit, entry.Tag)

	assert.Equal(t, CUName, entry.Val(dwarf.AttrName))
	assert.Equal(t, CompDir, entry.Val(dwarf.AttrCompDir))

	lr, err := d.LineReader(entry)
	require.NoError(t, err)
	require.NotNil(t, lr)

	var names []string
	for _, file := range lr.Files() {
		if file != nil {
			names = append(names, file.Name)
		}
	}
	assert.Equal(t, []string{SrcApp, SrcUtil}, names)
}

func TestDebugELFSharedStrParses(t *testing.T) {
	f, err := elf.NewFile(bytes.NewReader(DebugELFSharedStr()))
	require.NoError(t, err)
	defer f.Close()

	d, err := f.DWARF()
	require.NoError(t, err)

	entry, err := d.Reader().Next()
	require.NoError(t, err)
	require.NotNil(t, entry)

	// The comp dir reads back normally even though its bytes share the
	// tail of a longer string-table entry.
	assert.Equal(t, CompDir, entry.Val(dwarf.AttrCompDir))

	sec := f.Section(".debug_str")
	require.NotNil(t, sec)
	data, err := sec.Data()
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{0}, "X"+CompDir...), 0), data)
}

func TestStrippedBinaryCarriesDebugLink(t *testing.T) {
	debug := DebugELF()
	f, err := elf.NewFile(bytes.NewReader(StrippedBinary(DebugLinkName, debug)))
	require.NoError(t, err)
	defer f.Close()

	sec := f.Section(".gnu_debuglink")
	require.NotNil(t, sec)

	data, err := sec.Data()
	require.NoError(t, err)
	assert.Equal(t, DebugLinkName, string(data[:len(DebugLinkName)]))
	assert.Len(t, data, 12) // 8 bytes padded name + 4 bytes CRC

	assert.Nil(t, f.Section(".debug_info"))
}

func TestBareBinary(t *testing.T) {
	f, err := elf.NewFile(bytes.NewReader(BareBinary()))
	require.NoError(t, err)
	defer f.Close()

	assert.Nil(t, f.Section(".gnu_debuglink"))
	assert.Nil(t, f.Section(".debug_info"))
}
