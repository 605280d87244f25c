package symfile

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDebugLink(t *testing.T) {
	t.Run("name and checksum", func(t *testing.T) {
		// "app.dbg" + NUL, already four-byte aligned at 8, then the CRC.
		data := []byte("app.dbg\x00\x78\x56\x34\x12")

		link, err := parseDebugLink(data, binary.LittleEndian)
		require.NoError(t, err)
		assert.Equal(t, "app.dbg", link.name)
		assert.Equal(t, uint32(0x12345678), link.crc)
		assert.Equal(t, 8, link.crcOff)
	})

	t.Run("padded name", func(t *testing.T) {
		data := []byte("lib.debug\x00\x00\x00\x01\x00\x00\x00")

		link, err := parseDebugLink(data, binary.LittleEndian)
		require.NoError(t, err)
		assert.Equal(t, "lib.debug", link.name)
		assert.Equal(t, 12, link.crcOff)
		assert.Equal(t, uint32(1), link.crc)
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := parseDebugLink([]byte{0, 1, 2, 3, 4}, binary.LittleEndian)
		require.Error(t, err)
	})

	t.Run("truncated checksum", func(t *testing.T) {
		_, err := parseDebugLink([]byte("app.dbg\x00\x01"), binary.LittleEndian)
		require.Error(t, err)
	})
}

func TestPatchDebugLinkCRC(t *testing.T) {
	buf := make([]byte, 32)
	link := &debugLink{secOff: 16, crcOff: 8}

	require.NoError(t, patchDebugLinkCRC(buf, link, binary.LittleEndian, 0xdeadbeef))
	assert.Equal(t, uint32(0xdeadbeef), binary.LittleEndian.Uint32(buf[24:28]))

	short := make([]byte, 20)
	require.Error(t, patchDebugLinkCRC(short, link, binary.LittleEndian, 1))
}

func TestResolveCompanion(t *testing.T) {
	p := NewPatcher(zerolog.Nop())

	t.Run("same directory first", func(t *testing.T) {
		dir := t.TempDir()
		companion := filepath.Join(dir, "app.dbg")
		require.NoError(t, os.WriteFile(companion, []byte("debug"), 0o644))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, ".debug"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".debug", "app.dbg"), []byte("other"), 0o644))

		got, ok := p.resolveCompanion(filepath.Join(dir, "app"), &debugLink{name: "app.dbg"})
		require.True(t, ok)
		assert.Equal(t, companion, got)
	})

	t.Run("falls back to .debug subdirectory", func(t *testing.T) {
		dir := t.TempDir()
		companion := filepath.Join(dir, ".debug", "app.dbg")
		require.NoError(t, os.MkdirAll(filepath.Dir(companion), 0o755))
		require.NoError(t, os.WriteFile(companion, []byte("debug"), 0o644))

		got, ok := p.resolveCompanion(filepath.Join(dir, "app"), &debugLink{name: "app.dbg"})
		require.True(t, ok)
		assert.Equal(t, companion, got)
	})

	t.Run("global directory uses the absolute binary location", func(t *testing.T) {
		wd, err := os.Getwd()
		require.NoError(t, err)

		cands := companionCandidates(filepath.Join(".", "dist", "app"), "app.dbg")
		require.Len(t, cands, 3)
		assert.Equal(t, filepath.Join(globalDebugDir, wd, "dist", "app.dbg"), cands[2])
	})

	t.Run("not found", func(t *testing.T) {
		dir := t.TempDir()
		_, ok := p.resolveCompanion(filepath.Join(dir, "app"), &debugLink{name: "app.dbg"})
		assert.False(t, ok)
	})
}
