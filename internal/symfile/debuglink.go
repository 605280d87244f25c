package symfile

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
)

// globalDebugDir is where distributions install detached debug files.
const globalDebugDir = "/usr/lib/debug"

// debugLink is the decoded .gnu_debuglink payload: the companion file name
// and the CRC-32/IEEE of its contents, plus the offsets needed to rewrite
// the checksum in place.
type debugLink struct {
	name   string
	crc    uint32
	secOff uint64 // file offset of the section payload
	crcOff int    // offset of the CRC within the payload
}

// readDebugLink returns the binary's debuglink, or nil when it has none.
func readDebugLink(f *elf.File) (*debugLink, error) {
	sec := f.Section(".gnu_debuglink")
	if sec == nil {
		return nil, nil
	}
	data, err := sec.Data()
	if err != nil {
		return nil, fmt.Errorf("read .gnu_debuglink: %w", err)
	}
	link, err := parseDebugLink(data, f.ByteOrder)
	if err != nil {
		return nil, err
	}
	link.secOff = sec.Offset
	return link, nil
}

func parseDebugLink(data []byte, order binary.ByteOrder) (*debugLink, error) {
	i := bytes.IndexByte(data, 0)
	if i <= 0 {
		return nil, fmt.Errorf(".gnu_debuglink carries no file name")
	}
	// Name plus terminator is padded to a four-byte boundary before the CRC.
	crcOff := (i + 4) &^ 3
	if crcOff+4 > len(data) {
		return nil, fmt.Errorf(".gnu_debuglink is truncated")
	}
	return &debugLink{
		name:   string(data[:i]),
		crc:    order.Uint32(data[crcOff : crcOff+4]),
		crcOff: crcOff,
	}, nil
}

// companionCandidates lists the paths searched for a companion file, in
// GDB's order: next to the binary, in a .debug subdirectory, then under the
// global debug directory keyed by the binary's absolute location.
func companionCandidates(binaryPath, name string) []string {
	dir := filepath.Dir(binaryPath)
	absDir := dir
	if a, err := filepath.Abs(dir); err == nil {
		absDir = a
	}
	return []string{
		filepath.Join(dir, name),
		filepath.Join(dir, ".debug", name),
		filepath.Join(globalDebugDir, absDir, name),
	}
}

// resolveCompanion returns the first existing companion candidate.
func (p *Patcher) resolveCompanion(binaryPath string, link *debugLink) (string, bool) {
	for _, cand := range companionCandidates(binaryPath, link.name) {
		info, err := os.Stat(cand)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if data, err := os.ReadFile(cand); err == nil && crc32.ChecksumIEEE(data) != link.crc {
			// A stale checksum usually means the companion was already
			// rewritten once; still usable.
			p.logger.Warn().Str("file", cand).Msg("debuglink checksum mismatch")
		}
		return cand, true
	}
	return "", false
}

// patchDebugLinkCRC rewrites the four checksum bytes of the binary's
// .gnu_debuglink section in place.
func patchDebugLinkCRC(bin []byte, link *debugLink, order binary.ByteOrder, crc uint32) error {
	pos := int(link.secOff) + link.crcOff
	if pos < 0 || pos+4 > len(bin) {
		return fmt.Errorf(".gnu_debuglink checksum lies outside the file")
	}
	order.PutUint32(bin[pos:pos+4], crc)
	return nil
}
