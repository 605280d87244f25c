// Package elftest builds small ELF objects with handwritten DWARF data.
// The fixtures carry known source paths so tests can exercise path
// enumeration and in-place patching without shipping binary testdata.
package elftest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
)

// Source paths recorded in the DWARF data produced by DebugELF.
const (
	CUName  = "a.c"
	CompDir = "/b/dir-one"
	SrcApp  = "/b/src/app.c"
	SrcUtil = "/b/src/util.c"

	// DebugLinkName is the companion file name embedded by StrippedBinary.
	DebugLinkName = "app.dbg"
)

const (
	shtProgbits = 1
	shtStrtab   = 3
)

type section struct {
	name string
	typ  uint32
	data []byte
}

// DebugELF returns an ELF object whose DWARF sections record CUName and
// CompDir in the compilation unit and SrcApp/SrcUtil in the line table.
// CompDir lives in .debug_str (DW_FORM_strp), the file names inline in
// .debug_line, CUName inline in .debug_info.
func DebugELF() []byte {
	return build([]section{
		{".text", shtProgbits, []byte{0xc3}},
		{".debug_abbrev", shtProgbits, abbrevBytes()},
		{".debug_info", shtProgbits, infoBytes(1)},
		{".debug_line", shtProgbits, lineBytes()},
		{".debug_str", shtProgbits, strBytes()},
	})
}

// DebugELFSharedStr is DebugELF with CompDir stored as the tail of a longer
// .debug_str entry, the layout linkers emit after merging string suffixes.
// The comp dir still reads back as CompDir but is not NUL-delimited in the
// section bytes.
func DebugELFSharedStr() []byte {
	var str bytes.Buffer
	str.WriteByte(0)
	str.WriteString("X" + CompDir)
	str.WriteByte(0)
	return build([]section{
		{".text", shtProgbits, []byte{0xc3}},
		{".debug_abbrev", shtProgbits, abbrevBytes()},
		{".debug_info", shtProgbits, infoBytes(2)},
		{".debug_line", shtProgbits, lineBytes()},
		{".debug_str", shtProgbits, str.Bytes()},
	})
}

// StrippedBinary returns an ELF without debug sections whose .gnu_debuglink
// names the companion file and carries the IEEE CRC of its contents.
func StrippedBinary(name string, debug []byte) []byte {
	return build([]section{
		{".text", shtProgbits, []byte{0xc3}},
		{".gnu_debuglink", shtProgbits, debugLinkBytes(name, crc32.ChecksumIEEE(debug))},
	})
}

// BareBinary returns an ELF with neither debug sections nor a debuglink.
func BareBinary() []byte {
	return build([]section{
		{".text", shtProgbits, []byte{0xc3}},
	})
}

// abbrevBytes encodes a single abbreviation: a childless compile unit with
// DW_AT_name (DW_FORM_string), DW_AT_comp_dir (DW_FORM_strp) and
// DW_AT_stmt_list (DW_FORM_sec_offset).
func abbrevBytes() []byte {
	return []byte{
		0x01,       // abbrev code 1
		0x11,       // DW_TAG_compile_unit
		0x00,       // DW_CHILDREN_no
		0x03, 0x08, // DW_AT_name, DW_FORM_string
		0x1b, 0x0e, // DW_AT_comp_dir, DW_FORM_strp
		0x10, 0x17, // DW_AT_stmt_list, DW_FORM_sec_offset
		0x00, 0x00, // end of attributes
		0x00, // end of abbreviations
	}
}

// infoBytes encodes one DWARF4 compilation unit referencing the line table
// at offset 0 and the comp dir at the given .debug_str offset.
func infoBytes(compDirOff uint32) []byte {
	var body bytes.Buffer
	le := binary.LittleEndian

	var tmp [4]byte
	le.PutUint16(tmp[:2], 4) // version
	body.Write(tmp[:2])
	le.PutUint32(tmp[:], 0) // abbrev table offset
	body.Write(tmp[:])
	body.WriteByte(8) // address size

	body.WriteByte(0x01) // abbrev code 1
	body.WriteString(CUName)
	body.WriteByte(0)
	le.PutUint32(tmp[:], compDirOff) // DW_AT_comp_dir: .debug_str offset
	body.Write(tmp[:])
	le.PutUint32(tmp[:], 0) // DW_AT_stmt_list: .debug_line offset
	body.Write(tmp[:])

	var out bytes.Buffer
	le.PutUint32(tmp[:], uint32(body.Len())) // unit length
	out.Write(tmp[:])
	out.Write(body.Bytes())
	return out.Bytes()
}

// lineBytes encodes a DWARF2 line program header listing SrcApp and
// SrcUtil, followed by a bare end-of-sequence.
func lineBytes() []byte {
	var hdr bytes.Buffer
	hdr.Write([]byte{
		1,    // minimum instruction length
		1,    // default is_stmt
		0xfb, // line base (-5)
		14,   // line range
		1,    // opcode base (no standard opcodes)
	})
	hdr.WriteByte(0) // empty include directory table
	for _, name := range []string{SrcApp, SrcUtil} {
		hdr.WriteString(name)
		hdr.WriteByte(0)
		hdr.Write([]byte{0, 0, 0}) // dir index, mtime, length
	}
	hdr.WriteByte(0) // end of file table

	prog := []byte{0, 1, 1} // DW_LNE_end_sequence

	le := binary.LittleEndian
	var tmp [4]byte
	var out bytes.Buffer
	le.PutUint32(tmp[:], uint32(2+4+hdr.Len()+len(prog))) // unit length
	out.Write(tmp[:])
	le.PutUint16(tmp[:2], 2) // version
	out.Write(tmp[:2])
	le.PutUint32(tmp[:], uint32(hdr.Len())) // header length
	out.Write(tmp[:])
	out.Write(hdr.Bytes())
	out.Write(prog)
	return out.Bytes()
}

func strBytes() []byte {
	var b bytes.Buffer
	b.WriteByte(0)
	b.WriteString(CompDir)
	b.WriteByte(0)
	return b.Bytes()
}

// debugLinkBytes encodes a .gnu_debuglink payload: NUL-terminated name
// padded to four bytes, then the companion CRC.
func debugLinkBytes(name string, crc uint32) []byte {
	var b bytes.Buffer
	b.WriteString(name)
	b.WriteByte(0)
	for b.Len()%4 != 0 {
		b.WriteByte(0)
	}
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], crc)
	b.Write(tmp[:])
	return b.Bytes()
}

// build assembles a minimal ELF64 little-endian file: header, section data,
// then the section header table. A NULL section and .shstrtab are added.
func build(secs []section) []byte {
	shstr := &bytes.Buffer{}
	shstr.WriteByte(0)
	nameOff := func(name string) uint32 {
		off := uint32(shstr.Len())
		shstr.WriteString(name)
		shstr.WriteByte(0)
		return off
	}

	type header struct {
		nameOff uint32
		typ     uint32
		offset  uint64
		size    uint64
	}

	const ehsize = 64
	headers := make([]header, 0, len(secs)+2)
	headers = append(headers, header{}) // SHT_NULL

	var data bytes.Buffer
	for _, s := range secs {
		headers = append(headers, header{
			nameOff: nameOff(s.name),
			typ:     s.typ,
			offset:  uint64(ehsize + data.Len()),
			size:    uint64(len(s.data)),
		})
		data.Write(s.data)
	}

	shstrName := nameOff(".shstrtab")
	headers = append(headers, header{
		nameOff: shstrName,
		typ:     shtStrtab,
		offset:  uint64(ehsize + data.Len()),
		size:    uint64(shstr.Len()),
	})
	data.Write(shstr.Bytes())

	for data.Len()%8 != 0 {
		data.WriteByte(0)
	}
	shoff := uint64(ehsize + data.Len())

	le := binary.LittleEndian
	var out bytes.Buffer

	ident := make([]byte, 16)
	copy(ident, []byte{0x7f, 'E', 'L', 'F', 2, 1, 1})
	out.Write(ident)

	var tmp [8]byte
	writeU16 := func(v uint16) { le.PutUint16(tmp[:2], v); out.Write(tmp[:2]) }
	writeU32 := func(v uint32) { le.PutUint32(tmp[:4], v); out.Write(tmp[:4]) }
	writeU64 := func(v uint64) { le.PutUint64(tmp[:8], v); out.Write(tmp[:8]) }

	writeU16(2)    // e_type: ET_EXEC
	writeU16(0x3e) // e_machine: EM_X86_64
	writeU32(1)    // e_version
	writeU64(0)    // e_entry
	writeU64(0)    // e_phoff
	writeU64(shoff)
	writeU32(0)      // e_flags
	writeU16(ehsize) // e_ehsize
	writeU16(0)      // e_phentsize
	writeU16(0)      // e_phnum
	writeU16(64)     // e_shentsize
	writeU16(uint16(len(headers)))
	writeU16(uint16(len(headers) - 1)) // e_shstrndx

	out.Write(data.Bytes())

	for i, h := range headers {
		writeU32(h.nameOff)
		writeU32(h.typ)
		writeU64(0) // sh_flags
		writeU64(0) // sh_addr
		writeU64(h.offset)
		writeU64(h.size)
		writeU32(0) // sh_link
		writeU32(0) // sh_info
		if i == 0 {
			writeU64(0)
		} else {
			writeU64(1) // sh_addralign
		}
		writeU64(0) // sh_entsize
	}

	return out.Bytes()
}
