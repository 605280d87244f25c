package symfile

import (
	"bytes"
	"debug/elf"
	"fmt"
	"strings"
)

// spliceMode describes how a section tolerates in-place replacement.
type spliceMode int

const (
	// spliceFit allows shorter replacements, NUL-padding the tail. Safe in
	// string tables, where entries are referenced by their start offset.
	spliceFit spliceMode = iota
	// spliceExact requires the replacement to keep the original length.
	// Inline strings in .debug_line and .debug_info are followed directly
	// by ULEB128 fields, so their length cannot change.
	spliceExact
)

// patchTargets lists the sections that hold recorded path strings.
var patchTargets = map[string]spliceMode{
	".debug_str":      spliceFit,
	".debug_line_str": spliceFit,
	".debug_line":     spliceExact,
	".debug_info":     spliceExact,
}

// checkPatchable rejects files whose debug sections cannot be rewritten in
// place.
func checkPatchable(f *elf.File) error {
	for _, sec := range f.Sections {
		if strings.HasPrefix(sec.Name, ".zdebug_") {
			return fmt.Errorf("section %s is zlib compressed, in-place patching is not supported", sec.Name)
		}
		if _, ok := patchTargets[sec.Name]; ok && sec.Flags&elf.SHF_COMPRESSED != 0 {
			return fmt.Errorf("section %s is compressed, in-place patching is not supported", sec.Name)
		}
	}
	return nil
}

// patchSections splices repl over every NUL-delimited occurrence of old in
// the patchable sections of raw, which holds the debug file's bytes.
func patchSections(f *elf.File, raw []byte, old, repl string) (int, error) {
	total := 0
	for _, sec := range f.Sections {
		mode, ok := patchTargets[sec.Name]
		if !ok {
			continue
		}
		start, end := sec.Offset, sec.Offset+sec.FileSize
		if end > uint64(len(raw)) || start > end {
			return total, fmt.Errorf("section %s exceeds file bounds", sec.Name)
		}
		n, err := splice(raw[start:end], old, repl, mode)
		if err != nil {
			return total, fmt.Errorf("section %s: %w", sec.Name, err)
		}
		total += n
	}
	return total, nil
}

// splice replaces every NUL-terminated occurrence of old with repl in data.
// In fit mode an occurrence counts only when it starts the buffer or follows
// a NUL, so suffixes of longer string-table entries are left alone. Exact
// mode matches mid-stream too: inline strings sit directly after abbrev
// codes and ULEB128 fields, with no delimiter before them.
func splice(data []byte, old, repl string, mode spliceMode) (int, error) {
	pattern := append([]byte(old), 0)
	count := 0
	pos := 0
	for {
		j := bytes.Index(data[pos:], pattern)
		if j < 0 {
			break
		}
		at := pos + j
		pos = at + len(pattern)
		if mode == spliceFit && at != 0 && data[at-1] != 0 {
			continue
		}
		if len(repl) > len(old) {
			return count, fmt.Errorf("replacement %q is longer than %q; strings cannot grow in place", repl, old)
		}
		if mode == spliceExact && len(repl) != len(old) {
			return count, fmt.Errorf("replacement %q must keep the length of %q here", repl, old)
		}
		copy(data[at:], repl)
		for k := at + len(repl); k < at+len(old); k++ {
			data[k] = 0
		}
		count++
	}
	return count, nil
}
