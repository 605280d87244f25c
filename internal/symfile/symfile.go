// Package symfile rewrites source-file paths recorded in the DWARF data of
// an ELF binary or its split debug companion.
//
// Decoding is delegated to debug/elf and debug/dwarf. Neither supports
// writing, so replacements are spliced into the raw section bytes in place;
// rewritten paths are therefore bounded by the length of the originals.
// When a companion file changes, the CRC stored in the binary's
// .gnu_debuglink section is updated to match.
package symfile

import (
	"bytes"
	"debug/elf"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/symtools/sympatch/internal/errors"
	"github.com/symtools/sympatch/internal/rewrite"
	"github.com/symtools/sympatch/internal/safe"
)

// maxBackupSize bounds the size of .bak copies.
const maxBackupSize = 1 << 30

// Patcher applies path-rewrite rules to debug symbol files.
type Patcher struct {
	logger zerolog.Logger
}

// NewPatcher creates a patcher logging through the given logger.
func NewPatcher(logger zerolog.Logger) *Patcher {
	return &Patcher{logger: logger}
}

// Options describe a single patch operation.
type Options struct {
	// Input is the binary whose debug symbols are patched.
	Input string
	// Output is where the patched binary is written. Empty means in place.
	// A patched companion follows the output to its directory.
	Output string
	// Rule transforms each recorded source path.
	Rule rewrite.Rule
	// DryRun computes the rewrites without writing anything.
	DryRun bool
	// Backup keeps a .bak copy of each file before it is rewritten in place.
	Backup bool
}

// Report describes what a patch operation found and did.
type Report struct {
	Binary     string
	DebugFile  string            // file holding the debug data, empty when skipped
	Companion  bool              // DebugFile is a split companion
	Skipped    bool              // no debug data found, nothing written
	Paths      []string          // every recorded source path
	Rewritten  map[string]string // old path -> new path
	Patched    int               // string occurrences spliced
	CRCUpdated bool              // binary debuglink checksum was rewritten
}

// debugSource is the located DWARF-bearing file for a binary.
type debugSource struct {
	path string
	data []byte
	link *debugLink // non-nil when path is a split companion
}

// findDebugSource locates the debug data for a binary: the companion named
// by .gnu_debuglink when present, else the binary's own .debug_* sections.
// Returns nil when the binary has neither.
func (p *Patcher) findDebugSource(input string, binData []byte, bf *elf.File) (*debugSource, error) {
	link, err := readDebugLink(bf)
	if err != nil {
		return nil, err
	}
	if link != nil {
		path, ok := p.resolveCompanion(input, link)
		if !ok {
			p.logger.Warn().
				Str("file", input).
				Str("debuglink", link.name).
				Msg("companion debug file not found")
			return nil, nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read debug file: %w", err)
		}
		return &debugSource{path: path, data: data, link: link}, nil
	}
	if hasDebugSections(bf) {
		return &debugSource{path: input, data: binData}, nil
	}
	return nil, nil
}

func hasDebugSections(f *elf.File) bool {
	for _, sec := range f.Sections {
		if strings.HasPrefix(sec.Name, ".debug_") || strings.HasPrefix(sec.Name, ".zdebug_") {
			return true
		}
	}
	return false
}

// Patch loads the binary at opts.Input, applies opts.Rule to every source
// path recorded in its debug symbols and writes the result back. A binary
// without locatable debug data is skipped with a warning, not failed. A
// changed path whose bytes cannot be located, or whose replacement cannot
// fit, fails the file with nothing written.
func (p *Patcher) Patch(opts Options) (*Report, error) {
	if opts.Input == "" {
		return nil, fmt.Errorf("input path is unset")
	}
	if opts.Rule == nil {
		return nil, fmt.Errorf("rewrite rule is unset")
	}
	output := opts.Output
	if output == "" {
		output = opts.Input
	}

	binData, err := os.ReadFile(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("read binary: %w", err)
	}
	bf, err := elf.NewFile(bytes.NewReader(binData))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", opts.Input, err)
	}
	defer errors.DeferClose(p.logger, bf, "close binary")

	rep := &Report{Binary: opts.Input}

	src, err := p.findDebugSource(opts.Input, binData, bf)
	if err != nil {
		return nil, err
	}
	if src == nil {
		rep.Skipped = true
		return rep, nil
	}
	rep.DebugFile = src.path
	rep.Companion = src.link != nil

	df, err := elf.NewFile(bytes.NewReader(src.data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src.path, err)
	}
	defer errors.DeferClose(p.logger, df, "close debug file")
	if err := checkPatchable(df); err != nil {
		return nil, fmt.Errorf("%s: %w", src.path, err)
	}
	d, err := df.DWARF()
	if err != nil {
		return nil, fmt.Errorf("parse debug info in %s: %w", src.path, err)
	}

	paths, err := sourcePaths(d)
	if err != nil {
		return nil, err
	}
	rep.Paths = paths

	rep.Rewritten = make(map[string]string)
	for _, path := range paths {
		if out := opts.Rule.Apply(path); out != path {
			rep.Rewritten[path] = out
		}
	}

	p.logger.Debug().
		Str("file", opts.Input).
		Str("debug_file", src.path).
		Int("paths", len(paths)).
		Int("rewrites", len(rep.Rewritten)).
		Msg("scanned source paths")

	if len(rep.Rewritten) == 0 || opts.DryRun {
		return rep, nil
	}

	for old, repl := range rep.Rewritten {
		n, err := patchSections(df, src.data, old, repl)
		if err != nil {
			return nil, fmt.Errorf("patch %s: %w", src.path, err)
		}
		if n == 0 {
			// The path was enumerated but its bytes were never found, so
			// the rewrite cannot be applied in place.
			return nil, fmt.Errorf("patch %s: %q not found in any patchable section", src.path, old)
		}
		rep.Patched += n
	}

	if src.link == nil {
		// Embedded debug info: the binary itself carries the patched bytes.
		if opts.Backup && output == opts.Input {
			if err := p.backup(opts.Input); err != nil {
				return nil, err
			}
		}
		if err := safe.WriteFile(output, src.data, filePerm(opts.Input, 0o755)); err != nil {
			return nil, fmt.Errorf("write %s: %w", output, err)
		}
		return rep, nil
	}

	dbgOut := src.path
	if output != opts.Input {
		dbgOut = filepath.Join(filepath.Dir(output), filepath.Base(src.path))
	}
	if opts.Backup && dbgOut == src.path {
		if err := p.backup(src.path); err != nil {
			return nil, err
		}
	}
	if err := safe.WriteFile(dbgOut, src.data, filePerm(src.path, 0o644)); err != nil {
		return nil, fmt.Errorf("write %s: %w", dbgOut, err)
	}

	newCRC := crc32.ChecksumIEEE(src.data)
	writeBinary := output != opts.Input
	if newCRC != src.link.crc {
		if err := patchDebugLinkCRC(binData, src.link, bf.ByteOrder, newCRC); err != nil {
			return nil, fmt.Errorf("update debuglink checksum in %s: %w", opts.Input, err)
		}
		rep.CRCUpdated = true
		writeBinary = true
	}
	if writeBinary {
		if opts.Backup && output == opts.Input {
			if err := p.backup(opts.Input); err != nil {
				return nil, err
			}
		}
		if err := safe.WriteFile(output, binData, filePerm(opts.Input, 0o755)); err != nil {
			return nil, fmt.Errorf("write %s: %w", output, err)
		}
	}
	return rep, nil
}

// ListSourcePaths returns every source path recorded in the debug symbols
// of the binary at path, resolving a companion file the same way Patch does.
func (p *Patcher) ListSourcePaths(path string) ([]string, error) {
	binData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read binary: %w", err)
	}
	bf, err := elf.NewFile(bytes.NewReader(binData))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer errors.DeferClose(p.logger, bf, "close binary")

	src, err := p.findDebugSource(path, binData, bf)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%s has no debug symbols", path)
	}

	df, err := elf.NewFile(bytes.NewReader(src.data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src.path, err)
	}
	defer errors.DeferClose(p.logger, df, "close debug file")
	d, err := df.DWARF()
	if err != nil {
		return nil, fmt.Errorf("parse debug info in %s: %w", src.path, err)
	}
	return sourcePaths(d)
}

func (p *Patcher) backup(path string) error {
	opts := &safe.CopyFileOptions{MaxSize: maxBackupSize, DestPerm: 0o644}
	if err := safe.CopyFile(path, path+".bak", opts); err != nil {
		return fmt.Errorf("create backup of %s: %w", path, err)
	}
	return nil
}

func filePerm(path string, fallback os.FileMode) os.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return fallback
}
