package symfile

import (
	"debug/dwarf"
	"fmt"
	"sort"
)

// sourcePaths collects every source path recorded in the DWARF data: the
// compilation unit name and comp dir plus all line-table file entries.
// Paths are reported exactly as recorded, without joining or cleaning.
func sourcePaths(d *dwarf.Data) ([]string, error) {
	seen := make(map[string]struct{})
	var paths []string
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}

	r := d.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("walk debug entries: %w", err)
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}

		if name, ok := entry.Val(dwarf.AttrName).(string); ok {
			add(name)
		}
		if dir, ok := entry.Val(dwarf.AttrCompDir).(string); ok {
			add(dir)
		}

		lr, err := d.LineReader(entry)
		if err == nil && lr != nil {
			// Index 0 is a placeholder before DWARF5.
			for _, file := range lr.Files() {
				if file != nil {
					add(file.Name)
				}
			}
		}

		r.SkipChildren()
	}

	sort.Strings(paths)
	return paths, nil
}
