package lsm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const manifestName = "MANIFEST"

// writeManifest atomically records the current SSTable file set
func (e *Engine) writeManifest() error {
	e.mu.RLock()
	names := make([]string, 0)
	for _, level := range e.levels {
		for _, sst := range level {
			names = append(names, filepath.Base(sst.Path()))
		}
	}
	e.mu.RUnlock()

	tmp := filepath.Join(e.dataDir, manifestName+".tmp")
	content := strings.Join(names, "\n")
	if len(names) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return os.Rename(tmp, filepath.Join(e.dataDir, manifestName))
}

// loadSSTables opens the SSTables listed in the manifest, falling back
// to a directory glob when no manifest exists. Returns the levels and
// the highest file id seen.
func loadSSTables(dir string) ([][]*SSTable, int64, error) {
	names, err := manifestFileNames(dir)
	if err != nil {
		return nil, 0, err
	}

	levelMap := make(map[int][]*SSTable)
	var maxID int64

	for _, name := range names {
		var level int
		var id int64
		if _, err := fmt.Sscanf(name, "L%d-%d.sst", &level, &id); err != nil {
			continue
		}
		sst, err := OpenSSTable(filepath.Join(dir, name))
		if err != nil {
			return nil, 0, fmt.Errorf("opening sstable %s: %w", name, err)
		}
		levelMap[level] = append(levelMap[level], sst)
		if id > maxID {
			maxID = id
		}
	}

	maxLevel := -1
	for level := range levelMap {
		if level > maxLevel {
			maxLevel = level
		}
	}

	levels := make([][]*SSTable, maxLevel+1)
	for level, ssts := range levelMap {
		// Oldest first within a level, matching write order.
		sort.Slice(ssts, func(i, j int) bool {
			return ssts[i].Path() < ssts[j].Path()
		})
		levels[level] = ssts
	}
	return levels, maxID, nil
}

func manifestFileNames(dir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err == nil {
		var names []string
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				names = append(names, line)
			}
		}
		return names, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.sst"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	return names, nil
}
