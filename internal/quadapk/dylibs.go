package quadapk

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// SharedLibrary is one native library collected for a single Android
// ABI, ready to be packed under lib/<abi>/ in an APK.
type SharedLibrary struct {
	Abi      string `json:"abi"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// UnitRef identifies a compilation unit by kind and name. It keys both
// the library map and the final build result.
type UnitRef struct {
	Kind TargetKind
	Name string
}

// LibraryMap accumulates the shared libraries of every compilation
// unit across architectures. At most one entry is kept per unit, ABI
// and file name, so merging the same build output twice is a no-op.
type LibraryMap struct {
	libs map[UnitRef][]SharedLibrary
}

func NewLibraryMap() *LibraryMap {
	return &LibraryMap{libs: make(map[UnitRef][]SharedLibrary)}
}

// Add records a library for a unit unless an entry with the same ABI
// and file name is already present.
func (m *LibraryMap) Add(kind TargetKind, name string, lib SharedLibrary) {
	key := UnitRef{Kind: kind, Name: name}
	for _, have := range m.libs[key] {
		if have.Abi == lib.Abi && have.Filename == lib.Filename {
			return
		}
	}
	m.libs[key] = append(m.libs[key], lib)
}

// Libs returns the libraries recorded for a unit.
func (m *LibraryMap) Libs(kind TargetKind, name string) []SharedLibrary {
	return m.libs[UnitRef{Kind: kind, Name: name}]
}

// unitRecord is the on-disk form of one unit's libraries for one
// architecture. Each compile writes its own record file; the parent
// process merges them after the workers join.
type unitRecord struct {
	Kind string          `json:"kind"`
	Name string          `json:"name"`
	Libs []SharedLibrary `json:"libs"`
}

func recordFileName(triple string, kind TargetKind, name string) string {
	return fmt.Sprintf("%s-%s-%s.json", triple, kind, name)
}

// writeUnitRecord persists a unit's libraries under recordDir. Records
// survive across runs so cached compiles, which never reach the
// wrapper, still contribute their libraries to the next packaging pass.
func writeUnitRecord(recordDir, triple string, kind TargetKind, name string, libs []SharedLibrary) error {
	data, err := json.MarshalIndent(unitRecord{Kind: kind.String(), Name: name, Libs: libs}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(recordDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(recordDir, recordFileName(triple, kind, name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write build record %s: %w", path, err)
	}
	return nil
}

// mergeUnitRecords folds every record file under recordDir into the
// map. File order is fixed by sorting so repeated merges are stable.
func mergeUnitRecords(recordDir string, m *LibraryMap) error {
	entries, err := os.ReadDir(recordDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(recordDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rec := unitRecord{}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("corrupt build record %s: %w", path, err)
		}
		for _, lib := range rec.Libs {
			m.Add(parseTargetKind(rec.Kind), rec.Name, lib)
		}
	}
	return nil
}

// neededLister reports the DT_NEEDED entries of a shared object.
// Injected so tests can resolve closures without an NDK readelf.
type neededLister func(path string) ([]string, error)

// readelfNeeded builds a lister on top of the toolchain's readelf.
func readelfNeeded(exe *Executor, readelf string) neededLister {
	return func(path string) ([]string, error) {
		out, err := exe.RunCaptured(exec.Command(readelf, "-d", path))
		if err != nil {
			return nil, fmt.Errorf("readelf failed on %s: %w", path, err)
		}
		return parseNeededEntries(string(out)), nil
	}
}

// parseNeededEntries extracts the library names from readelf -d output.
func parseNeededEntries(out string) []string {
	var needed []string
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "(NEEDED)") {
			continue
		}
		open := strings.Index(line, "Shared library: [")
		if open < 0 {
			continue
		}
		rest := line[open+len("Shared library: ["):]
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			continue
		}
		needed = append(needed, rest[:end])
	}
	return needed
}

// listPlatformLibs names the *.so files the target platform already
// ships. Anything on this list must not be bundled into the APK.
func listPlatformLibs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var libs []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".so") {
			libs = append(libs, e.Name())
		}
	}
	return libs
}

// dylibPathEnv returns the dynamic-library search directories of the
// host environment.
func dylibPathEnv() []string {
	var name string
	switch runtime.GOOS {
	case "windows":
		name = "PATH"
	case "darwin":
		name = "DYLD_FALLBACK_LIBRARY_PATH"
	default:
		name = "LD_LIBRARY_PATH"
	}
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	var dirs []string
	for _, d := range filepath.SplitList(v) {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// findLibrary locates a library file in the first search path holding
// it.
func findLibrary(name string, searchPaths []string) (string, bool) {
	for _, dir := range searchPaths {
		candidate := filepath.Join(dir, name)
		if fileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// resolveDylibClosure walks the DT_NEEDED graph starting at root and
// returns the transitive library files that must ship alongside it,
// plus the names it could not locate anywhere. Libraries named in
// systemLibs are provided by the device and are skipped. Each library
// name is visited once, so dependency cycles terminate.
func resolveDylibClosure(root string, searchPaths, systemLibs []string, needed neededLister) (found []string, missing []string, err error) {
	processed := make(map[string]bool)
	for _, sys := range systemLibs {
		processed[sys] = true
	}
	processed[filepath.Base(root)] = true

	queue := []string{root}
	for len(queue) > 0 {
		lib := queue[0]
		queue = queue[1:]

		deps, err := needed(lib)
		if err != nil {
			return nil, nil, err
		}
		for _, name := range deps {
			if processed[name] {
				continue
			}
			processed[name] = true
			path, ok := findLibrary(name, searchPaths)
			if !ok {
				missing = append(missing, name)
				continue
			}
			found = append(found, path)
			queue = append(queue, path)
		}
	}
	return found, missing, nil
}
