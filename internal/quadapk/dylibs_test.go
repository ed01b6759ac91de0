package quadapk

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLibraryMapAdd_DeduplicatesPerAbiAndName(t *testing.T) {
	m := NewLibraryMap()
	lib := SharedLibrary{Abi: "arm64-v8a", Path: "/a/libgame.so", Filename: "libgame.so"}

	m.Add(TargetKindBin, "game", lib)
	m.Add(TargetKindBin, "game", lib)
	m.Add(TargetKindBin, "game", SharedLibrary{Abi: "arm64-v8a", Path: "/elsewhere/libgame.so", Filename: "libgame.so"})

	if got := m.Libs(TargetKindBin, "game"); len(got) != 1 {
		t.Fatalf("expected 1 library after duplicate adds, got %d", len(got))
	}

	m.Add(TargetKindBin, "game", SharedLibrary{Abi: "armeabi-v7a", Path: "/b/libgame.so", Filename: "libgame.so"})
	m.Add(TargetKindBin, "game", SharedLibrary{Abi: "arm64-v8a", Path: "/a/libextra.so", Filename: "libextra.so"})
	if got := m.Libs(TargetKindBin, "game"); len(got) != 3 {
		t.Fatalf("expected 3 libraries, got %d: %v", len(got), got)
	}

	if got := m.Libs(TargetKindExampleBin, "game"); got != nil {
		t.Errorf("unknown unit returned %v", got)
	}
}

func TestUnitRecords_WriteAndMerge(t *testing.T) {
	dir := t.TempDir()
	libs := []SharedLibrary{
		{Abi: "arm64-v8a", Path: "/out/libgame.so", Filename: "libgame.so"},
		{Abi: "arm64-v8a", Path: "/deps/libminiquad_extra.so", Filename: "libminiquad_extra.so"},
	}

	if err := writeUnitRecord(dir, "aarch64-linux-android", TargetKindBin, "game", libs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := filepath.Join(dir, "aarch64-linux-android-bin-game.json")
	if !fileExists(path) {
		t.Fatalf("record file %s not written", path)
	}

	m := NewLibraryMap()
	if err := mergeUnitRecords(dir, m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Libs(TargetKindBin, "game"); !reflect.DeepEqual(got, libs) {
		t.Errorf("merged libs = %v, want %v", got, libs)
	}

	// Merging the same records again must not duplicate entries.
	if err := mergeUnitRecords(dir, m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Libs(TargetKindBin, "game"); len(got) != len(libs) {
		t.Errorf("repeated merge duplicated entries: %v", got)
	}
}

func TestMergeUnitRecords_MissingDirAndCorruptFile(t *testing.T) {
	m := NewLibraryMap()
	if err := mergeUnitRecords(filepath.Join(t.TempDir(), "absent"), m); err != nil {
		t.Fatalf("missing record dir should be fine, got %v", err)
	}

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.json"), "{ not json")
	err := mergeUnitRecords(dir, m)
	if err == nil {
		t.Fatal("expected error for corrupt record")
	}
	if !strings.Contains(err.Error(), "corrupt build record") {
		t.Errorf("error = %q, want it to mention the corrupt record", err)
	}
}

func TestParseNeededEntries(t *testing.T) {
	out := `
Dynamic section at offset 0x2e318 contains 26 entries:
  Tag        Type                         Name/Value
 0x0000000000000001 (NEEDED)             Shared library: [libGLESv2.so]
 0x0000000000000001 (NEEDED)             Shared library: [liblog.so]
 0x0000000000000001 (NEEDED)             Shared library: [libc.so]
 0x000000000000000e (SONAME)             Library soname: [libgame.so]
 0x000000000000001e (FLAGS)              BIND_NOW
`
	want := []string{"libGLESv2.so", "liblog.so", "libc.so"}
	if got := parseNeededEntries(out); !reflect.DeepEqual(got, want) {
		t.Errorf("parseNeededEntries() = %v, want %v", got, want)
	}

	if got := parseNeededEntries("no dynamic section"); got != nil {
		t.Errorf("expected nil for output without entries, got %v", got)
	}
}

func TestFindLibrary_FirstPathWins(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFile(t, filepath.Join(first, "libdep.so"), "elf")
	writeFile(t, filepath.Join(second, "libdep.so"), "elf")
	writeFile(t, filepath.Join(second, "libonly.so"), "elf")

	path, ok := findLibrary("libdep.so", []string{first, second})
	if !ok || path != filepath.Join(first, "libdep.so") {
		t.Errorf("findLibrary(libdep.so) = %q, %v", path, ok)
	}
	path, ok = findLibrary("libonly.so", []string{first, second})
	if !ok || path != filepath.Join(second, "libonly.so") {
		t.Errorf("findLibrary(libonly.so) = %q, %v", path, ok)
	}
	if _, ok := findLibrary("libnowhere.so", []string{first, second}); ok {
		t.Error("findLibrary found a library that does not exist")
	}
}

func TestListPlatformLibs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "libc.so"), "")
	writeFile(t, filepath.Join(dir, "libm.so"), "")
	writeFile(t, filepath.Join(dir, "crtbegin_so.o"), "")
	if err := os.Mkdir(filepath.Join(dir, "sub.so"), 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"libc.so", "libm.so"}
	if got := listPlatformLibs(dir); !reflect.DeepEqual(got, want) {
		t.Errorf("listPlatformLibs() = %v, want %v", got, want)
	}
	if got := listPlatformLibs(filepath.Join(dir, "absent")); got != nil {
		t.Errorf("missing dir should list nothing, got %v", got)
	}
}

func TestResolveDylibClosure(t *testing.T) {
	deps := t.TempDir()
	root := filepath.Join(t.TempDir(), "libgame.so")
	writeFile(t, root, "elf")
	for _, name := range []string{"liba.so", "libb.so"} {
		writeFile(t, filepath.Join(deps, name), "elf")
	}

	// liba and libb depend on each other, and liba points back at the
	// root; the walk must still terminate.
	graph := map[string][]string{
		root:                           {"liba.so", "liblog.so"},
		filepath.Join(deps, "liba.so"): {"libb.so", "libgame.so"},
		filepath.Join(deps, "libb.so"): {"liba.so", "libnowhere.so"},
	}
	lister := func(path string) ([]string, error) {
		return graph[path], nil
	}

	found, missing, err := resolveDylibClosure(root, []string{deps}, []string{"liblog.so", "libc.so"}, lister)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantFound := []string{filepath.Join(deps, "liba.so"), filepath.Join(deps, "libb.so")}
	if !reflect.DeepEqual(found, wantFound) {
		t.Errorf("found = %v, want %v", found, wantFound)
	}
	if !reflect.DeepEqual(missing, []string{"libnowhere.so"}) {
		t.Errorf("missing = %v, want [libnowhere.so]", missing)
	}
}

func TestResolveDylibClosure_SystemLibsAreNotWalked(t *testing.T) {
	root := filepath.Join(t.TempDir(), "libgame.so")
	writeFile(t, root, "elf")

	calls := 0
	lister := func(path string) ([]string, error) {
		calls++
		return []string{"libEGL.so", "libGLESv2.so"}, nil
	}

	found, missing, err := resolveDylibClosure(root, nil, []string{"libEGL.so", "libGLESv2.so"}, lister)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 0 || len(missing) != 0 {
		t.Errorf("platform-provided deps leaked out: found %v, missing %v", found, missing)
	}
	if calls != 1 {
		t.Errorf("expected exactly one readelf call, got %d", calls)
	}
}
