package quadapk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
)

// TargetKind classifies a compilation unit.
type TargetKind int

const (
	TargetKindBin TargetKind = iota
	TargetKindExampleBin
	TargetKindOther
)

func (k TargetKind) String() string {
	switch k {
	case TargetKindBin:
		return "bin"
	case TargetKindExampleBin:
		return "example"
	}
	return "other"
}

func parseTargetKind(s string) TargetKind {
	switch s {
	case "bin":
		return TargetKindBin
	case "example":
		return TargetKindExampleBin
	}
	return TargetKindOther
}

// CrateTarget is one buildable unit of the root package, as reported by
// the build system.
type CrateTarget struct {
	Kind    TargetKind
	Name    string
	SrcPath string
}

type cargoMetadata struct {
	Packages        []cargoPackage `json:"packages"`
	WorkspaceRoot   string         `json:"workspace_root"`
	TargetDirectory string         `json:"target_directory"`
	Resolve         *cargoResolve  `json:"resolve"`
}

type cargoResolve struct {
	Root string `json:"root"`
}

type cargoPackage struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	ManifestPath string          `json:"manifest_path"`
	Targets      []cargoTarget   `json:"targets"`
	Metadata     json.RawMessage `json:"metadata"`
}

type cargoTarget struct {
	Kinds   []string `json:"kind"`
	Name    string   `json:"name"`
	SrcPath string   `json:"src_path"`
}

func (p *cargoPackage) manifestDir() string {
	return filepath.Dir(p.ManifestPath)
}

// loadCargoMetadata shells out to cargo for the resolved project graph.
func loadCargoMetadata(exe *Executor, manifestPath string) (*cargoMetadata, error) {
	cargo, err := exec.LookPath("cargo")
	if err != nil {
		return nil, toolNotFound("cargo", "PATH")
	}

	args := []string{"metadata", "--format-version", "1"}
	if manifestPath != "" {
		args = append(args, "--manifest-path", manifestPath)
	}

	var out bytes.Buffer
	cmd := exec.Command(cargo, args...)
	cmd.Stdout = &out
	if err := exe.Run(cmd); err != nil {
		return nil, fmt.Errorf("cargo metadata failed: %w", err)
	}

	meta := &cargoMetadata{}
	if err := json.Unmarshal(out.Bytes(), meta); err != nil {
		return nil, fmt.Errorf("failed to decode cargo metadata: %w", err)
	}
	return meta, nil
}

// parseCargoMetadata decodes a raw metadata document. Split out so tests
// can feed fixtures without spawning cargo.
func parseCargoMetadata(data []byte) (*cargoMetadata, error) {
	meta := &cargoMetadata{}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, fmt.Errorf("failed to decode cargo metadata: %w", err)
	}
	return meta, nil
}

// rootPackage returns the package the build was invoked on.
func (m *cargoMetadata) rootPackage() (*cargoPackage, error) {
	if m.Resolve == nil || m.Resolve.Root == "" {
		return nil, fmt.Errorf("workspace has no root package; run from a package directory")
	}
	for i := range m.Packages {
		if m.Packages[i].ID == m.Resolve.Root {
			return &m.Packages[i], nil
		}
	}
	return nil, fmt.Errorf("root package %q not present in metadata", m.Resolve.Root)
}

// findPackage locates a dependency package by name.
func (m *cargoMetadata) findPackage(name string) *cargoPackage {
	for i := range m.Packages {
		if m.Packages[i].Name == name {
			return &m.Packages[i]
		}
	}
	return nil
}

// crateTargets lists the root package's buildable units: its binaries
// and, when asked, its examples. Library-only targets are reported as
// TargetKindOther so callers can skip them explicitly.
func (m *cargoMetadata) crateTargets() ([]CrateTarget, error) {
	root, err := m.rootPackage()
	if err != nil {
		return nil, err
	}

	var units []CrateTarget
	for _, t := range root.Targets {
		kind := TargetKindOther
		for _, k := range t.Kinds {
			switch k {
			case "bin":
				kind = TargetKindBin
			case "example":
				kind = TargetKindExampleBin
			}
		}
		units = append(units, CrateTarget{Kind: kind, Name: t.Name, SrcPath: t.SrcPath})
	}
	return units, nil
}
