package quadapk

import (
	"fmt"
	"os"
	"strings"
)

// InjectSections holds the accumulated text of every injection section a
// dependency may contribute to the generated MainActivity: imports, class
// body, and the three lifecycle callback bodies.
type InjectSections struct {
	Imports  string
	Body     string
	OnCreate string
	OnResume string
	OnPause  string
}

// Merge appends the other fragment's sections. Accumulation only ever
// concatenates; a later fragment can never overwrite an earlier one.
func (s *InjectSections) Merge(other InjectSections) {
	s.Imports += other.Imports
	s.Body += other.Body
	s.OnCreate += other.OnCreate
	s.OnResume += other.OnResume
	s.OnPause += other.OnPause
}

// injectState is the templater parser state: scanning between sections,
// or inside one named section.
type injectState int

const (
	stateScanning injectState = iota
	stateImports
	stateBody
	stateOnCreate
	stateOnResume
	stateOnPause
)

func (s injectState) String() string {
	switch s {
	case stateImports:
		return "IMPORTS"
	case stateBody:
		return "MAIN_ACTIVITY_BODY"
	case stateOnCreate:
		return "MAIN_ACTIVITY_ON_CREATE"
	case stateOnResume:
		return "MAIN_ACTIVITY_ON_RESUME"
	case stateOnPause:
		return "MAIN_ACTIVITY_ON_PAUSE"
	}
	return "scanning"
}

// markerState maps a marker line to the section it opens. The checks run
// in a fixed order; the first match wins.
func markerState(line string) (injectState, bool) {
	if !strings.HasPrefix(line, "//%") {
		return stateScanning, false
	}
	switch {
	case strings.Contains(line, "IMPORTS"):
		return stateImports, true
	case strings.Contains(line, "MAIN_ACTIVITY_BODY"):
		return stateBody, true
	case strings.Contains(line, "MAIN_ACTIVITY_ON_CREATE"):
		return stateOnCreate, true
	case strings.Contains(line, "MAIN_ACTIVITY_ON_RESUME"):
		return stateOnResume, true
	case strings.Contains(line, "MAIN_ACTIVITY_ON_PAUSE"):
		return stateOnPause, true
	}
	return stateScanning, false
}

// parseInjectFragment runs the marker state machine over one fragment.
// Lines inside a section accumulate with a trailing newline; empty lines
// are dropped. Opening a section while one is open, or closing with none
// open, is an error in the fragment.
func parseInjectFragment(src string) (InjectSections, error) {
	var res InjectSections
	state := stateScanning

	appendLine := func(line string) {
		switch state {
		case stateImports:
			res.Imports += line + "\n"
		case stateBody:
			res.Body += line + "\n"
		case stateOnCreate:
			res.OnCreate += line + "\n"
		case stateOnResume:
			res.OnResume += line + "\n"
		case stateOnPause:
			res.OnPause += line + "\n"
		}
	}

	for i, line := range strings.Split(src, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		if next, ok := markerState(line); ok {
			if state != stateScanning {
				return res, fmt.Errorf("line %d: section %s opened while %s is still open", i+1, next, state)
			}
			state = next
			continue
		}
		if strings.HasPrefix(line, "//%") && strings.Contains(line, "END") {
			if state == stateScanning {
				return res, fmt.Errorf("line %d: END marker with no open section", i+1)
			}
			state = stateScanning
			continue
		}

		appendLine(line)
	}
	return res, nil
}

// loadInjectFragments reads and merges fragment files in the order they
// were discovered.
func loadInjectFragments(paths []string) (InjectSections, error) {
	var merged InjectSections
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return merged, &ConfigError{File: path, Err: err}
		}
		sections, err := parseInjectFragment(string(data))
		if err != nil {
			return merged, &ConfigError{File: path, Err: err}
		}
		merged.Merge(sections)
	}
	return merged, nil
}

// renderMainActivity substitutes the package identifiers and the section
// placeholders into the MainActivity template.
func renderMainActivity(javaSrc, packageName, libraryName string, inj InjectSections) string {
	res := strings.ReplaceAll(javaSrc, "TARGET_PACKAGE_NAME", packageName)
	res = strings.ReplaceAll(res, "LIBRARY_NAME", libraryName)

	res = strings.ReplaceAll(res, "//% IMPORTS", inj.Imports)
	res = strings.ReplaceAll(res, "//% MAIN_ACTIVITY_BODY", inj.Body)
	res = strings.ReplaceAll(res, "//% MAIN_ACTIVITY_ON_RESUME", inj.OnResume)
	res = strings.ReplaceAll(res, "//% MAIN_ACTIVITY_ON_PAUSE", inj.OnPause)
	res = strings.ReplaceAll(res, "//% MAIN_ACTIVITY_ON_CREATE", inj.OnCreate)
	return res
}
