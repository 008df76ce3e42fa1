// Command depscheck enforces the layering rule that keeps the content
// pipeline embeddable: nothing under content/ may import the server
// wiring, transport, or watcher packages.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

var forbiddenPrefixes = []string{
	"lorehall/server/internal/app",
	"lorehall/server/internal/devwatch",
	"lorehall/server/internal/net",
}

type packageInfo struct {
	ImportPath string
	Imports    []string
}

func main() {
	violations, err := scan("./content/...")
	if err != nil {
		fmt.Fprintf(os.Stderr, "depscheck: %v\n", err)
		os.Exit(1)
	}
	if len(violations) == 0 {
		return
	}
	sort.Strings(violations)
	fmt.Fprintln(os.Stderr, "depscheck: forbidden imports:")
	for _, violation := range violations {
		fmt.Fprintf(os.Stderr, "  %s\n", violation)
	}
	os.Exit(1)
}

// scan lists the packages matching pattern and returns one line per
// forbidden import edge.
func scan(pattern string) ([]string, error) {
	cmd := exec.Command("go", "list", "-json", pattern)
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Stderr.Write(exitErr.Stderr)
		}
		return nil, fmt.Errorf("list packages: %w", err)
	}

	var violations []string
	decoder := json.NewDecoder(bytes.NewReader(output))
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode package info: %w", err)
		}
		for _, imp := range pkg.Imports {
			if forbidden(imp) {
				violations = append(violations, pkg.ImportPath+" -> "+imp)
			}
		}
	}
	return violations, nil
}

func forbidden(importPath string) bool {
	for _, prefix := range forbiddenPrefixes {
		if strings.HasPrefix(importPath, prefix) {
			return true
		}
	}
	return false
}
