package catalog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/dshills/codeaudit/pkg/types"
)

// knownTestFrameworks maps dependency names onto the framework they declare
var knownTestFrameworks = map[string]string{
	"jest":                              "jest",
	"mocha":                             "mocha",
	"vitest":                            "vitest",
	"jasmine":                           "jasmine",
	"ava":                               "ava",
	"cypress":                           "cypress",
	"@playwright/test":                  "playwright",
	"@testing-library/react":            "testing-library",
	"pytest":                            "pytest",
	"nose":                              "nose",
	"nose2":                             "nose",
	"hypothesis":                        "hypothesis",
	"tox":                               "tox",
	"github.com/stretchr/testify":       "testify",
	"github.com/onsi/ginkgo/v2":         "ginkgo",
	"github.com/onsi/gomega":            "gomega",
	"github.com/smartystreets/goconvey": "goconvey",
}

type packageJSON struct {
	Name            string            `json:"name"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

type pyproject struct {
	Project struct {
		Name                 string              `toml:"name"`
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name            string                 `toml:"name"`
			Dependencies    map[string]interface{} `toml:"dependencies"`
			DevDependencies map[string]interface{} `toml:"dev-dependencies"`
			Group           map[string]struct {
				Dependencies map[string]interface{} `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// DetectProject reads the manifests at root and classifies the project.
// files, when given, supply language counts and the fallback type.
func DetectProject(root string, files []types.File) types.ProjectInfo {
	info := types.ProjectInfo{}
	deps := make(map[string]bool)

	if data, err := os.ReadFile(filepath.Join(root, "package.json")); err == nil {
		var pkg packageJSON
		if json.Unmarshal(data, &pkg) == nil {
			info.Type = "Node.js/JavaScript"
			info.Name = pkg.Name
			for name := range pkg.Dependencies {
				deps[name] = true
			}
			for name := range pkg.DevDependencies {
				deps[name] = true
			}
		}
	}

	if data, err := os.ReadFile(filepath.Join(root, "pyproject.toml")); err == nil {
		var py pyproject
		if toml.Unmarshal(data, &py) == nil {
			if info.Type == "" {
				info.Type = "Python"
			}
			if info.Name == "" {
				info.Name = py.Project.Name
			}
			if info.Name == "" {
				info.Name = py.Tool.Poetry.Name
			}
			for _, spec := range py.Project.Dependencies {
				deps[requirementName(spec)] = true
			}
			for _, group := range py.Project.OptionalDependencies {
				for _, spec := range group {
					deps[requirementName(spec)] = true
				}
			}
			for name := range py.Tool.Poetry.Dependencies {
				if name != "python" {
					deps[strings.ToLower(name)] = true
				}
			}
			for name := range py.Tool.Poetry.DevDependencies {
				deps[strings.ToLower(name)] = true
			}
			for _, group := range py.Tool.Poetry.Group {
				for name := range group.Dependencies {
					deps[strings.ToLower(name)] = true
				}
			}
		}
	}

	for _, name := range []string{"requirements.txt", "requirements-dev.txt", "requirements_dev.txt"} {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		if info.Type == "" {
			info.Type = "Python"
		}
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
				continue
			}
			deps[requirementName(line)] = true
		}
	}

	if data, err := os.ReadFile(filepath.Join(root, "go.mod")); err == nil {
		if info.Type == "" {
			info.Type = "Go"
		}
		name, required := parseGoMod(data)
		if info.Name == "" {
			info.Name = name
		}
		for _, r := range required {
			deps[r] = true
		}
	}

	if len(files) > 0 {
		info.Languages = LanguageCounts(files)
		if info.Type == "" {
			info.Type = typeFromLanguages(info.Languages)
		}
	}
	if info.Type == "" {
		info.Type = "Mixed/Unknown"
	}

	frameworks := make(map[string]bool)
	for dep := range deps {
		if dep == "" {
			continue
		}
		info.Dependencies = append(info.Dependencies, dep)
		if fw, ok := knownTestFrameworks[dep]; ok {
			frameworks[fw] = true
		}
	}
	for fw := range frameworks {
		info.TestFrameworks = append(info.TestFrameworks, fw)
	}
	sort.Strings(info.Dependencies)
	sort.Strings(info.TestFrameworks)

	return info
}

// requirementName strips version specifiers, extras and markers from a
// Python requirement line.
func requirementName(spec string) string {
	spec = strings.TrimSpace(spec)
	if i := strings.IndexAny(spec, "<>=!~;[ @"); i >= 0 {
		spec = spec[:i]
	}
	return strings.ToLower(strings.TrimSpace(spec))
}

// parseGoMod returns the module path and the required module paths
func parseGoMod(data []byte) (string, []string) {
	var module string
	var required []string
	inBlock := false

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, "//"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		switch {
		case strings.HasPrefix(line, "module "):
			module = strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "module ")), `"`)
		case line == "require (":
			inBlock = true
		case inBlock && line == ")":
			inBlock = false
		case inBlock && line != "":
			required = append(required, strings.Fields(line)[0])
		case strings.HasPrefix(line, "require "):
			if fields := strings.Fields(strings.TrimPrefix(line, "require ")); len(fields) > 0 {
				required = append(required, fields[0])
			}
		}
	}
	return module, required
}

var languageTypes = []struct {
	lang types.Language
	name string
}{
	{types.LangPython, "Python"},
	{types.LangJavaScript, "Node.js/JavaScript"},
	{types.LangTypeScript, "Node.js/JavaScript"},
	{types.LangJava, "Java"},
	{types.LangGo, "Go"},
	{types.LangRust, "Rust"},
	{types.LangCPP, "C/C++"},
	{types.LangC, "C/C++"},
	{types.LangCSharp, "C#"},
	{types.LangRuby, "Ruby"},
	{types.LangPHP, "PHP"},
}

// typeFromLanguages picks the project type of the most common source language
func typeFromLanguages(counts map[string]int) string {
	best, bestCount := "", 0
	for _, lt := range languageTypes {
		if n := counts[string(lt.lang)]; n > bestCount {
			best, bestCount = lt.name, n
		}
	}
	if best == "" {
		return "Mixed/Unknown"
	}
	return best
}
