// Package repomap renders a size-limited overview of a workspace's Go
// source files — file paths plus their top-level symbol signatures,
// ranked by how often other files import them. It is a pure, read-only
// pass over the filesystem, used to build the optional free-text context
// string a caller can pass alongside a task.
package repomap

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultMaxFiles caps how many files Render inspects, so a very large
// workspace doesn't stall the first call.
const DefaultMaxFiles = 200

// DefaultMaxChars approximates a 2000-token budget at four characters per
// token, matching the rendering budget of the original repo-map renderer
// this component is adapted from.
const DefaultMaxChars = 8000

var skipDirs = map[string]struct{}{
	".git": {}, "vendor": {}, "node_modules": {}, "bin": {}, "dist": {}, "_examples": {},
}

type fileEntry struct {
	path           string
	symbols        []string
	referenceScore float64
}

// Render walks root for .go files (skipping vendor/.git/node_modules-style
// directories), parses each one for its top-level function and type
// declarations, and renders a compact text overview capped at maxChars
// (DefaultMaxChars if zero). Files whose package other files import more
// often are ranked earlier, on the theory that heavily-depended-on files carry more
// of the architecture a caller needs to see first.
func Render(root string, maxFiles, maxChars int) (string, error) {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	files, err := collectGoFiles(root, maxFiles)
	if err != nil {
		return "", fmt.Errorf("collect go files: %w", err)
	}

	entries := make([]fileEntry, 0, len(files))
	totalSymbols := 0
	importsByFile := map[string][]string{}

	fset := token.NewFileSet()
	for _, path := range files {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		parsed, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			// Unparsable file (syntax error mid-edit, generated code, etc.)
			// is still listed, just with no symbols.
			entries = append(entries, fileEntry{path: rel})
			continue
		}

		syms := topLevelSymbols(parsed)
		totalSymbols += len(syms)
		entries = append(entries, fileEntry{path: rel, symbols: syms})

		imports := make([]string, 0, len(parsed.Imports))
		for _, imp := range parsed.Imports {
			imports = append(imports, strings.Trim(imp.Path.Value, `"`))
		}
		importsByFile[rel] = imports
	}

	scoreByReferenceCount(entries, importsByFile)

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].referenceScore > entries[j].referenceScore
	})

	return renderEntries(entries, totalSymbols, maxChars), nil
}

func topLevelSymbols(file *ast.File) []string {
	var syms []string
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			syms = append(syms, funcSignature(d))
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				if ts, ok := spec.(*ast.TypeSpec); ok {
					syms = append(syms, "type "+ts.Name.Name)
				}
			}
		}
	}
	return syms
}

func funcSignature(d *ast.FuncDecl) string {
	var b strings.Builder
	b.WriteString("func ")
	if d.Recv != nil && len(d.Recv.List) > 0 {
		b.WriteString("(")
		b.WriteString(recvType(d.Recv.List[0].Type))
		b.WriteString(") ")
	}
	b.WriteString(d.Name.Name)
	b.WriteString("(...)")
	return b.String()
}

func recvType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return "*" + recvType(t.X)
	case *ast.Ident:
		return t.Name
	default:
		return "?"
	}
}

// scoreByReferenceCount increments every candidate file's score each time
// another file in the set imports a package path ending in its own
// directory name — a coarse but dependency-free stand-in for true
// import-graph resolution (there is no go/packages loader wired into this
// component, since repomap only needs an ordering hint, not a build graph).
func scoreByReferenceCount(entries []fileEntry, importsByFile map[string][]string) {
	scores := map[string]float64{}
	for _, entry := range entries {
		dir := filepath.Dir(entry.path)
		base := filepath.Base(dir)
		for _, imports := range importsByFile {
			for _, imp := range imports {
				if strings.HasSuffix(imp, "/"+base) || imp == base {
					scores[entry.path]++
				}
			}
		}
	}
	for i := range entries {
		entries[i].referenceScore = scores[entries[i].path]
	}
}

func renderEntries(entries []fileEntry, totalSymbols, maxChars int) string {
	var b strings.Builder
	header := "Repository Map\n" + strings.Repeat("=", 40)
	b.WriteString(header)
	used := len(header)

	shown := 0
	for _, entry := range entries {
		section := "\n" + entry.path
		for _, sym := range entry.symbols {
			section += "\n  " + sym
		}
		if used+len(section) > maxChars {
			remaining := len(entries) - shown
			if remaining > 0 {
				b.WriteString(fmt.Sprintf("\n... and %d more files", remaining))
			}
			break
		}
		b.WriteString(section)
		used += len(section)
		shown++
	}

	b.WriteString(fmt.Sprintf("\n(%d files, %d symbols)", len(entries), totalSymbols))
	return b.String()
}
