// Command sqllint checks that every inline SQL constant starts with a unique
// --sql <uuid> marker. SQLRunner refuses unmarked queries at runtime; this
// catches them before that.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	sqlMarkerPattern  = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with|create|alter|drop)\b`)
	uuidMarkerPattern = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)
)

const defaultTarget = "internal/sqlinline"

type violation struct {
	file    string
	name    string
	line    int
	message string
}

type markerSite struct {
	file string
	name string
	line int
}

type linter struct {
	violations []violation
	seen       map[string]markerSite
}

func newLinter() *linter {
	return &linter{seen: make(map[string]markerSite)}
}

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{defaultTarget}
	}

	l := newLinter()
	if err := l.run(targets); err != nil {
		fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
		os.Exit(1)
	}
	if l.report(os.Stderr) {
		os.Exit(1)
	}
}

func (l *linter) run(targets []string) error {
	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			if filepath.Ext(target) == ".go" {
				if err := l.lintFile(target); err != nil {
					return err
				}
			}
			continue
		}
		err = filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != target && (strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_") || d.Name() == "vendor") {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			return l.lintFile(path)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// report prints violations and reports whether there were any.
func (l *linter) report(w io.Writer) bool {
	if len(l.violations) == 0 {
		return false
	}
	fmt.Fprintln(w, "sqllint: SQL audit marker problems")
	for _, v := range l.violations {
		fmt.Fprintf(w, "  %s:%d %s (%s)\n", v.file, v.line, v.message, v.name)
	}
	return true
}

func (l *linter) lintFile(path string) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return err
	}
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for _, value := range vs.Values {
			bl, ok := value.(*ast.BasicLit)
			if !ok || bl.Kind != token.STRING {
				continue
			}
			raw, err := unquote(bl.Value)
			if err != nil || !sqlMarkerPattern.MatchString(raw) {
				continue
			}
			site := markerSite{file: path, name: joinNames(vs.Names), line: fset.Position(bl.Pos()).Line}
			m := uuidMarkerPattern.FindStringSubmatch(firstLine(raw))
			if m == nil {
				l.add(site, "missing or invalid --sql <uuid> marker")
				continue
			}
			if prev, dup := l.seen[m[1]]; dup {
				l.add(site, fmt.Sprintf("marker %s already used by %s at %s:%d", m[1], prev.name, prev.file, prev.line))
				continue
			}
			l.seen[m[1]] = site
		}
		return true
	})
	return nil
}

func (l *linter) add(site markerSite, message string) {
	l.violations = append(l.violations, violation{file: site.file, name: site.name, line: site.line, message: message})
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if len(v) == 0 {
		return v, nil
	}
	if v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}

func joinNames(idents []*ast.Ident) string {
	parts := make([]string, 0, len(idents))
	for _, ident := range idents {
		if ident == nil {
			continue
		}
		parts = append(parts, ident.Name)
	}
	return strings.Join(parts, ",")
}
