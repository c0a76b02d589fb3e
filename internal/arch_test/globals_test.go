package arch_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"testing"
)

// valueCalls lists, per package, the calls whose results may initialize a
// package-level var because they build immutable values.
var valueCalls = map[string][]string{
	"ui": {"lipgloss.Color"},
}

// TestNoMutableGlobalState rejects package-level vars in internal packages
// unless they are interface checks, error sentinels, sync or atomic values,
// literals, or built by one of the package's valueCalls. Engine and store
// state must be passed in, never kept in globals.
func TestNoMutableGlobalState(t *testing.T) {
	t.Parallel()

	dir := internalDirPath(t)
	for _, pkg := range internalPackages(t) {
		t.Run(pkg, func(t *testing.T) {
			t.Parallel()
			calls := map[string]bool{"errors.New": true, "fmt.Errorf": true}
			for _, c := range valueCalls[pkg] {
				calls[c] = true
			}

			fset := token.NewFileSet()
			for _, path := range goFilesIn(t, filepath.Join(dir, pkg)) {
				file, err := parser.ParseFile(fset, path, nil, 0)
				if err != nil {
					t.Fatalf("parsing %s: %v", path, err)
				}
				for _, decl := range file.Decls {
					gd, ok := decl.(*ast.GenDecl)
					if !ok || gd.Tok != token.VAR {
						continue
					}
					for _, spec := range gd.Specs {
						vs := spec.(*ast.ValueSpec)
						for i, name := range vs.Names {
							var val ast.Expr
							if i < len(vs.Values) {
								val = vs.Values[i]
							}
							if name.Name == "_" || immutableVar(vs.Type, val, calls) {
								continue
							}
							t.Errorf("%s: package-level var %s holds mutable state; pass it in instead",
								fset.Position(name.Pos()), name.Name)
						}
					}
				}
			}
		})
	}
}

func immutableVar(typ, val ast.Expr, calls map[string]bool) bool {
	if id, ok := typ.(*ast.Ident); ok && id.Name == "error" {
		return true
	}
	if pkg := selectorPkg(typ); pkg == "sync" || pkg == "atomic" {
		return true
	}
	switch v := val.(type) {
	case *ast.BasicLit, *ast.CompositeLit:
		return true
	case *ast.CallExpr:
		if sel, ok := v.Fun.(*ast.SelectorExpr); ok {
			return calls[selectorPkg(sel)+"."+sel.Sel.Name]
		}
	}
	return false
}

// selectorPkg returns X of an X.Sel expression, or "".
func selectorPkg(expr ast.Expr) string {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok {
		return ""
	}
	if id, ok := sel.X.(*ast.Ident); ok {
		return id.Name
	}
	return ""
}

func TestImmutableVar(t *testing.T) {
	t.Parallel()

	calls := map[string]bool{"errors.New": true, "lipgloss.Color": true}
	cases := []struct {
		src  string
		want bool
	}{
		{`var ErrX = errors.New("x")`, true},
		{`var err error`, true},
		{`var mu sync.Mutex`, true},
		{`var n atomic.Int64`, true},
		{`var name = "gantry"`, true},
		{`var kinds = []string{"a", "b"}`, true},
		{`var c = lipgloss.Color("#fff")`, true},
		{`var cache = make(map[string]int)`, false},
		{`var logger = slog.Default()`, false},
		{`var count int`, false},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			t.Parallel()
			file, err := parser.ParseFile(token.NewFileSet(), "x.go", "package x\n"+tc.src, 0)
			if err != nil {
				t.Fatal(err)
			}
			vs := file.Decls[0].(*ast.GenDecl).Specs[0].(*ast.ValueSpec)
			var val ast.Expr
			if len(vs.Values) > 0 {
				val = vs.Values[0]
			}
			if got := immutableVar(vs.Type, val, calls); got != tc.want {
				t.Errorf("immutableVar(%s) = %v, want %v", tc.src, got, tc.want)
			}
		})
	}
}
