package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

type captureFatal struct{ msg string }

func (c *captureFatal) Fatalf(format string, args ...any) {
	c.msg = fmt.Sprintf(format, args...)
}

func TestInternalImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"modelkit/internal/core", true},
		{"example.com/mod/internal/x", true},
		{"modelkit/pkg/domain", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestStorageImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"modelkit/internal/infra/persistence/sqlite", true},
		{"modernc.org/sqlite", true},
		{"modernc.org/sqlite/lib", true},
		{"github.com/jackc/pgx/v5/stdlib", true},
		{"github.com/aws/aws-sdk-go-v2/service/s3", true},
		{"modernc.org/sqlitex", false},
		{"modelkit/pkg/domain", false},
		{"sync/atomic", false},
	}
	for _, c := range cases {
		if got := StorageImportForbidden(c.in); got != c.want {
			t.Fatalf("StorageImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestAssertNoDirectImportsIgnoresTestsAndSubdirs(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("x.go", "package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	write("x_test.go", "package tmp\nimport \"forbidden/pkg\"\n")
	write("sub/y.go", "package sub\nimport \"forbidden/pkg\"\n")
	write("notes.txt", "import \"forbidden/pkg\"")
	AssertNoDirectImports(t, dir, func(p string) bool { return p == "forbidden/pkg" }, "none")
}

func TestDirectImportViolationsReported(t *testing.T) {
	dir := t.TempDir()
	src := "package tmp\nimport \"modelkit/internal/core\"\n"
	if err := os.WriteFile(filepath.Join(dir, "x.go"), []byte(src), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "x.go") {
		t.Fatalf("expected one violation naming the file, got %v", viols)
	}
	var c captureFatal
	failIfViolations(&c, "forbidden", "reason", viols)
	if !strings.Contains(c.msg, "modelkit/internal/core") {
		t.Fatalf("expected failure to be reported")
	}
}

func TestTransitiveDependencyWalk(t *testing.T) {
	orig := loadPackages
	t.Cleanup(func() { loadPackages = orig })

	leaf := &packages.Package{PkgPath: "modernc.org/sqlite"}
	mid := &packages.Package{PkgPath: "modelkit/internal/infra/persistence/sqlite", Imports: map[string]*packages.Package{"modernc.org/sqlite": leaf}}
	root := &packages.Package{PkgPath: "modelkit/pkg/tracking", Imports: map[string]*packages.Package{
		"sync": {PkgPath: "sync"},
		"mid":  mid,
	}}
	loadPackages = func(string) ([]*packages.Package, error) { return []*packages.Package{root}, nil }

	viols, err := transitiveDependencyViolations("modelkit/pkg/tracking", StorageImportForbidden)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(viols) != 2 || viols[0] != mid.PkgPath || viols[1] != leaf.PkgPath {
		t.Fatalf("unexpected violations %v", viols)
	}

	boom := errors.New("boom")
	loadPackages = func(string) ([]*packages.Package, error) { return nil, boom }
	if _, err := transitiveDependencyViolations("x", StorageImportForbidden); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
}
