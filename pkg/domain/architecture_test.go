package domain

import (
	"testing"

	"modelkit/testutil"
)

// TestDomainDoesNotImportInternal keeps the contracts package free of any
// implementation dependency so that backends and trackers can share it.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "domain contracts must not depend on internal packages")
}
