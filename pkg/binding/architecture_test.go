package binding_test

import (
	"testing"

	"modelkit/testutil"
)

func TestBindingHasNoStorageDependency(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, "modelkit/pkg/binding", testutil.StorageImportForbidden,
		"bindings observe versions only and must not reach persistence backends")
}
