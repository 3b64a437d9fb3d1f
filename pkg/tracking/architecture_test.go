package tracking_test

import (
	"testing"

	"modelkit/testutil"
)

func TestTrackingHasNoStorageDependency(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, "modelkit/pkg/tracking", testutil.StorageImportForbidden,
		"version tracking must stay independent of the persistence engine")
}
