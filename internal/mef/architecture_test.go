package mef

import (
	"testing"

	"faultcore/testutil"
)

func TestMEFDoesNotImportPresentationLayers(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.PresentationImportForbidden,
		"the MEF codec works on snapshots, not on the edit service")
}
