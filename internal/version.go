package internal

import "fmt"

var (
	// Set through -ldflags during the release build.
	BridgeVersion         = "devel"
	GitRevision           = "devel"
	BridgeVersionRevision = fmt.Sprintf("%s-%s", BridgeVersion, GitRevision)
)
