package app

import (
	"os"
	"sync"
)

const testModeEnv = "STOCKLEDGER_TEST_MODE"

// InTestMode reports whether the process runs under go test, where binaries
// must not start servers and the rate limiter stays off.
var InTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})
