// Package guard forces test mode for any test binary that imports it, so
// background runtimes stay dormant during tests.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("CUSTODIA_TEST_MODE") == "" {
			_ = os.Setenv("CUSTODIA_TEST_MODE", "1")
		}
	})
}
