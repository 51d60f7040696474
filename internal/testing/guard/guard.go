package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("CHRONA_TEST_MODE") == "" {
			_ = os.Setenv("CHRONA_TEST_MODE", "1")
		}
	})
}
