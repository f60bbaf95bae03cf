package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// acquireFileLock takes an advisory lock on path, blocking briefly for
// contention from another process writing the same episode's stages.json.
// The returned func releases it.
func acquireFileLock(path string) (func(), error) {
	fl := flock.New(path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire lock: timed out on %s", path)
	}
	return func() { fl.Unlock() }, nil
}
