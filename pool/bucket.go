// File: pool/bucket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "math/bits"

// Bucket returns the smallest power of two that is at least n.
// Sizes below one map to one.
func Bucket(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
