// File: native/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package native

import "github.com/momentics/hioload-net/api"

// Error translates a failure code reported by lib.
func Error(lib Library, code Code) *api.PlatformError {
	return api.NewPlatformError(int(code), lib.ErrorMessage(code))
}
