// Package middleware defines the shared middleware type used by the
// subpackages and the HTTP router.
package middleware

import "net/http"

type Middleware func(http.Handler) http.Handler
