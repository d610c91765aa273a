// Package version provides middleware for API version extraction.
package version

import (
	"net/http"

	"muniapi/pkg/domain"
	"muniapi/pkg/requestcontext"
)

// ExtractVersion stores the version of the matched chi subrouter in the context.
//
//	r.Route(domain.APIVersionV1.Prefix(), func(v1 chi.Router) {
//	    v1.Use(version.ExtractVersion(domain.APIVersionV1))
//	})
func ExtractVersion(v domain.APIVersion) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithAPIVersion(r.Context(), v)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
