package httpmw

import (
	"net/http"

	"github.com/keithlinneman/assetgate/internal/log"
	"github.com/keithlinneman/assetgate/internal/xerrors"
)

// Recover converts handler panics into 500 responses so one bad request
// cannot take down the listener. The panic is logged and onPanic (if set)
// is invoked before the error response is written.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					err, ok := rec.(error)
					if !ok {
						err = xerrors.Newf("panic: %v", rec)
					}
					logger.With(
						"method", r.Method,
						"path", r.URL.Path,
					).Error(r.Context(), err, "httpserver panic recovered")
					if onPanic != nil {
						onPanic()
					}
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
