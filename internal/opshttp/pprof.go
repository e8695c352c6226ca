package opshttp

import (
	"net/http"
	"net/http/pprof"
)

// RegisterPprof hangs the standard pprof handlers off mux. We register them
// by hand instead of importing net/http/pprof for its DefaultServeMux side
// effect, so the main asset listener never grows debug endpoints by accident.
func RegisterPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}
