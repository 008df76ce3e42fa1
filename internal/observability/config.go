package observability

import (
	"net/http"
	"net/http/pprof"
)

// Config holds the diagnostics surfaces the server exposes only when
// asked to.
type Config struct {
	EnablePprof bool
}

// Mount registers the pprof handlers on mux when the config enables them.
// The profiling surface stays off unless asked for explicitly.
func (c Config) Mount(mux *http.ServeMux) {
	if !c.EnablePprof {
		return
	}
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}
