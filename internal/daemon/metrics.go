package daemon

import (
	"net/http"
	"time"

	"keyrx/internal/metrics"
)

// startMetricsServer exposes the registry on the configured loopback
// address. Failures are logged, not fatal: remapping works without it.
func (d *Daemon) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Default().HTTPHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:         d.cfg.Metrics.ListenAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	d.metricsSrv = srv

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.log.Info("metrics listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.log.Warn("metrics server", "error", err)
		}
	}()
}
