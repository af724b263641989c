package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/signalsfoundry/timecursor/internal/logging"
)

// ServeMetrics exposes collector's /metrics endpoint on addr in a background
// goroutine. It returns nil when addr is empty or collector is nil; the
// caller owns shutdown of the returned server.
func ServeMetrics(addr string, collector *SchedulerCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	if log == nil {
		log = logging.Noop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

// ShutdownServer stops srv with a bounded timeout. A nil server is a no-op.
func ShutdownServer(ctx context.Context, srv *http.Server, log logging.Logger) {
	if srv == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn(ctx, "metrics server shutdown failed", logging.Err(err))
	}
}
