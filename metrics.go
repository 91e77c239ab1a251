package main

import (
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
	tallyprom "github.com/uber-go/tally/prometheus"
)

// newMetricsScope creates the root scope reported through prometheus, along with
// the handler exposing it.
func newMetricsScope(flushInterval time.Duration) (tally.Scope, io.Closer, http.Handler) {
	reporter := tallyprom.NewReporter(tallyprom.Options{
		OnRegisterError: func(err error) {
			log.WithError(err).Warn("unable to register metric")
		},
	})

	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:         "gripperd",
		Tags:           map[string]string{"device": ENV.JWT_ISSUER},
		CachedReporter: reporter,
		Separator:      tallyprom.DefaultSeparator,
	}, flushInterval)

	scope.Counter("boot").Inc(1)
	return scope, closer, reporter.HTTPHandler()
}
