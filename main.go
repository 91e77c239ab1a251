package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/CodedInternet/gripperd/comms"
	"github.com/CodedInternet/gripperd/gripper"
	"github.com/CodedInternet/gripperd/onboard"
	"github.com/CodedInternet/gripperd/params"
	"github.com/asdine/storm/v3"
	"github.com/caarlos0/env/v6"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	log "github.com/sirupsen/logrus"
)

type EnvConfig struct {
	JWT_ISSUER       string        `env:"RESIN_DEVICE_UUID" envDefault:"DEV"`
	JWT_SECRET       string        `env:"JWT_SECRET" envDefault:"xWumOlRfhu+LBi2F2e1yF4FiaopQ5mr8klL4fpILnlI="`
	RESIN            bool          `env:"RESIN" envDefault:"0"`
	DEBUG            bool          `env:"DEBUG" envDefault:"0"`
	SRCDIR           string        `env:"SRCDIR" envDefault:"."`
	DB_PATH          string        `env:"DB_PATH"`
	LOG_LEVEL        string        `env:"LOG_LEVEL" envDefault:"info"`
	LOG_JSON         bool          `env:"LOG_JSON" envDefault:"0"`
	METRICS_INTERVAL time.Duration `env:"METRICS_INTERVAL" envDefault:"10s"`

	DB        *storm.DB
	Params    *params.StormStore
	Device    *onboard.Device
	Servers   map[string]*gripper.Server
	Conductor *comms.Conductor
	Simulated bool
}

var (
	ENV *EnvConfig
)

func init() {
	// Load main config
	ENV = new(EnvConfig)
	if err := env.Parse(ENV); err != nil {
		log.WithError(err).Fatal("unable to parse environment")
	}
	setupLogging()
}

func setupLogging() {
	level, err := log.ParseLevel(ENV.LOG_LEVEL)
	if err != nil {
		log.WithError(err).Warn("unknown log level, using info")
		level = log.InfoLevel
	}
	if ENV.DEBUG {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	if ENV.LOG_JSON {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

// the location of the database and device file depends on if we are running on a resin device
func dataPath(name string) (string, error) {
	if ENV.RESIN {
		return filepath.Join("/data", name), nil
	}
	return filepath.Abs(filepath.Join(ENV.SRCDIR, name))
}

func main() {
	// process flags
	simulated := flag.Bool("sim", false, "Run every effector in simulator mode")
	port := flag.String("port", "0.0.0.0:80", "Specify the ip:port to listen on")
	configFile := flag.String("config", "", "Device config file (default bbb_config.yaml in the data directory)")
	seedFile := flag.String("params", "", "YAML file of parameters to seed into the store")
	withShell := flag.Bool("shell", true, "Start the development shell")
	flag.Parse()

	// setup database
	dbFile := ENV.DB_PATH
	if dbFile == "" {
		if ENV.RESIN {
			dbFile = "/data/live.db"
		} else {
			dbFile, _ = filepath.Abs("./tmp/dev.db")
		}
	}
	db, err := openDb(dbFile)
	if err != nil {
		log.WithError(err).WithField("path", dbFile).Fatal("unable to open database")
	}
	ENV.DB = db
	defer ENV.DB.Close() // close database when finished

	ENV.Params, err = params.NewStormStore(db)
	if err != nil {
		log.WithError(err).Fatal("unable to open parameter store")
	}

	// Setup the device properly so everything works as expected later
	if *configFile == "" {
		*configFile, err = dataPath("bbb_config.yaml")
		if err != nil {
			log.WithError(err).Fatal("unable to locate device config")
		}
	}
	config, err := onboard.LoadConfig(*configFile)
	if err != nil {
		log.WithError(err).Fatal("unable to load device config")
	}

	if err := seedParams(config.Params, *seedFile); err != nil {
		log.WithError(err).Fatal("unable to seed parameters")
	}

	ENV.Simulated = *simulated
	ENV.Device, err = onboard.NewDevice(config, ENV.Simulated, nil)
	if err != nil {
		log.WithError(err).Fatal("unable to initialize device")
	}
	defer ENV.Device.Close()

	scope, scopeCloser, metricsHandler := newMetricsScope(ENV.METRICS_INTERVAL)
	defer scopeCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ENV.Servers = ENV.Device.Servers(gripper.NewStoreResolver(ENV.Params), scope)
	for name, server := range ENV.Servers {
		if err := server.Start(ctx); err != nil {
			log.WithError(err).WithField("effector", name).Error("unable to start action server")
		}
	}
	ENV.Conductor = comms.NewConductor(ENV.Servers)

	// Start an instance of the shell so it can be controlled from the CLI
	if *withShell {
		go newShell().Run()
	}

	srv := &http.Server{
		Addr:    *port,
		Handler: newRouter(metricsHandler),
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		log.Info("shutting down")
		for _, server := range ENV.Servers {
			server.Stop()
		}
		shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdown)
	}()

	log.WithField("port", *port).Info("Listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server failed")
	}
}

func newRouter(metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	// A good base middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Recoverer) // make sure this is last

	r.Handle("/metrics", metricsHandler)

	//---
	// Build the API routes
	//---
	r.Route("/api", func(r chi.Router) {
		// login
		r.Post("/login", Login)

		r.Group(func(r chi.Router) {
			// Seek, verify and validate JWT tokens
			r.Use(ValidateJWT)

			r.Get("/refresh_token", JWTRefresh)
			r.Get("/effectors", ListEffectors)

			r.Route("/effectors/{name}", func(r chi.Router) {
				r.Use(EffectorCtx)
				r.Get("/state", GetEffectorState)
				r.Get("/params", GetEffectorParams)
				r.With(RequireAdmin).Put("/params", PutEffectorParams)
				r.Post("/stop", StopEffector)
			})
		})
	})

	// Add websocket routes
	r.Route("/ws", func(r chi.Router) {
		if ENV.RESIN && !ENV.DEBUG {
			// Enable JWT validation in production
			r.Use(ValidateJWT)
		} else {
			log.Warn("Running in debug mode. Websocket authentication disabled.")
		}

		r.With(EffectorCtx).Get("/action/{name}", ActionHandler)
	})

	return r
}

// ActionHandler speaks the action protocol with one effector over a websocket.
func ActionHandler(w http.ResponseWriter, r *http.Request) {
	ENV.Conductor.ServeAction(w, r, effectorFromContext(r))
}

func openDb(dbFile string) (db *storm.DB, err error) {
	dir := filepath.Dir(dbFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err = storm.Open(dbFile)
	if err != nil {
		return
	}

	// call inits for each type
	if err := db.Init(&Operator{}); err != nil {
		db.Close()
		return nil, err
	}

	return
}

// seedParams writes the config's parameters and then those of the seed file.
// Values already in the store are never overwritten.
func seedParams(fromConfig map[string]float64, seedFile string) error {
	if _, err := ENV.Params.Seed(fromConfig); err != nil {
		return err
	}
	if seedFile == "" {
		return nil
	}

	values, err := params.LoadSeed(seedFile)
	if err != nil {
		return err
	}
	_, err = ENV.Params.Seed(values)
	return err
}
