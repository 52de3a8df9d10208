package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/nsqio/go-nsq"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

type App struct {
	Environment string
	Config      *Config
	Router      *mux.Router
	Http        *http.Server
	Negroni     *negroni.Negroni
	Logger      *logrus.Logger
	Database    *Database
	NsqProducer *nsq.Producer
	Redis       *redis.Client

	Event *EventBus

	// Now is the clock used for every persisted timestamp.
	Now func() time.Time

	EnableHttp bool
}

// New builds an App from config and connects every backend the config
// names. Backends left empty in the config stay nil.
func New(config *Config, logger *logrus.Logger) (*App, error) {
	if logger == nil {
		logger = logrus.New()
	}

	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(level)

	app := &App{
		Environment: Environment(),
		Config:      config,
		Router:      mux.NewRouter(),
		Logger:      logger,
		Now:         func() time.Time { return time.Now().UTC() },
	}

	logger.Debugf("Using log level %s", logger.Level.String())

	if config.Nsqd != "" {
		app.NsqProducer, err = nsq.NewProducer(config.Nsqd, nsq.NewConfig())
		if err != nil {
			return nil, fmt.Errorf("nsq producer: %w", err)
		}
		app.NsqProducer.SetLogger(nsqLogger{logger}, nsq.LogLevelWarning)
	}

	app.Event = NewEventBus(app)

	if config.Redis != "" {
		app.Redis = ConnectRedis(config.Redis)
	}

	if config.Database.DSN != "" {
		if err := app.ConnectDatabase(); err != nil {
			return nil, err
		}
	}

	app.Negroni = negroni.New(negroni.NewRecovery(), RequestLogger(logger))

	return app, nil
}

func (app *App) ConnectDatabase() error {
	db, err := OpenDatabase(app.Config.Database, app.Logger)
	if err != nil {
		return err
	}

	app.Database = db
	return nil
}

func OpenDatabase(config DatabaseConfig, logger *logrus.Logger) (*Database, error) {
	db, err := sqlx.Connect(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", config.Driver, err)
	}

	return &Database{db, logger}, nil
}

func (app *App) Close() {
	if app.NsqProducer != nil {
		app.NsqProducer.Stop()
	}
	if app.Redis != nil {
		if err := app.Redis.Close(); err != nil {
			app.Logger.WithField("error", err).Warn("Closing redis")
		}
	}
	if app.Database != nil {
		if err := app.Database.Close(); err != nil {
			app.Logger.WithField("error", err).Warn("Closing database")
		}
	}
}

func (app *App) Handler() http.Handler {
	app.Negroni.UseHandler(app.Router)
	return app.Negroni
}

// Run serves http until ctx is cancelled, then shuts down gracefully.
// Without registered routes it only waits for ctx.
func (app *App) Run(ctx context.Context) error {
	if !app.EnableHttp {
		<-ctx.Done()
		return nil
	}

	c := app.Config.Http
	app.Http = &http.Server{
		Handler:      app.Handler(),
		Addr:         fmt.Sprintf("%s:%d", c.Address, c.Port),
		WriteTimeout: c.Timeout,
		ReadTimeout:  c.Timeout,
	}

	errs := make(chan error, 1)
	go func() {
		app.Logger.WithField("address", app.Http.Addr).Info("Listening for http connections")
		if c.UseTLS {
			errs <- app.Http.ListenAndServeTLS(c.TLSCertificate, c.TLSKey)
		} else {
			errs <- app.Http.ListenAndServe()
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.Http.Shutdown(shutdown); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (app *App) Use(h negroni.Handler) {
	app.Negroni.Use(h)
}

func (app *App) Get(path string, handler http.HandlerFunc) {
	app.EnableHttp = true
	app.Router.HandleFunc(path, handler).Methods("GET")
}

func (app *App) Post(path string, handler http.HandlerFunc) {
	app.EnableHttp = true
	app.Router.HandleFunc(path, handler).Methods("POST")
}

func (app *App) Put(path string, handler http.HandlerFunc) {
	app.EnableHttp = true
	app.Router.HandleFunc(path, handler).Methods("PUT")
}

func (app *App) Delete(path string, handler http.HandlerFunc) {
	app.EnableHttp = true
	app.Router.HandleFunc(path, handler).Methods("DELETE")
}

type nsqLogger struct {
	logger *logrus.Logger
}

func (l nsqLogger) Output(calldepth int, s string) error {
	l.logger.WithField("component", "nsq").Debug(s)
	return nil
}
