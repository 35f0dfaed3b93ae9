package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Daskott/sentinel/logger"
	"github.com/Daskott/sentinel/server/auth/key"
	"github.com/Daskott/sentinel/server/functions"
	"github.com/Daskott/sentinel/server/gstorage"
	"github.com/Daskott/sentinel/server/metrics"
	"github.com/Daskott/sentinel/server/models"
	"github.com/Daskott/sentinel/server/realtime"
	"github.com/Daskott/sentinel/server/twilio"
	"github.com/Daskott/sentinel/server/work"
	"github.com/Daskott/sentinel/shared"
	"github.com/go-playground/validator"
	"github.com/gorilla/mux"
)

var (
	logg     = logger.Named("server")
	validate *validator.Validate
)

func init() {
	validate = validator.New()
	if err := RegisterValidators(validate); err != nil {
		logg.Panic(err)
	}
}

// ObjectStore is the bucket used for db backups & emergency recordings
type ObjectStore interface {
	UploadFile(bucket, prefix, filePath string) error
	DownloadFile(bucket, object string, destFileName string) error
	UploadObject(ctx context.Context, bucket, object string, content io.Reader, contentType string) (string, error)
}

// Dependencies overrides the external services a server talks to. Zero
// values are built from config.
type Dependencies struct {
	Messenger    twilio.Messenger
	SmsValidator twilio.Validator
	Storage      ObjectStore
	Generator    functions.Generator
}

type Server struct {
	config  shared.ServerConfig
	devMode bool

	keyPair      *key.KeyPair
	broker       *realtime.Broker
	functions    *functions.Runtime
	workerPool   *work.WorkerPoolAdapter
	messenger    twilio.Messenger
	smsValidator twilio.Validator
	storage      ObjectStore
	router       *mux.Router
}

// ValidateConfig checks a decoded server config before it's used
func ValidateConfig(config shared.ServerConfig) error {
	return validate.Struct(config)
}

func New(config shared.ServerConfig, devMode bool, deps Dependencies) (*Server, error) {
	keyPair, err := key.NewKeyPairFromRSAPrivateKeyPem(config.Sentinel.PrivateKeyPem)
	if err != nil {
		return nil, err
	}

	workerPool, err := work.NewWorkerAdapter(config.Sentinel.Cron.TimeZone, work.MAX_CONCURRENCY)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:       config,
		devMode:      devMode,
		keyPair:      keyPair,
		broker:       realtime.NewBroker(),
		workerPool:   workerPool,
		messenger:    deps.Messenger,
		smsValidator: deps.SmsValidator,
		storage:      deps.Storage,
	}

	generator := deps.Generator
	if generator == nil {
		generator = functions.NewGenerator(config.OpenAI)
	}
	s.functions = functions.NewRuntime(generator, config.Functions.RatePerMinute, config.Functions.Burst)

	if s.messenger == nil {
		if twilio.Configured(config.Twilio) && !devMode {
			client := twilio.NewClient(config.Twilio, config.Sentinel.URL)
			s.messenger, s.smsValidator = client, client
		} else {
			logg.Warn("twilio is not configured, sos sms will only be logged")
			s.messenger = twilio.LogMessenger{}
		}
	}

	if s.smsValidator == nil {
		s.smsValidator = twilio.AcceptAll{}
	}

	storageConfig := config.Google.Storage
	if s.storage == nil && (storageConfig.BackupEnabled() || storageConfig.RecordingsEnabled()) {
		gs, err := gstorage.NewGStorage(config.Google.ApplicationCredentials)
		if err != nil {
			return nil, err
		}
		s.storage = gs
	}

	if err = s.registerJobHandlers(); err != nil {
		return nil, err
	}

	metrics.SetSources(s.broker.Count, models.CurrentJobsStats)
	s.router = s.routes()

	return s, nil
}

// Handler is the root http handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(loggingMiddleware)
	router.Use(s.initialContextMiddleware)

	router.HandleFunc("/health", s.health).Methods("GET")
	router.HandleFunc("/jwks", s.jwks).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	router.HandleFunc(twilio.STATUS_CALLBACK_PATH, s.smsStatus).Methods("POST")

	authRouter := router.PathPrefix("/auth/v1").Subrouter()
	authRouter.HandleFunc("/signup", s.signUp).Methods("POST")
	authRouter.HandleFunc("/token", s.signIn).Methods("POST")
	authRouter.Handle("/user", protectedRouteMiddleware(http.HandlerFunc(s.currentUser))).Methods("GET")

	restRouter := router.PathPrefix("/rest/v1").Subrouter()
	restRouter.Use(protectedRouteMiddleware)
	restRouter.HandleFunc("/{table}", s.selectRows).Methods("GET")
	restRouter.HandleFunc("/{table}", s.insertRows).Methods("POST")
	restRouter.HandleFunc("/{table}", s.deleteRows).Methods("DELETE")

	functionsRouter := router.PathPrefix("/functions/v1").Subrouter()
	functionsRouter.Use(protectedRouteMiddleware)
	functionsRouter.HandleFunc("/{name}", s.invokeFunction).Methods("POST")

	storageRouter := router.PathPrefix("/storage/v1").Subrouter()
	storageRouter.Use(protectedRouteMiddleware)
	storageRouter.HandleFunc("/recordings", s.uploadRecording).Methods("POST")

	router.Handle("/realtime/v1", protectedRouteMiddleware(http.HandlerFunc(s.subscribe))).Methods("GET")

	return router
}

// Start opens the db, starts background jobs & serves http until interrupted
func Start(config shared.ServerConfig, devMode bool) {
	fatalOnError(ValidateConfig(config))

	s, err := New(config, devMode, Dependencies{})
	fatalOnError(err)

	configDir := configDirectory(devMode)

	dbDir, err := models.DbDirectory(configDir)
	fatalOnError(err)
	fatalOnError(s.restoreSqliteDb(filepath.Join(dbDir, models.DB_NAME)))

	fatalOnError(models.AutoMigrate(config.Sqlite.PassPhrase, configDir))

	s.workerPool.Start()
	fatalOnError(s.enqueuePeriodicJobs())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%v", config.Sentinel.Listener.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go serve(server)

	// Wait for an interrupt
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	<-sigint

	s.cleanup(server)
}
