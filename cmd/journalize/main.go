// Package main starts a journalizing server.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/dentalrpa/journalize/app"
	"github.com/dentalrpa/journalize/dashboard"
	"github.com/dentalrpa/journalize/engine"
	enginehttp "github.com/dentalrpa/journalize/engine/http"
	"github.com/dentalrpa/journalize/forms"
	httpj "github.com/dentalrpa/journalize/http"
	"github.com/dentalrpa/journalize/logkeys"
	credsstorage "github.com/dentalrpa/journalize/subsystem/creds/storage"
	credsmysql "github.com/dentalrpa/journalize/subsystem/creds/storage/mysql"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/envflag"
	nanohttp "github.com/micromdm/nanolib/http"
	"github.com/micromdm/nanolib/http/trace"
	"github.com/micromdm/nanolib/log/stdlogfmt"
)

// overridden by -ldflags -X
var version = "unknown"

const (
	apiUsername = "journalize"
	apiRealm    = "journalize"

	constDashboardAPIKey = "dashboard_api_key"
	constFormsAPIKey     = "os2forms_api_key"
)

func main() {
	var (
		flDebug    = flag.Bool("debug", false, "log debug messages")
		flListen   = flag.String("listen", ":9004", "HTTP listen address")
		flVersion  = flag.Bool("version", false, "print version and exit")
		flDumpIn   = flag.Bool("dump-input", false, "dump API request input")
		flAPIKey   = flag.String("api", "", "API key for API endpoints")
		flProfile  = flag.String("process-profile", "journalize.yml", "path to the process profile")
		flDashURL  = flag.String("dashboard-url", "", "URL of the dashboard API")
		flDashAPI  = flag.String("dashboard-api", "", "dashboard API key")
		flFormsAPI = flag.String("forms-api", "", "forms API key")
		flAppURL   = flag.String("app-url", "", "URL of the desktop application bridge")
		flAppCred  = flag.String("app-credential", "dental_app", "name of the application credential")
		flAppUser  = flag.String("app-username", "", "application username (when no credential store)")
		flAppPass  = flag.String("app-password", "", "application password (when no credential store)")
		flStorage  = flag.String("storage", "file", "name of storage backend")
		flDSN      = flag.String("storage-dsn", "", "data source name (e.g. connection string or path)")
		flCredsDSN = flag.String("creds-dsn", "", "connection string of the credential store")
	)
	envflag.Parse("JOURNALIZE_", []string{"version"})

	if *flVersion {
		fmt.Println(version)
		return
	}

	logger := stdlogfmt.New(stdlogfmt.WithDebugFlag(*flDebug))

	if *flDashURL == "" || *flAppURL == "" {
		logger.Info(logkeys.Error, "dashboard URL and application bridge URL required")
		os.Exit(1)
	}

	cfg, err := engine.LoadConfig(*flProfile)
	if err != nil {
		logger.Info(logkeys.Message, "loading process profile", logkeys.Error, err)
		os.Exit(1)
	}

	storage, err := parseStorage(*flStorage, *flDSN)
	if err != nil {
		logger.Info(logkeys.Message, "parse storage", logkeys.Error, err)
		os.Exit(1)
	}

	// resolve secrets, from the credential store when configured
	ctx := context.Background()
	dashKey, formsKey := *flDashAPI, *flFormsAPI
	appUser, appPass := *flAppUser, *flAppPass
	if *flCredsDSN != "" {
		var creds credsstorage.Storage
		creds, err = credsmysql.New(credsmysql.WithDSN(*flCredsDSN))
		if err != nil {
			logger.Info(logkeys.Message, "creating credential store", logkeys.Error, err)
			os.Exit(1)
		}
		cred, err := creds.Credential(ctx, *flAppCred)
		if err != nil {
			logger.Info(logkeys.Message, "resolving application credential", logkeys.Error, err)
			os.Exit(1)
		}
		appUser, appPass = cred.Username, cred.Password
		if dashKey == "" {
			if dashKey, err = creds.Constant(ctx, constDashboardAPIKey); err != nil {
				logger.Info(logkeys.Message, "resolving dashboard API key", logkeys.Error, err)
				os.Exit(1)
			}
		}
		if formsKey == "" {
			if formsKey, err = creds.Constant(ctx, constFormsAPIKey); err != nil {
				logger.Info(logkeys.Message, "resolving forms API key", logkeys.Error, err)
				os.Exit(1)
			}
		}
	}

	reporter := dashboard.NewReporter(
		dashboard.NewClient(*flDashURL, dashKey, dashboard.WithLogger(logger.With("service", "dashboard"))),
		cfg.ProcessName,
		dashboard.WithReporterLogger(logger.With("service", "reporter")),
	)

	formsClient := forms.NewClient(formsKey, forms.WithLogger(logger.With("service", "forms")))

	appClient := app.NewClient(*flAppURL, appUser, appPass, app.WithLogger(logger.With("service", "app")))

	e := engine.New(
		*cfg,
		appClient,
		reporter,
		storage.status,
		storage.dental,
		formsClient,
		engine.WithLogger(logger.With("service", "engine")),
	)

	mux := flow.New()

	mux.Handle("/version", nanohttp.NewJSONVersionHandler(version))

	if *flAPIKey != "" {
		mux.Group(func(mux *flow.Mux) {
			mux.Use(func(h http.Handler) http.Handler {
				return nanohttp.NewSimpleBasicAuthHandler(h, apiUsername, *flAPIKey, apiRealm)
			})

			enginehttp.HandleAPIv1("/v1", mux, logger, e, storage.status)
		})
	}

	var handler http.Handler = mux
	if *flDumpIn {
		handler = httpj.DumpHandler(handler, os.Stdout)
	}

	// seed for newTraceID
	rand.Seed(time.Now().UnixNano())

	logger.Info(logkeys.Message, "starting server", "listen", *flListen)
	err = http.ListenAndServe(*flListen, trace.NewTraceLoggingHandler(handler, logger.With("handler", "log"), newTraceID))
	logs := []interface{}{logkeys.Message, "server shutdown"}
	if err != nil {
		logs = append(logs, logkeys.Error, err)
	}
	logger.Info(logs...)
}

// newTraceID generates a new HTTP trace ID for context logging.
// Currently this just makes a random string. This would be better
// served by e.g. https://github.com/oklog/ulid or something like
// https://opentelemetry.io/ someday.
func newTraceID(_ *http.Request) string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
