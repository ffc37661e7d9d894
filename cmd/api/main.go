package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"veridex.org/internal/aiguard"
	"veridex.org/internal/autofill"
	"veridex.org/internal/cluster"
	"veridex.org/internal/httpapi"
	"veridex.org/internal/identity"
	"veridex.org/internal/obs"
	"veridex.org/internal/resolve"
	"veridex.org/internal/share"
	"veridex.org/internal/store/pg"
	"veridex.org/internal/vatr"
	"veridex.org/internal/view"
)

var version = "0.3.0"

func main() {
	obs.Init()

	secret := os.Getenv("VERIDEX_AUTH_SECRET")
	if secret == "" {
		log.Fatal("missing VERIDEX_AUTH_SECRET")
	}
	verifier, err := identity.NewVerifier(secret, identity.WithIssuer("veridex"))
	if err != nil {
		log.Fatalf("verifier: %v", err)
	}

	// Stores: Postgres when a DSN is configured, in-memory otherwise.
	var (
		viewStore     view.Store              = view.NewInMemory()
		shareStore    share.Store             = share.NewInMemory()
		trailStore    vatr.Store              = vatr.NewInMemory()
		prefStore     resolve.PreferenceStore = resolve.NewInMemoryPreferences()
		decisionStore autofill.DecisionStore  = autofill.NewInMemory()
		pgStore       *pg.Store
	)
	if dsn := os.Getenv("VERIDEX_PG_DSN"); dsn != "" {
		pgStore, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		viewStore = pgStore.Views()
		shareStore = pgStore.Shares()
		trailStore = pgStore.Trail()
		prefStore = pgStore.Preferences()
		decisionStore = pgStore.Autofill()
	}

	trail, err := vatr.NewLedger(trailStore)
	if err != nil {
		log.Fatalf("trail: %v", err)
	}
	views, err := view.NewRegistry(viewStore, trail)
	if err != nil {
		log.Fatalf("views: %v", err)
	}
	shares, err := share.NewLedger(shareStore, viewStore, trail)
	if err != nil {
		log.Fatalf("shares: %v", err)
	}
	resolver, err := resolve.NewResolver(viewStore, shares, prefStore)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}
	guard, err := aiguard.NewGuard(viewStore, shares)
	if err != nil {
		log.Fatalf("guard: %v", err)
	}
	// TODO: replace with the extraction service client once its endpoint
	// is provisioned; until then every proposal resolves to no_match.
	source := autofill.SourceFunc(func(ctx context.Context, req autofill.MatchRequest) ([]autofill.Candidate, error) {
		return nil, nil
	})
	filler, err := autofill.NewPolicy(source, decisionStore, trail)
	if err != nil {
		log.Fatalf("autofill: %v", err)
	}

	probe := httpapi.ReadyProbe{}
	if pgStore != nil {
		probe.DB = pgStore.DB()
	}
	api := httpapi.New(httpapi.Services{
		Verifier: verifier,
		Views:    views,
		Shares:   shares,
		Resolver: resolver,
		RBAC:     cluster.DefaultPolicy(),
		Guard:    guard,
		Autofill: filler,
		Trail:    trail,
	}, probe, version)

	addr := os.Getenv("VERIDEX_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting veridex-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}
