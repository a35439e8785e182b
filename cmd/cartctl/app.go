package main

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"storefront/internal/auth"
	"storefront/internal/config"
	"storefront/internal/remote"
	"storefront/internal/repository/profile"
	cartsvc "storefront/internal/service/cart"
	productsvc "storefront/internal/service/product"
)

type options struct {
	dbPath    string
	profileID string
	apiURL    string
	timeout   time.Duration
	verbose   bool
}

// app is one browser profile opened for the duration of a command.
type app struct {
	out      io.Writer
	logger   *log.Logger
	closeDB  func() error
	auth     *auth.Session
	cart     *cartsvc.Engine
	products *productsvc.Service
}

func newRootCmd(out io.Writer) *cobra.Command {
	cfg := config.FromEnv()
	opts := &options{}
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "cartctl",
		Short: "Storefront cart from the terminal",
		Long: `cartctl drives the storefront cart against a browser profile kept in SQLite.

As a guest the cart lives only in the profile. After "cartctl login" the
profile holds the session and every change is confirmed against the
server cart.

Examples:
  cartctl add 42 --period month
  cartctl update 42 3 --period month
  cartctl import saved-cart.csv
  cartctl login --email ada@example.com
  cartctl checkout`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context(), opts, cfg)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.dbPath, "db", cfg.SQLitePath, "SQLite file holding the browser profile")
	flags.StringVar(&opts.profileID, "profile", "default", "browser profile name")
	flags.StringVar(&opts.apiURL, "api", cfg.APIBaseURL, "storefront API base URL")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "timeout for each API request")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		newShowCmd(a),
		newAddCmd(a),
		newUpdateCmd(a),
		newRemoveCmd(a),
		newClearCmd(a),
		newImportCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newCheckoutCmd(a),
	)
	return root
}

func (a *app) open(ctx context.Context, opts *options, cfg config.Config) error {
	a.logger = log.New(io.Discard, "", 0)
	if opts.verbose {
		a.logger = log.New(os.Stderr, "[cartctl] ", log.LstdFlags|log.LUTC)
	}

	repo, closeDB, err := profile.OpenSQLite(ctx, opts.dbPath, a.logger)
	if err != nil {
		return err
	}
	a.closeDB = closeDB
	store := profile.Scope(repo, opts.profileID)

	client := remote.New(remote.Config{
		BaseURL:                 opts.apiURL,
		Timeout:                 opts.timeout,
		BreakerFailureThreshold: cfg.BreakerFailureThreshold,
		BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
	}, a.logger)
	a.auth = auth.NewSession(client, store, a.logger)
	client.UseTokenSource(a.auth)
	a.products = productsvc.New(client, cfg.ProductCacheSize, cfg.ProductCacheTTL, a.logger)
	a.cart = cartsvc.New(cartsvc.Deps{
		Store:    store,
		Remote:   client,
		Products: a.products,
		Auth:     a.auth,
		Logger:   a.logger,
	}, cartsvc.WithTaxRate(cfg.TaxRate))

	if err := a.auth.Restore(ctx); err != nil {
		a.logger.Printf("restore session: %v", err)
	}
	if err := a.cart.Start(ctx); err != nil {
		a.logger.Printf("load cart: %v", err)
	}
	return nil
}

func (a *app) close() error {
	if a.cart != nil {
		a.cart.Close()
	}
	if a.closeDB != nil {
		return a.closeDB()
	}
	return nil
}
