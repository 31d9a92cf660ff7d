package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"github.com/smileynet/countrylookup/internal/cache"
	"github.com/smileynet/countrylookup/internal/config"
	"github.com/smileynet/countrylookup/internal/countries"
	"github.com/smileynet/countrylookup/internal/country"
	"github.com/smileynet/countrylookup/internal/lookup"
	"github.com/smileynet/countrylookup/internal/metrics"
	"github.com/smileynet/countrylookup/internal/server"
	"github.com/smileynet/countrylookup/internal/tui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Globals are flags shared by every command.
type Globals struct {
	Config  string `help:"Config file layered over the user and project config." placeholder:"PATH"`
	Verbose bool   `help:"Enable debug logging on stderr." short:"v"`
}

// CLI is the top-level command structure for countries.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version." short:"V"`
	Capital CapitalCmd       `cmd:"" help:"Search countries by capital city."`
	Name    NameCmd          `cmd:"" help:"Search countries by partial name."`
	Region  RegionCmd        `cmd:"" help:"List the countries of a region."`
	Alpha   AlphaCmd         `cmd:"" help:"Look up one country by alpha code."`
	Cache   CacheCmd         `cmd:"" help:"Print the cached search results."`
	Serve   ServeCmd         `cmd:"" help:"Serve the search API over HTTP."`
}

// OutputFlags control how results are printed.
type OutputFlags struct {
	NoTUI bool `help:"Force plain text output even if stdout is a TTY." default:"false"`
	JSON  bool `help:"Print results as JSON." name:"json" default:"false"`
}

// CapitalCmd searches by capital city.
type CapitalCmd struct {
	Term        string `arg:"" help:"Capital city, or part of one."`
	OutputFlags `embed:""`
}

// NameCmd searches by partial country name.
type NameCmd struct {
	Term        string `arg:"" help:"Country name, or part of one."`
	OutputFlags `embed:""`
}

// RegionCmd lists a region's countries.
type RegionCmd struct {
	Region      string `arg:"" help:"One of Africa, Americas, Asia, Europe, Oceania."`
	OutputFlags `embed:""`
}

// AlphaCmd looks up one country by alpha code.
type AlphaCmd struct {
	Code string `arg:"" help:"Two or three letter country code."`
	JSON bool   `help:"Print the country as JSON." name:"json" default:"false"`
}

// CacheCmd prints the CacheStore.
type CacheCmd struct {
	JSON bool `help:"Print the store as JSON." name:"json" default:"false"`
}

// ServeCmd runs the HTTP API.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides server.addr)."`
}

// searcher abstracts countries.Service for testing.
type searcher interface {
	SearchCapital(ctx context.Context, term string) []country.Country
	SearchCountry(ctx context.Context, term string) []country.Country
	SearchRegion(ctx context.Context, region country.Region) []country.Country
	SearchCountryByAlphaCode(ctx context.Context, code string) (country.Country, bool)
	Store() cache.CacheStore
}

var _ searcher = (*countries.Service)(nil)

// app holds the wired dependencies for one invocation.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	service *countries.Service
	closer  io.Closer
}

func (a *app) Close() error {
	return a.closer.Close()
}

// loadConfig loads layered config from user, project and explicit paths with env overrides.
func loadConfig(explicit string) (*config.Config, error) {
	cfg, err := config.LoadLayered(
		os.ExpandEnv("$HOME/.config/countries/config.yaml"),
		".countries/config.yaml",
		explicit,
	)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the diagnostic logger. --verbose forces debug.
func newLogger(w io.Writer, level string, verbose bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.WarnLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(lvl).
		With().Timestamp().
		Logger()
}

// newApp wires config, storage, lookup client and service.
func newApp(g *Globals) (*app, error) {
	cfg, err := loadConfig(g.Config)
	if err != nil {
		return nil, err
	}
	log := newLogger(os.Stderr, cfg.Log.Level, g.Verbose)

	storage, closer, err := cache.DefaultRegistry().Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	policy, err := countries.ParseFailurePolicy(cfg.Cache.FailurePolicy)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	m := metrics.New()
	client := lookup.New(cfg.API.BaseURL,
		lookup.WithDelay(cfg.API.Delay),
		lookup.WithTimeout(cfg.API.Timeout),
		lookup.WithObserver(m),
	)
	svc := countries.New(client, storage,
		countries.WithKey(cfg.Storage.Key),
		countries.WithFailurePolicy(policy),
		countries.WithLogger(log.With().Str("component", "countries").Logger()),
	)

	log.Debug().
		Str("backend", cfg.Storage.Backend).
		Str("path", cfg.Storage.Path).
		Str("base_url", cfg.API.BaseURL).
		Msg("configured")

	return &app{cfg: cfg, log: log, metrics: m, service: svc, closer: closer}, nil
}

// search describes one cache-updating search for the display.
type search struct {
	kind string
	term string
	fn   func(ctx context.Context) []country.Country
}

// Run executes the capital command.
func (c *CapitalCmd) Run(g *Globals) error {
	return runSearchCmd(g, c.OutputFlags, func(s searcher) (search, error) {
		return search{kind: "capital", term: c.Term, fn: func(ctx context.Context) []country.Country {
			return s.SearchCapital(ctx, c.Term)
		}}, nil
	})
}

// Run executes the name command.
func (c *NameCmd) Run(g *Globals) error {
	return runSearchCmd(g, c.OutputFlags, func(s searcher) (search, error) {
		return search{kind: "name", term: c.Term, fn: func(ctx context.Context) []country.Country {
			return s.SearchCountry(ctx, c.Term)
		}}, nil
	})
}

// Run executes the region command.
func (c *RegionCmd) Run(g *Globals) error {
	return runSearchCmd(g, c.OutputFlags, func(s searcher) (search, error) {
		return regionSearch(s, c.Region)
	})
}

// regionSearch validates region against the closed set.
func regionSearch(s searcher, raw string) (search, error) {
	region, err := country.ParseRegion(raw)
	if err != nil {
		return search{}, err
	}
	return search{kind: "region", term: string(region), fn: func(ctx context.Context) []country.Country {
		return s.SearchRegion(ctx, region)
	}}, nil
}

// runSearchCmd wires the app and a display around one search.
func runSearchCmd(g *Globals, out OutputFlags, build func(searcher) (search, error)) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	s, err := build(a.service)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if out.JSON {
		return runJSON(ctx, os.Stdout, s)
	}

	// The cancel func lets the TUI abort the search on q / ctrl+c.
	searchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	bridge := tui.NewBridge()
	display := tui.NewDisplay(tui.DisplayOptions{
		Writer:     os.Stdout,
		ForcePlain: out.NoTUI,
		Kind:       s.kind,
		Term:       s.term,
		CancelFunc: cancel,
	})
	return runSearch(searchCtx, s, display, bridge)
}

// runSearch executes s with display lifecycle management, enabling testable wiring.
func runSearch(ctx context.Context, s search, display tui.Display, bridge *tui.Bridge) error {
	displayDone := make(chan error, 1)
	go func() {
		displayDone <- display.Run(context.Background(), bridge.Events())
	}()

	bridge.Started(s.kind, s.term)
	results := s.fn(ctx)
	if err := ctx.Err(); err != nil {
		bridge.Error(err)
	} else {
		bridge.Done(results)
	}

	// Wait for display to finish (so it releases the terminal).
	if err := <-displayDone; err != nil {
		return &runtimeError{err: err}
	}
	return nil
}

// runJSON executes s and prints the results as a JSON array.
func runJSON(ctx context.Context, w io.Writer, s search) error {
	results := s.fn(ctx)
	if err := ctx.Err(); err != nil {
		return &runtimeError{err: err}
	}
	return writeJSON(w, results)
}

// Run executes the alpha command.
func (c *AlphaCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return c.run(ctx, os.Stdout, a.service)
}

func (c *AlphaCmd) run(ctx context.Context, w io.Writer, s searcher) error {
	found, ok := s.SearchCountryByAlphaCode(ctx, c.Code)
	if !ok {
		if err := ctx.Err(); err != nil {
			return &runtimeError{err: err}
		}
		if c.JSON {
			_, _ = fmt.Fprintln(w, "null")
			return nil
		}
		_, _ = fmt.Fprintf(w, "no country found for code %q\n", c.Code)
		return nil
	}
	if c.JSON {
		return writeJSON(w, found)
	}
	printCountry(w, found)
	return nil
}

func printCountry(w io.Writer, c country.Country) {
	_, _ = fmt.Fprintf(w, "%s (%s)\n", c.Name.Common, c.CCA3)
	if c.Name.Official != "" && c.Name.Official != c.Name.Common {
		_, _ = fmt.Fprintf(w, "  official:   %s\n", c.Name.Official)
	}
	_, _ = fmt.Fprintf(w, "  capital:    %s\n", c.CapitalList())
	region := c.Region
	if c.Subregion != "" {
		region += " / " + c.Subregion
	}
	_, _ = fmt.Fprintf(w, "  region:     %s\n", region)
	_, _ = fmt.Fprintf(w, "  population: %d\n", c.Population)
	if c.Flag != "" {
		_, _ = fmt.Fprintf(w, "  flag:       %s\n", c.Flag)
	}
}

// Run executes the cache command.
func (c *CacheCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return c.run(os.Stdout, a.service)
}

func (c *CacheCmd) run(w io.Writer, s searcher) error {
	store := s.Store()
	if c.JSON {
		return writeJSON(w, store)
	}
	printSlot(w, "byCapital", store.ByCapital.Term, store.ByCapital.Countries)
	printSlot(w, "byCountries", store.ByCountries.Term, store.ByCountries.Countries)
	printSlot(w, "byRegion", string(store.ByRegion.Region), store.ByRegion.Countries)
	return nil
}

func printSlot(w io.Writer, name, key string, cs []country.Country) {
	if key == "" && len(cs) == 0 {
		_, _ = fmt.Fprintf(w, "%s: (empty)\n", name)
		return
	}
	_, _ = fmt.Fprintf(w, "%s: %q (%d)\n", name, key, len(cs))
	if len(cs) > 0 {
		_, _ = io.WriteString(w, tui.FormatTable(cs, false))
	}
}

// Run executes the serve command.
func (c *ServeCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	addr := a.cfg.Server.Addr
	if c.Addr != "" {
		addr = c.Addr
	}

	h := server.New(a.service,
		server.WithMetricsHandler(a.metrics.Handler()),
		server.WithLogger(a.log.With().Str("component", "server").Logger()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_, _ = fmt.Fprintf(os.Stdout, "listening on %s\n", addr)
	if err := server.Serve(ctx, addr, h.Router()); err != nil {
		return &runtimeError{err: err}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return &runtimeError{err: err}
	}
	return nil
}

// runtimeError marks a failure after setup succeeded.
type runtimeError struct {
	err error
}

func (e *runtimeError) Error() string { return e.err.Error() }
func (e *runtimeError) Unwrap() error { return e.err }

const (
	exitSuccess = 0
	exitRuntime = 1
	exitSetup   = 2
)

// exitCode maps an error to the appropriate exit code.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var re *runtimeError
	if errors.As(err, &re) {
		return exitRuntime
	}
	return exitSetup
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("countries"),
		kong.Description("Look up countries by capital, name, region or code."),
		kong.Vars{"version": version + " " + commit + " " + date},
	)
	err := ctx.Run(&cli.Globals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(exitCode(err))
	}
}
