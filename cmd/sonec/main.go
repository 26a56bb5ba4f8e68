package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rakunlabs/into"
	"github.com/rakunlabs/logi"

	"github.com/sonecdev/sonec"
	"github.com/sonecdev/sonec/internal/config"
	"github.com/sonecdev/sonec/internal/httpapi"
	"github.com/sonecdev/sonec/internal/scheduler"
)

var (
	name    = "sonec"
	version = "v0.0.0"
)

func main() {
	config.Service = name + "/" + version

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <collect|query|status|serve> [flags]\n", name)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	into.Init(func(ctx context.Context) error {
		return dispatch(ctx, cmd, args)
	},
		into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
		into.WithMsgf("%s [%s]", name, version),
	)
}

func dispatch(ctx context.Context, cmd string, args []string) error {
	cfg, err := config.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = cfg.DatabaseURL
	}

	rt, err := sonec.Configure(ctx, dbURL, sonec.WithHTTPTimeout(cfg.HTTP.Timeout), sonec.WithDefaultPageLimit(cfg.Collect.PageLimit))
	if err != nil {
		return fmt.Errorf("configure runtime: %w", err)
	}
	defer rt.Close()

	switch cmd {
	case "collect":
		return runCollect(ctx, rt, args)
	case "query":
		return runQuery(ctx, rt, args)
	case "status":
		return runStatus(ctx, rt, args)
	case "serve":
		return runServe(ctx, rt, cfg, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runCollect(ctx context.Context, rt *sonec.Runtime, args []string) error {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	provider := fs.String("provider", "", "provider name")
	source := fs.String("source", "", "author handle or external id")
	q := fs.String("q", "", "search query")
	sinceUTC := fs.String("since-utc", "", "only accept items at or after this timestamp")
	untilUTC := fs.String("until-utc", "", "only accept items at or before this timestamp")
	window := fs.String("window", "", "only accept items from the last duration (e.g. 24h, 7d); ignored if --since-utc is set")
	pageLimit := fs.Int("page-limit", 0, "max items requested per page")
	if err := fs.Parse(args); err != nil {
		return err
	}

	report, err := rt.Collect(ctx, sonec.CollectParams{
		Provider:  *provider,
		Source:    *source,
		Q:         *q,
		SinceUTC:  *sinceUTC,
		UntilUTC:  *untilUTC,
		Window:    *window,
		PageLimit: *pageLimit,
	})
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runQuery(ctx context.Context, rt *sonec.Runtime, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	provider := fs.String("provider", "", "filter by provider name")
	sinceUTC := fs.String("since-utc", "", "filter to created_at >= this timestamp")
	untilUTC := fs.String("until-utc", "", "filter to created_at <= this timestamp")
	author := fs.String("author", "", "filter by author handle, external id, or numeric id")
	contains := fs.String("contains", "", "case-insensitive substring over post text")
	limit := fs.Int("limit", 0, "page size")
	afterKey := fs.String("after-key", "", "keyset pagination token from a previous page")
	if err := fs.Parse(args); err != nil {
		return err
	}

	page, err := rt.Query(ctx, sonec.QueryParams{
		Entity:   "posts",
		Provider: *provider,
		SinceUTC: *sinceUTC,
		UntilUTC: *untilUTC,
		Author:   *author,
		Contains: *contains,
		Limit:    *limit,
		AfterKey: *afterKey,
	})
	if err != nil {
		return err
	}
	return printJSON(page)
}

func runStatus(ctx context.Context, rt *sonec.Runtime, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	provider := fs.String("provider", "", "filter by provider name")
	source := fs.String("source", "", "filter by source descriptor")
	limitJobs := fs.Int("limit-jobs", 0, "max recent jobs to report")
	if err := fs.Parse(args); err != nil {
		return err
	}

	snap, err := rt.Status(ctx, sonec.StatusParams{
		Provider:  *provider,
		Source:    *source,
		LimitJobs: *limitJobs,
	})
	if err != nil {
		return err
	}
	return printJSON(snap)
}

func runServe(ctx context.Context, rt *sonec.Runtime, cfg *config.Config, args []string) error {
	if cfg.Schedule != nil {
		sched, err := scheduler.New(rt.Collector(), scheduler.Config{
			Cron:      cfg.Schedule.Cron,
			Provider:  cfg.Schedule.Provider,
			Source:    cfg.Schedule.Source,
			Q:         cfg.Schedule.Q,
			PageLimit: cfg.Collect.PageLimit,
		})
		if err != nil {
			return fmt.Errorf("build scheduler: %w", err)
		}
		if sched != nil {
			if err := sched.Start(ctx); err != nil {
				return fmt.Errorf("start scheduler: %w", err)
			}
			defer sched.Stop()
		}
	}

	srv := httpapi.New(cfg.Server, rt.Collector(), rt.Store())
	return srv.Start(ctx)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
