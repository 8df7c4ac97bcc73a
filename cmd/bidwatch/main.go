package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/nurimarket/bidwatch/internal/api"
	"github.com/nurimarket/bidwatch/internal/browser"
	"github.com/nurimarket/bidwatch/internal/config"
	"github.com/nurimarket/bidwatch/internal/crawler"
	"github.com/nurimarket/bidwatch/internal/metrics"
	"github.com/nurimarket/bidwatch/internal/robots"
	"github.com/nurimarket/bidwatch/internal/scheduler"
	"github.com/nurimarket/bidwatch/internal/scraper"
	"github.com/nurimarket/bidwatch/internal/state"
	"github.com/nurimarket/bidwatch/internal/storage"
	"github.com/nurimarket/bidwatch/pkg/logging"
)

func main() {
	app := &cli.App{
		Name:    "bidwatch",
		Usage:   "collect public-procurement bid notices",
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML config file"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug logging"},
		},
		Commands: []*cli.Command{
			crawlCommand(),
			scheduleCommand(),
			statusCommand(),
			resetCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.Bool("verbose") {
		cfg.Logging.Level = "debug"
	}
	if c.IsSet("max-pages") {
		cfg.MaxPages = c.Int("max-pages")
	}
	if c.IsSet("max-items") {
		cfg.MaxItems = c.Int("max-items")
	}
	if c.IsSet("output-dir") {
		cfg.Storage.DataDir = c.String("output-dir")
		cfg.Storage.StateFile = c.String("output-dir") + "/crawl_state.json"
	}
	if c.IsSet("format") {
		cfg.Storage.OutputFormat = c.String("format")
	}
	if c.IsSet("keyword") {
		cfg.Keyword = c.String("keyword")
	}
	if c.IsSet("headless") {
		cfg.Browser.Headless = c.Bool("headless")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logging.SetupLogger(cfg.Logging); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func crawlFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "max-pages", Aliases: []string{"p"}, Usage: "page limit"},
		&cli.IntFlag{Name: "max-items", Aliases: []string{"n"}, Usage: "item limit"},
		&cli.StringFlag{Name: "output-dir", Aliases: []string{"o"}, Value: "data", Usage: "output directory"},
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "output format: json, csv or both"},
		&cli.BoolFlag{Name: "headless", Value: true, Usage: "run the browser headless"},
		&cli.BoolFlag{Name: "resume", Value: true, Usage: "resume from previous state"},
		&cli.StringFlag{Name: "keyword", Aliases: []string{"k"}, Usage: "title keyword filter"},
	}
}

// buildPipeline assembles the orchestrator and its collaborators
func buildPipeline(cfg *config.Config) (*crawler.Orchestrator, storage.Repository, *state.Manager, *metrics.CrawlerMetrics, error) {
	repo, err := buildRepository(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	selectors, err := scraper.LoadSelectors(cfg.SelectorsFile)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	stateMgr := state.NewManager(cfg.Storage.StateFile)
	session := browser.NewHTTPSession(cfg.Browser)
	list := scraper.NewG2BListScraper(selectors, cfg.BaseURL, cfg.Keyword)
	detail := scraper.NewG2BDetailScraper(selectors)

	var m *metrics.CrawlerMetrics
	if cfg.Monitoring.Enabled {
		m = metrics.New(cfg.Monitoring)
	}

	var checker *robots.Checker
	if cfg.Robots.Enabled {
		checker = robots.NewChecker(cfg.Robots)
	}

	orch := crawler.NewOrchestrator(cfg, session, list, detail, repo, stateMgr, m, checker)
	return orch, repo, stateMgr, m, nil
}

func buildRepository(cfg *config.Config) (storage.Repository, error) {
	jsonCfg := storage.DefaultJSONConfig(cfg.Storage.DataDir)
	jsonCfg.IndividualFiles = cfg.Storage.IndividualFiles

	switch cfg.Storage.OutputFormat {
	case "json":
		return storage.NewJSONRepository(jsonCfg, nil)
	case "csv":
		return storage.NewCSVRepository(cfg.Storage.DataDir, "")
	case "both":
		jsonRepo, err := storage.NewJSONRepository(jsonCfg, nil)
		if err != nil {
			return nil, err
		}
		csvRepo, err := storage.NewCSVRepository(cfg.Storage.DataDir, "")
		if err != nil {
			return nil, err
		}
		return storage.NewMultiRepository(jsonRepo, csvRepo), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", cfg.Storage.OutputFormat)
	}
}

func crawlCommand() *cli.Command {
	return &cli.Command{
		Name:  "crawl",
		Usage: "run one crawl",
		Flags: crawlFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			orch, repo, _, m, err := buildPipeline(cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if m != nil {
				go func() {
					if err := m.Serve(ctx); err != nil {
						log.Error().Err(err).Msg("Metrics server failed")
					}
				}()
			}

			finalState, err := orch.Run(ctx, c.Bool("resume"))
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			printSummary(finalState)
			if finalState.Statistics.TotalCollected == 0 {
				return cli.Exit("no items collected", 1)
			}
			return nil
		},
	}
}

func scheduleCommand() *cli.Command {
	flags := append(crawlFlags(),
		&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "interval", Usage: "interval or cron"},
		&cli.IntFlag{Name: "interval", Aliases: []string{"i"}, Value: 60, Usage: "interval minutes"},
		&cli.StringFlag{Name: "cron", Value: "0 */6 * * *", Usage: "cron expression"},
		&cli.BoolFlag{Name: "no-immediate", Usage: "skip the immediate first run"},
		&cli.IntFlag{Name: "api-port", Usage: "serve the status API on this port"},
	)
	return &cli.Command{
		Name:  "schedule",
		Usage: "run crawls on a schedule",
		Flags: flags,
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("mode") {
				cfg.Scheduler.Mode = c.String("mode")
			}
			if c.IsSet("interval") {
				cfg.Scheduler.IntervalMinutes = c.Int("interval")
			}
			if c.IsSet("cron") {
				cfg.Scheduler.CronExpression = c.String("cron")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			orch, repo, stateMgr, m, err := buildPipeline(cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if m != nil {
				go func() {
					if err := m.Serve(ctx); err != nil {
						log.Error().Err(err).Msg("Metrics server failed")
					}
				}()
			}
			if port := c.Int("api-port"); port > 0 {
				app := api.NewServer(stateMgr, repo)
				go func() {
					if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil {
						log.Error().Err(err).Msg("Status API failed")
					}
				}()
				go func() {
					<-ctx.Done()
					_ = app.Shutdown()
				}()
			}

			sched, err := scheduler.New(&scheduler.Config{
				Mode:            scheduler.Mode(cfg.Scheduler.Mode),
				IntervalMinutes: cfg.Scheduler.IntervalMinutes,
				CronExpression:  cfg.Scheduler.CronExpression,
				RunImmediately:  !c.Bool("no-immediate"),
			}, func(ctx context.Context) error {
				// resume so an interrupted prior run continues
				_, err := orch.Run(ctx, true)
				return err
			})
			if err != nil {
				return err
			}

			return sched.Start(ctx)
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the saved crawl state",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "state-file", Aliases: []string{"s"}, Value: "data/crawl_state.json"},
		},
		Action: func(c *cli.Context) error {
			mgr := state.NewManager(c.String("state-file"))
			s := mgr.Load()
			if s == nil {
				fmt.Println("no saved state")
				return nil
			}

			fmt.Printf("run_id:               %s\n", s.RunID)
			fmt.Printf("started_at:           %s\n", s.StartedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("last_updated_at:      %s\n", s.LastUpdatedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("running:              %v\n", s.IsRunning)
			fmt.Printf("completed:            %v\n", s.IsCompleted)
			if s.LastError != "" {
				fmt.Printf("last_error:           %s\n", s.LastError)
			}
			fmt.Printf("current_page:         %d\n", s.Progress.CurrentPage)
			fmt.Printf("total_pages:          %d\n", s.Progress.TotalPages)
			fmt.Printf("last_completed_page:  %d\n", s.Progress.LastCompletedPage)
			printStatistics(s.Statistics)
			return nil
		},
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "delete the saved crawl state",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "state-file", Aliases: []string{"s"}, Value: "data/crawl_state.json"},
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "skip confirmation"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("yes") {
				fmt.Print("delete the saved state? [y/N] ")
				var answer string
				fmt.Scanln(&answer)
				if answer != "y" && answer != "Y" {
					fmt.Println("aborted")
					return nil
				}
			}
			mgr := state.NewManager(c.String("state-file"))
			if err := mgr.Cleanup(); err != nil {
				return err
			}
			fmt.Println("state reset")
			return nil
		},
	}
}

func printSummary(s *state.CrawlState) {
	fmt.Println()
	fmt.Printf("run %s %s\n", s.RunID, map[bool]string{true: "completed", false: "interrupted"}[s.IsCompleted])
	printStatistics(s.Statistics)
}

func printStatistics(stats state.Statistics) {
	fmt.Printf("total_collected:      %d\n", stats.TotalCollected)
	fmt.Printf("list_collected:       %d\n", stats.ListCollected)
	fmt.Printf("detail_collected:     %d\n", stats.DetailCollected)
	fmt.Printf("errors:               %d\n", stats.Errors)
	fmt.Printf("retries:              %d\n", stats.Retries)
	fmt.Printf("skipped_duplicates:   %d\n", stats.SkippedDuplicates)
	fmt.Printf("success_rate:         %.1f%%\n", stats.SuccessRate())
}
