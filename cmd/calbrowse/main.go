package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calbrowse/internal/browse"
	"calbrowse/internal/config"
	"calbrowse/internal/fetch"
	appLog "calbrowse/internal/log"
	"calbrowse/internal/model"
	"calbrowse/internal/popular"
	"calbrowse/internal/present"
	"calbrowse/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	export     string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("calbrowse starting", "version", "0.1.0")

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"data_base", conf.DataBase,
		"category_count", len(conf.Categories),
		"popular_count", len(conf.Popular),
		"fetch_timeout_seconds", conf.FetchTimeoutSeconds,
		"session_idle_minutes", conf.SessionIdleMinutes,
		"once", flags.once,
		"export", flags.export,
	)

	gw, err := fetch.NewGateway(conf.DataBase, time.Duration(conf.FetchTimeoutSeconds)*time.Second)
	if err != nil {
		appLog.Error("failed to build fetch gateway", err, "data_base", conf.DataBase)
		os.Exit(1)
	}
	entries, err := popular.Compile(conf.Popular)
	if err != nil {
		appLog.Error("failed to compile popular table", err)
		os.Exit(1)
	}
	matcher := popular.NewMatcher(entries)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.once || flags.export != "" {
		if err := runOnce(ctx, conf, gw, matcher, flags.export); err != nil {
			appLog.Error("one-shot run failed", err)
			os.Exit(1)
		}
		return
	}

	srv := web.NewServer(conf, gw, matcher)
	if err := srv.Run(ctx); err != nil {
		appLog.Error("server exited with error", err)
		os.Exit(1)
	}
	appLog.Info("calbrowse exiting")
}

// runOnce loads every category through a throwaway session, prints a
// per-category summary and optionally writes all dated records as ICS.
func runOnce(ctx context.Context, conf *config.Config, gw *fetch.Gateway, matcher *popular.Matcher, exportPath string) error {
	cats := model.NewCategories(conf.CategoryModels())
	sess := browse.NewSession(cats, gw, matcher)

	for _, cat := range cats.All() {
		select {
		case <-sess.SelectCategory(ctx, cat.Tag):
		case <-ctx.Done():
			return ctx.Err()
		}
		v := sess.VisibleState()
		if v.Error != nil {
			fmt.Printf("%-28s FAILED  %s: %s\n", cat.Label, v.Error.Kind, v.Error.Message)
			continue
		}
		fmt.Printf("%-28s %4d items\n", cat.Label, len(v.Records))
	}

	if links := sess.PopularLinks(); len(links) > 0 {
		fmt.Printf("popular: %d quick links\n", len(links))
	}

	if exportPath == "" {
		return nil
	}

	c := sess.Cache()
	var all []model.Record
	for _, tag := range cats.Tags() {
		if e, ok := c.Get(tag); ok && e.OK() {
			all = append(all, e.Items...)
		}
	}
	body := present.ExportICS(present.SortByStart(all), time.Now())
	if err := os.WriteFile(exportPath, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", exportPath, err)
	}
	appLog.Info("calendar exported", "path", exportPath, "records", len(all))
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./calbrowse.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Load every category once, print a summary and exit")
	flag.StringVar(&cfg.export, "export", "", "Write all dated records as an .ics file and exit")

	flag.Parse()

	return cfg
}
