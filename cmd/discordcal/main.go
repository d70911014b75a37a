package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/xlab/closer"

	"discordcal/internal/app"
	"discordcal/internal/config"
	"discordcal/internal/discord"
	"discordcal/internal/ics"
	appLog "discordcal/internal/log"
	"discordcal/internal/output"
	"discordcal/internal/web"
)

// nameCacheTTL bounds how long guild/channel names live in Redis.
const nameCacheTTL = 24 * time.Hour

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	dump       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	if err := appLog.Init(conf.Log.Production, appLog.ParseLevel(conf.Log.Level)); err != nil {
		fmt.Fprintf(os.Stderr, "unable to initialize logger: %v\n", err)
		os.Exit(1)
	}
	appLog.Info("discordcal starting", "version", "0.1.0")

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"guild", conf.Discord.GuildID,
		"timezone", conf.Calendar.Timezone,
		"output", conf.Output.FilePath,
		"listen", conf.Listen,
		"refresh", conf.Refresh,
		"redis", conf.RedisURL != "",
		"once", flags.once,
		"dump", flags.dump,
	)

	runner, release, err := newRunner(conf)
	if err != nil {
		appLog.Error("failed to set up pipeline", err)
		os.Exit(1)
	}

	// closer owns SIGINT/SIGTERM: on a signal it cancels ctx, waits for the
	// pipeline to wind down, then flushes the logger.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	closer.Bind(func() {
		cancel()
		<-done
		release()
		appLog.Info("discordcal exiting")
		_ = appLog.Sync()
	})

	go func() {
		err := run(ctx, flags, conf, runner)
		close(done)
		if err != nil {
			appLog.Error("discordcal stopped with error", err)
			closer.Exit(1)
		}
		closer.Close()
	}()

	closer.Hold()
}

// run executes the selected mode until it completes or ctx is cancelled.
func run(ctx context.Context, flags flagConfig, conf *config.Config, runner *app.Runner) error {
	switch {
	case flags.dump:
		res, err := runner.Generate(ctx)
		if err != nil {
			return err
		}
		fmt.Print(res.Document)
		return nil
	case flags.once:
		_, err := runner.RunOnce(ctx)
		return err
	}

	// Initial refresh so the feed exists before the first tick.
	if _, err := runner.RunOnce(ctx); err != nil {
		appLog.Error("initial refresh failed", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	workers := 1
	go func() { errCh <- runner.Schedule(ctx, conf.Refresh) }()
	if conf.Listen != "" {
		workers++
		go func() { errCh <- web.StartServer(ctx, conf, runner) }()
	}

	var firstErr error
	for i := 0; i < workers; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	return firstErr
}

// newRunner assembles the pipeline. release frees resources the pipeline
// holds and must run after it has stopped.
func newRunner(conf *config.Config) (runner *app.Runner, release func(), err error) {
	release = func() {}

	formatter, err := ics.NewDateFormatter(conf.Calendar.Timezone)
	if err != nil {
		return nil, release, err
	}

	var cache discord.NameCache = discord.NewMemoryCache()
	if conf.RedisURL != "" {
		pool := discord.NewRedisPool(conf.RedisURL)
		release = func() {
			if err := pool.Close(); err != nil {
				appLog.Error("failed closing redis pool", err)
			}
		}
		cache = discord.NewRedisCache(pool, nameCacheTTL)
	}

	client := discord.NewClient(discord.Options{
		BaseURL:           conf.Discord.APIBaseURL,
		Token:             conf.Discord.BotToken,
		MaxRetries:        conf.Discord.MaxRetries,
		RetryDelay:        conf.Discord.RetryDelay,
		RequestsPerSecond: conf.Discord.RequestsPerSecond,
		Cache:             cache,
	})

	builder := ics.NewBuilder(ics.BuilderConfig{
		Formatter:       formatter,
		DefaultDuration: conf.Calendar.DefaultEventDuration,
		MaxOccurrences:  conf.Calendar.MaxOccurrences,
		HexColor:        conf.Calendar.HexColor,
		InvalidEvents:   ics.InvalidEventPolicy(conf.Calendar.InvalidEvents),
	})

	runner, err = app.NewRunner(app.Options{
		GuildID:   conf.Discord.GuildID,
		Source:    client,
		Builder:   builder,
		Writer:    output.NewWriter(conf.Output.FilePath),
		PublicDir: conf.Output.PublicDir,
	})
	return runner, release, err
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one fetch+generate+write cycle and exit")
	flag.BoolVar(&cfg.dump, "dump", false, "Print the generated calendar to stdout instead of writing it")

	flag.Parse()

	return cfg
}
