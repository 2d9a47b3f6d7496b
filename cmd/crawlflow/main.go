/*
crawlflow is a workflow-driven web crawler written in Go.

Have a look at the README.md for more information.
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jfeld/crawlflow/internal/browser"
	"github.com/jfeld/crawlflow/internal/config"
	"github.com/jfeld/crawlflow/internal/crawler"
	"github.com/jfeld/crawlflow/internal/log"
	"github.com/jfeld/crawlflow/internal/metrics"
	"github.com/jfeld/crawlflow/internal/output"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

var version = "dev"

type VersionFlag string

func (v VersionFlag) Decode(_ *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                       { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

type cli struct {
	Version VersionFlag `short:"v" long:"version" help:"Print the version and exit."`
	Debug   bool        `short:"d" long:"debug" help:"Set log level to 'debug'."`

	Run      RunCmd      `cmd:"" help:"Run a crawl with the given crawler configuration"`
	Validate ValidateCmd `cmd:"" help:"Validate a crawler configuration file and print it in normalized form"`
}

type RunCmd struct {
	Config   string `short:"c" default:"./crawler.json" help:"The location of the crawler configuration file." completion:"<file>"`
	Settings string `short:"s" default:"./settings.yaml" help:"The location of the application settings file. Missing file means environment variables and defaults apply." completion:"<file>"`
	MaxPages int    `short:"p" help:"Override the configured page limit. Zero keeps the configured value."`
	Stdout   bool   `short:"o" help:"If set to true the extracted data will be written to stdout despite any other existing writer configurations."`
	Summary  bool   `short:"S" help:"Print a run summary table after the crawl."`
}

func (r *RunCmd) Run() error {
	settings, err := config.NewSettings(r.Settings)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	crawlerConfig, err := crawler.LoadConfig(r.Config)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	if r.Stdout {
		settings.Writer.Type = output.STDOUT_WRITER_TYPE
	}
	writer, err := output.NewWriter(&settings.Writer)
	if err != nil {
		slog.Error(err.Error())
		return err
	}

	if settings.MetricsAddr != "" {
		go func() {
			slog.Info(fmt.Sprintf("serving metrics on %s", settings.MetricsAddr))
			if err := metrics.Serve(settings.MetricsAddr); err != nil {
				slog.Error(fmt.Sprintf("metrics server stopped: %v", err))
			}
		}()
	}

	session, err := browser.NewChromeSession(browser.SessionOptions{
		UserAgent: settings.UserAgent,
		Headless:  settings.Headless,
	})
	if err != nil {
		slog.Error(fmt.Sprintf("failed to start browser: %v", err))
		return err
	}
	defer session.Close()

	opts := []crawler.Option{
		crawler.WithWaitTimeout(time.Duration(settings.NavigationTimeoutMS) * time.Millisecond),
		crawler.WithSettleDelay(time.Duration(settings.SettleDelayMS) * time.Millisecond),
	}
	if r.MaxPages > 0 {
		opts = append(opts, crawler.WithMaxPages(r.MaxPages))
	}
	c, err := crawler.New(crawlerConfig, session, opts...)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.ContextWithLogger(ctx, slog.With(slog.String("crawler", crawlerConfig.Name)))

	results, runErr := c.Run(ctx)
	if runErr != nil {
		slog.Error(fmt.Sprintf("crawl stopped: %v", runErr))
	}

	itemChan := make(chan map[string]any)
	writerWg := sync.WaitGroup{}
	writerWg.Add(1)
	var writeErr error
	go func() {
		defer writerWg.Done()
		writeErr = writer.Write(itemChan)
	}()
	for _, result := range results {
		itemChan <- result.Map()
	}
	close(itemChan)
	writerWg.Wait()
	if writeErr != nil {
		slog.Error(fmt.Sprintf("%v", writeErr))
		return writeErr
	}

	if r.Summary {
		printSummary(c.Summary())
	}
	return runErr
}

func printSummary(s crawler.Summary) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Total Items", "Unique Sources", "Items With Workflows", "Pages Visited"})
	table.Append([]string{
		fmt.Sprintf("%d", s.TotalItems),
		fmt.Sprintf("%d", s.UniqueSources),
		fmt.Sprintf("%d", s.WorkflowUsage),
		fmt.Sprintf("%d", s.PagesVisited),
	})
	table.Render()
}

type ValidateCmd struct {
	Config string `short:"c" default:"./crawler.json" help:"The location of the crawler configuration file." completion:"<file>"`
}

func (v *ValidateCmd) Run() error {
	crawlerConfig, err := crawler.LoadConfig(v.Config)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	if err := crawlerConfig.Validate(); err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	yamlData, err := yaml.Marshal(crawlerConfig)
	if err != nil {
		slog.Error(fmt.Sprintf("error while marshalling. %v", err))
		return err
	}
	fmt.Println(string(yamlData))
	return nil
}

func getVersion() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if ok {
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			return buildInfo.Main.Version
		}
	}
	return version
}

func main() {
	cli := cli{
		Version: VersionFlag(getVersion()),
	}

	ctx := kong.Parse(&cli,
		kong.Vars{
			"version": string(cli.Version),
		})

	config.Debug = cli.Debug
	log.InitializeDefaultLogger()

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
