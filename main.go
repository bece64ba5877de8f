package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"ppt_generator/config"
	"ppt_generator/events"
	"ppt_generator/flow"
	"ppt_generator/linkcheck"
	"ppt_generator/mcptools"
	"ppt_generator/server"
	"ppt_generator/sessions"
	"ppt_generator/storage"
	"ppt_generator/tools"
)

var verbose bool

// newPublisher is replaced in tests.
var newPublisher = buildEvents

type options struct {
	configPath string
	serve      bool
	addr       string
	topic      string
	mcp        bool
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	var opts options
	flag.StringVar(&opts.configPath, "config", "config/config.json", "path to config.json")
	flag.BoolVar(&opts.serve, "serve", false, "start web server")
	flag.StringVar(&opts.addr, "addr", "", "http listen address when --serve (overrides config.server_addr)")
	flag.StringVar(&opts.topic, "topic", "", "generate one presentation for topic and print the output path")
	flag.BoolVar(&opts.mcp, "mcp", false, "serve link_validator (and web_search when a search backend is configured) as MCP tools on stdio")
	flag.BoolVar(&verbose, "v", false, "enable info logs")
	flag.Parse()

	if !opts.serve && opts.topic == "" && !opts.mcp {
		fmt.Fprintln(os.Stderr, "one of --serve, --topic or --mcp is required")
		flag.Usage()
		os.Exit(2)
	}

	// run returns instead of exiting so its deferred closes happen.
	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	validator := linkcheck.New(
		linkcheck.WithWorkers(cfg.Validator.Workers),
		linkcheck.WithTimeouts(cfg.Validator.HeadTimeout.Std(), cfg.Validator.GetTimeout.Std()),
		linkcheck.WithMaxAge(cfg.Validator.MaxAgeYears),
		linkcheck.WithUserAgent(cfg.Validator.UserAgent),
		linkcheck.WithLogger(log.Default(), verbose),
	)

	// MCP mode only needs the tools.
	if opts.mcp {
		s := mcptools.NewServer(mcpTools(cfg, validator)...)
		log.Printf("[mcp] serving tools on stdio")
		return mcptools.ServeStdio(s)
	}

	writer, err := buildWriter(ctx, cfg)
	if err != nil {
		return err
	}
	publisher, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Printf("[events] close: %v", err)
		}
	}()

	builder := &flow.Builder{
		Config:    cfg,
		Validator: validator,
		Writer:    writer,
		Events:    publisher,
		Verbose:   verbose,
		Logger:    log.Default(),
	}

	if opts.topic != "" {
		return runOnce(ctx, os.Stdout, builder, cfg, opts.topic)
	}

	store, err := buildSessions(ctx, cfg)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}
	srv, err := server.New(store, builder, validator, server.Options{
		Timeout: cfg.PipelineTimeout.Std(),
		Verbose: verbose,
		Logger:  log.Default(),
	})
	if err != nil {
		return err
	}
	listen := cfg.ServerAddr
	if opts.addr != "" {
		listen = opts.addr
	}
	gin.SetMode(gin.ReleaseMode)
	log.Printf("Starting web server on %s", listen)
	return http.ListenAndServe(listen, srv.Routes())
}

// mcpTools always serves the link validator. Web search joins it only when
// the configured backend can be built, e.g. serper with an API key.
func mcpTools(cfg config.Config, validator tools.Validator) []tools.Tool {
	list := []tools.Tool{tools.NewLinkValidatorTool(validator)}
	searcher, err := flow.NewSearcher(cfg.Search.Provider, cfg.Search.APIKey, cfg.Search.Results)
	if err != nil {
		log.Printf("[mcp] web_search disabled: %v", err)
		return list
	}
	return append(list, tools.NewValidatedSearch(searcher, validator, cfg.Search.Replacement))
}

// runOnce is the command line kickoff: keys come from config and environment.
// The output path is printed to out.
func runOnce(ctx context.Context, out io.Writer, b *flow.Builder, cfg config.Config, topic string) error {
	if err := b.Check(topic, sessions.Credentials{}); err != nil {
		return errors.New(flow.UserMessage(err))
	}
	if d := cfg.PipelineTimeout.Std(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	p, err := b.Build(ctx, sessions.Credentials{})
	if err != nil {
		return err
	}
	log.Printf("[cli] generating presentation for %q", topic)
	res, err := p.Run(ctx, flow.Request{Topic: topic})
	if err != nil {
		return err
	}
	log.Printf("[cli] done in %s title=%q", res.Duration, res.Document.Title)
	_, err = fmt.Fprintln(out, res.Path)
	return err
}

func buildWriter(ctx context.Context, cfg config.Config) (*storage.Writer, error) {
	var mirror storage.Mirror
	if cfg.S3.Bucket != "" {
		m, err := storage.NewS3Mirror(ctx, storage.S3Config{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Profile:      cfg.S3.Profile,
			Prefix:       cfg.S3.Prefix,
			UsePathStyle: cfg.S3.UsePathStyle,
		}, verbose, log.Default())
		if err != nil {
			return nil, err
		}
		mirror = m
		log.Printf("[storage] mirroring to s3://%s/%s", cfg.S3.Bucket, cfg.S3.Prefix)
	}
	return storage.NewWriter(cfg.OutputDir, mirror, verbose, log.Default()), nil
}

func buildEvents(cfg config.Config) (events.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.Nop{}, nil
	}
	p, err := events.NewKafkaPublisher(events.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, verbose, log.Default())
	if err != nil {
		return nil, err
	}
	log.Printf("[events] publishing to kafka topic %s", cfg.Kafka.Topic)
	return p, nil
}

func buildSessions(ctx context.Context, cfg config.Config) (sessions.Store, error) {
	if cfg.Sessions.Backend != "redis" {
		return sessions.NewMemoryStore(cfg.Sessions.TTL.Std()), nil
	}
	s, err := sessions.NewRedisStore(ctx, sessions.RedisConfig{
		Addr:      cfg.Sessions.RedisAddr,
		Password:  cfg.Sessions.RedisPassword,
		DB:        cfg.Sessions.RedisDB,
		KeyPrefix: cfg.Sessions.KeyPrefix,
		TTL:       cfg.Sessions.TTL.Std(),
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[sessions] using redis at %s", cfg.Sessions.RedisAddr)
	return s, nil
}
