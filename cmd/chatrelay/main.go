package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"
	"github.com/stardustagi/ChatRelay/handlers"
	"github.com/stardustagi/ChatRelay/leads"
	"github.com/stardustagi/ChatRelay/libs/conf"
	"github.com/stardustagi/ChatRelay/libs/logs"
	natsx "github.com/stardustagi/ChatRelay/libs/nats"
	"github.com/stardustagi/ChatRelay/libs/option"
	"github.com/stardustagi/ChatRelay/libs/server"
	"github.com/stardustagi/ChatRelay/llm/clients"
	"github.com/stardustagi/ChatRelay/services"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if option.IsHelp(err) {
			return
		}
		fmt.Fprintln(os.Stderr, "chatrelay:", err)
		logs.Sync()
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	opts, err := parseOptions(args, out)
	if err != nil {
		return err
	}
	if opts.Version {
		fmt.Fprintln(out, version)
		return nil
	}

	cfg, err := conf.Load(opts.ConfigFile)
	if err != nil {
		return err
	}
	if err := initLogger(cfg, opts.Log); err != nil {
		return err
	}
	defer logs.Sync()
	logger := logs.GetLogger("main")

	node, err := snowflake.NewNode(1)
	if err != nil {
		return errors.Wrap(err, "create snowflake node")
	}

	group := services.NewGroup(0, logs.GetLogger("services"))

	relay, err := buildRelay(cfg.Leads, group, logger)
	if err != nil {
		return err
	}

	client := clients.NewOpenAIClient(clients.ClientConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: cfg.LLM.Timeout.Std(),
	}, logs.GetLogger("openai"))
	defer client.Close()
	if cfg.LLM.APIKey == "" {
		logger.Error("no API key configured, chat requests will fail until API_KEY is set")
	}

	srv, err := server.NewHttpServer(opts, server.DefaultCorsConfig(cfg.Http.AllowedOrigins), node, logs.GetLogger("httpServer"))
	if err != nil {
		return err
	}
	chat := handlers.NewChatHandler(handlers.ChatConfig{
		Model:            cfg.LLM.Model,
		Temperature:      cfg.LLM.Temperature,
		SystemPrompt:     cfg.LLM.SystemPrompt,
		APIKeyConfigured: cfg.LLM.APIKey != "",
	}, client, relay, logs.GetLogger("chat"))
	srv.Any("chat", chat.Handle)
	srv.Get("health", handlers.NewHealthHandler())
	group.Add(services.NewService("http", srv.Startup, nil))

	process := server.NewServer()
	defer process.Stop()
	go process.HandleSignal()

	logger.Info("chatrelay starting",
		logs.String("version", version),
		logs.String("model", cfg.LLM.Model),
		logs.Bool("lead_relay", relay.Enabled()))
	return group.Run(process.Ctx)
}

// parseOptions reads the flags twice so values from the dotenv file can
// fill env backed flags such as PORT.
func parseOptions(args []string, out io.Writer) (*option.Options, error) {
	opts := option.NewOptions()
	if err := opts.Parse(args, out); err != nil {
		return nil, err
	}
	if err := conf.LoadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}
	opts = option.NewOptions()
	if err := opts.Parse(args, out); err != nil {
		return nil, err
	}
	return opts, nil
}

// initLogger applies the [log] table of the config file, then the command line.
func initLogger(cfg *conf.Config, flags option.Log) error {
	logCfg := logs.DefaultLoggerConfig()
	if section := cfg.Section("log"); section != nil {
		if err := json.Unmarshal(section, &logCfg); err != nil {
			return errors.Wrap(err, "config section [log]")
		}
	}
	if flags.File != "" {
		logCfg.Filename = flags.File
	}
	if flags.Level != "" {
		logCfg.Level = flags.Level
	}
	data, err := json.Marshal(logCfg)
	if err != nil {
		return err
	}
	return logs.Init(data)
}

// buildRelay wires the configured lead sinks and registers their shutdown
// with group. With no sink configured the relay accepts nothing.
func buildRelay(cfg conf.LeadsConfig, group *services.Group, logger *zap.Logger) (*leads.Relay, error) {
	var sinks []leads.Sink

	if cfg.NatsURL != "" {
		conn, err := natsx.NewNatsConnect(&natsx.NatsConfig{Name: "chatrelay", Url: cfg.NatsURL}, logs.GetLogger("nats"))
		if err != nil {
			return nil, err
		}
		group.Add(services.NewService("nats", nil, func(context.Context) error {
			conn.Close()
			return nil
		}))
		sinks = append(sinks, leads.NewNatsSink(conn, cfg.NatsSubject))
		logger.Info("lead relay to nats enabled", logs.String("subject", cfg.NatsSubject))
	}

	var webhook *leads.WebhookSink
	if cfg.WebhookURL != "" {
		webhook = leads.NewWebhookSink(cfg.WebhookURL, cfg.Secret, cfg.Timeout.Std())
		sinks = append(sinks, webhook)
		logger.Info("lead relay to webhook enabled", logs.Bool("secret", cfg.Secret != ""))
	}

	relay := leads.NewRelay(leads.RelayConfig{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Timeout:   cfg.Timeout.Std(),
	}, logs.GetLogger("leads"), sinks...)
	group.Add(services.NewService("leads", nil, func(ctx context.Context) error {
		err := relay.Close(ctx)
		if webhook != nil {
			webhook.Close()
		}
		return err
	}))
	return relay, nil
}
