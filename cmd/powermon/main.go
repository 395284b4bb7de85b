package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/powermon/internal/adapter/actor"
	"github.com/berfenger/powermon/internal/config"
	"github.com/berfenger/powermon/internal/core/actor"
	"github.com/berfenger/powermon/internal/core/domain"
	"github.com/berfenger/powermon/internal/jeedom"
	"github.com/berfenger/powermon/internal/metrics"
	"github.com/berfenger/powermon/internal/server"
	"github.com/berfenger/powermon/internal/util/actorutil"
	"github.com/berfenger/powermon/pkg/huawei_modbus"
	"github.com/berfenger/powermon/pkg/p1_serial"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultConfigFile = "config.json"

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("config errors", "error", err)
		os.Exit(2)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	logger.Info("collecting", zap.Any("sources", cfg.EnabledSources()),
		zap.Duration("flush_interval", cfg.FlushInterval()), zap.Duration("poll_interval", cfg.PollInterval()))

	// metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	providers, err := actorProviders(cfg, m, logger)
	if err != nil {
		logger.Error("could not init collectors", zap.Error(err))
		os.Exit(1)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, providers, m, logger)
	}, pactor.WithSupervisor(actor.MasterSupervisor(logger)))
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		logger.Error("could not start master actor", zap.Error(err))
		os.Exit(1)
	}

	server := server.NewServer(*cfg, ctx, pid, reg)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.StopFuture(pid).Wait()
	as.Shutdown()
}

func initConfig(args []string) (*config.Config, error) {

	// alias PORT => POWERMON_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("POWERMON_PORT", port)
	}

	flags := pflag.NewFlagSet("powermon", pflag.ContinueOnError)
	flags.IntP("flush", "f", 60, "how often collected data is sent to Jeedom, in seconds. 0 disables sending")
	flags.StringP("log-level", "l", "info", "log level: 0-debug, 1-info, 2-error, or a level name")
	flags.StringP("collect", "c", config.DEFAULT_COLLECTORS, "what to collect, comma separated. em (energy meter), inv (inverter)")
	flags.IntP("interval", "i", 30, "how often the inverter is polled, in seconds")
	flags.String("config", "", "config file (json or yaml)")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	setConfigDefaults()

	viper.SetEnvPrefix("powermon")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// explicit flags override env and file
	bindFlag(flags, "flush", "jeedom.send_interval_secs")
	bindFlag(flags, "log-level", "log_level")
	bindFlag(flags, "collect", "collect")
	bindFlag(flags, "interval", "inverter.poll_interval_secs")

	// if defined, try to load config from file
	cfgFile, _ := flags.GetString("config")
	if cfgFile == "" {
		cfgFile = os.Getenv("CONFIG_FILE")
	}
	if cfgFile == "" {
		cfgFile = defaultConfigFile
	}
	if _, err := os.Stat(cfgFile); err == nil {
		slog.Info("Using config", "file", cfgFile)
		viper.SetConfigFile(cfgFile)

		err = viper.ReadInConfig()
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	cfg.LogLevel = config.ParseLogLevel(viper.GetString("log_level"))

	if cfg.MQTT.Enable {
		// check and fix base topic
		baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
		if err != nil {
			return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.BaseTopic = baseTopic

		// check and fix homeassistant discovery topic
		hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
		if err != nil {
			return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.HADiscoveryTopic = hadBaseTopic
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func bindFlag(flags *pflag.FlagSet, name, key string) {
	if f := flags.Lookup(name); f != nil && f.Changed {
		viper.Set(key, f.Value.String())
	}
}

func actorProviders(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (actor.Providers, error) {
	var providers actor.Providers

	if cfg.IsEnabled(domain.SOURCE_INVERTER) {
		inv, err := huawei_modbus.CreateRegisterClient(cfg.Huawei.DongleIp, cfg.Huawei.DonglePort, cfg.HuaweiTimeout(), logger, m.ModbusInstrument())
		if err != nil {
			return providers, err
		}
		providers.Inverter = func(aggregator *pactor.PID) *adactor.InverterActor {
			return adactor.NewInverterActor(inv, aggregator, cfg.PollInterval(), m, logger)
		}
	}

	providers.Meter = func(aggregator *pactor.PID) *adactor.MeterActor {
		source := p1_serial.NewLineReader(p1_serial.SerialConfig{
			Device:   cfg.Sagemcom.UsbPath,
			BaudRate: cfg.Sagemcom.UsbBaudRate,
		})
		return adactor.NewMeterActor(source, aggregator, m, logger)
	}

	if cfg.FlushInterval() > 0 {
		client, err := jeedom.NewClient(cfg.Jeedom.Url, cfg.Jeedom.ApiKey, cfg.Jeedom.CommandIds, cfg.JeedomTimeout(), logger)
		if err != nil {
			return providers, err
		}
		client.SetInstrument(m)
		providers.Jeedom = func(es *eventstream.EventStream) *adactor.JeedomActor {
			return adactor.NewJeedomActor(client, es, cfg.FlushInterval(), logger)
		}
	}

	providers.MQTT = func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}

	return providers, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("collect", config.DEFAULT_COLLECTORS)
	viper.SetDefault("jeedom.url", "")
	viper.SetDefault("jeedom.api_key", "")
	viper.SetDefault("jeedom.send_interval_secs", 60)
	viper.SetDefault("jeedom.timeout_millis", 10000)
	viper.SetDefault("huawei.dongle_ip", "")
	viper.SetDefault("huawei.dongle_port", 502)
	viper.SetDefault("huawei.timeout_millis", 5000)
	viper.SetDefault("sagemcom.usb_path", "")
	viper.SetDefault("sagemcom.usb_baud_rate", 115200)
	viper.SetDefault("inverter.poll_interval_secs", 30)
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "powermon")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Jeedom.ApiKey = "*redacted*"
	slog.Info("Using", "config", cfg)
}
