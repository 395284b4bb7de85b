package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/berfenger/powermon/internal/core/domain"

	"go.uber.org/zap/zapcore"
)

const (
	COLLECTOR_ENERGY_METER = "em"
	COLLECTOR_INVERTER     = "inv"
	DEFAULT_COLLECTORS     = "em,inv"
)

type Config struct {
	LogLevel zapcore.Level
	Collect  string         `mapstructure:"collect"`
	Jeedom   JeedomConfig   `mapstructure:"jeedom"`
	Huawei   HuaweiConfig   `mapstructure:"huawei"`
	Sagemcom SagemcomConfig `mapstructure:"sagemcom"`
	Inverter InverterConfig `mapstructure:"inverter"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Port     uint           `mapstructure:"port"`
	HttpLog  bool           `mapstructure:"http_log"`
}

type JeedomConfig struct {
	Url              string
	SendIntervalSecs int               `mapstructure:"send_interval_secs"` // 0 disables forwarding
	ApiKey           string            `mapstructure:"api_key"`
	TimeoutMillis    uint32            `mapstructure:"timeout_millis"`
	CommandIds       map[string]string `mapstructure:"command_ids"`
}

type HuaweiConfig struct {
	DongleIp      string `mapstructure:"dongle_ip"`
	DonglePort    uint   `mapstructure:"dongle_port"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type SagemcomConfig struct {
	UsbPath     string `mapstructure:"usb_path"`
	UsbBaudRate int    `mapstructure:"usb_baud_rate"`
}

type InverterConfig struct {
	PollIntervalSecs int `mapstructure:"poll_interval_secs"`
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

// ParseCollectors maps a comma separated list of collector names to sources.
func ParseCollectors(list string) ([]domain.Source, error) {
	var sources []domain.Source
	seen := map[domain.Source]bool{}
	for _, name := range strings.Split(list, ",") {
		var source domain.Source
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
			continue
		case COLLECTOR_ENERGY_METER:
			source = domain.SOURCE_ENERGY_METER
		case COLLECTOR_INVERTER:
			source = domain.SOURCE_INVERTER
		default:
			return nil, fmt.Errorf("unknown collector %q. valid values: em, inv", name)
		}
		if !seen[source] {
			seen[source] = true
			sources = append(sources, source)
		}
	}
	return sources, nil
}

// ParseLogLevel accepts level names and the numeric levels 0 (debug), 1 (info) and 2 (error).
func ParseLogLevel(level string) zapcore.Level {
	if n, err := strconv.Atoi(strings.TrimSpace(level)); err == nil {
		switch {
		case n <= 0:
			return zapcore.DebugLevel
		case n == 1:
			return zapcore.InfoLevel
		default:
			return zapcore.ErrorLevel
		}
	}
	switch strings.ToLower(level) {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func (c *Config) EnabledSources() []domain.Source {
	sources, err := ParseCollectors(c.Collect)
	if err != nil {
		return nil
	}
	return sources
}

func (c *Config) IsEnabled(source domain.Source) bool {
	for _, s := range c.EnabledSources() {
		if s == source {
			return true
		}
	}
	return false
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Inverter.PollIntervalSecs) * time.Second
}

// FlushInterval is zero or negative when forwarding is disabled.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Jeedom.SendIntervalSecs) * time.Second
}

func (c *Config) HuaweiTimeout() time.Duration {
	return time.Duration(c.Huawei.TimeoutMillis) * time.Millisecond
}

func (c *Config) JeedomTimeout() time.Duration {
	return time.Duration(c.Jeedom.TimeoutMillis) * time.Millisecond
}

func (c *Config) Validate() error {
	sources, err := ParseCollectors(c.Collect)
	if err != nil {
		return err
	}
	for _, s := range sources {
		switch s {
		case domain.SOURCE_INVERTER:
			if c.Huawei.DongleIp == "" {
				return errors.New("config param huawei.dongle_ip is required to collect inverter data")
			}
			if c.Inverter.PollIntervalSecs <= 0 {
				return errors.New("config param inverter.poll_interval_secs should be > 0")
			}
		case domain.SOURCE_ENERGY_METER:
			if c.Sagemcom.UsbPath == "" {
				return errors.New("config param sagemcom.usb_path is required to collect energy meter data")
			}
			if c.Sagemcom.UsbBaudRate <= 0 {
				return errors.New("config param sagemcom.usb_baud_rate should be > 0")
			}
		}
	}
	if c.FlushInterval() > 0 && len(sources) > 0 && c.Jeedom.Url == "" {
		return errors.New("config param jeedom.url is required when sending data to jeedom")
	}
	return nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
