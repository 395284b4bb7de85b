package config

import (
	"testing"

	"github.com/berfenger/powermon/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseCollectors(t *testing.T) {

	assert := assert.New(t)

	sources, err := ParseCollectors(DEFAULT_COLLECTORS)
	assert.NoError(err)
	assert.Equal([]domain.Source{domain.SOURCE_ENERGY_METER, domain.SOURCE_INVERTER}, sources)

	sources, err = ParseCollectors(" INV , inv")
	assert.NoError(err)
	assert.Equal([]domain.Source{domain.SOURCE_INVERTER}, sources)

	sources, err = ParseCollectors("")
	assert.NoError(err)
	assert.Empty(sources)

	_, err = ParseCollectors("em,battery")
	assert.Error(err)
}

func TestParseLogLevel(t *testing.T) {

	assert := assert.New(t)

	assert.Equal(zapcore.DebugLevel, ParseLogLevel("0"))
	assert.Equal(zapcore.InfoLevel, ParseLogLevel("1"))
	assert.Equal(zapcore.ErrorLevel, ParseLogLevel("2"))
	assert.Equal(zapcore.WarnLevel, ParseLogLevel("warn"))
	assert.Equal(zapcore.DebugLevel, ParseLogLevel("trace"))
	assert.Equal(zapcore.InfoLevel, ParseLogLevel("lorem"))
}

func validConfig() Config {
	return Config{
		Collect:  DEFAULT_COLLECTORS,
		Jeedom:   JeedomConfig{Url: "http://jeedom.local", SendIntervalSecs: 60},
		Huawei:   HuaweiConfig{DongleIp: "192.168.1.10", DonglePort: 502},
		Sagemcom: SagemcomConfig{UsbPath: "/dev/ttyUSB0", UsbBaudRate: 9600},
		Inverter: InverterConfig{PollIntervalSecs: 30},
	}
}

func TestValidate(t *testing.T) {

	assert := assert.New(t)

	cfg := validConfig()
	assert.NoError(cfg.Validate())

	cfg = validConfig()
	cfg.Collect = "em,lorem"
	assert.Error(cfg.Validate())

	cfg = validConfig()
	cfg.Huawei.DongleIp = ""
	assert.Error(cfg.Validate())
	cfg.Collect = "em"
	assert.NoError(cfg.Validate(), "inverter transport not needed when not collected")

	cfg = validConfig()
	cfg.Inverter.PollIntervalSecs = -1
	assert.Error(cfg.Validate())

	cfg = validConfig()
	cfg.Jeedom.Url = ""
	assert.Error(cfg.Validate())
	cfg.Jeedom.SendIntervalSecs = 0
	assert.NoError(cfg.Validate(), "url not needed when forwarding is disabled")
}

func TestIntervals(t *testing.T) {

	cfg := validConfig()
	assert.Equal(t, 30.0, cfg.PollInterval().Seconds())
	assert.Equal(t, 60.0, cfg.FlushInterval().Seconds())
	assert.True(t, cfg.IsEnabled(domain.SOURCE_INVERTER))

	cfg.Collect = "em"
	assert.False(t, cfg.IsEnabled(domain.SOURCE_INVERTER))
}

func TestCheckMQTTTopic(t *testing.T) {

	topic, err := CheckMQTTTopic("PowerMon")
	assert.NoError(t, err)
	assert.Equal(t, "powermon", topic)

	_, err = CheckMQTTTopic("power/mon")
	assert.Error(t, err)
}
