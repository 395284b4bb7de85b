package util

import (
	"github.com/berfenger/powermon/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Collect:  config.DEFAULT_COLLECTORS,
		Jeedom: config.JeedomConfig{
			Url:              "http://127.0.0.1:1",
			ApiKey:           "lorem",
			SendIntervalSecs: 60,
			TimeoutMillis:    1000,
			CommandIds: map[string]string{
				"em_pull_instant":  "101",
				"inv_instant_prod": "201",
			},
		},
		Huawei: config.HuaweiConfig{
			DongleIp:      "-.-.-.-",
			DonglePort:    502,
			TimeoutMillis: 1000,
		},
		Sagemcom: config.SagemcomConfig{
			UsbPath:     "/dev/null",
			UsbBaudRate: 9600,
		},
		Inverter: config.InverterConfig{
			PollIntervalSecs: 30,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "powermon",
			HADiscoveryTopic: "homeassistant",
		},
		Port: 8080,
	}
}
