package config

import (
	"errors"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tradelink/pkg/broker"
	"tradelink/pkg/broker/feed"
	fixtransport "tradelink/pkg/broker/fix"
	"tradelink/pkg/logging"
)

type BrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID int    `yaml:"client_id"`
	Account  string `yaml:"account"`

	ConnectTimeoutMs int `yaml:"connect_timeout_ms"`
	SettleDelayMs    int `yaml:"settle_delay_ms"`
	CallTimeoutMs    int `yaml:"call_timeout_ms"`
	TickTimeoutMs    int `yaml:"tick_timeout_ms"`
	SecDefTimeoutMs  int `yaml:"secdef_timeout_ms"`
}

// ToBroker converts the file representation into a broker.Config. Zero
// timeouts fall through to the client's defaults.
func (c *BrokerConfig) ToBroker() broker.Config {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return broker.Config{
		Host:           c.Host,
		Port:           c.Port,
		ClientID:       c.ClientID,
		Account:        c.Account,
		ConnectTimeout: ms(c.ConnectTimeoutMs),
		SettleDelay:    ms(c.SettleDelayMs),
		CallTimeout:    ms(c.CallTimeoutMs),
		TickTimeout:    ms(c.TickTimeoutMs),
		SecDefTimeout:  ms(c.SecDefTimeoutMs),
	}
}

type AppConfig struct {
	ServiceName string               `yaml:"service_name"`
	Logging     logging.Config       `yaml:"logging"`
	Broker      *BrokerConfig        `yaml:"broker"`
	Fix         *fixtransport.Config `yaml:"fix"`
	Feed        *feed.Config         `yaml:"feed"`
}

// Validate reports the sections the process cannot run without.
func (c *AppConfig) Validate() error {
	if c.Broker == nil {
		return errors.New("config: broker section is required")
	}
	if c.Fix == nil {
		return errors.New("config: fix section is required")
	}
	return nil
}

// Load load config from file and environment variables.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	fields := []interface{}{
		"func",
		"config.readFromFile",
		"filePath",
		filePath,
	}

	sugar := zap.S().With(fields...)

	sugar.Debug("Load config...")
	zap.S().Debugf("CONFIG_FILE=%v", filePath)

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}

	err = yaml.Unmarshal(configBytes, cfg)
	if err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}

	zap.S().Debugf("config: %+v", cfg)

	return cfg, nil
}
