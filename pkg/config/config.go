package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tipjar/pkg/models"
	"tipjar/pkg/utils"

	"github.com/ethereum/go-ethereum/common"
)

const (
	ConfigFileName     = ".tipjar.json"
	ContractAddressEnv = "TIPJAR_CONTRACT_ADDRESS"
)

// Tip fetch modes.
const (
	FetchAuto    = "auto"
	FetchBulk    = "bulk"
	FetchIndexed = "indexed"
)

// Config holds application-wide settings.
type Config struct {
	RPCURL             string   `json:"rpc_url"`
	WalletURL          string   `json:"wallet_url,omitempty"`
	ContractAddress    string   `json:"contract_address"`
	ChainID            int64    `json:"chain_id,omitempty"`
	Symbol             string   `json:"symbol"`
	TokenDecimals      int      `json:"token_decimals"`
	TipFetchMode       string   `json:"tip_fetch_mode"`
	DefaultTip         string   `json:"default_tip"`
	AutoConnect        bool     `json:"auto_connect"`
	AccountPollSeconds int      `json:"account_poll_seconds"`
	ReceiptPollMillis  int      `json:"receipt_poll_millis"`
	DevKeys            []string `json:"dev_keys,omitempty"`
	LogFile            string   `json:"log_file,omitempty"`
	LogLevel           string   `json:"log_level"`
	NATSURL            string   `json:"nats_url,omitempty"`
	NATSSubject        string   `json:"nats_subject"`
	ServerPort         int      `json:"server_port"`
}

// Default returns the configuration used for every field the file leaves out.
func Default() Config {
	return Config{
		RPCURL:             "http://127.0.0.1:8545",
		Symbol:             "ETH",
		TokenDecimals:      4,
		TipFetchMode:       FetchAuto,
		DefaultTip:         "0.01",
		AutoConnect:        true,
		AccountPollSeconds: 2,
		ReceiptPollMillis:  1000,
		LogLevel:           "info",
		NATSSubject:        "tipjar.events",
		ServerPort:         8080,
	}
}

// Contract returns the parsed contract address. Call Validate first.
func (c Config) Contract() common.Address {
	return common.HexToAddress(c.ContractAddress)
}

// WalletEndpoint returns the endpoint serving wallet methods.
func (c Config) WalletEndpoint() string {
	if c.WalletURL != "" {
		return c.WalletURL
	}
	return c.RPCURL
}

func (c Config) AccountPollInterval() time.Duration {
	return time.Duration(c.AccountPollSeconds) * time.Second
}

func (c Config) ReceiptPollInterval() time.Duration {
	return time.Duration(c.ReceiptPollMillis) * time.Millisecond
}

// Validate reports every structural problem; any of them is fatal at startup.
func (c Config) Validate() []error {
	var errs []error
	addr := strings.TrimSpace(c.ContractAddress)
	switch {
	case addr == "":
		errs = append(errs, fmt.Errorf("%w: contract_address is required (or set %s)", models.ErrConfig, ContractAddressEnv))
	case !common.IsHexAddress(addr):
		errs = append(errs, fmt.Errorf("%w: contract_address %q is not a hex address", models.ErrConfig, addr))
	case common.HexToAddress(addr) == (common.Address{}):
		errs = append(errs, fmt.Errorf("%w: contract_address is the zero address", models.ErrConfig))
	}
	if strings.TrimSpace(c.RPCURL) == "" {
		errs = append(errs, fmt.Errorf("%w: rpc_url is required", models.ErrConfig))
	}
	switch c.TipFetchMode {
	case FetchAuto, FetchBulk, FetchIndexed:
	default:
		errs = append(errs, fmt.Errorf("%w: tip_fetch_mode %q must be auto, bulk or indexed", models.ErrConfig, c.TipFetchMode))
	}
	if c.DefaultTip != "" {
		if _, err := utils.ParseEther(c.DefaultTip); err != nil {
			errs = append(errs, fmt.Errorf("%w: default_tip: %v", models.ErrConfig, err))
		}
	}
	if c.AccountPollSeconds <= 0 {
		errs = append(errs, fmt.Errorf("%w: account_poll_seconds must be positive", models.ErrConfig))
	}
	if c.ReceiptPollMillis <= 0 {
		errs = append(errs, fmt.Errorf("%w: receipt_poll_millis must be positive", models.ErrConfig))
	}
	return errs
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

// LoadConfigFromFile reads path; a missing file yields defaults plus the env override.
func LoadConfigFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		cfg := Default()
		applyEnv(&cfg)
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	return LoadConfig(f)
}

func LoadConfig(r io.Reader) (Config, error) {
	cfg := Default()
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.TipFetchMode == "" {
		cfg.TipFetchMode = FetchAuto
	}
	cfg.TipFetchMode = strings.ToLower(cfg.TipFetchMode)
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(ContractAddressEnv)); v != "" {
		cfg.ContractAddress = v
	}
}
