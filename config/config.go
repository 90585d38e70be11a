package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Strategy StrategyConfig `yaml:"strategy"`
	Executor ExecutorConfig `yaml:"executor"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// StrategyConfig controla el comportamiento de la estrategia.
type StrategyConfig struct {
	DiscoveryIntervalSeconds int     `yaml:"discovery_interval_seconds"`
	EntryWindowSeconds       float64 `yaml:"entry_window_seconds"`
	ExecutionWindowSeconds   float64 `yaml:"execution_window_seconds"`
	MinSecondsRemaining      float64 `yaml:"min_seconds_remaining"`
	MinVolatility            float64 `yaml:"min_volatility"`
	MinEdge                  float64 `yaml:"min_edge"`
	MinAsk                   float64 `yaml:"min_ask"`
	VolatilityWindowSeconds  int     `yaml:"volatility_window_seconds"`
	TightnessThreshold       float64 `yaml:"tightness_threshold"`
	StakeUSDC                float64 `yaml:"stake_usdc"`
	Assets                   string  `yaml:"assets"` // lista separada por comas
}

// ExecutorConfig controla los límites de riesgo.
type ExecutorConfig struct {
	MaxDailyLoss     float64 `yaml:"max_daily_loss"`
	FailLossFraction float64 `yaml:"fail_loss_fraction"` // fracción del stake cargada al fallar la orden
	DryRun           bool    `yaml:"dry_run"`
}

// APIConfig contiene los base URLs y las credenciales L2 del CLOB.
// Las credenciales solo se leen del entorno, nunca del YAML.
type APIConfig struct {
	CLOBBase   string `yaml:"clob_base"`
	GammaBase  string `yaml:"gamma_base"`
	RTDSWSURL  string `yaml:"rtds_ws_url"`
	MarketWS   string `yaml:"market_ws_url"`
	Address    string `yaml:"-"`
	APIKey     string `yaml:"-"`
	Secret     string `yaml:"-"`
	Passphrase string `yaml:"-"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del entorno sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// DiscoveryInterval devuelve el intervalo de descubrimiento como time.Duration.
func (c *Config) DiscoveryInterval() time.Duration {
	return time.Duration(c.Strategy.DiscoveryIntervalSeconds) * time.Second
}

// EntryWindow devuelve la ventana de entrada como time.Duration.
func (c *Config) EntryWindow() time.Duration {
	return time.Duration(c.Strategy.EntryWindowSeconds * float64(time.Second))
}

// ExecutionWindow devuelve la ventana de ejecución como time.Duration.
func (c *Config) ExecutionWindow() time.Duration {
	return time.Duration(c.Strategy.ExecutionWindowSeconds * float64(time.Second))
}

// VolatilityWindow devuelve la ventana de volatilidad como time.Duration.
func (c *Config) VolatilityWindow() time.Duration {
	return time.Duration(c.Strategy.VolatilityWindowSeconds) * time.Second
}

// AssetList devuelve los símbolos permitidos, normalizados.
func (c *Config) AssetList() []string {
	var out []string
	for _, a := range strings.Split(c.Strategy.Assets, ",") {
		a = strings.ToUpper(strings.TrimSpace(a))
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		cfg.Executor.DryRun = v == "true" || v == "1"
	}
	if v := os.Getenv("MAX_DAILY_LOSS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Executor.MaxDailyLoss = f
		}
	}
	if v := os.Getenv("STAKE_USDC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Strategy.StakeUSDC = f
		}
	}
	if v := os.Getenv("CRYPTO_ASSETS"); v != "" {
		cfg.Strategy.Assets = v
	}

	// Credenciales: solo del entorno
	cfg.API.Address = os.Getenv("POLY_ADDRESS")
	cfg.API.APIKey = os.Getenv("POLY_API_KEY")
	cfg.API.Secret = os.Getenv("POLY_SECRET")
	cfg.API.Passphrase = os.Getenv("POLY_PASSPHRASE")
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Strategy.DiscoveryIntervalSeconds <= 0 {
		cfg.Strategy.DiscoveryIntervalSeconds = 30
	}
	if cfg.Strategy.EntryWindowSeconds <= 0 {
		cfg.Strategy.EntryWindowSeconds = 90
	}
	if cfg.Strategy.ExecutionWindowSeconds <= 0 {
		cfg.Strategy.ExecutionWindowSeconds = 15
	}
	if cfg.Strategy.MinSecondsRemaining <= 0 {
		cfg.Strategy.MinSecondsRemaining = 7
	}
	if cfg.Strategy.MinVolatility <= 0 {
		cfg.Strategy.MinVolatility = 0.00007
	}
	if cfg.Strategy.MinEdge <= 0 {
		cfg.Strategy.MinEdge = 0.05
	}
	if cfg.Strategy.MinAsk <= 0 {
		cfg.Strategy.MinAsk = 0.05
	}
	if cfg.Strategy.VolatilityWindowSeconds <= 0 {
		cfg.Strategy.VolatilityWindowSeconds = 300
	}
	if cfg.Strategy.TightnessThreshold <= 0 {
		cfg.Strategy.TightnessThreshold = 0.10
	}
	if cfg.Strategy.StakeUSDC <= 0 {
		cfg.Strategy.StakeUSDC = 2.0
	}
	if cfg.Strategy.Assets == "" {
		cfg.Strategy.Assets = "BTC,ETH,SOL,XRP"
	}
	if cfg.Executor.MaxDailyLoss <= 0 {
		cfg.Executor.MaxDailyLoss = 20.0
	}
	if cfg.Executor.FailLossFraction <= 0 {
		cfg.Executor.FailLossFraction = 0.5
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.RTDSWSURL == "" {
		cfg.API.RTDSWSURL = "wss://ws-live-data.polymarket.com"
	}
	if cfg.API.MarketWS == "" {
		cfg.API.MarketWS = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "tightbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
