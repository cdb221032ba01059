package conf

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const DefaultSystemPrompt = "You are an AI Design Assistant for an interior design studio. " +
	"Greet warmly, ask for project type, room dimensions, style preferences, budget, and timeline. " +
	"Keep responses concise, friendly, and professional. " +
	"Offer to schedule a free 10-minute design consultation when the user provides enough details."

// Duration reads "30s" style strings from TOML and JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "duration must be a string such as \"30s\"")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type HttpConfig struct {
	AllowedOrigins []string `json:"allowed_origins" validate:"dive,required"`
}

type LLMConfig struct {
	// APIKey may be empty; requests then fail with a configuration error.
	APIKey       string   `json:"api_key"`
	BaseURL      string   `json:"base_url" validate:"required,url"`
	Model        string   `json:"model" validate:"required"`
	Temperature  float64  `json:"temperature" validate:"gte=0,lte=2"`
	SystemPrompt string   `json:"system_prompt" validate:"required"`
	Timeout      Duration `json:"timeout" validate:"gt=0"`
}

type LeadsConfig struct {
	WebhookURL  string   `json:"webhook_url" validate:"omitempty,url"`
	Secret      string   `json:"secret"`
	NatsURL     string   `json:"nats_url"`
	NatsSubject string   `json:"nats_subject" validate:"required_with=NatsURL"`
	Timeout     Duration `json:"timeout" validate:"gt=0"`
	Workers     int      `json:"workers" validate:"gte=1"`
	QueueSize   int      `json:"queue_size" validate:"gte=1"`
}

// Config is built once at process start and handed to the components that need it.
type Config struct {
	Http  HttpConfig  `json:"http"`
	LLM   LLMConfig   `json:"llm"`
	Leads LeadsConfig `json:"leads"`

	raw map[string]interface{}
}

func Default() *Config {
	return &Config{
		Http: HttpConfig{
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5173",
				"http://127.0.0.1:3000",
			},
		},
		LLM: LLMConfig{
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-4o-mini",
			Temperature:  0.5,
			SystemPrompt: DefaultSystemPrompt,
			Timeout:      Duration(30 * time.Second),
		},
		Leads: LeadsConfig{
			NatsSubject: "leads.captured",
			Timeout:     Duration(10 * time.Second),
			Workers:     2,
			QueueSize:   64,
		},
		raw: map[string]interface{}{},
	}
}

// LoadEnvFile loads a dotenv file into the process environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(godotenv.Load(path), "load env file %s", path)
}

// Load reads the optional TOML file at path, overlays the process environment
// and validates the result.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg.raw); err != nil {
			return nil, errors.Wrapf(err, "decode config file %s", path)
		}
		sections := map[string]interface{}{
			"http":  &cfg.Http,
			"llm":   &cfg.LLM,
			"leads": &cfg.Leads,
		}
		for key, target := range sections {
			data := cfg.Section(key)
			if data == nil {
				continue
			}
			if err := json.Unmarshal(data, target); err != nil {
				return nil, errors.Wrapf(err, "config section [%s]", key)
			}
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Section returns a top level table of the config file as JSON, or nil when absent.
func (c *Config) Section(key string) []byte {
	value, exists := c.raw[key]
	if !exists {
		return nil
	}
	bytes, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return bytes
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	dur := func(dst *Duration, key string) error {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return errors.Wrapf(err, "%s", key)
			}
			*dst = Duration(d)
		}
		return nil
	}

	str(&c.LLM.APIKey, "API_KEY", "OPENAI_API_KEY")
	str(&c.LLM.BaseURL, "API_BASE_URL")
	str(&c.LLM.Model, "MODEL_NAME")
	str(&c.LLM.SystemPrompt, "SYSTEM_PROMPT")
	if v, ok := lookup("MODEL_TEMPERATURE"); ok && v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrap(err, "MODEL_TEMPERATURE")
		}
		c.LLM.Temperature = t
	}
	if err := dur(&c.LLM.Timeout, "UPSTREAM_TIMEOUT"); err != nil {
		return err
	}

	str(&c.Leads.WebhookURL, "LEADS_WEBHOOK_URL")
	str(&c.Leads.Secret, "LEADS_SECRET")
	str(&c.Leads.NatsURL, "LEADS_NATS_URL")
	str(&c.Leads.NatsSubject, "LEADS_NATS_SUBJECT")
	if err := dur(&c.Leads.Timeout, "LEADS_TIMEOUT"); err != nil {
		return err
	}

	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Http.AllowedOrigins = origins
	}
	return nil
}
