package client

import (
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
)

const DefaultURL = "https://public-api.gamma.app/v0.2"

type Config struct {
	ApiKey                 string            `json:"apiKey" yaml:"apiKey" env:"GAMMA_API_KEY"`
	Url                    string            `json:"url" yaml:"url" env:"GAMMA_URL" env-default:"https://public-api.gamma.app/v0.2"`
	TextMode               string            `json:"textMode" yaml:"textMode" env:"GAMMA_TEXT_MODE" env-default:"condense"`
	Format                 string            `json:"format" yaml:"format" env:"GAMMA_FORMAT" env-default:"presentation"`
	ThemeName              string            `json:"themeName" yaml:"themeName" env:"GAMMA_THEME_NAME" env-default:"Gamma"`
	NumCardsOffset         int               `json:"numCardsOffset" yaml:"numCardsOffset" env:"GAMMA_NUM_CARDS_OFFSET" env-default:"1"`
	CardSplit              string            `json:"cardSplit" yaml:"cardSplit" env:"GAMMA_CARD_SPLIT" env-default:"auto"`
	ExportAs               string            `json:"exportAs" yaml:"exportAs" env:"GAMMA_EXPORT_AS" env-default:"pdf"`
	TextAmount             string            `json:"textAmount" yaml:"textAmount" env:"GAMMA_TEXT_AMOUNT" env-default:"brief"`
	TextTone               string            `json:"textTone" yaml:"textTone" env:"GAMMA_TEXT_TONE" env-default:"professional, engaging, informative"`
	TextLanguage           string            `json:"textLanguage" yaml:"textLanguage" env:"GAMMA_TEXT_LANGUAGE" env-default:"en"`
	TextAudience           string            `json:"textAudience" yaml:"textAudience" env:"GAMMA_TEXT_AUDIENCE" env-default:"general"`
	ImageSource            string            `json:"imageSource" yaml:"imageSource" env:"GAMMA_IMAGE_SOURCE" env-default:"aiGenerated"`
	ImageStyle             string            `json:"imageStyle" yaml:"imageStyle" env:"GAMMA_IMAGE_STYLE" env-default:"photorealistic"`
	CardDimensions         string            `json:"cardDimensions" yaml:"cardDimensions" env:"GAMMA_CARD_DIMENSIONS" env-default:"16x9"`
	WorkspaceAccess        string            `json:"workspaceAccess" yaml:"workspaceAccess" env:"GAMMA_WORKSPACE_ACCESS"`
	ExternalAccess         string            `json:"externalAccess" yaml:"externalAccess" env:"GAMMA_EXTERNAL_ACCESS"`
	AdditionalInstructions string            `json:"additionalInstructions" yaml:"additionalInstructions" env:"GAMMA_ADDITIONAL_INSTRUCTIONS"`
	Extra                  map[string]string `json:"extra" yaml:"extra"`
	PollInterval           string            `json:"pollInterval" yaml:"pollInterval" env:"GAMMA_POLL_INTERVAL" env-default:"5s"`
	MaxWait                string            `json:"maxWait" yaml:"maxWait" env:"GAMMA_MAX_WAIT" env-default:"300s"`
	RequestTimeout         string            `json:"requestTimeout" yaml:"requestTimeout" env:"GAMMA_REQUEST_TIMEOUT" env-default:"30s"`
	RetryAttempts          int               `json:"retryAttempts" yaml:"retryAttempts" env:"GAMMA_RETRY_ATTEMPTS" env-default:"3"`
	RetryBackoff           string            `json:"retryBackoff" yaml:"retryBackoff" env:"GAMMA_RETRY_BACKOFF" env-default:"500ms"`
	OutputDir              string            `json:"outputDir" yaml:"outputDir" env:"GAMMA_OUTPUT_DIR" env-default:"."`
}

// DefaultConfig returns the configuration defaults without credentials.
func DefaultConfig() Config {
	return Config{
		Url:            DefaultURL,
		TextMode:       "condense",
		Format:         "presentation",
		ThemeName:      "Gamma",
		NumCardsOffset: 1,
		CardSplit:      "auto",
		ExportAs:       "pdf",
		TextAmount:     "brief",
		TextTone:       "professional, engaging, informative",
		TextLanguage:   "en",
		TextAudience:   "general",
		ImageSource:    "aiGenerated",
		ImageStyle:     "photorealistic",
		CardDimensions: "16x9",
		PollInterval:   "5s",
		MaxWait:        "300s",
		RequestTimeout: "30s",
		RetryAttempts:  3,
		RetryBackoff:   "500ms",
		OutputDir:      ".",
	}
}

var (
	textModes     = []string{"generate", "condense", "preserve"}
	exportFormats = []string{"pdf", "pptx"}
)

// Settings is the validated, read-only form of Config shared by every job of a client.
type Settings struct {
	apiKey         string
	baseURL        string
	defaults       Config
	extra          map[string]string
	pollInterval   time.Duration
	maxWait        time.Duration
	requestTimeout time.Duration
	retryBackoff   time.Duration
}

// NewSettings validates cfg once and freezes it.
func NewSettings(cfg Config) (*Settings, error) {
	if strings.TrimSpace(cfg.ApiKey) == "" {
		return nil, &ConfigError{Field: "apiKey", Reason: "is required"}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Url), "/")
	if baseURL == "" {
		return nil, &ConfigError{Field: "url", Reason: "is required"}
	}
	if u, err := url.Parse(baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &ConfigError{Field: "url", Reason: "must be an absolute URL, got " + cfg.Url}
	}

	pollInterval, err := positiveDuration("pollInterval", cfg.PollInterval)
	if err != nil {
		return nil, err
	}
	maxWait, err := positiveDuration("maxWait", cfg.MaxWait)
	if err != nil {
		return nil, err
	}
	requestTimeout, err := positiveDuration("requestTimeout", cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	retryBackoff, err := positiveDuration("retryBackoff", cfg.RetryBackoff)
	if err != nil {
		return nil, err
	}
	if maxWait < pollInterval {
		return nil, &ConfigError{Field: "maxWait", Reason: "must not be shorter than pollInterval"}
	}
	if cfg.RetryAttempts < 1 {
		return nil, &ConfigError{Field: "retryAttempts", Reason: "must be at least 1"}
	}
	if cfg.NumCardsOffset < 0 {
		return nil, &ConfigError{Field: "numCardsOffset", Reason: "must not be negative"}
	}
	if cfg.TextMode != "" && !lo.Contains(textModes, cfg.TextMode) {
		return nil, &ConfigError{Field: "textMode", Reason: "must be one of " + strings.Join(textModes, ", ")}
	}
	if cfg.ExportAs != "" && !lo.Contains(exportFormats, cfg.ExportAs) {
		return nil, &ConfigError{Field: "exportAs", Reason: "must be one of " + strings.Join(exportFormats, ", ")}
	}

	defaults := cfg
	defaults.ApiKey = ""
	defaults.Extra = nil
	return &Settings{
		apiKey:         cfg.ApiKey,
		baseURL:        baseURL,
		defaults:       defaults,
		extra:          lo.Assign(cfg.Extra),
		pollInterval:   pollInterval,
		maxWait:        maxWait,
		requestTimeout: requestTimeout,
		retryBackoff:   retryBackoff,
	}, nil
}

func positiveDuration(field, value string) (time.Duration, error) {
	dur, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, &ConfigError{Field: field, Reason: "invalid duration " + value}
	}
	if dur <= 0 {
		return 0, &ConfigError{Field: field, Reason: "must be positive"}
	}
	return dur, nil
}

func (s *Settings) BaseURL() string               { return s.baseURL }
func (s *Settings) PollInterval() time.Duration   { return s.pollInterval }
func (s *Settings) MaxWait() time.Duration        { return s.maxWait }
func (s *Settings) RequestTimeout() time.Duration { return s.requestTimeout }
func (s *Settings) RetryBackoff() time.Duration   { return s.retryBackoff }
func (s *Settings) RetryAttempts() int            { return s.defaults.RetryAttempts }
func (s *Settings) OutputDir() string             { return lo.Ternary(s.defaults.OutputDir != "", s.defaults.OutputDir, ".") }
func (s *Settings) ExportAs() string              { return lo.Ternary(s.defaults.ExportAs != "", s.defaults.ExportAs, "pdf") }

// Defaults returns a copy of the generation defaults. Credentials are not included.
func (s *Settings) Defaults() Config {
	cfg := s.defaults
	cfg.Extra = s.Extra()
	return cfg
}

// Extra returns a copy of the additional top-level payload fields.
func (s *Settings) Extra() map[string]string {
	return lo.Assign(s.extra)
}
