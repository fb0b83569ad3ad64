package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/go-tokend/internal/bpe"
	"github.com/example/go-tokend/internal/tokenizer"
)

type Config struct {
	LogLevel   string            `mapstructure:"log_level"`
	Paths      PathsConfig       `mapstructure:"paths"`
	Server     ServerConfig      `mapstructure:"server"`
	Tokenizers []TokenizerConfig `mapstructure:"tokenizers"`
}

type PathsConfig struct {
	// VocabDir anchors relative tokenizer paths, both configured and
	// requested over HTTP. Empty disables path loading over HTTP.
	VocabDir string `mapstructure:"vocab_dir"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

// TokenizerConfig describes a tokenizer loaded at startup.
type TokenizerConfig struct {
	Name string `mapstructure:"name"`
	Kind string `mapstructure:"kind"`
	Path string `mapstructure:"path"`
	// Encoding names a preset (cl100k_base, ...) supplying the pattern and
	// special tokens. Pattern and SpecialTokens override it.
	Encoding      string               `mapstructure:"encoding"`
	Pattern       string               `mapstructure:"pattern"`
	SpecialTokens []SpecialTokenConfig `mapstructure:"special_tokens"`
}

type SpecialTokenConfig struct {
	Text string `mapstructure:"text"`
	Rank uint32 `mapstructure:"rank"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Paths: PathsConfig{
			VocabDir: "",
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         4,
			MaxTextBytes:    1 << 20,
			MaxBodyBytes:    16 << 20,
			ShutdownTimeout: 30,
		},
	}
}

// flagKeys maps flag names to config keys.
var flagKeys = []struct{ flag, key string }{
	{"log-level", "log_level"},
	{"paths-vocab-dir", "paths.vocab_dir"},
	{"server-listen-addr", "server.listen_addr"},
	{"workers", "server.workers"},
	{"max-text-bytes", "server.max_text_bytes"},
	{"max-body-bytes", "server.max_body_bytes"},
	{"shutdown-timeout", "server.shutdown_timeout"},
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("paths-vocab-dir", defaults.Paths.VocabDir, "Directory for relative vocabulary and model paths")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("workers", defaults.Server.Workers, "Max concurrent encode/decode calls (0 = unlimited)")
	fs.Int("max-text-bytes", defaults.Server.MaxTextBytes, "Max text size accepted by /encode")
	fs.Int64("max-body-bytes", defaults.Server.MaxBodyBytes, "Max request body size")
	fs.Int("shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("TOKEND")
	replacer := strings.NewReplacer("-", "_", ".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("tokend")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("paths.vocab_dir", c.Paths.VocabDir)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.max_body_bytes", c.Server.MaxBodyBytes)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
}

// bindFlags binds each known flag present in fs to its nested config key,
// so flags, env and config files all address the same key.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, fk := range flagKeys {
		f := fs.Lookup(fk.flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(fk.key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", fk.flag, err)
		}
	}
	return nil
}

// Validate checks the tokenizer list for missing or duplicate names and
// unknown kinds.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Tokenizers))
	for i, tc := range c.Tokenizers {
		if tc.Name == "" {
			return fmt.Errorf("tokenizers[%d]: name is required", i)
		}
		if seen[tc.Name] {
			return fmt.Errorf("tokenizers[%d]: duplicate name %q", i, tc.Name)
		}
		seen[tc.Name] = true
		if _, err := NormalizeKind(tc.Kind); err != nil {
			return fmt.Errorf("tokenizers[%d]: %w", i, err)
		}
		if tc.Path == "" {
			return fmt.Errorf("tokenizers[%d]: path is required", i)
		}
	}
	return nil
}

// Tokenizer returns the configured tokenizer with the given name.
func (c Config) Tokenizer(name string) (TokenizerConfig, bool) {
	for _, tc := range c.Tokenizers {
		if tc.Name == name {
			return tc, true
		}
	}
	return TokenizerConfig{}, false
}

// Spec resolves tc into a tokenizer.Spec, joining a relative path onto
// vocabDir.
func (tc TokenizerConfig) Spec(vocabDir string) (tokenizer.Spec, error) {
	kind, err := NormalizeKind(tc.Kind)
	if err != nil {
		return tokenizer.Spec{}, err
	}

	path := tc.Path
	if path != "" && vocabDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(vocabDir, path)
	}
	spec := tokenizer.Spec{Kind: kind, Path: path}
	if kind != tokenizer.KindTiktoken {
		return spec, nil
	}

	spec.Pattern = tc.Pattern
	if tc.Encoding != "" {
		enc, ok := bpe.LookupEncoding(tc.Encoding)
		if !ok {
			return tokenizer.Spec{}, fmt.Errorf("unknown encoding %q (known: %s)",
				tc.Encoding, strings.Join(bpe.EncodingNames(), ", "))
		}
		if spec.Pattern == "" {
			// NewTiktoken resolves the preset name, keeping it on the tokenizer
			spec.Pattern = enc.Name
		} else {
			spec.SpecialTokens = enc.SpecialTokens
		}
	}
	if tc.SpecialTokens != nil {
		spec.SpecialTokens = make([]bpe.SpecialToken, len(tc.SpecialTokens))
		for i, st := range tc.SpecialTokens {
			spec.SpecialTokens[i] = bpe.SpecialToken{Text: st.Text, Rank: st.Rank}
		}
	}
	if spec.Pattern == "" {
		return tokenizer.Spec{}, errors.New("tiktoken tokenizer needs an encoding or a pattern")
	}

	return spec, nil
}
