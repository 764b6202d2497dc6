package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EtlTuning holds the reloadable knobs of the transform-load pipeline.
// Values come from etl.yml and may change while the daemon is running.
type EtlTuning struct {
	RunTimeout        time.Duration `mapstructure:"run_timeout"`
	DocumentTimeout   time.Duration `mapstructure:"document_timeout"`
	MaxReasonableCost float64       `mapstructure:"max_reasonable_cost"`
}

// DefaultEtlTuning returns the tuning used when no etl.yml is present.
func DefaultEtlTuning() EtlTuning {
	return EtlTuning{
		RunTimeout:        10 * time.Minute,
		DocumentTimeout:   30 * time.Second,
		MaxReasonableCost: 1_000_000,
	}
}

func (t EtlTuning) validate() error {
	if t.RunTimeout <= 0 {
		return errors.New("etl tuning: run_timeout must be positive")
	}
	if t.DocumentTimeout <= 0 {
		return errors.New("etl tuning: document_timeout must be positive")
	}
	if t.DocumentTimeout > t.RunTimeout {
		return errors.New("etl tuning: document_timeout exceeds run_timeout")
	}
	if t.MaxReasonableCost <= 0 {
		return errors.New("etl tuning: max_reasonable_cost must be positive")
	}
	return nil
}

// EtlTuningHolder serves the current tuning snapshot and follows file changes.
// A reload that fails validation is logged and ignored, the previous snapshot
// stays in effect.
type EtlTuningHolder struct {
	log   *zap.Logger
	value atomic.Value
}

// NewEtlTuningHolder reads etl.yml, falls back to defaults when the file is
// absent, and watches for changes.
func NewEtlTuningHolder(log *zap.Logger) (*EtlTuningHolder, error) {
	v := viper.New()
	v.SetConfigName("etl")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/planmart/config")
	v.AddConfigPath("/etc/planmart")
	v.AddConfigPath(".")
	v.SetEnvPrefix("PLANMART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &EtlTuningHolder{log: log.Named("config.etl")}

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	tuning, err := decodeEtlTuning(v)
	if err != nil {
		return nil, err
	}
	holder.value.Store(tuning)

	if !fileFound {
		holder.log.Info("config.etl.defaults", zap.Duration("run_timeout", tuning.RunTimeout))
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		next, err := decodeEtlTuning(v)
		if err != nil {
			holder.log.Warn("config.etl.reload_rejected",
				zap.String("file", e.Name),
				zap.Error(err),
			)
			return
		}
		holder.value.Store(next)
		holder.log.Info("config.etl.reloaded",
			zap.String("file", e.Name),
			zap.Duration("run_timeout", next.RunTimeout),
			zap.Duration("document_timeout", next.DocumentTimeout),
		)
	})

	return holder, nil
}

// Get returns the current tuning snapshot.
func (h *EtlTuningHolder) Get() EtlTuning {
	return h.value.Load().(EtlTuning)
}

func decodeEtlTuning(v *viper.Viper) (EtlTuning, error) {
	tuning := DefaultEtlTuning()
	if err := v.Unmarshal(&tuning); err != nil {
		return EtlTuning{}, err
	}
	if err := tuning.validate(); err != nil {
		return EtlTuning{}, err
	}
	return tuning, nil
}
