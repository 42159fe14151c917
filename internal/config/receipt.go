package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ReceiptPolicy is operator-tunable behavior of the receipt pipeline.
type ReceiptPolicy struct {
	DefaultLocale string `mapstructure:"defaultLocale"`
	StorageDir    string `mapstructure:"storageDir"`
	AttachPDF     bool   `mapstructure:"attachPdf"`
}

func DefaultReceiptPolicy() ReceiptPolicy {
	return ReceiptPolicy{
		DefaultLocale: "en",
		StorageDir:    "receipts",
		AttachPDF:     false,
	}
}

// ReceiptPolicyHolder serves the current policy and hot-reloads it
// when the config file changes.
type ReceiptPolicyHolder struct {
	current atomic.Value // holds ReceiptPolicy
}

func NewReceiptPolicyHolder() (*ReceiptPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("receipt")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/receiptor")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RECEIPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReceiptPolicy()
	v.SetDefault("receipt.defaultLocale", defaults.DefaultLocale)
	v.SetDefault("receipt.storageDir", defaults.StorageDir)
	v.SetDefault("receipt.attachPdf", defaults.AttachPDF)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var policy ReceiptPolicy
	if err := v.UnmarshalKey("receipt", &policy); err != nil {
		return nil, err
	}
	if err := validateReceiptPolicy(policy); err != nil {
		return nil, err
	}

	holder := &ReceiptPolicyHolder{}
	holder.current.Store(policy)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated ReceiptPolicy
			if err := v.UnmarshalKey("receipt", &updated); err != nil {
				log.Printf("[receipt-config] reload failed: %v", err)
				return
			}
			if err := validateReceiptPolicy(updated); err != nil {
				log.Printf("[receipt-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[receipt-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *ReceiptPolicyHolder) Get() ReceiptPolicy {
	return h.current.Load().(ReceiptPolicy)
}

// NewStaticReceiptPolicyHolder serves a fixed policy with no file
// watching. Used by tests.
func NewStaticReceiptPolicyHolder(p ReceiptPolicy) *ReceiptPolicyHolder {
	h := &ReceiptPolicyHolder{}
	h.current.Store(p)
	return h
}

func validateReceiptPolicy(p ReceiptPolicy) error {
	if strings.TrimSpace(p.DefaultLocale) == "" {
		return errors.New("receipt policy: defaultLocale is required")
	}
	if strings.TrimSpace(p.StorageDir) == "" {
		return errors.New("receipt policy: storageDir is required")
	}
	return nil
}
