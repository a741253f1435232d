// Package app provides the ragserve application.
package app

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	httpopts "github.com/kart-io/ragserve/pkg/options/http"
	llmopts "github.com/kart-io/ragserve/pkg/options/llm"
	logopts "github.com/kart-io/ragserve/pkg/options/logger"
	milvusopts "github.com/kart-io/ragserve/pkg/options/milvus"
	mongoopts "github.com/kart-io/ragserve/pkg/options/mongodb"
	redisopts "github.com/kart-io/ragserve/pkg/options/redis"
	ragopts "github.com/kart-io/ragserve/pkg/options/rag"
)

// Options contains all ragserve options.
type Options struct {
	// Environment labels the deployment, reported by the health endpoint.
	Environment string `json:"environment" mapstructure:"environment"`

	// HTTP contains HTTP server configuration.
	HTTP *httpopts.Options `json:"http" mapstructure:"http"`

	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// Milvus contains search index configuration.
	Milvus *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// MongoDB contains document store configuration.
	MongoDB *mongoopts.Options `json:"mongodb" mapstructure:"mongodb"`

	// Redis contains answer cache backing store configuration.
	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`

	// Embedding contains embedding provider configuration.
	Embedding *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// Chat contains chat provider configuration.
	Chat *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// RAG contains pipeline configuration.
	RAG *ragopts.Options `json:"rag" mapstructure:"rag"`

	// Cache contains answer cache configuration.
	Cache *CacheOptions `json:"cache" mapstructure:"cache"`
}

// CacheOptions configures the answer cache.
type CacheOptions struct {
	// Enabled toggles the cache.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TTL is how long cached answers live.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix namespaces the cache keys.
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`
}

// NewCacheOptions creates default cache options.
func NewCacheOptions() *CacheOptions {
	return &CacheOptions{
		Enabled:   true,
		TTL:       1 * time.Hour,
		KeyPrefix: "ragserve:answer:",
	}
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Environment: "development",
		HTTP:        httpopts.NewOptions(),
		Log:         logopts.NewOptions(),
		Milvus:      milvusopts.NewOptions(),
		MongoDB:     mongoopts.NewOptions(),
		Redis:       redisopts.NewOptions(),
		Embedding:   llmopts.NewEmbeddingOptions(),
		Chat:        llmopts.NewChatOptions(),
		RAG:         ragopts.NewOptions(),
		Cache:       NewCacheOptions(),
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Environment, "environment", o.Environment, "Deployment environment label")
	o.HTTP.AddFlags(fs)
	o.Log.AddFlags(fs)
	o.Milvus.AddFlags(fs)
	o.MongoDB.AddFlags(fs)
	o.Redis.AddFlags(fs)
	o.Embedding.AddFlags(fs, "embedding")
	o.Chat.AddFlags(fs, "chat")
	o.RAG.AddFlags(fs)
	o.addCacheFlags(fs)
}

func (o *Options) addCacheFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Cache.Enabled, "cache.enabled", o.Cache.Enabled, "Enable answer cache")
	fs.DurationVar(&o.Cache.TTL, "cache.ttl", o.Cache.TTL, "Answer cache TTL")
	fs.StringVar(&o.Cache.KeyPrefix, "cache.key-prefix", o.Cache.KeyPrefix, "Answer cache key prefix")
}

// Validate validates the options.
func (o *Options) Validate() error {
	if err := o.Log.Validate(); err != nil {
		return err
	}
	if err := o.HTTP.Validate(); err != nil {
		return err
	}
	if errs := o.Milvus.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid milvus options: %v", errs)
	}
	if errs := o.MongoDB.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid mongodb options: %v", errs)
	}
	if err := o.Redis.Validate(); err != nil {
		return err
	}
	if errs := o.Embedding.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid embedding options: %v", errs)
	}
	if errs := o.Chat.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid chat options: %v", errs)
	}
	if errs := o.RAG.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid rag options: %v", errs)
	}
	if o.Cache.Enabled && o.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when the cache is enabled")
	}
	return nil
}

// Complete completes the options.
func (o *Options) Complete() error {
	if err := o.MongoDB.Complete(); err != nil {
		return err
	}
	if err := o.Embedding.Complete(); err != nil {
		return err
	}
	if err := o.Chat.Complete(); err != nil {
		return err
	}
	return o.RAG.Complete()
}
