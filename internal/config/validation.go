package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags first, then the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	for _, name := range cfg.ExcludedNames {
		if name == "" || strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("excluded_names: %q is not a plain directory name", name)
		}
	}

	// Archives and the registry may live under the shared root only inside an excluded name,
	// otherwise they would end up in a shared directory.
	if err := checkPrivateDir(cfg, "state_dir", cfg.StateDir); err != nil {
		return err
	}
	if err := checkPrivateDir(cfg, "cache_dir", cfg.CacheDir); err != nil {
		return err
	}

	if cfg.Store.Type == StoreTypeRedis {
		if url, _ := cfg.Store.Redis["url"].(string); url == "" {
			return fmt.Errorf("store.redis.url is required for redis store")
		}
	}

	return nil
}

func checkPrivateDir(cfg *Config, key, dir string) error {
	rel, err := filepath.Rel(cfg.ShareRoot, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}

	if rel == "." {
		return fmt.Errorf("%s: must not be the share root", key)
	}

	top := strings.Split(rel, string(filepath.Separator))[0]
	if !slices.Contains(cfg.ExcludedNames, top) {
		return fmt.Errorf("%s: %s is inside the share root but %q is not excluded", key, dir, top)
	}

	return nil
}

func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]

		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}

	return err
}
