package config

import (
	"bytes"
	"errors"
	"os"

	"fleetmgr/pkg/logging"

	"gopkg.in/yaml.v3"
)

// Load reads the deployment description at path, applies defaults, decodes
// it with strict unknown-key rejection, and validates every invariant
// before returning. The returned DeploymentConfig is only ever non-zero
// when err is nil.
func Load(path string) (DeploymentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DeploymentConfig{}, NotFoundError{Path: path}
		}
		return DeploymentConfig{}, err
	}

	cfg := withDefaults()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		logging.Warn("ConfigLoader", "failed to parse %s: %s", path, err)
		return DeploymentConfig{}, ParseError{Path: path, Err: err}
	}

	if err := Validate(cfg); err != nil {
		return DeploymentConfig{}, err
	}

	logging.Info("ConfigLoader", "loaded deployment config from %s (%d servers)", path, len(cfg.Servers))
	return cfg, nil
}
