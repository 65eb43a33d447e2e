// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package config loads the guardian YAML configuration: which capability
// backend to use and who the custodians are.
package config

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/guardianvault/guardian/client"
	"github.com/guardianvault/guardian/client/capability"
	"github.com/guardianvault/guardian/client/capability/pgp"
	"github.com/guardianvault/guardian/client/capability/rsaenvelope"
	"github.com/guardianvault/guardian/client/capability/tinkhybrid"
	"github.com/guardianvault/guardian/client/cloudkms"
	"github.com/guardianvault/guardian/constants"
	"sigs.k8s.io/yaml"
)

// DefaultName is the file name looked up in the user config directory.
const DefaultName = "guardian.yaml"

// Supported backends.
const (
	BackendPGP  = "pgp"
	BackendTink = "tink"
	BackendRSA  = "rsa"
)

// Minimum RSA size accepted for ephemeral keys.
const minKeyBits = 2048

// CustodianConfig names one custodian and where its public key lives. Exactly
// one of PublicKeyFile and KMSKey is set.
type CustodianConfig struct {
	// ID is the custodian identity, hex encoded.
	ID            string `json:"id"`
	PublicKeyFile string `json:"publicKeyFile,omitempty"`
	// KMSKey is a gcp-kms:// crypto key version holding the custodian key.
	// Only the rsa backend can use it.
	KMSKey string `json:"kmsKey,omitempty"`
}

// Config is the contents of a guardian.yaml file.
type Config struct {
	Backend         string            `json:"backend"`
	KeyBits         int               `json:"keyBits"`
	CredentialsFile string            `json:"credentialsFile,omitempty"`
	Custodians      []CustodianConfig `json:"custodians"`

	// Directory relative paths are resolved against.
	dir string
}

// DefaultPath returns the configuration path in the user config directory.
func DefaultPath() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory location: %w", err)
	}
	return filepath.Join(cfgDir, DefaultName), nil
}

// Parse decodes and validates a YAML configuration. Unknown fields are an
// error. Relative paths in the result are resolved against the working
// directory.
func Parse(yamlBytes []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(yamlBytes, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Backend == "" {
		cfg.Backend = constants.DefaultBackend
	}
	if cfg.KeyBits == 0 {
		cfg.KeyBits = constants.DefaultKeyBits
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the configuration at path. Relative paths inside it are resolved
// against the directory holding the file.
func Load(path string) (*Config, error) {
	yamlBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(yamlBytes)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Validate checks the backend, key size and custodian list.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendPGP, BackendRSA:
		if c.KeyBits < minKeyBits {
			return fmt.Errorf("keyBits must be at least %d, got %d", minKeyBits, c.KeyBits)
		}
	case BackendTink:
	default:
		return fmt.Errorf("unknown backend %q (want %q, %q or %q)", c.Backend, BackendPGP, BackendTink, BackendRSA)
	}

	if len(c.Custodians) != constants.NumCustodians {
		return fmt.Errorf("config must list exactly %d custodians, got %d", constants.NumCustodians, len(c.Custodians))
	}

	seen := make(map[string]int)
	for i, cust := range c.Custodians {
		id, err := cust.Identity()
		if err != nil {
			return fmt.Errorf("custodian #%d: %w", i, err)
		}
		if j, ok := seen[string(id)]; ok {
			return fmt.Errorf("custodian #%d: identity %v already used by custodian #%d", i, cust.ID, j)
		}
		seen[string(id)] = i

		switch {
		case cust.PublicKeyFile == "" && cust.KMSKey == "":
			return fmt.Errorf("custodian #%d: one of publicKeyFile or kmsKey is required", i)
		case cust.PublicKeyFile != "" && cust.KMSKey != "":
			return fmt.Errorf("custodian #%d: publicKeyFile and kmsKey are mutually exclusive", i)
		case cust.KMSKey != "":
			if c.Backend != BackendRSA {
				return fmt.Errorf("custodian #%d: kmsKey requires the %q backend", i, BackendRSA)
			}
			if _, err := cloudkms.KeyName(cust.KMSKey); err != nil {
				return fmt.Errorf("custodian #%d: %w", i, err)
			}
		}
	}
	return nil
}

// Identity decodes the custodian ID.
func (cc CustodianConfig) Identity() ([]byte, error) {
	if cc.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	id, err := hex.DecodeString(cc.ID)
	if err != nil {
		return nil, fmt.Errorf("id %q is not hex: %w", cc.ID, err)
	}
	return id, nil
}

// Path resolves p against the directory the configuration was loaded from.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}

// UsesKMS reports whether any custodian key is held in Cloud KMS.
func (c *Config) UsesKMS() bool {
	for _, cust := range c.Custodians {
		if cust.KMSKey != "" {
			return true
		}
	}
	return false
}

// Credentials returns the contents of CredentialsFile, or "" for application
// default credentials.
func (c *Config) Credentials() (string, error) {
	if c.CredentialsFile == "" {
		return "", nil
	}
	creds, err := os.ReadFile(c.Path(c.CredentialsFile))
	if err != nil {
		return "", fmt.Errorf("failed to read credentials file: %w", err)
	}
	return string(creds), nil
}

// Crypto builds the configured capability backend. kmsClient may be nil when
// no key is held in Cloud KMS.
func (c *Config) Crypto(kmsClient cloudkms.Client) (capability.AsymmetricCrypto, error) {
	switch c.Backend {
	case BackendPGP:
		return pgp.New(c.KeyBits), nil
	case BackendTink:
		return tinkhybrid.New(), nil
	case BackendRSA:
		var opts []rsaenvelope.Option
		if kmsClient != nil {
			opts = append(opts, rsaenvelope.WithKMSClient(kmsClient))
		}
		return rsaenvelope.New(c.KeyBits, opts...), nil
	}
	return nil, fmt.Errorf("unknown backend %q", c.Backend)
}

// CustodianRecords reads every custodian's public key, fetching keys held in
// Cloud KMS with kmsClient.
func (c *Config) CustodianRecords(ctx context.Context, kmsClient cloudkms.Client) ([]client.CustodianRecord, error) {
	records := make([]client.CustodianRecord, len(c.Custodians))
	for i, cust := range c.Custodians {
		id, err := cust.Identity()
		if err != nil {
			return nil, fmt.Errorf("custodian #%d: %w", i, err)
		}

		var pub string
		if cust.KMSKey != "" {
			name, err := cloudkms.KeyName(cust.KMSKey)
			if err != nil {
				return nil, fmt.Errorf("custodian #%d: %w", i, err)
			}
			pub, err = cloudkms.PublicKeyPEM(ctx, kmsClient, name)
			if err != nil {
				return nil, fmt.Errorf("custodian #%d: %w", i, err)
			}
		} else {
			keyBytes, err := os.ReadFile(c.Path(cust.PublicKeyFile))
			if err != nil {
				return nil, fmt.Errorf("custodian #%d: failed to read public key: %w", i, err)
			}
			pub = string(keyBytes)
		}
		records[i] = client.CustodianRecord{Identity: id, PublicKey: pub}
	}
	return records, nil
}
