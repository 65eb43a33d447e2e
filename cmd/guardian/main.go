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


// This binary is the main entrypoint for the guardian command line tool.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"flag"
	glog "github.com/golang/glog"
	"github.com/google/subcommands"
	"github.com/guardianvault/guardian/client"
	"github.com/guardianvault/guardian/client/capability"
	"github.com/guardianvault/guardian/client/cloudkms"
	"github.com/guardianvault/guardian/config"
	"github.com/guardianvault/guardian/constants"
	"sigs.k8s.io/yaml"
)

func defaultConfigPath() string {
	path, err := config.DefaultPath()
	if err != nil {
		glog.Errorf("Failed to get config directory location: %v", err.Error())
		return config.DefaultName
	}
	return path
}

// backend holds the capability backend built from a config, and the KMS
// clients it may use.
type backend struct {
	cfg     *config.Config
	crypto  capability.AsymmetricCrypto
	kms     cloudkms.Client
	factory *cloudkms.ClientFactory
}

func (b *backend) Close() {
	if b.factory != nil {
		if err := b.factory.Close(); err != nil {
			glog.Warningf("Failed to close KMS clients: %v", err)
		}
	}
}

// loadBackend reads the config at path. A Cloud KMS client is created when
// the config or needKMS asks for one.
func loadBackend(ctx context.Context, path string, needKMS bool) (*backend, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	b := &backend{cfg: cfg}
	if needKMS || cfg.UsesKMS() {
		creds, err := cfg.Credentials()
		if err != nil {
			return nil, err
		}
		b.factory = cloudkms.NewClientFactory(constants.Version)
		b.kms, err = b.factory.Client(ctx, creds)
		if err != nil {
			return nil, err
		}
	}

	b.crypto, err = cfg.Crypto(b.kms)
	if err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func writeOutput(name string, data []byte) error {
	if name == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(name, data, 0600)
}

func readCapsule(name string) (*client.Capsule, error) {
	data, err := readInput(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read capsule: %w", err)
	}
	capsule := &client.Capsule{}
	if err := yaml.Unmarshal(data, capsule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal capsule: %w", err)
	}
	return capsule, nil
}

// keygenCmd handles CLI options for the keygen command.
type keygenCmd struct {
	backend string
	keyBits int
}

func (*keygenCmd) Name() string { return "keygen" }
func (*keygenCmd) Synopsis() string {
	return "generates a custodian key pair for a backend"
}
func (*keygenCmd) Usage() string {
	return `Usage: guardian keygen [--backend=<pgp|tink|rsa>] [--key-bits=<bits>] <public_key_file> <private_key_file>

Example:
  Generate an OpenPGP key pair for a new custodian:
    $ guardian keygen --backend=pgp alice.asc alice.key

Flags:
`
}
func (k *keygenCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&k.backend, "backend", constants.DefaultBackend, "Capability backend: pgp, tink or rsa.")
	f.IntVar(&k.keyBits, "key-bits", constants.DefaultKeyBits, "RSA key size for the pgp and rsa backends.")
}

func (k *keygenCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		glog.Errorf("Not enough arguments (expected public key file and private key file)")
		return subcommands.ExitFailure
	}

	cfg := &config.Config{Backend: k.backend, KeyBits: k.keyBits}
	crypto, err := cfg.Crypto(nil)
	if err != nil {
		glog.Errorf("Failed to create backend: %v", err.Error())
		return subcommands.ExitFailure
	}

	kp, err := crypto.GenerateKeyPair(ctx)
	if err != nil {
		glog.Errorf("Failed to generate key pair: %v", err.Error())
		return subcommands.ExitFailure
	}
	pub, err := kp.Public.Armored()
	if err != nil {
		glog.Errorf("Failed to armor public key: %v", err.Error())
		return subcommands.ExitFailure
	}
	priv, err := kp.Private.Armored()
	if err != nil {
		glog.Errorf("Failed to armor private key: %v", err.Error())
		return subcommands.ExitFailure
	}

	if err := os.WriteFile(f.Arg(0), []byte(pub), 0644); err != nil {
		glog.Errorf("Failed to write public key: %v", err.Error())
		return subcommands.ExitFailure
	}
	if err := os.WriteFile(f.Arg(1), []byte(priv), 0600); err != nil {
		glog.Errorf("Failed to write private key: %v", err.Error())
		return subcommands.ExitFailure
	}

	fmt.Println("Wrote public key to", f.Arg(0))
	fmt.Println("Wrote private key to", f.Arg(1))
	fp, err := capability.Fingerprint(kp.Public)
	if err != nil {
		glog.Warningf("Failed to compute public key fingerprint: %v", err)
	} else if fp != "" {
		fmt.Println("Public key fingerprint:", fp)
	}
	return subcommands.ExitSuccess
}

// distributeCmd handles CLI options for the distribute command.
type distributeCmd struct {
	configFile  string
	parallelism int
}

func (*distributeCmd) Name() string { return "distribute" }
func (*distributeCmd) Synopsis() string {
	return "seals a message and distributes key shares to the configured custodians"
}
func (*distributeCmd) Usage() string {
	return fmt.Sprintf(`Usage: guardian distribute [--config-file=<config_file>] <message_file> <capsule_file>

Examples:
  Seal a file for the custodians listed in %s:
    $ guardian distribute message.txt capsule.yaml

  Seal input from stdin and write the capsule to stdout:
    $ my-application | guardian distribute - - > capsule.yaml

Flags:
`, defaultConfigPath())
}
func (d *distributeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&d.configFile, "config-file", defaultConfigPath(), "Path to a guardian YAML config file. Optional.")
	f.IntVar(&d.parallelism, "parallelism", constants.NumCustodians, "Maximum number of shares encrypted at once.")
}

func (d *distributeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		glog.Errorf("Not enough arguments (expected message file and capsule file)")
		return subcommands.ExitFailure
	}

	b, err := loadBackend(ctx, d.configFile, false)
	if err != nil {
		glog.Errorf("Failed to load config: %v", err.Error())
		return subcommands.ExitFailure
	}
	defer b.Close()

	records, err := b.cfg.CustodianRecords(ctx, b.kms)
	if err != nil {
		glog.Errorf("Failed to read custodian keys: %v", err.Error())
		return subcommands.ExitFailure
	}

	message, err := readInput(f.Arg(0))
	if err != nil {
		glog.Errorf("Failed to read message: %v", err.Error())
		return subcommands.ExitFailure
	}

	c := client.New(b.crypto, client.WithParallelism(d.parallelism))
	capsule, err := c.Distribute(ctx, message, records)
	if err != nil {
		glog.Errorf("Failed to distribute message: %v", err.Error())
		return subcommands.ExitFailure
	}

	out, err := yaml.Marshal(capsule)
	if err != nil {
		glog.Errorf("Failed to marshal capsule: %v", err.Error())
		return subcommands.ExitFailure
	}
	if err := writeOutput(f.Arg(1), out); err != nil {
		glog.Errorf("Failed to write capsule: %v", err.Error())
		return subcommands.ExitFailure
	}

	fmt.Fprintln(os.Stderr, "Capsule ID:", capsule.ID)
	return subcommands.ExitSuccess
}

// unwrapCmd handles CLI options for the unwrap command.
type unwrapCmd struct {
	configFile string
	identity   string
	privateKey string
}

func (*unwrapCmd) Name() string { return "unwrap" }
func (*unwrapCmd) Synopsis() string {
	return "decrypts and verifies a custodian's share of a capsule"
}
func (*unwrapCmd) Usage() string {
	return `Usage: guardian unwrap --id=<hex_identity> --private-key=<key_file|gcp-kms://...> [--config-file=<config_file>] <capsule_file> <share_file>

Examples:
  Unwrap alice's share with a private key file:
    $ guardian unwrap --id=01ab --private-key=alice.key capsule.yaml alice.share

  Unwrap a share whose key is held in Cloud KMS:
    $ guardian unwrap --id=02cd --private-key=gcp-kms://projects/p/locations/l/keyRings/r/cryptoKeys/k/cryptoKeyVersions/1 capsule.yaml - > bob.share

Flags:
`
}
func (u *unwrapCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&u.configFile, "config-file", defaultConfigPath(), "Path to a guardian YAML config file. Optional.")
	f.StringVar(&u.identity, "id", "", "Hex identity of the custodian whose share to unwrap.")
	f.StringVar(&u.privateKey, "private-key", "", "Private key file of the custodian, or a gcp-kms:// key version.")
}

func (u *unwrapCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		glog.Errorf("Not enough arguments (expected capsule file and share file)")
		return subcommands.ExitFailure
	}
	var identity client.HexBytes
	if err := identity.UnmarshalText([]byte(u.identity)); err != nil || len(identity) == 0 {
		glog.Errorf("--id must be a non-empty hex identity")
		return subcommands.ExitFailure
	}
	if u.privateKey == "" {
		glog.Errorf("--private-key is required")
		return subcommands.ExitFailure
	}

	isKMSKey := cloudkms.IsKeyURI(u.privateKey)
	b, err := loadBackend(ctx, u.configFile, isKMSKey)
	if err != nil {
		glog.Errorf("Failed to load config: %v", err.Error())
		return subcommands.ExitFailure
	}
	defer b.Close()

	privateKey := u.privateKey
	if !isKMSKey {
		keyBytes, err := os.ReadFile(u.privateKey)
		if err != nil {
			glog.Errorf("Failed to read private key: %v", err.Error())
			return subcommands.ExitFailure
		}
		privateKey = string(keyBytes)
	}

	capsule, err := readCapsule(f.Arg(0))
	if err != nil {
		glog.Errorf("%v", err.Error())
		return subcommands.ExitFailure
	}
	share, ok := client.FindShare(capsule, identity)
	if !ok {
		glog.Errorf("Capsule %v holds no share for custodian %v", capsule.ID, identity)
		return subcommands.ExitFailure
	}

	c := client.New(b.crypto)
	shareText, err := c.UnwrapShare(ctx, share, privateKey)
	if err != nil {
		glog.Errorf("Failed to unwrap share: %v", err.Error())
		return subcommands.ExitFailure
	}

	if err := writeOutput(f.Arg(1), []byte(shareText+"\n")); err != nil {
		glog.Errorf("Failed to write share: %v", err.Error())
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// reconstructCmd handles CLI options for the reconstruct command.
type reconstructCmd struct {
	configFile string
}

func (*reconstructCmd) Name() string { return "reconstruct" }
func (*reconstructCmd) Synopsis() string {
	return "opens a capsule from unwrapped custodian shares"
}
func (*reconstructCmd) Usage() string {
	return fmt.Sprintf(`Usage: guardian reconstruct [--config-file=<config_file>] <capsule_file> <plaintext_file> <share_file>...

At least %d share files are required; the first %d are used.

Example:
    $ guardian reconstruct capsule.yaml message.txt alice.share bob.share carol.share

Flags:
`, constants.Threshold, constants.Threshold)
}
func (r *reconstructCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.configFile, "config-file", defaultConfigPath(), "Path to a guardian YAML config file. Optional.")
}

func (r *reconstructCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		glog.Errorf("Not enough arguments (expected capsule file, plaintext file and share files)")
		return subcommands.ExitFailure
	}

	b, err := loadBackend(ctx, r.configFile, false)
	if err != nil {
		glog.Errorf("Failed to load config: %v", err.Error())
		return subcommands.ExitFailure
	}
	defer b.Close()

	capsule, err := readCapsule(f.Arg(0))
	if err != nil {
		glog.Errorf("%v", err.Error())
		return subcommands.ExitFailure
	}

	var decryptedShares []string
	for _, name := range f.Args()[2:] {
		share, err := os.ReadFile(name)
		if err != nil {
			glog.Errorf("Failed to read share: %v", err.Error())
			return subcommands.ExitFailure
		}
		decryptedShares = append(decryptedShares, strings.TrimSpace(string(share)))
	}

	c := client.New(b.crypto)
	plaintext, err := c.Reconstruct(ctx, capsule.EncryptedMessage, decryptedShares)
	if err != nil {
		glog.Errorf("Failed to reconstruct capsule %v: %v", capsule.ID, err.Error())
		return subcommands.ExitFailure
	}

	if err := writeOutput(f.Arg(1), plaintext); err != nil {
		glog.Errorf("Failed to write plaintext: %v", err.Error())
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// versionCmd handles CLI options for the version command.
type versionCmd struct{}

func (*versionCmd) Name() string           { return "version" }
func (*versionCmd) Synopsis() string       { return "prints the current version" }
func (*versionCmd) Usage() string          { return "Usage: guardian version" }
func (*versionCmd) SetFlags(*flag.FlagSet) {}
func (*versionCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	fmt.Printf("guardian version %s\n", constants.Version)
	return subcommands.ExitSuccess
}

func main() {
	flag.Parse()

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(&keygenCmd{}, "")
	subcommands.Register(&distributeCmd{}, "")
	subcommands.Register(&unwrapCmd{}, "")
	subcommands.Register(&reconstructCmd{}, "")
	subcommands.Register(&versionCmd{}, "")

	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
