package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/holiman/uint256"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"mcn/committee"
	"mcn/logx"
	"mcn/manager"
	"mcn/types"
)

// LoadGenesisConfig reads and parses the genesis.yml file
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open genesis config: %w", err)
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		return nil, fmt.Errorf("failed to decode genesis config: %w", err)
	}
	logx.Info("CONFIG", fmt.Sprintf("loaded genesis: epoch=%d validators=%d chains=%d",
		cfgFile.Config.Epoch, len(cfgFile.Config.Validators), len(cfgFile.Config.Chains)))
	return &cfgFile.Config, nil
}

// LoadNodeConfig reads the node runtime settings from an INI file.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load node config: %w", err)
	}
	section := file.Section("node")
	cfg := &NodeConfig{
		ListenAddr: section.Key("listen_addr").MustString("0.0.0.0:9000"),
		DataDir:    section.Key("data_dir").MustString("./data"),
		DBBackend:  section.Key("db_backend").MustString("leveldb"),
		KeyFile:    section.Key("key_file").MustString("./node.key"),
	}
	return cfg, nil
}

// LoadEd25519PrivKey loads an Ed25519 private key from a file (expects hex encoding)
func LoadEd25519PrivKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, err
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length %d", len(key))
	}
	return ed25519.PrivateKey(key), nil
}

// Committee builds the genesis committee from the validator list.
func (c *GenesisConfig) Committee() (*committee.Committee, error) {
	validators := make([]committee.ValidatorInfo, len(c.Validators))
	for i, v := range c.Validators {
		validators[i] = committee.ValidatorInfo{
			PubKey: types.Address(v.PubKey),
			Weight: v.Weight,
		}
	}
	pricing := committee.PricingPolicy{
		OperationCharge: uint256.NewInt(c.Pricing.OperationCharge),
		MessageCharge:   uint256.NewInt(c.Pricing.MessageCharge),
		ByteCharge:      uint256.NewInt(c.Pricing.ByteCharge),
	}
	if c.Pricing.MaximumBlockCharge > 0 {
		pricing.MaximumBlockCharge = uint256.NewInt(c.Pricing.MaximumBlockCharge)
	}
	return committee.NewCommittee(types.Epoch(c.Epoch), validators, pricing)
}

// Ownership converts one chain config into a manager ownership.
func (cc *ChainConfig) Ownership() manager.Ownership {
	return manager.Ownership{
		SuperOwners:           convertOwners(cc.SuperOwners),
		Owners:                convertOwners(cc.Owners),
		MultiLeaderRounds:     cc.MultiLeaderRounds,
		MaxSingleLeaderRounds: cc.MaxSingleLeaderRounds,
		BaseTimeout:           cc.BaseTimeout,
		TimeoutIncrement:      cc.TimeoutIncrement,
		FallbackDuration:      cc.FallbackDuration,
	}
}

// ChainID derives the genesis chain id from its index. Genesis chains hang
// off the zero parent at height zero.
func (cc *ChainConfig) ChainID() types.ChainID {
	return types.DeriveChainID(types.ChainID{}, 0, cc.Index)
}

func convertOwners(owners []OwnerConfig) []committee.ValidatorInfo {
	out := make([]committee.ValidatorInfo, len(owners))
	for i, o := range owners {
		out[i] = committee.ValidatorInfo{PubKey: types.Address(o.PubKey), Weight: o.Weight}
	}
	return out
}
