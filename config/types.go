package config

import "time"

// ConfigFile is the top-level genesis.yml wrapper.
type ConfigFile struct {
	Config GenesisConfig `yaml:"config"`
}

// GenesisConfig describes epoch zero: the committee, its pricing policy and
// the chains that exist from the start.
type GenesisConfig struct {
	Epoch      uint64            `yaml:"epoch"`
	Validators []ValidatorConfig `yaml:"validators"`
	Pricing    PricingConfig     `yaml:"pricing"`
	Chains     []ChainConfig     `yaml:"chains"`
}

// ValidatorConfig is one committee member and how to reach it.
type ValidatorConfig struct {
	PubKey   string `yaml:"pub_key"`
	Weight   uint64 `yaml:"weight"`
	Endpoint string `yaml:"endpoint"`
}

// PricingConfig is the committee's flat resource cost table. A zero
// maximum_block_charge leaves blocks uncapped.
type PricingConfig struct {
	OperationCharge    uint64 `yaml:"operation_charge"`
	MessageCharge      uint64 `yaml:"message_charge"`
	ByteCharge         uint64 `yaml:"byte_charge"`
	MaximumBlockCharge uint64 `yaml:"maximum_block_charge"`
}

// ChainConfig describes one genesis chain. The chain id is derived from the
// genesis index, not configured.
type ChainConfig struct {
	Index                 uint32        `yaml:"index"`
	SuperOwners           []OwnerConfig `yaml:"super_owners"`
	Owners                []OwnerConfig `yaml:"owners"`
	MultiLeaderRounds     uint32        `yaml:"multi_leader_rounds"`
	MaxSingleLeaderRounds uint32        `yaml:"max_single_leader_rounds"`
	BaseTimeout           time.Duration `yaml:"base_timeout"`
	TimeoutIncrement      time.Duration `yaml:"timeout_increment"`
	FallbackDuration      time.Duration `yaml:"fallback_duration"`
	Seed                  uint64        `yaml:"seed"`
}

// OwnerConfig is one chain owner with its proposal weight.
type OwnerConfig struct {
	PubKey string `yaml:"pub_key"`
	Weight uint64 `yaml:"weight"`
}

// NodeConfig holds the runtime settings loaded from node.ini.
type NodeConfig struct {
	ListenAddr string
	DataDir    string
	DBBackend  string // leveldb | bolt | memory
	KeyFile    string
}
