package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"mcn/chain"
	"mcn/committee"
	"mcn/config"
	"mcn/db"
	"mcn/events"
	"mcn/logx"
	"mcn/network"
	"mcn/store"
	"mcn/synchronizer"
	"mcn/types"
	"mcn/validator"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a validator node",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode()
	},
}

func runNode() error {
	nodeCfg, err := config.LoadNodeConfig(nodeIniPath)
	if err != nil {
		return err
	}
	genesis, err := config.LoadGenesisConfig(genesisPath)
	if err != nil {
		return err
	}
	priv, err := config.LoadEd25519PrivKey(nodeCfg.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to load node key: %w", err)
	}

	provider, err := openProvider(nodeCfg)
	if err != nil {
		return err
	}
	defer provider.Close()

	chainStore, err := store.NewChainStore(provider)
	if err != nil {
		return err
	}

	registry := committee.NewRegistry()
	cm, err := genesis.Committee()
	if err != nil {
		return err
	}
	if err := registry.Add(cm); err != nil {
		return err
	}

	bus := events.NewEventBus()
	client := network.NewGRPCClient()
	defer client.Close()

	var endpoints []synchronizer.ValidatorEndpoint
	for _, v := range genesis.Validators {
		endpoints = append(endpoints, synchronizer.ValidatorEndpoint{
			Address:  types.Address(v.PubKey),
			Endpoint: v.Endpoint,
		})
	}
	sync := synchronizer.NewSynchronizer(registry, chainStore, bus, client, endpoints)

	now := time.Now()
	fallbackOwners := cm.Validators
	for i := range genesis.Chains {
		cc := &genesis.Chains[i]
		cc.ApplyDefaults()
		id := cc.ChainID()
		snap, err := chainStore.Chain(id)
		if err != nil {
			return err
		}
		var c *chain.Chain
		if snap != nil {
			c, err = chain.FromSnapshot(snap, cc.Ownership(), fallbackOwners, now)
			if err != nil {
				return err
			}
			logx.Info("NODE", fmt.Sprintf("recovered chain %s at height %d", id, snap.Tip.NextHeight))
		} else {
			c = chain.NewChain(id, types.Epoch(genesis.Epoch), cc.Ownership(), fallbackOwners, cc.Seed, now)
			if err := chainStore.SaveChain(c.Snapshot()); err != nil {
				return err
			}
			logx.Info("NODE", fmt.Sprintf("created genesis chain %s", id))
		}
		sync.TrackChain(c)
	}

	v := validator.NewValidator(priv, registry, sync, sync)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sync.Run(ctx, config.DefaultLivenessInterval)

	server := network.NewGRPCServer(v)
	logx.Info("NODE", fmt.Sprintf("validator %s starting on %s", v.Address(), nodeCfg.ListenAddr))
	return server.Serve(nodeCfg.ListenAddr)
}

func openProvider(cfg *config.NodeConfig) (db.IterableProvider, error) {
	switch cfg.DBBackend {
	case "leveldb":
		return db.NewLevelDBProvider(filepath.Join(cfg.DataDir, "chains"))
	case "bolt":
		return db.NewBoltProvider(filepath.Join(cfg.DataDir, "chains.db"))
	case "memory":
		return db.NewMemoryProvider(), nil
	default:
		return nil, fmt.Errorf("unknown db backend %q", cfg.DBBackend)
	}
}
