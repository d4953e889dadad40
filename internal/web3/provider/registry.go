package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/SunilRudraKumar/Easy/internal/config"
	"github.com/SunilRudraKumar/Easy/internal/web3"
	"github.com/SunilRudraKumar/Easy/internal/web3/solana"
)

// Registry manages a set of cluster clients keyed by cluster name.
type Registry struct {
	defaultCluster string
	clients        map[string]web3.Client
}

// NewRegistry loads cluster definitions and instantiates one client per cluster.
func NewRegistry(ctx context.Context, cfg config.Web3Config) (*Registry, error) {
	defs, err := web3.LoadClusterDefinitions(cfg.ClustersFile)
	if err != nil {
		return nil, err
	}
	if len(defs.Clusters) == 0 {
		return nil, errors.New("未配置任何 Solana 集群")
	}

	confirm := time.Duration(cfg.ConfirmTimeoutSeconds) * time.Second
	clients := make(map[string]web3.Client, len(defs.Clusters))
	for _, def := range defs.Clusters {
		client, err := solana.NewClient(ctx, solana.Config{
			Name:            def.Name,
			RPCURL:          def.RPCURL,
			ExplorerCluster: def.ExplorerCluster,
			Commitment:      def.Commitment,
			ConfirmTimeout:  confirm,
		})
		if err != nil {
			closeAll(clients)
			return nil, fmt.Errorf("初始化集群 %s 失败: %w", def.Name, err)
		}
		clients[def.Name] = client
	}
	return newRegistry(cfg.DefaultCluster, clients)
}

// NewStaticRegistry wraps already constructed clients, mainly for tests.
func NewStaticRegistry(defaultCluster string, clients ...web3.Client) (*Registry, error) {
	byName := make(map[string]web3.Client, len(clients))
	for _, c := range clients {
		if c != nil {
			byName[c.Cluster()] = c
		}
	}
	if len(byName) == 0 {
		return nil, errors.New("未配置任何 Solana 集群")
	}
	return newRegistry(defaultCluster, byName)
}

func newRegistry(defaultCluster string, clients map[string]web3.Client) (*Registry, error) {
	if defaultCluster == "" {
		names := sortedNames(clients)
		defaultCluster = names[0]
	}
	if _, ok := clients[defaultCluster]; !ok {
		closeAll(clients)
		return nil, fmt.Errorf("默认集群 %s 未在配置中找到", defaultCluster)
	}
	return &Registry{defaultCluster: defaultCluster, clients: clients}, nil
}

// DefaultClient returns the client configured as default cluster.
func (r *Registry) DefaultClient() (web3.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的集群客户端注册表")
	}
	client, ok := r.clients[r.defaultCluster]
	if !ok {
		return nil, fmt.Errorf("默认集群 %s 未在注册表中", r.defaultCluster)
	}
	return client, nil
}

// Client returns the client identified by cluster name.
func (r *Registry) Client(name string) (web3.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	return client, ok
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	closeAll(r.clients)
}

// Clusters returns the registered cluster names.
func (r *Registry) Clusters() []string {
	if r == nil {
		return nil
	}
	return sortedNames(r.clients)
}

func sortedNames(clients map[string]web3.Client) []string {
	names := make([]string, 0, len(clients))
	for name := range clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func closeAll(clients map[string]web3.Client) {
	for name, client := range clients {
		if client != nil {
			client.Close()
		}
		delete(clients, name)
	}
}
