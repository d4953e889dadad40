package web3

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ClusterDefinitions models the structure of configs/clusters.yaml.
type ClusterDefinitions struct {
	Clusters []ClusterDefinition `yaml:"clusters"`
}

// ClusterDefinition describes a single Solana cluster endpoint.
type ClusterDefinition struct {
	Name            string `yaml:"name"`
	RPCURL          string `yaml:"rpc_url"`
	ExplorerCluster string `yaml:"explorer_cluster"`
	Commitment      string `yaml:"commitment"`
}

// Lookup returns the definition with the given name.
func (d ClusterDefinitions) Lookup(name string) (ClusterDefinition, bool) {
	for _, c := range d.Clusters {
		if c.Name == name {
			return c, true
		}
	}
	return ClusterDefinition{}, false
}

// LoadClusterDefinitions parses the YAML file containing cluster metadata.
func LoadClusterDefinitions(path string) (ClusterDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ClusterDefinitions{}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ClusterDefinitions{}, fmt.Errorf("读取集群配置失败: %w", err)
	}

	var defs ClusterDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ClusterDefinitions{}, fmt.Errorf("解析集群配置失败: %w", err)
	}

	seen := make(map[string]struct{}, len(defs.Clusters))
	for i, c := range defs.Clusters {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return ClusterDefinitions{}, fmt.Errorf("第 %d 个集群缺少 name", i+1)
		}
		if strings.TrimSpace(c.RPCURL) == "" {
			return ClusterDefinitions{}, fmt.Errorf("集群 %s 缺少 rpc_url", name)
		}
		if _, dup := seen[name]; dup {
			return ClusterDefinitions{}, fmt.Errorf("集群 %s 重复定义", name)
		}
		seen[name] = struct{}{}
		defs.Clusters[i].Name = name
	}
	return defs, nil
}
