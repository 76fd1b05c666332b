package auth

import (
	"fmt"
	"hash/crc32"
	"sort"
	"sync"
)

const (
	defaultReplicas = 50
	defaultNode     = "auth-node-default"
)

type vnode struct {
	hash uint32
	node string
}

// ConsistentHashRing 一致性哈希环，决定 token 缓存落在哪个鉴权节点的 key 空间
type ConsistentHashRing struct {
	mu       sync.RWMutex
	replicas int
	ring     []vnode // 按 hash 升序
	nodes    map[string]struct{}
}

// NewConsistentHashRing nodes 为空时放入一个默认节点，保证 GetNode 总有结果
func NewConsistentHashRing(nodes []string, replicas int) *ConsistentHashRing {
	if replicas <= 0 {
		replicas = defaultReplicas
	}
	if len(nodes) == 0 {
		nodes = []string{defaultNode}
	}
	c := &ConsistentHashRing{replicas: replicas, nodes: make(map[string]struct{})}
	c.Add(nodes...)
	return c
}

// Add 添加节点，已存在的忽略
func (c *ConsistentHashRing) Add(nodes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range nodes {
		if _, ok := c.nodes[n]; ok {
			continue
		}
		c.nodes[n] = struct{}{}
		for i := 0; i < c.replicas; i++ {
			c.ring = append(c.ring, vnode{hash: crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", n, i))), node: n})
		}
	}
	sort.Slice(c.ring, func(i, j int) bool { return c.ring[i].hash < c.ring[j].hash })
}

// Remove 下线节点，其 key 顺延到环上下一个节点
func (c *ConsistentHashRing) Remove(node string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.nodes[node]; !ok {
		return
	}
	delete(c.nodes, node)
	kept := c.ring[:0]
	for _, v := range c.ring {
		if v.node != node {
			kept = append(kept, v)
		}
	}
	c.ring = kept
}

// Len 节点数
func (c *ConsistentHashRing) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

// GetNode 顺时针找到第一个 hash ≥ key 的虚拟节点
func (c *ConsistentHashRing) GetNode(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.ring) == 0 {
		return ""
	}
	h := crc32.ChecksumIEEE([]byte(key))
	i := sort.Search(len(c.ring), func(i int) bool { return c.ring[i].hash >= h })
	if i == len(c.ring) {
		i = 0
	}
	return c.ring[i].node
}
