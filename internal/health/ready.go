package health

import (
	"sort"
	"sync"
)

// Readiness 各子系统就绪标记（存储、监听端口等），全部为 true 才算就绪
type Readiness struct {
	mu         sync.RWMutex
	components map[string]bool
}

func New() *Readiness { return &Readiness{components: make(map[string]bool)} }

// Register 登记子系统，初始未就绪
func (r *Readiness) Register(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		if _, ok := r.components[n]; !ok {
			r.components[n] = false
		}
	}
}

// Set 更新子系统就绪状态
func (r *Readiness) Set(name string, v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[name] = v
}

// Ready 总体就绪
func (r *Readiness) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.components {
		if !v {
			return false
		}
	}
	return true
}

// Pending 尚未就绪的子系统
func (r *Readiness) Pending() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for n, v := range r.components {
		if !v {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
