// Package loader 加载裁决策略文件并监听热更新。
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"arbiter/internal/decision"
	"arbiter/internal/logger"
)

// PolicySnapshot 对外暴露的只读快照。
type PolicySnapshot struct {
	Version  int64
	LoadedAt time.Time
	Policy   decision.Policy
}

// ChangeListener 在配置变更时被调用。
type ChangeListener func(PolicySnapshot)

// PolicyLoader 负责从 YAML 文件中加载裁决策略，并监听热更新。
// 解析失败时保留上一份有效策略。
type PolicyLoader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  PolicySnapshot
	listeners []ChangeListener
}

// LoadPolicyFile 读取并校验策略文件，缺省字段回落到默认值。
func LoadPolicyFile(path string) (decision.Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return decision.Policy{}, fmt.Errorf("read policy failed: %w", err)
	}
	p := decision.PolicyOverrides()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return decision.Policy{}, fmt.Errorf("parse policy %s: %w", path, err)
	}
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return decision.Policy{}, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// NewPolicyLoader 读取策略文件并开始监听 FS 事件。
func NewPolicyLoader(path string) (*PolicyLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("policy loader requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read policy config failed: %w", err)
	}
	loader := &PolicyLoader{path: path, v: v}
	if err := loader.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := loader.reload(); err != nil {
			logger.Errorf("policy reload failed (%s): %v", evt.Name, err)
			return
		}
		logger.Infof("policy reloaded from %s (v%d)", evt.Name, loader.Snapshot().Version)
		loader.notify()
	})
	v.WatchConfig()
	return loader, nil
}

func (l *PolicyLoader) Path() string { return l.path }

func (l *PolicyLoader) Snapshot() PolicySnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Subscribe 注册监听器，并立即收到一次完整快照。
func (l *PolicyLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := l.snapshot
	l.mu.Unlock()
	safeCall(fn, snap)
}

// Bind 让 Judge 跟随文件变化切换策略。
func (l *PolicyLoader) Bind(j *decision.Judge) {
	l.Subscribe(func(s PolicySnapshot) { j.SetPolicy(s.Policy) })
}

func (l *PolicyLoader) reload() error {
	p, err := LoadPolicyFile(l.path)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.snapshot = PolicySnapshot{Version: l.snapshot.Version + 1, LoadedAt: time.Now(), Policy: p}
	l.mu.Unlock()
	return nil
}

func (l *PolicyLoader) notify() {
	l.mu.RLock()
	snap := l.snapshot
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		safeCall(fn, snap)
	}
}

func safeCall(fn ChangeListener, snap PolicySnapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("policy listener panic: %v", r)
		}
	}()
	fn(snap)
}
