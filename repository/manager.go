package repository

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/govm-net/counter/core"
)

// Runtime names how an instance's code is executed.
type Runtime string

const (
	RuntimeNative Runtime = "native"
	RuntimeWASM   Runtime = "wasm"
)

// ErrInstanceExists is returned when registering an address twice.
var ErrInstanceExists = errors.New("instance already exists")

// Manager 合约实例管理器
type Manager struct {
	rootDir string // 实例根目录
}

// Instance 合约实例信息
type Instance struct {
	Address    core.Address // 实例地址
	Code       string       // 代码名称
	Runtime    Runtime      // 执行方式
	Creator    core.Address // 创建者, 即初始 owner
	InitMsg    []byte       // 实例化消息
	CreateTime time.Time    // 创建时间
	Hash       [32]byte     // 实例化消息哈希
}

// InstanceMetadata 实例元数据
type InstanceMetadata struct {
	Code       string       `json:"code"`
	Runtime    Runtime      `json:"runtime"`
	Creator    core.Address `json:"creator"`
	Hash       string       `json:"hash"`
	CreateTime time.Time    `json:"create_time"`
}

// NewManager 创建实例管理器
func NewManager(rootDir string) (*Manager, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("repository directory is empty")
	}
	// 确保根目录存在
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		slog.Error("failed to create root directory", "dir", rootDir, "error", err)
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	return &Manager{
		rootDir: rootDir,
	}, nil
}

// RegisterInstance 注册新的合约实例, 已存在的实例不可覆盖
func (m *Manager) RegisterInstance(address core.Address, code string, runtime Runtime, creator core.Address, initMsg []byte) (*Instance, error) {
	// 检查实例是否已存在
	dir := m.getInstanceDir(address)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrInstanceExists, address)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to check instance directory: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create instance directory: %w", err)
	}

	inst := &Instance{
		Address:    address,
		Code:       code,
		Runtime:    runtime,
		Creator:    creator,
		InitMsg:    initMsg,
		CreateTime: time.Now().UTC(),
		Hash:       sha256.Sum256(initMsg),
	}

	if err := m.saveInstanceFiles(inst); err != nil {
		// 删除已创建的目录
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to save instance files: %w", err)
	}

	return inst, nil
}

// GetInstance 获取实例信息, 不存在时返回 core.ErrContractNotFound
func (m *Manager) GetInstance(address core.Address) (*Instance, error) {
	return m.loadInstance(address)
}

// Exists reports whether an instance is registered at address.
func (m *Manager) Exists(address core.Address) bool {
	_, err := os.Stat(filepath.Join(m.getInstanceDir(address), "metadata.json"))
	return err == nil
}

// Count returns the number of registered instances.
func (m *Manager) Count() (int, error) {
	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read repository: %w", err)
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if addr, err := core.ParseAddress(entry.Name()); err == nil && m.Exists(addr) {
			n++
		}
	}
	return n, nil
}

// ListInstances returns every registered instance ordered by creation time.
func (m *Manager) ListInstances() ([]*Instance, error) {
	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read repository: %w", err)
	}
	var out []*Instance
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		addr, err := core.ParseAddress(entry.Name())
		if err != nil {
			slog.Warn("skipping unexpected repository entry", "name", entry.Name())
			continue
		}
		inst, err := m.loadInstance(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreateTime.Before(out[j].CreateTime)
	})
	return out, nil
}

// getInstanceDir 获取实例目录路径
func (m *Manager) getInstanceDir(address core.Address) string {
	return filepath.Join(m.rootDir, address.String())
}

// saveInstanceFiles 保存实例相关文件
func (m *Manager) saveInstanceFiles(inst *Instance) error {
	dir := m.getInstanceDir(inst.Address)

	// 保存实例化消息
	if err := os.WriteFile(filepath.Join(dir, "init_msg.json"), inst.InitMsg, 0644); err != nil {
		return fmt.Errorf("failed to save init message: %w", err)
	}

	metadata := InstanceMetadata{
		Code:       inst.Code,
		Runtime:    inst.Runtime,
		Creator:    inst.Creator,
		Hash:       hex.EncodeToString(inst.Hash[:]),
		CreateTime: inst.CreateTime,
	}

	metadataBytes, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	// 元数据最后写入, 它的存在表示实例已完整注册
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), metadataBytes, 0644); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	return nil
}

// loadInstance 从文件系统加载实例
func (m *Manager) loadInstance(address core.Address) (*Instance, error) {
	dir := m.getInstanceDir(address)

	metadataBytes, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", core.ErrContractNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata InstanceMetadata
	if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	initMsg, err := os.ReadFile(filepath.Join(dir, "init_msg.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read init message: %w", err)
	}

	// 解析哈希
	hashBytes, err := hex.DecodeString(metadata.Hash)
	if err != nil {
		return nil, fmt.Errorf("invalid hash in metadata: %w", err)
	}
	var hash [32]byte
	copy(hash[:], hashBytes)

	return &Instance{
		Address:    address,
		Code:       metadata.Code,
		Runtime:    metadata.Runtime,
		Creator:    metadata.Creator,
		InitMsg:    initMsg,
		CreateTime: metadata.CreateTime,
		Hash:       hash,
	}, nil
}
