package pricing

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
)

// table 费率表文件结构
type table struct {
	Default *Rate           `yaml:"default"`
	Vendors map[string]Rate `yaml:"vendors"`
	Devices map[string]Rate `yaml:"devices"`
}

// Memory 内存费率表实现，可由 YAML 文件加载。
// 读多写少：仅在加载/热替换时持写锁。
type Memory struct {
	mu  sync.RWMutex
	tbl table
}

// NewMemory 创建空费率表（仅含默认费率）
func NewMemory(def Rate) *Memory {
	return &Memory{tbl: table{
		Default: &def,
		Vendors: map[string]Rate{},
		Devices: map[string]Rate{},
	}}
}

// LoadFile 从 YAML 文件加载费率表
func LoadFile(path string) (*Memory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate table: %w", err)
	}
	var tbl table
	if err := yaml.Unmarshal(raw, &tbl); err != nil {
		return nil, fmt.Errorf("parse rate table: %w", err)
	}
	if tbl.Vendors == nil {
		tbl.Vendors = map[string]Rate{}
	}
	if tbl.Devices == nil {
		tbl.Devices = map[string]Rate{}
	}
	return &Memory{tbl: tbl}, nil
}

// SetVendorRate 写入运营商级费率
func (m *Memory) SetVendorRate(vendorID coremodel.VendorID, r Rate) {
	m.mu.Lock()
	m.tbl.Vendors[string(vendorID)] = r
	m.mu.Unlock()
}

// SetDeviceRate 写入设备级费率
func (m *Memory) SetDeviceRate(deviceID coremodel.DeviceID, r Rate) {
	m.mu.Lock()
	m.tbl.Devices[string(deviceID)] = r
	m.mu.Unlock()
}

// RateFor 设备级优先，其次运营商级，最后默认；均未命中返回 ErrNoRate
func (m *Memory) RateFor(_ context.Context, vendorID coremodel.VendorID, deviceID coremodel.DeviceID) (Rate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if r, ok := m.tbl.Devices[string(deviceID)]; ok {
		return r, nil
	}
	if r, ok := m.tbl.Vendors[string(vendorID)]; ok {
		return r, nil
	}
	if m.tbl.Default != nil {
		return *m.tbl.Default, nil
	}
	return Rate{}, ErrNoRate
}
