// Package instrument holds the static per-contract metadata (tick size,
// tick value, session precision) the sizing math and broker adapters need.
package instrument

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Spec 描述单个合约的最小报价单位与每跳价值。
type Spec struct {
	Symbol    string  `yaml:"symbol"`
	Name      string  `yaml:"name"`
	TickSize  float64 `yaml:"tick_size"`
	TickValue float64 `yaml:"tick_value"` // 每跳一张合约的美元价值
	Precision int     `yaml:"precision"`  // 展示用小数位
}

type catalogFile struct {
	Instruments []Spec `yaml:"instruments"`
}

// Catalog 是 symbol → Spec 的只读查表，启动时加载一次。
type Catalog struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// 常见 CME 微型合约内置默认值，目录文件可以覆盖。
var builtinSpecs = []Spec{
	{Symbol: "MES", Name: "Micro E-mini S&P 500", TickSize: 0.25, TickValue: 1.25, Precision: 2},
	{Symbol: "MNQ", Name: "Micro E-mini Nasdaq-100", TickSize: 0.25, TickValue: 0.5, Precision: 2},
	{Symbol: "ES", Name: "E-mini S&P 500", TickSize: 0.25, TickValue: 12.5, Precision: 2},
	{Symbol: "NQ", Name: "E-mini Nasdaq-100", TickSize: 0.25, TickValue: 5, Precision: 2},
	{Symbol: "CL", Name: "Crude Oil", TickSize: 0.01, TickValue: 10, Precision: 2},
	{Symbol: "GC", Name: "Gold", TickSize: 0.1, TickValue: 10, Precision: 1},
}

func NewCatalog() *Catalog {
	c := &Catalog{specs: make(map[string]Spec, len(builtinSpecs))}
	for _, spec := range builtinSpecs {
		c.specs[normalizeSymbol(spec.Symbol)] = spec
	}
	return c
}

// LoadCatalog 读取 YAML 目录文件并叠加在内置合约之上。
// 文件不存在时返回仅含内置合约的目录，不视为错误。
func LoadCatalog(path string) (*Catalog, error) {
	c := NewCatalog()
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return c, nil
	}
	data, err := os.ReadFile(trimmed)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("reading instrument catalog failed: %w", err)
	}
	var parsed catalogFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parsing instrument catalog failed: %w", err)
	}
	for _, spec := range parsed.Instruments {
		if err := spec.validate(); err != nil {
			return nil, fmt.Errorf("instrument %s: %w", spec.Symbol, err)
		}
		c.specs[normalizeSymbol(spec.Symbol)] = spec
	}
	return c, nil
}

func (s Spec) validate() error {
	if strings.TrimSpace(s.Symbol) == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if s.TickSize <= 0 {
		return fmt.Errorf("tick_size must be > 0")
	}
	if s.TickValue <= 0 {
		return fmt.Errorf("tick_value must be > 0")
	}
	return nil
}

// Lookup 按符号查找合约，未配置时返回 false。
// 符号可带到期月后缀（如 MESZ5），按前缀回退匹配。
func (c *Catalog) Lookup(symbol string) (Spec, bool) {
	if c == nil {
		return Spec{}, false
	}
	key := normalizeSymbol(symbol)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if spec, ok := c.specs[key]; ok {
		return spec, true
	}
	// 到期合约回退：MESZ5 → MES
	best := ""
	for root := range c.specs {
		if strings.HasPrefix(key, root) && len(root) > len(best) {
			best = root
		}
	}
	if best == "" {
		return Spec{}, false
	}
	return c.specs[best], true
}

// Symbols 返回目录内全部根符号（排序后）。
func (c *Catalog) Symbols() []string {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.specs))
	for sym := range c.specs {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
