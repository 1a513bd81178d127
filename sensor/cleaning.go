package sensor

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// Rule 传感器读数校验规则
type Rule interface {
	Apply(fields map[string]any) error
	Name() string
}

// Issue 质量问题
type Issue struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// CleaningStats 校验统计
type CleaningStats struct {
	Checked  int64            `json:"checked"`
	Passed   int64            `json:"passed"`
	Rejected int64            `json:"rejected"`
	Issues   map[string]int64 `json:"issues"`
}

// Cleaner 依次应用所有规则，任何规则失败都拒绝整条写入
type Cleaner struct {
	rules []Rule

	mu    sync.Mutex
	stats CleaningStats
}

// NewCleaner 创建带默认规则的校验器
func NewCleaner(rules ...Rule) *Cleaner {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Cleaner{
		rules: rules,
		stats: CleaningStats{Issues: make(map[string]int64)},
	}
}

// DefaultRules 设备上报字段的物理范围
func DefaultRules() []Rule {
	return []Rule{
		RangeRule{Field: "ph", Min: 0, Max: 14},
		RangeRule{Field: "moisture", Min: 0, Max: 100},
		RangeRule{Field: "humidity", Min: 0, Max: 100},
		RangeRule{Field: "threshold", Min: 0, Max: 100},
		RangeRule{Field: "salinity", Min: 0, Max: math.Inf(1)},
		RangeRule{Field: "temperature", Min: -50, Max: 70},
		TypeRule{Field: "irrigation", Kind: "bool"},
	}
}

// Check 校验字段，返回发现的问题
func (c *Cleaner) Check(fields map[string]any) []Issue {
	var issues []Issue
	for _, rule := range c.rules {
		if err := rule.Apply(fields); err != nil {
			issues = append(issues, Issue{Rule: rule.Name(), Message: err.Error()})
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Checked++
	if len(issues) == 0 {
		c.stats.Passed++
		return nil
	}
	c.stats.Rejected++
	for _, issue := range issues {
		c.stats.Issues[issue.Rule]++
	}
	return issues
}

// Validate 与 Check 相同，但把问题合并成 ErrInvalidValue
func (c *Cleaner) Validate(fields map[string]any) error {
	issues := c.Check(fields)
	if len(issues) == 0 {
		return nil
	}
	msgs := make([]string, len(issues))
	for i, issue := range issues {
		msgs[i] = issue.Message
	}
	return fmt.Errorf("%w: %s", ErrInvalidValue, strings.Join(msgs, "; "))
}

// Stats 返回统计副本
func (c *Cleaner) Stats() CleaningStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	out.Issues = make(map[string]int64, len(c.stats.Issues))
	for k, v := range c.stats.Issues {
		out.Issues[k] = v
	}
	return out
}

// RangeRule 数值字段必须有限且在 [Min, Max] 内。字段缺失时跳过
type RangeRule struct {
	Field    string
	Min, Max float64
}

func (r RangeRule) Name() string { return "range_" + r.Field }

func (r RangeRule) Apply(fields map[string]any) error {
	v, ok := fields[r.Field]
	if !ok || v == nil {
		return nil
	}
	f, ok := toFloat(v)
	if !ok {
		return fmt.Errorf("%s must be a number", r.Field)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%s must be finite", r.Field)
	}
	if f < r.Min || f > r.Max {
		if math.IsInf(r.Max, 1) {
			return fmt.Errorf("%s %v must be at least %v", r.Field, f, r.Min)
		}
		return fmt.Errorf("%s %v out of range [%v, %v]", r.Field, f, r.Min, r.Max)
	}
	return nil
}

// TypeRule 字段存在时必须是指定类型
type TypeRule struct {
	Field string
	Kind  string
}

func (r TypeRule) Name() string { return "type_" + r.Field }

func (r TypeRule) Apply(fields map[string]any) error {
	v, ok := fields[r.Field]
	if !ok || v == nil {
		return nil
	}
	switch r.Kind {
	case "bool":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%s must be a boolean", r.Field)
		}
	case "number":
		if _, ok := toFloat(v); !ok {
			return fmt.Errorf("%s must be a number", r.Field)
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
