package sortkey

import (
	"errors"
	"fmt"
	"strings"
)

// 分数索引排序键（fractional indexing）。
// 用途：在两个相邻兄弟节点之间 O(1) 插入新节点，不需要重排其他节点。
// 表示：定点数，9 位小数（与数据库 NUMERIC(18,9) 对齐），内部用 int64 的
// "最小单位"（1e-9）保存，避免浮点误差。
const (
	// 1 个整数单位 = 1e9 个最小单位
	unitScale int64 = 1_000_000_000
	// NUMERIC(18,9)：整数部分最多 9 位
	maxUnits int64 = 999_999_999 * unitScale
)

var (
	ErrNotPositive = errors.New("SORT_KEY_NOT_POSITIVE")
	// 调用方传入 before >= after，属于调用错误，不做静默处理
	ErrOrderViolation = errors.New("SORT_KEY_ORDER_VIOLATION")
	// 两个相邻键之间已经没有可表示的中点（9 位小数精度耗尽）
	ErrExhausted = errors.New("SORT_KEY_PRECISION_EXHAUSTED")
	ErrOverflow  = errors.New("SORT_KEY_OVERFLOW")
)

type SortKey struct {
	units int64
}

// First 序列中第一个元素的默认键（= 1）
func First() SortKey {
	return SortKey{units: unitScale}
}

// FromUnits 从最小单位构造。必须为正。
func FromUnits(units int64) (SortKey, error) {
	if units <= 0 {
		return SortKey{}, ErrNotPositive
	}
	if units > maxUnits {
		return SortKey{}, ErrOverflow
	}
	return SortKey{units: units}, nil
}

// FromInt 从整数构造（常用于测试和追加场景）
func FromInt(v int64) (SortKey, error) {
	if v <= 0 {
		return SortKey{}, ErrNotPositive
	}
	if v > maxUnits/unitScale {
		return SortKey{}, ErrOverflow
	}
	return SortKey{units: v * unitScale}, nil
}

// Between 计算一个严格落在 before 与 after 之间的新键。
//
//	before == nil && after == nil  -> First（固定起始值 1）
//	before != nil && after == nil  -> before + 1（追加到末尾）
//	before == nil && after != nil  -> after / 2（插到最前）
//	两者都有                        -> 中点 (before+after)/2
//
// 前置条件：before < after，否则返回 ErrOrderViolation。
func Between(before, after *SortKey) (SortKey, error) {
	switch {
	case before == nil && after == nil:
		return First(), nil

	case after == nil:
		// 追加：before + 1
		if before.units > maxUnits-unitScale {
			return SortKey{}, ErrOverflow
		}
		return SortKey{units: before.units + unitScale}, nil

	case before == nil:
		// 前插：after / 2，整除截断
		half := after.units / 2
		if half <= 0 {
			// after 已经是最小可表示的正数
			return SortKey{}, ErrExhausted
		}
		return SortKey{units: half}, nil

	default:
		if before.units >= after.units {
			return SortKey{}, ErrOrderViolation
		}
		mid := before.units + (after.units-before.units)/2
		// 相邻单位之间没有中点可取：(a, a+1) 的整除中点就是 a 本身
		if mid == before.units {
			return SortKey{}, ErrExhausted
		}
		return SortKey{units: mid}, nil
	}
}

// Units 返回最小单位表示（1e-9）
func (k SortKey) Units() int64 { return k.units }

// Less 标准全序比较
func (k SortKey) Less(other SortKey) bool { return k.units < other.units }

// Compare 返回 -1/0/1
func (k SortKey) Compare(other SortKey) int {
	switch {
	case k.units < other.units:
		return -1
	case k.units > other.units:
		return 1
	default:
		return 0
	}
}

// String 按 9 位小数渲染（与数据库列的格式一致），例如 1.500000000
func (k SortKey) String() string {
	return fmt.Sprintf("%d.%09d", k.units/unitScale, k.units%unitScale)
}

// Parse 解析 String()/数据库 DECIMAL 文本形式，如 "1.5"、"2.500000000"
func Parse(s string) (SortKey, error) {
	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" {
		return SortKey{}, fmt.Errorf("parse sort key %q: empty integer part", s)
	}
	var whole int64
	if _, err := fmt.Sscanf(intPart, "%d", &whole); err != nil {
		return SortKey{}, fmt.Errorf("parse sort key %q: %w", s, err)
	}
	if whole < 0 {
		return SortKey{}, ErrNotPositive
	}
	// 小数部分右补零到 9 位，超过 9 位视为格式错误（数据库不会给出）
	if len(fracPart) > 9 {
		return SortKey{}, fmt.Errorf("parse sort key %q: more than 9 fractional digits", s)
	}
	frac := int64(0)
	if fracPart != "" {
		padded := fracPart + strings.Repeat("0", 9-len(fracPart))
		if _, err := fmt.Sscanf(padded, "%d", &frac); err != nil {
			return SortKey{}, fmt.Errorf("parse sort key %q: %w", s, err)
		}
	}
	return FromUnits(whole*unitScale + frac)
}
