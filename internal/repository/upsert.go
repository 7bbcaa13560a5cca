package repository

import (
	"strconv"
	"strings"
)

// neverUpdated 冲突时保留原值的列
var neverUpdated = map[string]bool{
	"id":         true,
	"user_id":    true,
	"created_at": true,
}

// buildUpsert 生成 rows 行的多值 upsert 语句
// 可空列 COALESCE(EXCLUDED.c, t.c)：后到的部分数据不会抹掉已有值。
func buildUpsert(s *TableSpec, rows int) string {
	var sb strings.Builder
	cols := len(s.Columns)

	sb.WriteString("INSERT INTO ")
	sb.WriteString(s.Table)
	sb.WriteString(" (")
	for i, c := range s.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.Name)
	}
	sb.WriteString(") VALUES ")

	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			n++
		}
		sb.WriteByte(')')
	}

	sb.WriteString(" ON CONFLICT (")
	sb.WriteString(strings.Join(s.KeyColumns(), ", "))
	sb.WriteString(") DO UPDATE SET ")
	first := true
	for _, c := range s.Columns {
		if c.Key || neverUpdated[c.Name] {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(c.Name)
		sb.WriteString(" = ")
		if c.Nullable {
			sb.WriteString("COALESCE(EXCLUDED.")
			sb.WriteString(c.Name)
			sb.WriteString(", ")
			sb.WriteString(s.Table)
			sb.WriteByte('.')
			sb.WriteString(c.Name)
			sb.WriteByte(')')
		} else {
			sb.WriteString("EXCLUDED.")
			sb.WriteString(c.Name)
		}
	}
	return sb.String()
}
