package models

import "reflect"

// PopulatedOptionalFields 统计家族专属可选字段（指针字段）中非空的个数
func PopulatedOptionalFields(m Metric) int {
	v := reflect.ValueOf(m)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return 0
	}
	v = v.Elem()
	t := v.Type()
	n := 0
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous || !f.IsExported() || f.Type.Kind() != reflect.Ptr {
			continue
		}
		if !v.Field(i).IsNil() {
			n++
		}
	}
	return n
}

// MergeMissing 返回 winner 的副本，其空的可选字段用 loser 的值补齐。
// 等价于两条记录先后执行 COALESCE 更新后存储中留下的结果；输入记录不被修改。
func MergeMissing(winner, loser Metric) Metric {
	wv := reflect.ValueOf(winner).Elem()
	lv := reflect.ValueOf(loser).Elem()
	if wv.Type() != lv.Type() {
		return winner
	}

	out := reflect.New(wv.Type())
	out.Elem().Set(wv)
	t := wv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous || !f.IsExported() || f.Type.Kind() != reflect.Ptr {
			continue
		}
		if out.Elem().Field(i).IsNil() && !lv.Field(i).IsNil() {
			out.Elem().Field(i).Set(lv.Field(i))
		}
	}
	return out.Interface().(Metric)
}
