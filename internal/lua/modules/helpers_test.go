package modules

import (
	"reflect"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func eval(t *testing.T, L *lua.LState, expr string) lua.LValue {
	t.Helper()
	if err := L.DoString("return " + expr); err != nil {
		t.Fatalf("DoString(%q) error = %v", expr, err)
	}
	v := L.Get(-1)
	L.Pop(1)
	return v
}

func TestLuaToGo(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tests := []struct {
		name string
		expr string
		want any
	}{
		{"string", `"x"`, "x"},
		{"number", `2.5`, 2.5},
		{"bool", `true`, true},
		{"nil", `nil`, nil},
		{"array", `{"a", "b"}`, []any{"a", "b"}},
		{"sparse array", `{[1] = 1, [3] = 3}`, []any{float64(1), nil, float64(3)}},
		{"map", `{color = "#ff0000", on = true}`, map[string]any{"color": "#ff0000", "on": true}},
		{"fractional key", `{[1] = 1, [0.5] = 2}`, map[string]any{}},
		{"zero key", `{[0] = 1, [1] = 2}`, map[string]any{}},
		{"huge index", `{[1000000000] = 1}`, map[string]any{}},
		{"nested", `{fields = {1, 2}}`, map[string]any{"fields": []any{float64(1), float64(2)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LuaToGo(eval(t, L, tt.expr))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("LuaToGo(%s) = %#v, want %#v", tt.expr, got, tt.want)
			}
		})
	}
}
