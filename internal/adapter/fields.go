package adapter

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mattjoyce/hostdeck/internal/document"
	"github.com/mattjoyce/hostdeck/internal/gateway"
)

func fieldString(v document.Value, name string) string {
	raw, ok := v.Field(name)
	if !ok || raw == nil {
		return ""
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprint(raw)
}

func fieldInt(v document.Value, name string) (int, bool, error) {
	raw, ok := v.Field(name)
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch n := raw.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, false, gateway.Refuse("%s must be a whole number", name)
		}
		return int(n), true, nil
	case string:
		if strings.TrimSpace(n) == "" {
			return 0, false, nil
		}
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false, gateway.Refuse("%s must be a number", name)
		}
		return i, true, nil
	}
	return 0, false, gateway.Refuse("%s must be a number", name)
}

func fieldBool(v document.Value, name string) (bool, error) {
	raw, ok := v.Field(name)
	if !ok || raw == nil {
		return false, nil
	}
	switch b := raw.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, gateway.Refuse("%s must be true or false", name)
		}
		return parsed, nil
	}
	return false, gateway.Refuse("%s must be true or false", name)
}

