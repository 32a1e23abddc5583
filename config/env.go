package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// fileSuffix 允许用 <KEY>_FILE 指向挂载的 secret 文件，直接设置 <KEY> 时优先.
const fileSuffix = "_FILE"

var durationType = reflect.TypeOf(time.Duration(0))

// applyEnv 按 env tag 拼出变量名（前缀_段_字段）覆盖 cfg 中的字段.
func applyEnv(cfg *Config, prefix string, lookup func(string) (string, bool)) error {
	return walkEnv(reflect.ValueOf(cfg).Elem(), prefix, func(key string, field reflect.Value) error {
		raw, ok, err := envValue(key, lookup)
		if err != nil || !ok {
			return err
		}
		if err := decodeEnv(field, raw); err != nil {
			return fmt.Errorf("%s=%q: %w", key, raw, err)
		}
		return nil
	})
}

// walkEnv 深度优先遍历带 env tag 的可设置字段，嵌套结构体的 tag 作为中间段.
func walkEnv(v reflect.Value, prefix string, visit func(key string, field reflect.Value) error) error {
	t := v.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		tag := sf.Tag.Get("env")
		if tag == "" || tag == "-" || !sf.IsExported() {
			continue
		}
		key := prefix + "_" + tag
		field := v.Field(i)

		var err error
		if field.Kind() == reflect.Struct && field.Type() != durationType {
			err = walkEnv(field, key, visit)
		} else {
			err = visit(key, field)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// envValue 空字符串视为未设置.
func envValue(key string, lookup func(string) (string, bool)) (string, bool, error) {
	if v, ok := lookup(key); ok && v != "" {
		return v, true, nil
	}
	path, ok := lookup(key + fileSuffix)
	if !ok || path == "" {
		return "", false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("%s%s: %w", key, fileSuffix, err)
	}
	return strings.TrimRight(string(data), "\r\n"), true, nil
}

func decodeEnv(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		field.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

// splitList 逗号分隔，去掉空项.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
