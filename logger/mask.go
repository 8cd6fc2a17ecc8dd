package logger

import (
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

const redacted = "[REDACTED]"

var sensitiveKeys = []string{
	"password",
	"passwd",
	"token",
	"secret",
	"authorization",
	"cookie",
	"apikey",
	"api_key",
	"totp",
}

var emailPattern = regexp.MustCompile(`([A-Za-z0-9._%+\-])[A-Za-z0-9._%+\-]*@([A-Za-z0-9.\-]+\.[A-Za-z]{2,})`)

// MaskingCore scrubs personal data from fields before they reach the
// wrapped core.
type MaskingCore struct {
	zapcore.Core
}

func NewMaskingCore(core zapcore.Core) zapcore.Core {
	return &MaskingCore{Core: core}
}

func (c *MaskingCore) With(fields []zapcore.Field) zapcore.Core {
	return &MaskingCore{Core: c.Core.With(MaskFields(fields))}
}

func (c *MaskingCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *MaskingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	entry.Message = MaskEmail(entry.Message)
	return c.Core.Write(entry, MaskFields(fields))
}

func MaskFields(fields []zapcore.Field) []zapcore.Field {
	masked := make([]zapcore.Field, len(fields))

	for i, field := range fields {
		masked[i] = maskField(field)
	}

	return masked
}

func maskField(field zapcore.Field) zapcore.Field {
	if IsSensitiveKey(field.Key) {
		return zapcore.Field{Key: field.Key, Type: zapcore.StringType, String: redacted}
	}

	switch field.Type {
	case zapcore.StringType:
		field.String = MaskEmail(field.String)
	case zapcore.ReflectType:
		if values, ok := field.Interface.(map[string]interface{}); ok {
			field.Interface = maskMap(values)
		}
	}

	return field
}

func maskMap(values map[string]interface{}) map[string]interface{} {
	masked := make(map[string]interface{}, len(values))

	for key, value := range values {
		switch typed := value.(type) {
		case string:
			if IsSensitiveKey(key) {
				masked[key] = redacted
			} else {
				masked[key] = MaskEmail(typed)
			}
		case map[string]interface{}:
			masked[key] = maskMap(typed)
		default:
			if IsSensitiveKey(key) {
				masked[key] = redacted
			} else {
				masked[key] = value
			}
		}
	}

	return masked
}

func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}

// MaskEmail keeps the first character of the local part and the domain:
// jane.doe@example.com becomes j***@example.com.
func MaskEmail(value string) string {
	if !strings.Contains(value, "@") {
		return value
	}
	return emailPattern.ReplaceAllString(value, "$1***@$2")
}
