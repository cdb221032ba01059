package logs

import (
	"time"

	"go.uber.org/zap"
)

func String(k, v string) zap.Field {
	return zap.String(k, v)
}

func Int(k string, v int) zap.Field {
	return zap.Int(k, v)
}

func Int64(k string, v int64) zap.Field {
	return zap.Int64(k, v)
}

func Bool(k string, v bool) zap.Field {
	return zap.Bool(k, v)
}

func ErrorInfo(v error) zap.Field {
	if v == nil {
		return zap.Skip()
	}
	return zap.Error(v)
}

func Duration(k string, v time.Duration) zap.Field {
	return zap.Duration(k, v)
}

// Truncate shortens long upstream payloads before they are logged.
func Truncate(k, v string, max int) zap.Field {
	if max > 0 && len(v) > max {
		v = v[:max] + "...(truncated)"
	}
	return zap.String(k, v)
}
