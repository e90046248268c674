package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Domain helpers

func Component(name string) Field {
	return String("component", name)
}

func Epoch(e int64) Field {
	return Int64("epoch", e)
}

func State(s string) Field {
	return String("state", s)
}

func Tick(n uint64) Field {
	return Uint64("tick", n)
}

func Pid(pid int) Field {
	return Int("pid", pid)
}

func Helper(kind string) Field {
	return String("helper", kind)
}

func Client(id uint64) Field {
	return Uint64("client", id)
}

func Node(id string) Field {
	return String("node", id)
}

func Elapsed(d time.Duration) Field {
	return Duration("elapsed", d)
}
