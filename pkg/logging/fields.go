package logging

import "time"

// String creates a string field
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an int field
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 creates an int64 field
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Float64 creates a float64 field
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

// Bool creates a bool field
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Err creates an "error" field
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration creates a field holding a duration in human-readable form
func Duration(key string, d time.Duration) Field { return Field{Key: key, Value: d.String()} }

// Component tags entries with the emitting component name
func Component(name string) Field { return Field{Key: "component", Value: name} }

// Database tags entries with a database name
func Database(name string) Field { return Field{Key: "db", Value: name} }

// Table tags entries with a table name
func Table(name string) Field { return Field{Key: "table", Value: name} }

// Node tags entries with a node id
func Node(id string) Field { return Field{Key: "node", Value: id} }
