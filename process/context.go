package process

import (
	"fmt"
	"sync"
)

// Context key names populated at item start.
const (
	KeyReference      = "reference"
	KeyNationalID     = "national_id"
	KeyURL            = "url"
	KeyClinicName     = "clinic_name"
	KeyClinicAddress  = "clinic_address"
	KeyClinicPhone    = "clinic_phone_number"
	KeyClinicProvider = "clinic_provider_number"
	KeyConsent        = "consent"
	KeyWorkItemID     = "work_item_id"

	// set mid-pipeline
	KeyDocumentPath = "document_path"
)

// MissingContextError is returned by Require for an absent required key.
type MissingContextError struct {
	Key string
}

func (e *MissingContextError) Error() string {
	return fmt.Sprintf("required context key missing: %s", e.Key)
}

// Context is the run-scoped key/value store for one item's processing.
// It is created at item start, populated immediately, and discarded at
// item end. A Context is safe for concurrent use, though the pipeline
// processes one item at a time; each item gets its own Context so no two
// items observe each other's values.
type Context struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// NewContext creates an empty run context.
func NewContext() *Context {
	return &Context{values: make(map[string]interface{})}
}

// Set merges values into the context. Existing keys are overwritten,
// other keys are untouched.
func (c *Context) Set(values map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range values {
		c.values[k] = v
	}
}

// Get returns the value for key, or nil when absent. It never fails.
func (c *Context) Get(key string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

// GetDefault returns the value for key, or def when absent.
func (c *Context) GetDefault(key string, def interface{}) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[key]; ok {
		return v
	}
	return def
}

// GetString returns the value for key as a string, or "" when absent or
// not a string.
func (c *Context) GetString(key string) string {
	s, _ := c.Get(key).(string)
	return s
}

// GetBool returns the value for key as a bool, or false when absent or
// not a bool.
func (c *Context) GetBool(key string) bool {
	b, _ := c.Get(key).(bool)
	return b
}

// Require returns the value for key or a MissingContextError when the key
// was never set. Absence of a required key is a precondition failure,
// distinct from an optional key defaulting.
func (c *Context) Require(key string) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	if !ok {
		return nil, &MissingContextError{Key: key}
	}
	return v, nil
}

// RequireString is Require for string-typed values.
func (c *Context) RequireString(key string) (string, error) {
	v, err := c.Require(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("context key %s: expected string, got %T", key, v)
	}
	return s, nil
}

// Scope applies overrides and returns a restore function that reverts
// them to the enclosing values. Callers defer the restore so the
// overrides are removed on every exit path, including panics:
//
//	defer ctx.Scope(map[string]interface{}{"url": testURL})()
//
// Keys absent before the override are deleted again on restore.
func (c *Context) Scope(overrides map[string]interface{}) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	prior := make(map[string]interface{}, len(overrides))
	absent := make([]string, 0, len(overrides))
	for k, v := range overrides {
		if old, ok := c.values[k]; ok {
			prior[k] = old
		} else {
			absent = append(absent, k)
		}
		c.values[k] = v
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for k, v := range prior {
				c.values[k] = v
			}
			for _, k := range absent {
				delete(c.values, k)
			}
		})
	}
}
