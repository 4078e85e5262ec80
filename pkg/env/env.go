// Package env provides the build variable store shared by all pipeline stages
package env

import (
	"os"
	"sort"
	"strings"
)

// Well-known build variables
const (
	JobName        = "JOB_NAME"
	BuildNumber    = "BUILD_NUMBER"
	BuildID        = "BUILD_ID"
	GitCommit      = "GIT_COMMIT"
	GitCommitShort = "GIT_COMMIT_SHORT"
	BranchName     = "BRANCH_NAME"
	GitAuthor      = "GIT_AUTHOR"
	Workspace      = "WORKSPACE"
	DeployProfile  = "DEPLOY_PROFILE"
	DeployTarget   = "DEPLOY_TARGET"
	BuildStatus    = "BUILD_STATUS"
)

// Unknown is written in place of build metadata that could not be resolved
const Unknown = "unknown"

// Context is a mutable key-value store of build variables. A run owns one
// Context and threads it through every stage in order, so it is not safe
// for concurrent use.
type Context struct {
	vars map[string]string
}

// New creates an empty context
func New() *Context {
	return &Context{vars: make(map[string]string)}
}

// FromMap creates a context seeded with a copy of vars
func FromMap(vars map[string]string) *Context {
	c := New()
	c.Merge(vars)
	return c
}

// Get returns the value of name, or "" when it is not set
func (c *Context) Get(name string) string {
	return c.vars[name]
}

// GetOr returns the value of name, or def when it is not set
func (c *Context) GetOr(name, def string) string {
	if v, ok := c.vars[name]; ok {
		return v
	}
	return def
}

// Lookup returns the value of name and whether it was set
func (c *Context) Lookup(name string) (string, bool) {
	v, ok := c.vars[name]
	return v, ok
}

// Set stores value under name. The last write wins.
func (c *Context) Set(name, value string) {
	c.vars[name] = value
}

// SetDefault stores value only when name is not set yet
func (c *Context) SetDefault(name, value string) {
	if _, ok := c.vars[name]; !ok {
		c.vars[name] = value
	}
}

// Unset removes name
func (c *Context) Unset(name string) {
	delete(c.vars, name)
}

// Merge copies every entry of vars into the context
func (c *Context) Merge(vars map[string]string) {
	for k, v := range vars {
		c.vars[k] = v
	}
}

// Len returns the number of variables
func (c *Context) Len() int {
	return len(c.vars)
}

// Keys returns the variable names in sorted order
func (c *Context) Keys() []string {
	return sortedKeys(c.vars)
}

// Environ returns the variables as sorted NAME=value pairs for child processes
func (c *Context) Environ() []string {
	return environ(c.vars)
}

// Expand renders $NAME, ${NAME} and ${NAME:-default} references
func (c *Context) Expand(template string) string {
	return expand(template, c.vars)
}

// Snapshot takes an immutable copy of the current variables
func (c *Context) Snapshot() Snapshot {
	vars := make(map[string]string, len(c.vars))
	for k, v := range c.vars {
		vars[k] = v
	}
	return Snapshot{vars: vars}
}

// Snapshot is a read-only copy of a Context taken at one point in time
type Snapshot struct {
	vars map[string]string
}

// Get returns the value of name, or "" when it is not set
func (s Snapshot) Get(name string) string {
	return s.vars[name]
}

// GetOr returns the value of name, or def when it is not set
func (s Snapshot) GetOr(name, def string) string {
	if v, ok := s.vars[name]; ok {
		return v
	}
	return def
}

// Lookup returns the value of name and whether it was set
func (s Snapshot) Lookup(name string) (string, bool) {
	v, ok := s.vars[name]
	return v, ok
}

// Len returns the number of variables
func (s Snapshot) Len() int {
	return len(s.vars)
}

// Keys returns the variable names in sorted order
func (s Snapshot) Keys() []string {
	return sortedKeys(s.vars)
}

// Map returns a copy of the variables
func (s Snapshot) Map() map[string]string {
	out := make(map[string]string, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// Environ returns the variables as sorted NAME=value pairs
func (s Snapshot) Environ() []string {
	return environ(s.vars)
}

// Expand renders $NAME, ${NAME} and ${NAME:-default} references
func (s Snapshot) Expand(template string) string {
	return expand(template, s.vars)
}

func sortedKeys(vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func environ(vars map[string]string) []string {
	keys := sortedKeys(vars)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+vars[k])
	}
	return out
}

// expand never fails: undefined references render as "" or their default
func expand(template string, vars map[string]string) string {
	return os.Expand(template, func(ref string) string {
		name, def, hasDefault := strings.Cut(ref, ":-")
		if v, ok := vars[name]; ok && (v != "" || !hasDefault) {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
}
