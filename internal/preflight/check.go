package preflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status by name.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// ScopeRoot is a scope's name and the directory its collector walks.
type ScopeRoot struct {
	Name string
	Root string
}

// Check is a caller-supplied check. Run returns a message on success.
type Check struct {
	Name     string
	Required bool
	Run      func(ctx context.Context) (string, error)
}

// Target is what RunAll checks.
type Target struct {
	DataDir string
	Scopes  []ScopeRoot
	Checks  []Check
}

// Checker performs preflight validation checks.
type Checker struct {
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check against target. Caller checks run last, in
// order, and stop early if ctx is cancelled.
func (c *Checker) RunAll(ctx context.Context, target Target) []CheckResult {
	var results []CheckResult

	results = append(results, c.CheckDiskSpace(target.DataDir))
	results = append(results, c.CheckWritePermissions(target.DataDir))
	results = append(results, c.CheckFileDescriptors())

	for _, s := range target.Scopes {
		results = append(results, c.CheckScopeRoot(s))
	}

	for _, p := range target.Checks {
		if ctx.Err() != nil {
			results = append(results, CheckResult{
				Name:     p.Name,
				Status:   StatusFail,
				Message:  "skipped: " + ctx.Err().Error(),
				Required: p.Required,
			})
			continue
		}
		results = append(results, c.RunCheck(ctx, p))
	}

	return results
}

// RunCheck runs a single caller check. A failing optional one is a warning.
func (c *Checker) RunCheck(ctx context.Context, p Check) CheckResult {
	result := CheckResult{
		Name:     p.Name,
		Required: p.Required,
	}

	msg, err := p.Run(ctx)
	if err != nil {
		result.Status = StatusFail
		if !p.Required {
			result.Status = StatusWarn
		}
		result.Message = err.Error()
		var u interface{ Unwrap() error }
		if errors.As(err, &u) && u.Unwrap() != nil {
			result.Details = u.Unwrap().Error()
		}
		return result
	}

	result.Status = StatusPass
	result.Message = msg
	return result
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "amanindex preflight")
	_, _ = fmt.Fprintln(c.output, "===================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var warnings, errs []string
	for _, r := range results {
		if r.IsCritical() {
			errs = append(errs, r.Name+": "+r.Message)
		} else if r.Status != StatusPass {
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	if len(errs) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d error(s):\n", len(errs))
		for _, e := range errs {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", e)
		}
	}

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d warning(s):\n", len(warnings))
		for _, w := range warnings {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", w)
		}
	}
}

// CheckWritePermissions checks that the data directory, or the closest
// existing directory above it, accepts new files.
func (c *Checker) CheckWritePermissions(dataDir string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	dir, err := existingAncestor(dataDir)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	f, err := os.CreateTemp(dir, ".amanindex-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = dir
	return result
}

// CheckScopeRoot checks that a scope's root is an existing directory.
func (c *Checker) CheckScopeRoot(s ScopeRoot) CheckResult {
	result := CheckResult{
		Name:     "scope_root:" + s.Name,
		Required: true,
	}

	info, err := os.Stat(s.Root)
	switch {
	case err != nil:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s: %v", s.Root, errors.Unwrap(err))
		if os.IsNotExist(err) {
			result.Message = s.Root + " does not exist"
		}
		result.Details = "Fix the scope's root in .amanindex.yaml"
	case !info.IsDir():
		result.Status = StatusFail
		result.Message = s.Root + " is not a directory"
	default:
		result.Status = StatusPass
		result.Message = s.Root
	}
	return result
}

// existingAncestor returns path or the nearest parent of it that exists.
func existingAncestor(path string) (string, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		info, err := os.Stat(dir)
		if err == nil {
			if !info.IsDir() {
				return "", fmt.Errorf("%s is not a directory", dir)
			}
			return dir, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing directory above %s", path)
		}
		dir = parent
	}
}
