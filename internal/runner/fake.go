package runner

import (
	"strings"
	"sync"
)

// Fake is an in-memory Runner for tests. Responses are keyed by the joined
// argument list; the longest registered prefix wins.
type Fake struct {
	mu        sync.Mutex
	responses map[string]string
	hooks     map[string]func()
	calls     [][]string
	launchErr bool
}

func NewFake() *Fake {
	return &Fake{
		responses: make(map[string]string),
		hooks:     make(map[string]func()),
	}
}

// SetOutput registers the output returned for invocations whose arguments
// start with args.
func (f *Fake) SetOutput(out string, args ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[strings.Join(args, " ")] = out
}

// OnRun registers fn to be called (outside the lock) whenever an invocation
// starts with args. Used to mutate canned output as a side effect.
func (f *Fake) OnRun(fn func(), args ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[strings.Join(args, " ")] = fn
}

// SetLaunchFailure makes every subsequent Run report a launch failure.
func (f *Fake) SetLaunchFailure(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launchErr = fail
}

func (f *Fake) Run(path string, args ...string) (string, bool) {
	key := strings.Join(args, " ")

	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	if f.launchErr {
		f.mu.Unlock()
		return "", false
	}
	out := longestPrefix(f.responses, key)
	var hook func()
	if h, ok := lookupPrefix(f.hooks, key); ok {
		hook = h
	}
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, true
}

// Calls returns a copy of every argument list seen so far.
func (f *Fake) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallStrings returns Calls joined with spaces, convenient for assertions.
func (f *Fake) CallStrings() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = strings.Join(c, " ")
	}
	return out
}

// Reset forgets recorded calls.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func longestPrefix(m map[string]string, key string) string {
	best, out := -1, ""
	for k, v := range m {
		if matchesPrefix(key, k) && len(k) > best {
			best, out = len(k), v
		}
	}
	return out
}

func lookupPrefix(m map[string]func(), key string) (func(), bool) {
	best := -1
	var out func()
	for k, v := range m {
		if matchesPrefix(key, k) && len(k) > best {
			best, out = len(k), v
		}
	}
	return out, best >= 0
}

// matchesPrefix reports whether prefix matches key on word boundaries.
func matchesPrefix(key, prefix string) bool {
	if prefix == "" || key == prefix {
		return true
	}
	return strings.HasPrefix(key, prefix+" ")
}
