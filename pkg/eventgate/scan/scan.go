package scan

import (
	"log/slog"
	"reflect"
	"strings"
	"unsafe"

	"github.com/randalmurphal/eventgate/pkg/eventgate/aggregate"
	"github.com/randalmurphal/eventgate/pkg/eventgate/observability"
)

// DefaultMaxDepth bounds how many container or field hops the scanner
// follows from a root. The bound applies to values being searched, not to
// entities: a value at the last searched depth still yields the entities it
// holds directly, so an entity can sit one hop past the budget.
const DefaultMaxDepth = 10

// DefaultExcludedPackages lists package path prefixes whose struct types are
// never descended into. Entities are still recognised in these packages.
var DefaultExcludedPackages = []string{
	"sync",
	"reflect",
	"runtime",
	"unsafe",
	"context",
	"time",
	"net",
	"database/sql",
	"log/slog",
	"io",
	"os",
	"go.opentelemetry.io",
	"github.com/nats-io",
	"github.com/prometheus",
	"modernc.org",
	"google.golang.org",
	"github.com/randalmurphal/eventgate/pkg/eventgate/event",
	"github.com/randalmurphal/eventgate/pkg/eventgate/tracking",
	"github.com/randalmurphal/eventgate/pkg/eventgate/txn",
	"github.com/randalmurphal/eventgate/pkg/eventgate/dispatch",
}

var entityType = reflect.TypeFor[aggregate.Entity]()

// Scanner discovers entities reachable from a set of roots.
// A Scanner is immutable after construction and safe for concurrent use.
type Scanner struct {
	maxDepth int
	excluded []string
	logger   *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithMaxDepth sets the depth budget. Negative values are treated as zero.
func WithMaxDepth(depth int) Option {
	return func(s *Scanner) {
		s.maxDepth = max(depth, 0)
	}
}

// WithExcludedPackages adds package path prefixes to the exclusion list.
func WithExcludedPackages(prefixes ...string) Option {
	return func(s *Scanner) {
		s.excluded = append(s.excluded, prefixes...)
	}
}

// WithoutDefaultExclusions clears the exclusion list built so far.
// Apply before WithExcludedPackages to supply a list of your own.
func WithoutDefaultExclusions() Option {
	return func(s *Scanner) {
		s.excluded = nil
	}
}

// WithLogger sets the logger for skipped fields. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// New creates a Scanner.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		maxDepth: DefaultMaxDepth,
		excluded: append([]string(nil), DefaultExcludedPackages...),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// MaxDepth returns the configured depth budget.
func (s *Scanner) MaxDepth() int {
	return s.maxDepth
}

var defaultScanner = New()

// Scan walks roots with the default scanner.
func Scan(roots ...any) *aggregate.Set {
	return defaultScanner.Scan(roots...)
}

// Shallow collects roots that are themselves entities.
func Shallow(roots ...any) *aggregate.Set {
	return defaultScanner.Shallow(roots...)
}

// Shallow collects roots that are themselves entities, without recursion.
func (s *Scanner) Shallow(roots ...any) *aggregate.Set {
	found := aggregate.NewSet()
	for _, root := range roots {
		if e, ok := root.(aggregate.Entity); ok {
			found.Add(e)
		}
	}
	return found
}

// Scan walks every root and returns the entities it reaches.
//
// Entities are graph boundaries: their fields are never visited. Pointers
// and interfaces are followed without spending depth; each slice, array or
// map element and each struct field costs one level. Cycles are cut by
// remembering every pointer, map and slice already walked.
func (s *Scanner) Scan(roots ...any) *aggregate.Set {
	w := &walker{
		scanner: s,
		found:   aggregate.NewSet(),
		visited: make(map[visitKey]struct{}),
	}
	for _, root := range roots {
		w.walk(reflect.ValueOf(root), 0)
	}
	return w.found
}

// MightContain reports whether v could hold an entity at all.
// It lets callers skip a scan for plain values.
func (s *Scanner) MightContain(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(aggregate.Entity); ok {
		return true
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return !scalar(t.Elem().Kind())
	case reflect.Map:
		return !scalar(t.Key().Kind()) || !scalar(t.Elem().Kind())
	case reflect.Struct:
		return !s.isExcluded(t)
	}
	return false
}

type visitKey struct {
	typ reflect.Type
	ptr uintptr
	n   int
}

type walker struct {
	scanner *Scanner
	found   *aggregate.Set
	visited map[visitKey]struct{}
}

func (w *walker) walk(v reflect.Value, depth int) {
	if !v.IsValid() {
		return
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return
		}
		w.walk(v.Elem(), depth)
		return
	case reflect.Pointer:
		if v.IsNil() {
			return
		}
		if w.collect(v) {
			return
		}
		key := visitKey{typ: v.Type(), ptr: v.Pointer()}
		if _, seen := w.visited[key]; seen {
			return
		}
		w.visited[key] = struct{}{}
		w.walk(v.Elem(), depth)
		return
	}

	if w.collect(v) {
		return
	}
	if depth > w.scanner.maxDepth {
		return
	}

	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() || scalar(v.Type().Elem().Kind()) {
			return
		}
		key := visitKey{typ: v.Type(), ptr: v.Pointer(), n: v.Len()}
		if _, seen := w.visited[key]; seen {
			return
		}
		w.visited[key] = struct{}{}
		for i := range v.Len() {
			w.walk(v.Index(i), depth+1)
		}

	case reflect.Array:
		if scalar(v.Type().Elem().Kind()) {
			return
		}
		for i := range v.Len() {
			w.walk(v.Index(i), depth+1)
		}

	case reflect.Map:
		if v.IsNil() {
			return
		}
		key := visitKey{typ: v.Type(), ptr: v.Pointer()}
		if _, seen := w.visited[key]; seen {
			return
		}
		w.visited[key] = struct{}{}
		keysScalar := scalar(v.Type().Key().Kind())
		valuesScalar := scalar(v.Type().Elem().Kind())
		if keysScalar && valuesScalar {
			return
		}
		iter := v.MapRange()
		for iter.Next() {
			if !keysScalar {
				w.walk(iter.Key(), depth+1)
			}
			if !valuesScalar {
				w.walk(iter.Value(), depth+1)
			}
		}

	case reflect.Struct:
		if w.scanner.isExcluded(v.Type()) {
			return
		}
		w.walkFields(v, depth)
	}
}

func (w *walker) walkFields(v reflect.Value, depth int) {
	t := v.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		if sf.Name == "_" || scalar(sf.Type.Kind()) {
			continue
		}
		w.walkField(v, i, sf, depth)
	}
}

// walkField reads one field, logging and skipping anything that panics.
func (w *walker) walkField(v reflect.Value, i int, sf reflect.StructField, depth int) {
	defer func() {
		if r := recover(); r != nil {
			observability.LogScanSkip(w.scanner.logger, v.Type().String(), sf.Name, r)
		}
	}()

	f := v.Field(i)
	if !sf.IsExported() && f.CanAddr() {
		f = reflect.NewAt(f.Type(), unsafe.Pointer(f.UnsafeAddr())).Elem()
	}
	w.walk(f, depth+1)
}

// collect adds v to the result if it is an entity and reports whether it was.
func (w *walker) collect(v reflect.Value) bool {
	t := v.Type()
	switch {
	case t.Implements(entityType):
		v, ok := accessible(v)
		if !ok {
			return w.unreadable(v, "unexported entity value")
		}
		if e, ok := v.Interface().(aggregate.Entity); ok {
			w.found.Add(e)
		}
		return true

	case t.Kind() != reflect.Pointer && t.Kind() != reflect.Interface && reflect.PointerTo(t).Implements(entityType):
		if !v.CanAddr() {
			// A copy would not share the original's buffer.
			return w.unreadable(v, "entity held by value outside addressable storage")
		}
		p := reflect.NewAt(t, unsafe.Pointer(v.UnsafeAddr()))
		if e, ok := p.Interface().(aggregate.Entity); ok {
			w.found.Add(e)
		}
		return true
	}
	return false
}

// accessible returns an equivalent of v that can be converted back to an
// interface, clearing the read-only flag left by unexported fields.
func accessible(v reflect.Value) (reflect.Value, bool) {
	if v.CanInterface() {
		return v, true
	}
	if v.CanAddr() {
		return reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem(), true
	}
	if v.Kind() == reflect.Pointer {
		p := reflect.NewAt(v.Type().Elem(), v.UnsafePointer())
		if p.Type() == v.Type() {
			return p, true
		}
	}
	return v, false
}

func (w *walker) unreadable(v reflect.Value, reason string) bool {
	observability.LogScanSkip(w.scanner.logger, v.Type().String(), "", reason)
	return true
}

func (s *Scanner) isExcluded(t reflect.Type) bool {
	pkg := t.PkgPath()
	if pkg == "" {
		return false
	}
	for _, prefix := range s.excluded {
		if pkg == prefix || strings.HasPrefix(pkg, prefix+"/") {
			return true
		}
	}
	return false
}

// scalar reports kinds that can never reach an entity. Func, chan and unsafe
// pointer values are opaque to the scanner, so they count as scalar here.
func scalar(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.String, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	}
	return false
}
