// Package memstore is an in-memory store.Database used by tests and local runs.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

// RPCFunc implements a named server-side function.
type RPCFunc func(ctx context.Context, db store.Database, params store.Record) (any, error)

type failure struct {
	err       error
	remaining int
}

// Store keeps tables as ordered slices of records.
type Store struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	tables   map[string][]store.Record
	rpcs     map[string]RPCFunc
	failures map[string]*failure
	now      func() time.Time
}

// New returns an empty Store with the built-in functions registered.
func New() *Store {
	s := &Store{
		tables:   make(map[string][]store.Record),
		rpcs:     make(map[string]RPCFunc),
		failures: make(map[string]*failure),
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.rpcs["next_document_sequence"] = s.nextDocumentSequence
	s.rpcs["adjust_product_stock"] = s.adjustProductStock
	return s
}

// Handle registers or replaces an RPC implementation.
func (s *Store) Handle(name string, fn RPCFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rpcs[name] = fn
}

// Fail makes the next `times` calls of op on target return err; times <= 0 fails forever.
// target is a table name, or a function name when op is "rpc".
func (s *Store) Fail(op, target string, err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op+":"+target] = &failure{err: err, remaining: times}
}

// Recover clears every injected failure.
func (s *Store) Recover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]*failure)
}

// Seed inserts rows as-is, bypassing failure injection.
func (s *Store) Seed(table string, rows ...store.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		rec := normalize(row)
		if _, ok := rec["id"]; !ok {
			rec["id"] = uuid.NewString()
		}
		s.tables[table] = append(s.tables[table], rec)
	}
}

// Rows returns a copy of every row in table.
func (s *Store) Rows(table string) []store.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Record, 0, len(s.tables[table]))
	for _, rec := range s.tables[table] {
		out = append(out, rec.Clone())
	}
	return out
}

func (s *Store) check(ctx context.Context, op, target string) error {
	if err := store.ContextError(ctx, op, target); err != nil {
		return err
	}
	f, ok := s.failures[op+":"+target]
	if !ok {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(s.failures, op+":"+target)
		}
	}
	var se *store.Error
	if errors.As(f.err, &se) {
		return f.err
	}
	return &store.Error{Kind: store.KindUnknown, Op: op, Table: target, Err: f.err}
}

// Select implements store.Database.
func (s *Store) Select(ctx context.Context, table string, filter store.Filter) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "select", table); err != nil {
		return nil, err
	}
	var out []store.Record
	for _, rec := range s.tables[table] {
		if matches(rec, filter) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// SelectOne implements store.Database.
func (s *Store) SelectOne(ctx context.Context, table, id string) (store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "select", table); err != nil {
		return nil, err
	}
	idx := s.indexOf(table, id)
	if idx < 0 {
		return nil, &store.Error{Kind: store.KindNotFound, Op: "select", Table: table}
	}
	return s.tables[table][idx].Clone(), nil
}

// Insert implements store.Database.
func (s *Store) Insert(ctx context.Context, table string, data store.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "insert", table); err != nil {
		return "", err
	}
	rec := normalize(data)
	id, _ := rec["id"].(string)
	if id == "" {
		id = uuid.NewString()
		rec["id"] = id
	}
	if s.indexOf(table, id) >= 0 {
		return "", &store.Error{Kind: store.KindUniqueViolation, Op: "insert", Table: table, Column: "id"}
	}
	if _, ok := rec["created_at"]; !ok {
		rec["created_at"] = s.now()
	}
	s.tables[table] = append(s.tables[table], rec)
	return id, nil
}

// Update implements store.Database.
func (s *Store) Update(ctx context.Context, table, id string, patch store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "update", table); err != nil {
		return err
	}
	idx := s.indexOf(table, id)
	if idx < 0 {
		return &store.Error{Kind: store.KindNotFound, Op: "update", Table: table}
	}
	for k, v := range normalize(patch) {
		s.tables[table][idx][k] = v
	}
	return nil
}

// Delete implements store.Database.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "delete", table); err != nil {
		return err
	}
	idx := s.indexOf(table, id)
	if idx < 0 {
		return &store.Error{Kind: store.KindNotFound, Op: "delete", Table: table}
	}
	rows := s.tables[table]
	s.tables[table] = append(rows[:idx:idx], rows[idx+1:]...)
	return nil
}

// RPC implements store.Database.
func (s *Store) RPC(ctx context.Context, name string, params store.Record) (any, error) {
	s.mu.Lock()
	if err := s.check(ctx, "rpc", name); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	fn, ok := s.rpcs[name]
	s.mu.Unlock()
	if !ok {
		return nil, &store.Error{Kind: store.KindNotFound, Op: "rpc", Table: name, Err: errors.New("function not registered")}
	}
	return fn(ctx, s, params)
}

// WithTx serialises transactions and restores a snapshot when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(store.Database) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	snapshot := s.snapshot()
	if err := fn(txStore{s}); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type txStore struct {
	*Store
}

// WithTx inside a transaction joins it.
func (t txStore) WithTx(ctx context.Context, fn func(store.Database) error) error {
	return fn(t)
}

func (s *Store) snapshot() map[string][]store.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]store.Record, len(s.tables))
	for table, rows := range s.tables {
		copied := make([]store.Record, len(rows))
		for i, rec := range rows {
			copied[i] = rec.Clone()
		}
		out[table] = copied
	}
	return out
}

func (s *Store) restore(snapshot map[string][]store.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = snapshot
}

func (s *Store) indexOf(table, id string) int {
	for i, rec := range s.tables[table] {
		if fmt.Sprint(rec["id"]) == id {
			return i
		}
	}
	return -1
}

func (s *Store) nextDocumentSequence(ctx context.Context, _ store.Database, params store.Record) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := store.Filter{
		"company_id":    params["company_id"],
		"document_type": params["document_type"],
		"year":          params["year"],
	}
	for _, rec := range s.tables["document_sequences"] {
		if matches(rec, key) {
			next := toInt64(rec["last_value"]) + 1
			rec["last_value"] = next
			return next, nil
		}
	}
	rec := store.Record{"id": uuid.NewString(), "last_value": int64(1)}
	for k, v := range key {
		rec[k] = v
	}
	s.tables["document_sequences"] = append(s.tables["document_sequences"], normalize(rec))
	return int64(1), nil
}

func (s *Store) adjustProductStock(ctx context.Context, _ store.Database, params store.Record) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprint(params["product_id"])
	idx := s.indexOf("products", id)
	if idx < 0 || fmt.Sprint(s.tables["products"][idx]["company_id"]) != fmt.Sprint(params["company_id"]) {
		return nil, &store.Error{Kind: store.KindNotFound, Op: "rpc", Table: "adjust_product_stock"}
	}
	delta, err := toDecimal(params["delta"])
	if err != nil {
		return nil, &store.Error{Kind: store.KindUnknown, Op: "rpc", Table: "adjust_product_stock", Err: err}
	}
	current, err := toDecimal(s.tables["products"][idx]["stock_quantity"])
	if err != nil {
		current = decimal.Zero
	}
	next := current.Add(delta)
	s.tables["products"][idx]["stock_quantity"] = next
	return next, nil
}

func matches(rec store.Record, filter store.Filter) bool {
	for k, want := range filter {
		got, ok := rec[k]
		want = deref(want)
		if want == nil {
			if ok && got != nil {
				return false
			}
			continue
		}
		if !ok || got == nil || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func normalize(rec store.Record) store.Record {
	out := make(store.Record, len(rec))
	for k, v := range rec {
		out[k] = deref(v)
	}
	return out
}

func deref(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer {
		return v
	}
	if rv.IsNil() {
		return nil
	}
	return rv.Elem().Interface()
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case string:
		return decimal.NewFromString(n)
	case int64:
		return decimal.NewFromInt(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case nil:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("memstore: cannot convert %T to decimal", v)
	}
}
