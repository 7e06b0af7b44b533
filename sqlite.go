// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-kit/kit/log"
	kitprom "github.com/go-kit/kit/metrics/prometheus"
	"github.com/pkg/errors"
	stdprom "github.com/prometheus/client_golang/prometheus"

	"github.com/moov-io/points/pkg/ledger"
)

var (
	// migrations holds all our SQL migrations to be done (in order)
	migrations = []string{
		`create table if not exists accounts(identity blob primary key, account_number integer not null unique, record blob not null, updated_at timestamp);`,
		`create table if not exists counters(name text primary key, value integer not null);`,
		`insert or ignore into counters(name, value) values ('account_number', 0);`,
	}

	// Metrics
	connections = kitprom.NewGaugeFrom(stdprom.GaugeOpts{
		Name: "sqlite_connections",
		Help: "How many sqlite connections and what status they're in.",
	}, []string{"state"})
)

const counterAccountNumber = "account_number"

type promMetricCollector struct {
	interval time.Duration
}

func (p promMetricCollector) run(db *sql.DB, done <-chan struct{}) {
	if db == nil {
		return
	}

	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		stats := db.Stats()
		connections.With("state", "idle").Set(float64(stats.Idle))
		connections.With("state", "inuse").Set(float64(stats.InUse))
		connections.With("state", "open").Set(float64(stats.OpenConnections))

		select {
		case <-done:
			return
		case <-t.C:
		}
	}
}

func getSqlitePath(path string) string {
	if path == "" || strings.Contains(path, "..") {
		// set default if empty or trying to escape
		// don't filepath.ABS to avoid full-fs reads
		path = "points.db"
	}
	return path
}

// migrate runs our database migrations (defined at the top of this file)
// over a sqlite database it creates first.
//
// https://github.com/mattn/go-sqlite3/blob/master/_example/simple/simple.go
func migrate(logger log.Logger, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		err = fmt.Errorf("problem opening sqlite3 file: %v", err)
		logger.Log("sqlite", err)
		return nil, err
	}
	// One connection serializes every ledger transaction and keeps
	// ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)

	logger.Log("sqlite", fmt.Sprintf("migrating %s", path))
	for i := range migrations {
		row := migrations[i]
		res, err := db.Exec(row)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("migration #%d [%s...] had problem: %v", i, row[:40], err)
		}
		n, err := res.RowsAffected()
		if err == nil {
			logger.Log("sqlite", fmt.Sprintf("migration #%d [%s...] changed %d rows", i, row[:40], n))
		}
	}
	logger.Log("sqlite", "finished migrations")

	return db, nil
}

// sqliteAccountStore is the authoritative ledger.Store. Each Update is one
// SQL transaction, and the account number counter is a row updated inside it.
type sqliteAccountStore struct {
	db   *sql.DB
	done chan struct{}
}

func newSqliteAccountStore(logger log.Logger, path string) (*sqliteAccountStore, error) {
	db, err := migrate(logger, getSqlitePath(path))
	if err != nil {
		return nil, err
	}
	s := &sqliteAccountStore{
		db:   db,
		done: make(chan struct{}),
	}
	go promMetricCollector{interval: 10 * time.Second}.run(db, s.done)
	return s, nil
}

func (s *sqliteAccountStore) Close() error {
	close(s.done)
	return s.db.Close()
}

func (s *sqliteAccountStore) Get(id ledger.Identity) (*ledger.Account, error) {
	return getSqliteAccount(s.db.QueryRow, id)
}

func (s *sqliteAccountStore) Create(id ledger.Identity) (*ledger.Account, error) {
	var out *ledger.Account
	err := s.Update([]ledger.Identity{id}, func(tx ledger.Txn) error {
		acct, err := tx.Create(id)
		out = acct
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *sqliteAccountStore) Update(ids []ledger.Identity, fn func(tx ledger.Txn) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "sqlite: begin")
	}
	if err := fn(&sqliteTxn{tx: tx, ids: ids}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "sqlite: commit")
	}
	return nil
}

func getSqliteAccount(query func(string, ...interface{}) *sql.Row, id ledger.Identity) (*ledger.Account, error) {
	var record []byte
	err := query(`select record from accounts where identity = ?`, id[:]).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite: reading account %s", id)
	}
	acct, err := ledger.DecodeAccount(record)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite: decoding account %s", id)
	}
	return acct, nil
}

type sqliteTxn struct {
	tx  *sql.Tx
	ids []ledger.Identity
}

func (t *sqliteTxn) check(id ledger.Identity) error {
	if !ledger.ContainsIdentity(t.ids, id) {
		return fmt.Errorf("sqlite: identity %s not locked by this update", id)
	}
	return nil
}

func (t *sqliteTxn) Get(id ledger.Identity) (*ledger.Account, error) {
	if err := t.check(id); err != nil {
		return nil, err
	}
	return getSqliteAccount(t.tx.QueryRow, id)
}

// nextAccountNumber bumps the counter row inside the open transaction.
func (t *sqliteTxn) nextAccountNumber() (uint32, error) {
	_, err := t.tx.Exec(`update counters set value = value + 1 where name = ?`, counterAccountNumber)
	if err != nil {
		return 0, errors.Wrap(err, "sqlite: incrementing account number")
	}
	var n int64
	err = t.tx.QueryRow(`select value from counters where name = ?`, counterAccountNumber).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "sqlite: reading account number")
	}
	return uint32(n), nil
}

func (t *sqliteTxn) Create(id ledger.Identity) (*ledger.Account, error) {
	if err := t.check(id); err != nil {
		return nil, err
	}
	switch _, err := getSqliteAccount(t.tx.QueryRow, id); {
	case err == nil:
		return nil, ledger.ErrAlreadyExists
	case err != ledger.ErrNotFound:
		return nil, err
	}

	n, err := t.nextAccountNumber()
	if err != nil {
		return nil, err
	}
	acct := &ledger.Account{Identity: id, Number: n}
	if err := t.write(acct); err != nil {
		return nil, err
	}
	return acct, nil
}

func (t *sqliteTxn) Put(acct *ledger.Account) error {
	if err := t.check(acct.Identity); err != nil {
		return err
	}
	if acct.Number == 0 {
		rec := *acct
		switch cur, err := getSqliteAccount(t.tx.QueryRow, acct.Identity); {
		case err == nil:
			rec.Number = cur.Number
		case err == ledger.ErrNotFound:
			if rec.Number, err = t.nextAccountNumber(); err != nil {
				return err
			}
		default:
			return err
		}
		return t.write(&rec)
	}
	_, err := t.tx.Exec(`update counters set value = max(value, ?) where name = ?`, int64(acct.Number), counterAccountNumber)
	if err != nil {
		return errors.Wrap(err, "sqlite: raising account number")
	}
	return t.write(acct)
}

func (t *sqliteTxn) write(acct *ledger.Account) error {
	record, err := acct.MarshalBinary()
	if err != nil {
		return err
	}
	query := `insert into accounts(identity, account_number, record, updated_at) values (?, ?, ?, ?)
on conflict(identity) do update set account_number = excluded.account_number, record = excluded.record, updated_at = excluded.updated_at;`
	_, err = t.tx.Exec(query, acct.Identity[:], int64(acct.Number), record, time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "sqlite: writing account %s", acct.Identity)
	}
	return nil
}

// ForEach calls fn for every stored account in account number order.
func (s *sqliteAccountStore) ForEach(fn func(acct *ledger.Account) error) error {
	rows, err := s.db.Query(`select record from accounts order by account_number`)
	if err != nil {
		return errors.Wrap(err, "sqlite: listing accounts")
	}
	var accounts []*ledger.Account
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			rows.Close()
			return errors.Wrap(err, "sqlite: listing accounts")
		}
		acct, err := ledger.DecodeAccount(record)
		if err != nil {
			rows.Close()
			return errors.Wrap(err, "sqlite: decoding account")
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "sqlite: listing accounts")
	}

	// fn runs after the rows are released, the store has a single connection
	for _, acct := range accounts {
		if err := fn(acct); err != nil {
			return err
		}
	}
	return nil
}
