// Package store persists completed runs to Postgres. Writes are bulk: a run
// carries thousands of cycle and frame rows, inserted with COPY inside one
// transaction so a failed run never leaves partial rows behind.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/ethercrab-rs/latency-data/internal/meta"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	name TEXT PRIMARY KEY,
	slug TEXT NOT NULL,
	scenario TEXT NOT NULL,
	hostname TEXT NOT NULL,
	date TIMESTAMPTZ NOT NULL,
	nic TEXT NOT NULL,
	is_rt BOOLEAN NOT NULL,
	tuned_adm_profile TEXT NOT NULL,
	tx_usecs INTEGER NOT NULL,
	rx_usecs INTEGER NOT NULL,
	net_prio SMALLINT NOT NULL,
	task_prio SMALLINT NOT NULL,
	cycle_time_us INTEGER NOT NULL,
	propagation_time_ns BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS cycle_metadata (
	run_name TEXT NOT NULL REFERENCES runs (name) ON DELETE CASCADE,
	cycle INTEGER NOT NULL,
	processing_time_ns BIGINT NOT NULL,
	tick_wait_ns BIGINT NOT NULL,
	cycle_delta_ns BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS cycle_metadata_run_name ON cycle_metadata (run_name);

CREATE TABLE IF NOT EXISTS frames (
	run_name TEXT NOT NULL REFERENCES runs (name) ON DELETE CASCADE,
	frame_index SMALLINT NOT NULL,
	command TEXT NOT NULL,
	tx_time_ns BIGINT NOT NULL,
	rx_time_ns BIGINT NOT NULL,
	delta_ns BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS frames_run_name ON frames (run_name);
`

// Store is the persistence collaborator.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool and creates the tables if they don't exist.
func Connect(ctx context.Context, dbURL string) (*Store, error) {
	pool, err := pgxpool.Connect(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialising schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveRun writes a run record plus its cycle and frame rows atomically.
func (s *Store) SaveRun(ctx context.Context, run meta.RunMetadata, frames []meta.Frame) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (
			name, slug, scenario, hostname, date,
			nic, is_rt, tuned_adm_profile, tx_usecs, rx_usecs,
			net_prio, task_prio, cycle_time_us, propagation_time_ns
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		run.Name, run.Slug, run.Scenario, run.Hostname, run.Date,
		run.Settings.Nic, run.Settings.IsRT, run.Settings.TunedAdmProfile,
		run.Settings.TxUsecs, run.Settings.RxUsecs,
		int16(run.Settings.NetPrio), int16(run.Settings.TaskPrio),
		run.Settings.CycleTimeUs, run.NetworkPropagationTime.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.Name, err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"cycle_metadata"},
		[]string{"run_name", "cycle", "processing_time_ns", "tick_wait_ns", "cycle_delta_ns"},
		pgx.CopyFromSlice(len(run.Cycles), func(i int) ([]interface{}, error) {
			return cycleRow(run.Name, run.Cycles[i]), nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copying %d cycles for %s: %w", len(run.Cycles), run.Name, err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"frames"},
		[]string{"run_name", "frame_index", "command", "tx_time_ns", "rx_time_ns", "delta_ns"},
		pgx.CopyFromSlice(len(frames), func(i int) ([]interface{}, error) {
			return frameRow(run.Name, frames[i]), nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copying %d frames for %s: %w", len(frames), run.Name, err)
	}

	return tx.Commit(ctx)
}

func cycleRow(runName string, c meta.CycleMetadata) []interface{} {
	return []interface{}{
		runName,
		c.Cycle,
		c.ProcessingTime.Nanoseconds(),
		c.TickWait.Nanoseconds(),
		c.CycleDelta.Nanoseconds(),
	}
}

func frameRow(runName string, f meta.Frame) []interface{} {
	return []interface{}{
		runName,
		int16(f.Index),
		f.Command,
		f.TxTime.Nanoseconds(),
		f.RxTime.Nanoseconds(),
		f.Delta.Nanoseconds(),
	}
}

// LoadRun reads a run record and its rows back, for offline reporting.
func (s *Store) LoadRun(ctx context.Context, name string) (meta.RunMetadata, []meta.Frame, error) {
	var (
		run           meta.RunMetadata
		propagationNs int64
		netPrio       int16
		taskPrio      int16
	)

	err := s.pool.QueryRow(ctx,
		`SELECT name, slug, scenario, hostname, date,
			nic, is_rt, tuned_adm_profile, tx_usecs, rx_usecs,
			net_prio, task_prio, cycle_time_us, propagation_time_ns
		FROM runs WHERE name = $1`, name,
	).Scan(
		&run.Name, &run.Slug, &run.Scenario, &run.Hostname, &run.Date,
		&run.Settings.Nic, &run.Settings.IsRT, &run.Settings.TunedAdmProfile,
		&run.Settings.TxUsecs, &run.Settings.RxUsecs,
		&netPrio, &taskPrio, &run.Settings.CycleTimeUs, &propagationNs,
	)
	if err != nil {
		return meta.RunMetadata{}, nil, fmt.Errorf("loading run %s: %w", name, err)
	}

	run.Settings.Hostname = run.Hostname
	run.Settings.NetPrio = uint8(netPrio)
	run.Settings.TaskPrio = uint8(taskPrio)
	run.NetworkPropagationTime = time.Duration(propagationNs)

	run.Cycles, err = s.loadCycles(ctx, name)
	if err != nil {
		return meta.RunMetadata{}, nil, err
	}

	frames, err := s.loadFrames(ctx, name)
	if err != nil {
		return meta.RunMetadata{}, nil, err
	}

	return run, frames, nil
}

func (s *Store) loadCycles(ctx context.Context, name string) ([]meta.CycleMetadata, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cycle, processing_time_ns, tick_wait_ns, cycle_delta_ns
		FROM cycle_metadata WHERE run_name = $1 ORDER BY cycle`, name)
	if err != nil {
		return nil, fmt.Errorf("loading cycles for %s: %w", name, err)
	}
	defer rows.Close()

	var cycles []meta.CycleMetadata

	for rows.Next() {
		var c meta.CycleMetadata
		var processing, tickWait, delta int64

		if err := rows.Scan(&c.Cycle, &processing, &tickWait, &delta); err != nil {
			return nil, fmt.Errorf("scanning cycle for %s: %w", name, err)
		}

		c.ProcessingTime = time.Duration(processing)
		c.TickWait = time.Duration(tickWait)
		c.CycleDelta = time.Duration(delta)

		cycles = append(cycles, c)
	}

	return cycles, rows.Err()
}

func (s *Store) loadFrames(ctx context.Context, name string) ([]meta.Frame, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT frame_index, command, tx_time_ns, rx_time_ns, delta_ns
		FROM frames WHERE run_name = $1 ORDER BY tx_time_ns`, name)
	if err != nil {
		return nil, fmt.Errorf("loading frames for %s: %w", name, err)
	}
	defer rows.Close()

	var frames []meta.Frame

	for rows.Next() {
		var f meta.Frame
		var index int16
		var tx, rx, delta int64

		if err := rows.Scan(&index, &f.Command, &tx, &rx, &delta); err != nil {
			return nil, fmt.Errorf("scanning frame for %s: %w", name, err)
		}

		f.Index = uint8(index)
		f.TxTime = time.Duration(tx)
		f.RxTime = time.Duration(rx)
		f.Delta = time.Duration(delta)

		frames = append(frames, f)
	}

	return frames, rows.Err()
}
