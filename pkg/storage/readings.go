package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/protocol"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS readings (
		unit_id INTEGER NOT NULL,
		class TEXT NOT NULL,
		sensor TEXT NOT NULL,
		value INTEGER NOT NULL,
		decimal_shift INTEGER NOT NULL,
		scaled DOUBLE NOT NULL,
		received_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS readings_unit_sensor ON readings (unit_id, sensor);
`

// Record is one stored reading with its value rescaled to natural units.
type Record struct {
	Source  entities.UnitIdentity
	Reading entities.SensorReading
	Scaled  float64
}

// ReadingStore logs every reading the coordinator receives.
type ReadingStore struct {
	db  *sql.DB
	log *logrus.Entry
}

func NewReadingStore(path string, log *logrus.Entry) (*ReadingStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	// sqlite has a single writer and ":memory:" is per connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create readings table")
	}
	return &ReadingStore{db: db, log: log}, nil
}

func (s *ReadingStore) Deliver(source entities.UnitIdentity, readings []entities.SensorReading) error {
	if len(readings) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO readings (unit_id, class, sensor, value, decimal_shift, scaled, received_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	for _, r := range readings {
		scaled := protocol.IntToFloat(r.Value, r.DecimalShift)
		if _, err := stmt.Exec(r.Unit, source.Class, string(rune(r.Sensor)), r.Value, r.DecimalShift, scaled, r.Timestamp.UnixNano()); err != nil {
			return errors.Wrapf(err, "insert %s reading of unit %d", r.Sensor, r.Unit)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	s.log.Debugf("stored %d readings from unit %d", len(readings), readings[0].Unit)
	return nil
}

// Latest returns the newest stored reading of each sensor of a unit,
// ordered by sensor code.
func (s *ReadingStore) Latest(ctx context.Context, unitID uint8) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT unit_id, class, sensor, value, decimal_shift, scaled, received_at
		FROM readings
		WHERE rowid IN (SELECT MAX(rowid) FROM readings WHERE unit_id = ? GROUP BY sensor)
		ORDER BY sensor`, unitID)
	if err != nil {
		return nil, errors.Wrap(err, "query latest readings")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec        Record
			sensor     string
			receivedAt int64
		)
		if err := rows.Scan(&rec.Reading.Unit, &rec.Source.Class, &sensor, &rec.Reading.Value, &rec.Reading.DecimalShift, &rec.Scaled, &receivedAt); err != nil {
			return nil, errors.Wrap(err, "scan reading")
		}
		if len(sensor) == 1 {
			rec.Reading.Sensor = entities.SensorCode(sensor[0])
		}
		rec.Source.ID = rec.Reading.Unit
		rec.Reading.Timestamp = time.Unix(0, receivedAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate readings")
	}
	return records, nil
}

// Count returns how many readings are stored for a unit.
func (s *ReadingStore) Count(ctx context.Context, unitID uint8) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings WHERE unit_id = ?`, unitID).Scan(&n)
	return n, errors.Wrap(err, "count readings")
}

func (s *ReadingStore) Close() error {
	return s.db.Close()
}
