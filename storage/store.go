package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"geoframe/frame"

	"github.com/paulmach/orb/encoding/wkb"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
	name            TEXT PRIMARY KEY,
	geometry_column TEXT NOT NULL,
	columns         TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS dataset_rows (
	dataset    TEXT NOT NULL,
	position   INTEGER NOT NULL,
	geometry   BLOB NOT NULL,
	attributes TEXT NOT NULL,
	PRIMARY KEY (dataset, position)
);
`

// Store persists named GeoFrames in a SQLite database. Geometries are stored
// as WKB blobs, attribute values as JSON, so numeric attributes come back as
// float64 after a round trip.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the SQLite database at the given path
// and makes sure the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to open SQLite database %s", path)
	}

	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "Unable to create schema in SQLite database %s", path)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveFrame stores the given frame under the given dataset name, replacing a
// previously stored dataset of the same name.
func (s *Store) SaveFrame(ctx context.Context, name string, f *frame.GeoFrame) error {
	if name == "" {
		return errors.Errorf("Dataset name must not be empty")
	}

	attributeColumns := f.Columns()
	attributeColumns = attributeColumns[:len(attributeColumns)-1]
	columnsJson, err := json.Marshal(attributeColumns)
	if err != nil {
		return errors.Wrapf(err, "Unable to marshal column names of dataset %s", name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "Unable to start transaction for dataset %s", name)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `DELETE FROM dataset_rows WHERE dataset = ?`, name); err != nil {
		return errors.Wrapf(err, "Unable to delete old rows of dataset %s", name)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name); err != nil {
		return errors.Wrapf(err, "Unable to delete old metadata of dataset %s", name)
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO datasets(name, geometry_column, columns) VALUES(?, ?, ?)`,
		name, f.GeometryColumn(), string(columnsJson)); err != nil {
		return errors.Wrapf(err, "Unable to insert metadata of dataset %s", name)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dataset_rows(dataset, position, geometry, attributes) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrapf(err, "Unable to prepare row insert for dataset %s", name)
	}
	defer stmt.Close()

	for row := 0; row < f.Len(); row++ {
		geometry, err := f.Geometry(row)
		if err != nil {
			return err
		}
		geometryBlob, err := wkb.Marshal(geometry)
		if err != nil {
			return errors.Wrapf(err, "Unable to encode geometry of row %d in dataset %s", row, name)
		}

		attributes := map[string]any{}
		for _, column := range attributeColumns {
			value, err := f.Value(row, column)
			if err != nil {
				return err
			}
			if value != nil {
				attributes[column] = value
			}
		}
		attributesJson, err := json.Marshal(attributes)
		if err != nil {
			return errors.Wrapf(err, "Unable to marshal attributes of row %d in dataset %s", row, name)
		}

		if _, err = stmt.ExecContext(ctx, name, row, geometryBlob, string(attributesJson)); err != nil {
			return errors.Wrapf(err, "Unable to insert row %d of dataset %s", row, name)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrapf(err, "Unable to commit dataset %s", name)
	}
	return nil
}

// LoadFrame reads the dataset with the given name back into a GeoFrame.
func (s *Store) LoadFrame(ctx context.Context, name string) (*frame.GeoFrame, error) {
	var geometryColumn string
	var columnsJson string
	err := s.db.QueryRowContext(ctx,
		`SELECT geometry_column, columns FROM datasets WHERE name = ?`, name).
		Scan(&geometryColumn, &columnsJson)
	if err == sql.ErrNoRows {
		return nil, errors.Errorf("Dataset '%s' does not exist", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to read metadata of dataset %s", name)
	}

	var columns []string
	if err = json.Unmarshal([]byte(columnsJson), &columns); err != nil {
		return nil, errors.Wrapf(err, "Unable to unmarshal column names of dataset %s", name)
	}

	f := frame.New(geometryColumn, columns...)

	rows, err := s.db.QueryContext(ctx,
		`SELECT geometry, attributes FROM dataset_rows WHERE dataset = ? ORDER BY position`, name)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to read rows of dataset %s", name)
	}
	defer rows.Close()

	for rows.Next() {
		var geometryBlob []byte
		var attributesJson string
		if err = rows.Scan(&geometryBlob, &attributesJson); err != nil {
			return nil, errors.Wrapf(err, "Unable to scan row of dataset %s", name)
		}

		geometry, err := wkb.Unmarshal(geometryBlob)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to decode geometry in dataset %s", name)
		}

		attributes := map[string]any{}
		if err = json.Unmarshal([]byte(attributesJson), &attributes); err != nil {
			return nil, errors.Wrapf(err, "Unable to unmarshal attributes in dataset %s", name)
		}

		if err = f.AppendRow(geometry, attributes); err != nil {
			return nil, err
		}
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "Error iterating rows of dataset %s", name)
	}

	return f, nil
}

// ListDatasets returns the names of all stored datasets in alphabetical order.
func (s *Store) ListDatasets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM datasets ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to list datasets")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "Unable to scan dataset name")
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteFrame removes the dataset with the given name and reports whether it
// existed.
func (s *Store) DeleteFrame(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrapf(err, "Unable to start transaction for dataset %s", name)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `DELETE FROM dataset_rows WHERE dataset = ?`, name); err != nil {
		return false, errors.Wrapf(err, "Unable to delete rows of dataset %s", name)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name)
	if err != nil {
		return false, errors.Wrapf(err, "Unable to delete metadata of dataset %s", name)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "Unable to determine deletion result for dataset %s", name)
	}

	if err = tx.Commit(); err != nil {
		return false, errors.Wrapf(err, "Unable to commit deletion of dataset %s", name)
	}
	return affected > 0, nil
}
