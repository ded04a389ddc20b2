package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/remora-tools/remora/pkg/bus/events"
	"github.com/remora-tools/remora/pkg/scrub"
	"github.com/remora-tools/remora/pkg/scrub/model"
)

var _ scrub.Repo = (*Repo)(nil)

const bucketColumns = `
	name,
	status,
	objects_scanned,
	missing_objects,
	missing_chunks,
	orphan_chunks,
	error_message,
	created_at,
	updated_at`

func scanBucket(row *sql.Row) (*model.Bucket, error) {
	return model.ReadBucketFromDatabase(func(
		name *string,
		status *model.BucketStatus,
		objectsScanned,
		missingObjects,
		missingChunks,
		orphanChunks *uint64,
		errorMessage **string,
		createdAt,
		updatedAt *time.Time,
	) error {
		return row.Scan(
			name,
			(*string)(status),
			objectsScanned,
			missingObjects,
			missingChunks,
			orphanChunks,
			errorMessage,
			TimestampScanner(createdAt),
			TimestampScanner(updatedAt),
		)
	})
}

// GetBucketByName retrieves the checkpoint record of the named bucket, or
// nil if no record exists.
func (r *Repo) GetBucketByName(ctx context.Context, name string) (*model.Bucket, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+bucketColumns+`
		FROM buckets
		WHERE name = ?`,
		name,
	)
	bucket, err := scanBucket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return bucket, err
}

// FindOrCreateBucket returns the existing checkpoint record for the named
// bucket, creating a pending one if none exists.
func (r *Repo) FindOrCreateBucket(ctx context.Context, name string) (*model.Bucket, error) {
	bucket, err := model.NewBucket(name)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate bucket record %s: %w", name, err)
	}

	insertQuery := `
		INSERT INTO buckets (` + bucketColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name)
			-- Force conflicts to return the row rather than completely ignore it.
			DO UPDATE SET name = name
		RETURNING` + bucketColumns

	var found *model.Bucket
	err = model.WriteBucketToDatabase(func(
		name string,
		status model.BucketStatus,
		objectsScanned,
		missingObjects,
		missingChunks,
		orphanChunks uint64,
		errorMessage *string,
		createdAt,
		updatedAt time.Time,
	) error {
		row := r.db.QueryRowContext(ctx,
			insertQuery,
			name,
			string(status),
			objectsScanned,
			missingObjects,
			missingChunks,
			orphanChunks,
			NullString(errorMessage),
			createdAt.Unix(),
			updatedAt.Unix(),
		)
		var scanErr error
		found, scanErr = scanBucket(row)
		return scanErr
	}, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to write bucket record %s: %w", name, err)
	}
	return found, nil
}

// ListBuckets returns all checkpoint records, ordered by name.
func (r *Repo) ListBuckets(ctx context.Context) ([]*model.Bucket, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT`+bucketColumns+`
		FROM buckets
		ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []*model.Bucket
	for rows.Next() {
		bucket, err := model.ReadBucketFromDatabase(func(
			name *string,
			status *model.BucketStatus,
			objectsScanned,
			missingObjects,
			missingChunks,
			orphanChunks *uint64,
			errorMessage **string,
			createdAt,
			updatedAt *time.Time,
		) error {
			return rows.Scan(
				name,
				(*string)(status),
				objectsScanned,
				missingObjects,
				missingChunks,
				orphanChunks,
				errorMessage,
				TimestampScanner(createdAt),
				TimestampScanner(updatedAt),
			)
		})
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buckets, nil
}

// UpdateBucket writes the bucket record back to the store. The commit is
// synchronous: when UpdateBucket returns without error, the status change has
// reached disk. A view of the record is published on the bus.
func (r *Repo) UpdateBucket(ctx context.Context, bucket *model.Bucket) error {
	updateQuery := `
		UPDATE buckets
		SET status = $2,
			objects_scanned = $3,
			missing_objects = $4,
			missing_chunks = $5,
			orphan_chunks = $6,
			error_message = $7,
			updated_at = $8
		WHERE name = $1`

	stmt, err := r.prepareStmt(ctx, updateQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare bucket update: %w", err)
	}

	err = model.WriteBucketToDatabase(func(
		name string,
		status model.BucketStatus,
		objectsScanned,
		missingObjects,
		missingChunks,
		orphanChunks uint64,
		errorMessage *string,
		createdAt,
		updatedAt time.Time,
	) error {
		result, err := stmt.ExecContext(ctx,
			name,
			string(status),
			objectsScanned,
			missingObjects,
			missingChunks,
			orphanChunks,
			NullString(errorMessage),
			updatedAt.Unix(),
		)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("no checkpoint record for bucket %s", name)
		}
		return nil
	}, bucket)
	if err != nil {
		return fmt.Errorf("failed to update bucket record %s: %w", bucket.Name(), err)
	}

	r.bus.Publish(events.TopicBucket(bucket.Name()), events.BucketView{
		Name:           bucket.Name(),
		Status:         bucket.Status(),
		ObjectsScanned: bucket.ObjectsScanned(),
		MissingObjects: bucket.MissingObjects(),
		MissingChunks:  bucket.MissingChunks(),
		OrphanChunks:   bucket.OrphanChunks(),
	})
	return nil
}
