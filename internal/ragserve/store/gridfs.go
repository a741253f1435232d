package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kart-io/ragserve/internal/model"
	"github.com/kart-io/ragserve/pkg/component/mongodb"
)

// Bucket names for the two document stages.
const (
	RawBucket       = "raw-documents"
	ProcessedBucket = "processed-documents"
)

const (
	defaultMoveRetries = 3
	defaultMoveBackoff = 200 * time.Millisecond
)

// GridFSStore implements DocumentStore on two GridFS buckets of the same
// MongoDB database. Raw uploads land in RawBucket and move to
// ProcessedBucket after indexing.
type GridFSStore struct {
	raw       *gridfs.Bucket
	processed *gridfs.Bucket

	moveRetries int
	moveBackoff time.Duration
}

// Compile-time check that GridFSStore implements DocumentStore.
var _ DocumentStore = (*GridFSStore)(nil)

// gridFile mirrors the fs.files document shape.
type gridFile struct {
	ID         primitive.ObjectID `bson:"_id"`
	Filename   string             `bson:"filename"`
	Length     int64              `bson:"length"`
	UploadDate time.Time          `bson:"uploadDate"`
	Metadata   bson.M             `bson:"metadata,omitempty"`
}

// NewGridFSStore opens the raw and processed buckets on the client's
// default database.
func NewGridFSStore(client *mongodb.Client) (*GridFSStore, error) {
	raw, err := client.Bucket(RawBucket)
	if err != nil {
		return nil, err
	}
	processed, err := client.Bucket(ProcessedBucket)
	if err != nil {
		return nil, err
	}

	return &GridFSStore{
		raw:         raw,
		processed:   processed,
		moveRetries: defaultMoveRetries,
		moveBackoff: defaultMoveBackoff,
	}, nil
}

// Upload stores data under name in the raw bucket. Existing files with the
// same name are removed first so uploads behave as overwrites.
func (s *GridFSStore) Upload(ctx context.Context, name string, data []byte, contentType string) (*model.StoredFile, error) {
	applyDeadline(ctx, s.raw)

	if err := deleteByName(ctx, s.raw, name); err != nil {
		return nil, fmt.Errorf("failed to replace existing file %q: %w", name, err)
	}

	uploadOpts := mongoopts.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	if _, err := s.raw.UploadFromStream(name, bytes.NewReader(data), uploadOpts); err != nil {
		return nil, fmt.Errorf("failed to upload file %q: %w", name, err)
	}

	return &model.StoredFile{
		Name:       name,
		SizeBytes:  int64(len(data)),
		UploadedAt: time.Now(),
		Bucket:     RawBucket,
	}, nil
}

// ListRecent returns up to limit raw files, newest upload first.
func (s *GridFSStore) ListRecent(ctx context.Context, limit int) ([]model.StoredFile, error) {
	applyDeadline(ctx, s.raw)

	findOpts := mongoopts.GridFSFind().
		SetSort(bson.D{{Key: "uploadDate", Value: -1}})
	if limit > 0 {
		findOpts.SetLimit(int32(limit))
	}

	cursor, err := s.raw.Find(bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent files: %w", err)
	}
	defer cursor.Close(ctx)

	var files []model.StoredFile
	for cursor.Next(ctx) {
		var f gridFile
		if err := cursor.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode file record: %w", err)
		}
		files = append(files, model.StoredFile{
			Name:       f.Filename,
			SizeBytes:  f.Length,
			UploadedAt: f.UploadDate,
			Bucket:     RawBucket,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate file records: %w", err)
	}
	return files, nil
}

// ListUnprocessed returns the distinct names of raw files in upload order.
// A limit of zero returns all of them.
func (s *GridFSStore) ListUnprocessed(ctx context.Context, limit int) ([]string, error) {
	applyDeadline(ctx, s.raw)

	findOpts := mongoopts.GridFSFind().
		SetSort(bson.D{{Key: "uploadDate", Value: 1}})

	cursor, err := s.raw.Find(bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed files: %w", err)
	}
	defer cursor.Close(ctx)

	seen := make(map[string]struct{})
	var names []string
	for cursor.Next(ctx) {
		var f gridFile
		if err := cursor.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode file record: %w", err)
		}
		if _, ok := seen[f.Filename]; ok {
			continue
		}
		seen[f.Filename] = struct{}{}
		names = append(names, f.Filename)
		if limit > 0 && len(names) >= limit {
			break
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate file records: %w", err)
	}
	return names, nil
}

// Fetch reads the content of a raw file by name.
func (s *GridFSStore) Fetch(ctx context.Context, name string) ([]byte, error) {
	applyDeadline(ctx, s.raw)

	var buf bytes.Buffer
	if _, err := s.raw.DownloadToStreamByName(name, &buf); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return nil, fmt.Errorf("failed to fetch file %q: %w", name, err)
	}
	return buf.Bytes(), nil
}

// Move copies a file from the raw bucket to the processed bucket and then
// removes the raw copy. Both sides are retried with exponential backoff;
// the copy is written before the raw file is deleted so a failure never
// loses the document.
func (s *GridFSStore) Move(ctx context.Context, name string) error {
	applyDeadline(ctx, s.raw)
	applyDeadline(ctx, s.processed)

	source, err := s.findByName(ctx, s.raw, name)
	if err != nil {
		return err
	}

	data, err := s.Fetch(ctx, name)
	if err != nil {
		return err
	}

	copyToProcessed := func() error {
		if err := deleteByName(ctx, s.processed, name); err != nil {
			return err
		}
		uploadOpts := mongoopts.GridFSUpload()
		if source.Metadata != nil {
			uploadOpts.SetMetadata(source.Metadata)
		}
		_, err := s.processed.UploadFromStream(name, bytes.NewReader(data), uploadOpts)
		return err
	}
	if err := s.withRetry(ctx, "copy to processed bucket", copyToProcessed); err != nil {
		return fmt.Errorf("failed to move file %q: %w", name, err)
	}

	deleteRaw := func() error {
		return deleteByName(ctx, s.raw, name)
	}
	if err := s.withRetry(ctx, "delete raw file", deleteRaw); err != nil {
		return fmt.Errorf("failed to move file %q: %w", name, err)
	}

	return nil
}

// withRetry runs fn up to moveRetries times, doubling the backoff between
// attempts and honoring context cancellation.
func (s *GridFSStore) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := s.moveBackoff
	var err error
	for attempt := 1; attempt <= s.moveRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == s.moveRetries {
			break
		}
		logger.Warnw("document store operation failed, retrying",
			"operation", op,
			"attempt", attempt,
			"backoff", backoff.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, s.moveRetries, err)
}

// findByName returns the newest fs.files record for name.
func (s *GridFSStore) findByName(ctx context.Context, bucket *gridfs.Bucket, name string) (*gridFile, error) {
	findOpts := mongoopts.GridFSFind().
		SetSort(bson.D{{Key: "uploadDate", Value: -1}}).
		SetLimit(1)

	cursor, err := bucket.Find(bson.M{"filename": name}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to look up file %q: %w", name, err)
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return nil, fmt.Errorf("failed to look up file %q: %w", name, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}

	var f gridFile
	if err := cursor.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode file record: %w", err)
	}
	return &f, nil
}

// deleteByName removes every revision of name from the bucket. Missing
// files are not an error.
func deleteByName(ctx context.Context, bucket *gridfs.Bucket, name string) error {
	cursor, err := bucket.Find(bson.M{"filename": name})
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var f gridFile
		if err := cursor.Decode(&f); err != nil {
			return err
		}
		if err := bucket.Delete(f.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return err
		}
	}
	return cursor.Err()
}

// applyDeadline propagates a context deadline onto the bucket. GridFS
// operations in the v1 driver take deadlines rather than contexts.
func applyDeadline(ctx context.Context, bucket *gridfs.Bucket) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = bucket.SetReadDeadline(deadline)
		_ = bucket.SetWriteDeadline(deadline)
	}
}
