package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver uploads backtest reports as single-part JSON objects, keyed by
// robot id and run time.
type Archiver struct {
	client *Client
}

// NewArchiver creates an Archiver using the client's configured bucket.
func NewArchiver(c *Client) *Archiver {
	return &Archiver{client: c}
}

// ArchiveReport marshals the report and puts it under
// backtests/{robotID}/{runAt}.json. It returns the object key.
func (a *Archiver) ArchiveReport(ctx context.Context, robotID string, runAt time.Time, report any) (string, error) {
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal report for %s: %w", robotID, err)
	}

	key := fmt.Sprintf("backtests/%s/%s.json", robotID, runAt.UTC().Format("20060102T150405Z"))
	_, err = a.client.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.client.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("s3blob: put report %s: %w", key, err)
	}
	return key, nil
}
