package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/urfave/cli/v2"

	"github.com/jzupan/clubmgr/internal/config"
	"github.com/jzupan/clubmgr/internal/database"
	"github.com/jzupan/clubmgr/internal/models"
	"github.com/jzupan/clubmgr/internal/repositories"
	pkglogger "github.com/jzupan/clubmgr/pkg/logger"
)

// minRetentionDays is the floor on audit retention. The purge refuses to run
// with a shorter horizon no matter what the operator passes.
const minRetentionDays = 30

const archivePageSize = 1000

func main() {
	app := &cli.App{
		Name:  "auditmaint",
		Usage: "purge old audit log entries, optionally archiving them to S3 first",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "days",
				Usage: "delete entries older than this many days",
				Value: 90,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "report what would be deleted without deleting",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "skip the confirmation prompt",
			},
			&cli.StringFlag{
				Name:    "archive-bucket",
				Usage:   "S3 bucket to archive purged entries into (empty disables archiving)",
				EnvVars: []string{"AUDIT_ARCHIVE_BUCKET"},
			},
			&cli.StringFlag{
				Name:    "s3-region",
				Value:   "eu-central-1",
				EnvVars: []string{"AUDIT_ARCHIVE_REGION"},
			},
			&cli.StringFlag{
				Name:    "s3-endpoint",
				Usage:   "custom S3 endpoint (for MinIO and friends)",
				EnvVars: []string{"AUDIT_ARCHIVE_ENDPOINT"},
			},
			&cli.StringFlag{
				Name:    "s3-access-key",
				EnvVars: []string{"AUDIT_ARCHIVE_ACCESS_KEY"},
			},
			&cli.StringFlag{
				Name:    "s3-secret-key",
				EnvVars: []string{"AUDIT_ARCHIVE_SECRET_KEY"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	days := c.Int("days")
	if days < minRetentionDays {
		return fmt.Errorf("retention must be at least %d days, got %d", minRetentionDays, days)
	}

	logger := pkglogger.New(os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repositories.NewAuditLogRepository(db)

	ctx := context.Background()
	cutoff := time.Now().AddDate(0, 0, -days)

	count, err := repo.CountBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	if count == 0 {
		fmt.Printf("no audit entries older than %s\n", cutoff.Format("2006-01-02"))
		return nil
	}

	oldest, newest, err := repo.OldestBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	fmt.Printf("%d audit entries older than %s", count, cutoff.Format("2006-01-02"))
	if oldest != nil && newest != nil {
		fmt.Printf(" (from %s to %s)", oldest.Format("2006-01-02"), newest.Format("2006-01-02"))
	}
	fmt.Println()

	if c.Bool("dry-run") {
		fmt.Println("dry run, nothing deleted")
		return nil
	}

	if !c.Bool("yes") && !confirm() {
		fmt.Println("aborted")
		return nil
	}

	if bucket := c.String("archive-bucket"); bucket != "" {
		key, err := archiveToS3(ctx, c, repo, cutoff, bucket)
		if err != nil {
			return fmt.Errorf("archive failed, nothing deleted: %w", err)
		}
		fmt.Printf("archived to s3://%s/%s\n", bucket, key)
	}

	removed, err := repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	fmt.Printf("deleted %d audit entries\n", removed)
	return nil
}

func confirm() bool {
	fmt.Print("delete these entries? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// archiveToS3 writes the doomed entries as JSON lines to a single object and
// returns its key.
func archiveToS3(ctx context.Context, c *cli.Context, repo *repositories.AuditLogRepository, cutoff time.Time, bucket string) (string, error) {
	client, err := newS3Client(ctx, c)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)

	for offset := 0; ; offset += archivePageSize {
		entries, err := repo.ListBefore(ctx, cutoff, archivePageSize, offset)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			break
		}
		for _, entry := range entries {
			if err := encoder.Encode(archiveRecord(entry)); err != nil {
				return "", err
			}
		}
		if len(entries) < archivePageSize {
			break
		}
	}

	key := fmt.Sprintf("audit/archive-%s.jsonl", time.Now().UTC().Format("20060102T150405Z"))

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", err
	}

	return key, nil
}

func newS3Client(ctx context.Context, c *cli.Context) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.String("s3-region")),
	}

	if accessKey := c.String("s3-access-key"); accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, c.String("s3-secret-key"), ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := c.String("s3-endpoint"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	slog.Debug("s3 client ready", slog.String("region", c.String("s3-region")))
	return client, nil
}

type archivedEntry struct {
	ID          int64     `json:"id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Username    *string   `json:"username,omitempty"`
	Address     string    `json:"address,omitempty"`
	Kind        string    `json:"kind"`
	Description string    `json:"description,omitempty"`
}

func archiveRecord(entry *models.AuditEntry) archivedEntry {
	return archivedEntry{
		ID:          entry.ID,
		OccurredAt:  entry.OccurredAt,
		Username:    entry.Username,
		Address:     entry.Address,
		Kind:        entry.Kind,
		Description: entry.Description,
	}
}
