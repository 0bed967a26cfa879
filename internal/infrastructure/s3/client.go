package s3infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-support-chat/internal/config"
	"github.com/go-support-chat/internal/domain"
)

// objectAPI is the subset of the S3 client the archive uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Transcript is the archived form of a finished conversation.
type Transcript struct {
	TicketID   string           `json:"ticketId"`
	ArchivedAt time.Time        `json:"archivedAt"`
	Messages   []domain.Message `json:"messages"`
}

// TranscriptArchive stores closed-ticket transcripts as JSON objects.
type TranscriptArchive struct {
	client objectAPI
	bucket string
	now    func() time.Time
}

// NewClient creates an S3 client. When cfg.AWSEndpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for S3: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, clientOpts...), nil
}

func NewTranscriptArchive(client objectAPI, bucket string) *TranscriptArchive {
	return &TranscriptArchive{client: client, bucket: bucket, now: time.Now}
}

// Key is the object key a ticket's transcript is stored under.
func Key(ticketID string) string {
	return "transcripts/" + ticketID + ".json"
}

// Archive uploads the transcript, replacing any earlier copy.
func (a *TranscriptArchive) Archive(ctx context.Context, ticketID string, messages []domain.Message) error {
	body, err := json.Marshal(Transcript{
		TicketID:   ticketID,
		ArchivedAt: a.now().UTC(),
		Messages:   messages,
	})
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(Key(ticketID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", errors.Join(domain.ErrTransport, err))
	}
	return nil
}

// Fetch downloads an archived transcript.
func (a *TranscriptArchive) Fetch(ctx context.Context, ticketID string) (*Transcript, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(Key(ticketID)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("transcript %s: %w", ticketID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get object: %w", errors.Join(domain.ErrTransport, err))
	}
	defer out.Body.Close()

	var t Transcript
	if err := json.NewDecoder(out.Body).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return &t, nil
}
