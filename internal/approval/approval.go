// Package approval applies authority-approved top-ups to the lifting plan:
// quantity increases beyond the contracted quarterly allocation, each backed
// by an approval letter that is archived for audit.
package approval

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/nholding/lifting-book/internal/logger"
	"github.com/nholding/lifting-book/internal/plan/domain"
	"github.com/nholding/lifting-book/internal/plan/repository"
	"github.com/nholding/lifting-book/internal/platform/awsclient"
)

// LetterArchive stores approval-letter documents under an opaque key.
type LetterArchive interface {
	Put(ctx context.Context, key string, body []byte) error
}

// S3Archive stores letters in the approval bucket.
type S3Archive struct {
	client *awsclient.S3Client
}

func NewS3Archive(client *awsclient.S3Client) *S3Archive {
	return &S3Archive{client: client}
}

func (a *S3Archive) Put(ctx context.Context, key string, body []byte) error {
	_, err := a.client.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.client.BucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("archive approval letter %s: %w", key, err)
	}
	return nil
}

// MemoryArchive keeps letters in process memory. Test double, and the
// fallback when no bucket is configured.
type MemoryArchive struct {
	Letters map[string][]byte
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{Letters: make(map[string][]byte)}
}

func (a *MemoryArchive) Put(_ context.Context, key string, body []byte) error {
	a.Letters[key] = append([]byte(nil), body...)
	return nil
}

// Service applies authority top-ups through the persistence gateway and
// archives the backing letter.
type Service struct {
	gateway repository.Gateway
	archive LetterArchive
	log     *logrus.Logger
}

func NewService(gateway repository.Gateway, archive LetterArchive) *Service {
	return &Service{
		gateway: gateway,
		archive: archive,
		log:     logger.Get(),
	}
}

// Apply records an approved quantity increase on a plan record. The letter
// bytes, when supplied, are archived under
// approvals/<planID>/<authority reference> before the plan is touched; a
// top-up without its letter on file is not auditable.
func (s *Service) Apply(ctx context.Context, planID string, in repository.TopupInput, letter []byte) (*domain.MonthlyEntry, error) {
	if !in.Quantity.IsPositive() {
		return nil, &domain.ValidationError{Reason: "top-up quantity must be positive"}
	}
	if in.AuthorityReference == "" {
		return nil, &domain.ValidationError{Reason: "top-up requires an authority reference"}
	}

	if len(letter) > 0 && s.archive != nil {
		key := path.Join("approvals", planID, in.AuthorityReference)
		if err := s.archive.Put(ctx, key, letter); err != nil {
			logger.LogError(s.log, "approval", "Apply", "letter archive failed", planID, err)
			return nil, err
		}
	}

	updated, err := s.gateway.AddAuthorityTopup(ctx, planID, in)
	if err != nil {
		logger.LogError(s.log, "approval", "Apply", "top-up rejected", planID, err)
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"module":    "approval",
		"plan":      planID,
		"reference": in.AuthorityReference,
		"quantity":  in.Quantity.String(),
	}).Info("authority top-up applied")
	return updated, nil
}
