package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/assetgate/internal/cryptoutil"
	"github.com/keithlinneman/assetgate/internal/log"
	"github.com/keithlinneman/assetgate/internal/xerrors"
)

// s3API is the subset of the S3 client the loader uses. Extracted as an
// interface to enable unit testing without live AWS credentials.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ssmAPI is the subset of the SSM client the loader uses.
type ssmAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Verifier checks a detached signature over the bundle bytes. Satisfied by
// *cryptoutil.KMSVerifier.
type Verifier interface {
	VerifySignature(ctx context.Context, message, signature []byte) error
}

type LoaderOptions struct {
	Logger log.Logger

	// SSM parameter containing the release SHA256 hash
	SSMParam string

	// S3 location for bundles: s3://{bucket}/{prefix}/{hash}.tar.gz with a
	// detached signature sidecar at {prefix}/{hash}.sig
	S3Bucket string
	S3Prefix string

	// SigningKeyARN selects the KMS key for sidecar verification. Empty
	// disables signature checking (hash pinning still applies).
	SigningKeyARN string

	// StagingDir is where bundles are extracted before installation. It must
	// live on the same filesystem as the overrides root so installs can
	// rename instead of copy.
	StagingDir string

	// AWS config (uses default if nil)
	AWSConfig *aws.Config

	// Pre-built clients. When all required clients are supplied no AWS
	// config is loaded at all.
	S3Client  s3API
	SSMClient ssmAPI
	Verifier  Verifier
}

type Loader struct {
	opts      LoaderOptions
	ssmClient ssmAPI
	s3Client  s3API
	verifier  Verifier
	logger    log.Logger
}

// NewLoader creates a bundle Loader with the given options
func NewLoader(ctx context.Context, opts LoaderOptions) (*Loader, error) {
	if opts.SSMParam == "" {
		return nil, xerrors.New("SSMParam is required")
	}
	if opts.S3Bucket == "" {
		return nil, xerrors.New("S3Bucket is required")
	}
	if opts.StagingDir == "" {
		return nil, xerrors.New("StagingDir is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	l := &Loader{
		opts:      opts,
		ssmClient: opts.SSMClient,
		s3Client:  opts.S3Client,
		verifier:  opts.Verifier,
		logger:    opts.Logger,
	}

	needAWS := l.ssmClient == nil || l.s3Client == nil ||
		(l.verifier == nil && opts.SigningKeyARN != "")
	if needAWS {
		var awsCfg aws.Config
		var err error
		if opts.AWSConfig != nil {
			awsCfg = *opts.AWSConfig
		} else {
			awsCfg, err = config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, xerrors.Wrap(err, "load AWS config")
			}
		}
		if l.ssmClient == nil {
			l.ssmClient = ssm.NewFromConfig(awsCfg)
		}
		if l.s3Client == nil {
			l.s3Client = s3.NewFromConfig(awsCfg)
		}
		if l.verifier == nil && opts.SigningKeyARN != "" {
			l.verifier = cryptoutil.NewKMSVerifier(kms.NewFromConfig(awsCfg), opts.SigningKeyARN)
		}
	}

	return l, nil
}

// FetchCurrentHash gets the current release hash from SSM
func (l *Loader) FetchCurrentHash(ctx context.Context) (string, error) {
	out, err := l.ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(l.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", l.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", l.opts.SSMParam)
	}

	hash := strings.TrimSpace(*out.Parameter.Value)
	if hash == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", l.opts.SSMParam)
	}
	// the hash names S3 keys and staging directories, so anything that is
	// not plain lowercase hex is rejected before it touches a path
	if !isHexHash(hash) {
		return "", xerrors.Newf("SSM parameter %s is not a sha256 hex value", l.opts.SSMParam)
	}

	return hash, nil
}

// s3Key returns the S3 object key for a given hash
func (l *Loader) s3Key(hash string) string {
	if l.opts.S3Prefix != "" {
		return fmt.Sprintf("%s/%s.tar.gz", l.opts.S3Prefix, hash)
	}
	return fmt.Sprintf("%s.tar.gz", hash)
}

// sigKey returns the S3 object key for a hash's signature sidecar
func (l *Loader) sigKey(hash string) string {
	if l.opts.S3Prefix != "" {
		return fmt.Sprintf("%s/%s.sig", l.opts.S3Prefix, hash)
	}
	return fmt.Sprintf("%s.sig", hash)
}

// fetchObject reads an S3 object fully, bounded by maxSize.
func (l *Loader) fetchObject(ctx context.Context, key string, maxSize int64) ([]byte, string, error) {
	out, err := l.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.opts.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", xerrors.Wrapf(err, "get S3 object s3://%s/%s", l.opts.S3Bucket, key)
	}
	defer out.Body.Close()

	return readWithHash(out.Body, maxSize)
}

// Download fetches a bundle from S3 and verifies it against the expected hash
func (l *Loader) Download(ctx context.Context, hash string) ([]byte, error) {
	key := l.s3Key(hash)

	l.logger.Info(ctx, "downloading bundle",
		"bucket", l.opts.S3Bucket,
		"key", key,
		"expected_hash", hash,
	)

	data, actualHash, err := l.fetchObject(ctx, key, maxBundleSize)
	if err != nil {
		return nil, xerrors.Wrap(err, "download bundle")
	}

	l.logger.Info(ctx, "downloaded bundle",
		"bytes", len(data),
		"actual_hash", actualHash,
	)

	// our policy is to always use cryptoutil/HashEqual for comparing hashes, even though
	// this is not user-supplied or a secret value so timing attacks are not a concern here.
	if !cryptoutil.HashEqual(actualHash, hash) {
		return nil, xerrors.Newf("checksum mismatch: expected %s, got %s", hash, actualHash)
	}

	return data, nil
}

// fetchSignature fetches the detached signature sidecar for a hash
func (l *Loader) fetchSignature(ctx context.Context, hash string) ([]byte, error) {
	sig, _, err := l.fetchObject(ctx, l.sigKey(hash), maxSignatureSize)
	if err != nil {
		return nil, xerrors.Wrap(err, "fetch bundle signature")
	}
	if len(sig) == 0 {
		return nil, xerrors.Newf("bundle signature %s is empty", l.sigKey(hash))
	}
	return sig, nil
}

// Load fetches the current release and stages it for installation
func (l *Loader) Load(ctx context.Context) (*Staged, error) {
	hash, err := l.FetchCurrentHash(ctx)
	if err != nil {
		return nil, err
	}

	return l.LoadHash(ctx, hash)
}

// LoadHash fetches a specific bundle by hash, verifies it, and extracts it
// into the staging area. The caller owns the staged directory and must
// either Install it or remove it.
func (l *Loader) LoadHash(ctx context.Context, hash string) (*Staged, error) {
	data, err := l.Download(ctx, hash)
	if err != nil {
		return nil, err
	}

	if l.verifier != nil {
		sig, err := l.fetchSignature(ctx, hash)
		if err != nil {
			return nil, err
		}
		if err := l.verifier.VerifySignature(ctx, data, sig); err != nil {
			return nil, xerrors.Wrapf(err, "verify bundle signature for %s", hash)
		}
	}
	verifiedAt := time.Now().UTC()

	dest := filepath.Join(l.opts.StagingDir, hash+".staged")
	if err := os.RemoveAll(dest); err != nil {
		return nil, xerrors.Wrapf(err, "clear staging dir %s", dest)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, xerrors.Wrapf(err, "create staging dir %s", dest)
	}

	l.logger.Info(ctx, "extracting bundle",
		"hash", hash,
		"dest", dest,
	)

	fileCount, totalBytes, err := extractTarGz(data, dest)
	if err != nil {
		os.RemoveAll(dest)
		return nil, xerrors.Wrap(err, "extract bundle")
	}

	l.logger.Info(ctx, "extracted bundle",
		"hash", hash,
		"files", fileCount,
		"bytes", totalBytes,
	)

	// the manifest is metadata for the info API; a bundle without one is
	// still installable unless validation says otherwise
	var manifest *Manifest
	m, err := LoadManifest(os.DirFS(dest))
	if err != nil {
		l.logger.Warn(ctx, "failed to load manifest.json, continuing without manifest data",
			"hash", hash,
			"error", err,
		)
	} else {
		manifest = m
		l.logger.Info(ctx, "loaded bundle manifest",
			"version", manifest.Version,
			"content_hash", manifest.ContentHash,
			"total_files", manifest.Summary.TotalFiles,
			"commit", manifest.Source.CommitShort,
		)
	}

	return &Staged{
		Hash:       hash,
		Dir:        dest,
		Manifest:   manifest,
		FileCount:  fileCount,
		TotalBytes: totalBytes,
		VerifiedAt: verifiedAt,
	}, nil
}

// isHexHash reports whether s is a 64-character lowercase hex string.
func isHexHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
