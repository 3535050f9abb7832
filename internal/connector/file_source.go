package connector

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

var defaultFileGlobs = map[Family]string{
	FamilyCSV:  "*.csv",
	FamilyJSON: "*.json",
	FamilyS3:   "*",
}

// fileSource discovers input objects by glob — either in an S3 bucket or
// on the local filesystem — and parses each into one table named after the
// file stem.
type fileSource struct {
	family    Family
	bucketURL string
	fileGlob  string
	batchSize int
	awsCreds  Config
}

func newFileSource(family Family, config Config, pc *PipelineConfig, batchSize int) (*fileSource, error) {
	bucketURL := pc.BucketURL
	if bucketURL == "" {
		bucketURL = config.stringVal("bucket_url")
	}
	if bucketURL == "" {
		return nil, NewConfigError("file sources require 'bucket_url' in config or pipeline config")
	}
	glob := pc.FileGlob
	if glob == "" {
		glob = defaultFileGlobs[family]
	}
	src := &fileSource{
		family:    family,
		bucketURL: bucketURL,
		fileGlob:  glob,
		batchSize: batchSize,
	}
	if family == FamilyS3 {
		src.awsCreds = extractAWSCredentials(config)
	}
	return src, nil
}

// awsCredentialKeys is the subset of connection config fields forwarded to
// the S3 client.
var awsCredentialKeys = []string{"aws_access_key_id", "aws_secret_access_key", "region_name", "endpoint_url"}

func extractAWSCredentials(config Config) Config {
	creds := make(Config)
	for _, key := range awsCredentialKeys {
		if v, ok := config[key]; ok {
			creds[key] = v
		}
	}
	return creds
}

func (f *fileSource) Read(ctx context.Context, sink Sink) error {
	if strings.HasPrefix(f.bucketURL, "s3://") {
		return f.readS3(ctx, sink)
	}
	return f.readLocal(ctx, sink)
}

func (f *fileSource) Close() error { return nil }

func (f *fileSource) readLocal(ctx context.Context, sink Sink) error {
	matches, err := filepath.Glob(filepath.Join(f.bucketURL, f.fileGlob))
	if err != nil {
		return NewConfigError("invalid file_glob %q: %v", f.fileGlob, err)
	}
	for _, match := range matches {
		fh, err := os.Open(match)
		if err != nil {
			return errors.Wrapf(err, "failed to open %s", match)
		}
		err = f.parseFile(ctx, match, fh, sink)
		fh.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *fileSource) readS3(ctx context.Context, sink Sink) error {
	u, err := url.Parse(f.bucketURL)
	if err != nil {
		return NewConfigError("invalid bucket_url %q: %v", f.bucketURL, err)
	}
	bucket := u.Host
	prefix := strings.TrimPrefix(u.Path, "/")

	client, err := f.s3Client(ctx)
	if err != nil {
		return err
	}

	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to list bucket objects")
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			matched, err := path.Match(f.fileGlob, path.Base(key))
			if err != nil {
				return NewConfigError("invalid file_glob %q: %v", f.fileGlob, err)
			}
			if !matched {
				continue
			}
			out, err := client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				return errors.Wrapf(err, "failed to fetch s3://%s/%s", bucket, key)
			}
			err = f.parseFile(ctx, key, out.Body, sink)
			out.Body.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *fileSource) s3Client(ctx context.Context) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region := f.awsCreds.stringVal("region_name"); region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	if key := f.awsCreds.stringVal("aws_access_key_id"); key != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, f.awsCreds.stringVal("aws_secret_access_key"), "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint := f.awsCreds.stringVal("endpoint_url"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (f *fileSource) parseFile(ctx context.Context, name string, r io.Reader, sink Sink) error {
	table := tableNameFromFile(name)
	switch strings.ToLower(path.Ext(name)) {
	case ".json", ".jsonl", ".ndjson":
		return f.parseJSON(ctx, table, r, sink)
	default:
		return f.parseCSV(ctx, table, r, sink)
	}
}

func (f *fileSource) parseCSV(ctx context.Context, table string, r io.Reader, sink Sink) error {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read csv header for %s", table)
	}

	batch := make([]Row, 0, f.batchSize)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "failed to read csv row for %s", table)
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		batch = append(batch, row)
		if len(batch) >= f.batchSize {
			if err := sink(ctx, Batch{Table: table, Rows: batch}); err != nil {
				return err
			}
			batch = make([]Row, 0, f.batchSize)
		}
	}
	if len(batch) > 0 {
		return sink(ctx, Batch{Table: table, Rows: batch})
	}
	return nil
}

// parseJSON accepts either a top-level array of objects or
// newline-delimited objects.
func (f *fileSource) parseJSON(ctx context.Context, table string, r io.Reader, sink Sink) error {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read json for %s", table)
	}

	dec := json.NewDecoder(br)
	var rows []Row
	if first == '[' {
		if err := dec.Decode(&rows); err != nil {
			return errors.Wrapf(err, "failed to decode json array for %s", table)
		}
	} else {
		for {
			var row Row
			if err := dec.Decode(&row); err == io.EOF {
				break
			} else if err != nil {
				return errors.Wrapf(err, "failed to decode json object for %s", table)
			}
			rows = append(rows, row)
		}
	}

	for start := 0; start < len(rows); start += f.batchSize {
		end := start + f.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := sink(ctx, Batch{Table: table, Rows: rows[start:end]}); err != nil {
			return err
		}
	}
	return nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\n', '\r':
			br.ReadByte()
		default:
			return b[0], nil
		}
	}
}

func tableNameFromFile(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))
	stem = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, stem)
	if stem == "" {
		return "data"
	}
	return stem
}
