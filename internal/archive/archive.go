// Package archive persists published snapshots to S3 as parquet batches
// for offline analysis. Archiving is best effort; upload failures drop the
// batch and never push back on the engine.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "vortexflow/config"
	"vortexflow/internal/model"
	"vortexflow/logger"
)

// ParquetRecord is one archived snapshot row.
type ParquetRecord struct {
	Exchange       string  `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol         string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp      int64   `parquet:"name=timestamp, type=INT64"`
	Price          float64 `parquet:"name=price, type=DOUBLE"`
	LagMs          int64   `parquet:"name=lag_ms, type=INT64"`
	VCSScore       float64 `parquet:"name=vcs_score, type=DOUBLE"`
	VCSStatus      string  `parquet:"name=vcs_status, type=BYTE_ARRAY, convertedtype=UTF8"`
	EjectionPower  float64 `parquet:"name=ejection_power, type=DOUBLE"`
	EjectionStatus string  `parquet:"name=ejection_status, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// memoryFileWriter implements ParquetFile for in-memory writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error)  { return mfw, nil }

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

// Archiver buffers snapshot rows keyed by market and flushes them to S3 on
// an interval.
type Archiver struct {
	config      *appconfig.Config
	s3Client    *s3.Client
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	log         *logger.Log
	buffer      map[string][]ParquetRecord
	flushTicker *time.Ticker
}

func NewArchiver(cfg *appconfig.Config) (*Archiver, error) {
	log := logger.GetLogger()
	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("archiver").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	a := &Archiver{
		config:   cfg,
		s3Client: s3Client,
		wg:       &sync.WaitGroup{},
		log:      log,
		buffer:   make(map[string][]ParquetRecord),
	}

	log.WithComponent("archiver").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("snapshot archiver initialized")

	return a, nil
}

// Start launches the flush worker.
func (a *Archiver) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("archiver already running")
	}
	a.running = true
	a.ctx = ctx
	a.mu.Unlock()

	interval := a.config.Storage.S3.FlushInterval
	if interval <= 0 {
		interval = time.Minute
	}
	a.flushTicker = time.NewTicker(interval)

	a.wg.Add(1)
	go a.flushWorker()

	a.log.WithComponent("archiver").Info("snapshot archiver started")
	return nil
}

// Stop flushes remaining rows and waits for the worker to exit.
func (a *Archiver) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	if a.flushTicker != nil {
		a.flushTicker.Stop()
	}
	a.wg.Wait()
	a.log.WithComponent("archiver").Info("snapshot archiver stopped")
}

// Record converts a snapshot to a row and appends it to the market buffer.
// Intended to be registered as a hub subscriber.
func (a *Archiver) Record(snapshot model.MetricSnapshot) {
	record := ParquetRecord{
		Exchange:       string(snapshot.Market.Exchange),
		Symbol:         snapshot.Market.Symbol,
		Timestamp:      snapshot.Timestamp.UnixMilli(),
		Price:          snapshot.Price,
		LagMs:          snapshot.LagMs,
		VCSScore:       snapshot.VCSScore,
		VCSStatus:      snapshot.VCSStatus,
		EjectionPower:  snapshot.EjectionPower,
		EjectionStatus: snapshot.EjectionStatus,
	}

	key := snapshot.Market.Key()
	a.mu.Lock()
	a.buffer[key] = append(a.buffer[key], record)
	a.mu.Unlock()
}

func (a *Archiver) flushWorker() {
	defer a.wg.Done()

	log := a.log.WithComponent("archiver").WithFields(logger.Fields{"worker": "flush"})
	log.Info("starting flush worker")

	for {
		select {
		case <-a.ctx.Done():
			a.flushBuffers("shutdown")
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-a.flushTicker.C:
			a.flushBuffers("interval")
		}
	}
}

func (a *Archiver) flushBuffers(reason string) {
	a.mu.Lock()
	buffers := a.buffer
	a.buffer = make(map[string][]ParquetRecord)
	a.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	a.log.WithComponent("archiver").WithFields(logger.Fields{
		"flushed_buffers": len(buffers),
		"reason":          reason,
	}).Info("flushing snapshot buffers")

	for key, records := range buffers {
		if len(records) == 0 {
			continue
		}
		a.processBatch(key, records)
	}
}

func (a *Archiver) processBatch(marketKey string, records []ParquetRecord) {
	batchID := uuid.New().String()
	now := time.Now().UTC()

	log := a.log.WithComponent("archiver").WithFields(logger.Fields{
		"batch_id":     batchID,
		"market":       marketKey,
		"record_count": len(records),
		"operation":    "process_batch",
	})

	s3Key := a.generateS3Key(records[0], now)
	log = log.WithFields(logger.Fields{"s3_key": s3Key})

	data, err := a.createParquetFile(records)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	if err := a.uploadToS3(s3Key, data); err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"bucket": a.config.Storage.S3.Bucket,
		}).Error("failed to upload to S3")
		return
	}

	log.WithFields(logger.Fields{"file_size": len(data)}).Info("batch uploaded")
}

func (a *Archiver) generateS3Key(first ParquetRecord, now time.Time) string {
	parts := []string{}
	if prefix := strings.Trim(a.config.Storage.S3.Prefix, "/"); prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts,
		fmt.Sprintf("exchange=%s", first.Exchange),
		fmt.Sprintf("symbol=%s", first.Symbol),
		fmt.Sprintf("%04d/%02d/%02d/%02d", now.Year(), now.Month(), now.Day(), now.Hour()),
		fmt.Sprintf("%s_metrics_%s_%s.parquet", first.Exchange, first.Symbol, now.Format("20060102150405")),
	)

	return filepath.ToSlash(filepath.Join(parts...))
}

func (a *Archiver) createParquetFile(records []ParquetRecord) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch a.config.Storage.S3.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, record := range records {
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	return fw.Bytes(), nil
}

func (a *Archiver) uploadToS3(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":       "parquet",
			"compression":        a.config.Storage.S3.Compression,
			"vortexflow-version": a.config.Vortexflow.Version,
		},
	}

	ctx := context.WithoutCancel(a.ctx)
	_, err := a.s3Client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", a.config.Storage.S3.Bucket, err)
	}
	return nil
}
