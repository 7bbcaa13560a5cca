package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wisefido-health-ingest/internal/config"
	"wisefido-health-ingest/internal/metrics"
	"wisefido-health-ingest/internal/models"
)

// Execer 执行单条语句（*sql.DB / *sql.Tx 均满足）
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// DiscardExecer 不访问数据库，确认每一批（ingest-cli --dry-run）
type DiscardExecer struct{}

func (DiscardExecer) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return driver.ResultNoRows, nil
}

// ProgressSink 接收写入进度
type ProgressSink interface {
	Report(ctx context.Context, p models.Progress) error
}

const cancelledMessage = "ingest cancelled before chunk was written"

// FamilyResult 单个家族的写入结果
type FamilyResult struct {
	Written      int
	RowsAffected int64
	Chunks       int
}

// WriteResult 一次写入的汇总
type WriteResult struct {
	Families    map[models.Family]*FamilyResult
	Rejected    []models.RejectedRecord
	Diagnostics []models.ConversionDiagnostic
}

// Written 成功写入的记录总数
func (r *WriteResult) Written() int {
	n := 0
	for _, f := range r.Families {
		n += f.Written
	}
	return n
}

// BatchWriter 按家族分批 upsert
// 家族之间并发（上限 max_parallel_families），家族内部按顺序逐批写入。
type BatchWriter struct {
	db      Execer
	cfg     *config.IngestConfig
	logger  *zap.Logger
	metrics *metrics.Manager
}

// NewBatchWriter 创建批量写入器
func NewBatchWriter(db Execer, cfg *config.IngestConfig, logger *zap.Logger, m *metrics.Manager) *BatchWriter {
	return &BatchWriter{
		db:      db,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

// Write 写入分组后的记录；单批失败不影响其他批次和家族
func (w *BatchWriter) Write(ctx context.Context, g *models.GroupedMetrics, sink ProgressSink) (*WriteResult, error) {
	result := &WriteResult{Families: make(map[models.Family]*FamilyResult)}
	progress := newProgressTracker(w.cfg, sink, g.Total(), w.logger)

	var mu sync.Mutex
	var eg errgroup.Group
	eg.SetLimit(w.cfg.MaxParallelFamilies)

	for _, f := range models.AllFamilies {
		if _, ok := SpecFor(f); !ok && len(g.Records(f)) > 0 {
			return nil, &models.InvariantError{Stage: "writer", Message: fmt.Sprintf("family %q has no table spec", f)}
		}
	}

	for _, f := range models.AllFamilies {
		records := g.Records(f)
		if len(records) == 0 {
			continue
		}
		spec, _ := SpecFor(f)
		fr := &FamilyResult{}
		result.Families[f] = fr

		eg.Go(func() error {
			fw := &familyWriter{
				w:        w,
				spec:     spec,
				size:     ChunkSize(w.cfg, f),
				result:   fr,
				progress: progress,
			}
			fw.write(ctx, records)

			mu.Lock()
			result.Rejected = append(result.Rejected, fw.rejected...)
			result.Diagnostics = append(result.Diagnostics, fw.diagnostics...)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	progress.flush(ctx)
	return result, nil
}

// familyWriter 单个家族的顺序写入，只在自己的 goroutine 中使用
type familyWriter struct {
	w           *BatchWriter
	spec        *TableSpec
	size        int
	result      *FamilyResult
	progress    *progressTracker
	rejected    []models.RejectedRecord
	diagnostics []models.ConversionDiagnostic
}

func (fw *familyWriter) write(ctx context.Context, records []models.Metric) {
	for start := 0; start < len(records); start += fw.size {
		end := min(start+fw.size, len(records))
		chunk := records[start:end]

		if ctx.Err() != nil {
			fw.reject(records[start:], cancelledMessage)
			fw.progress.add(ctx, 0, len(records)-start, cancelledMessage)
			return
		}
		fw.writeChunk(ctx, chunk)
	}
}

func (fw *familyWriter) writeChunk(ctx context.Context, chunk []models.Metric) {
	rows, err := fw.exec(ctx, chunk)
	if err == nil {
		fw.acknowledge(chunk, rows)
		fw.progress.add(ctx, len(chunk), 0, "")
		return
	}

	msg := fw.w.storageMessage(err)
	if ctx.Err() != nil {
		fw.reject(chunk, cancelledMessage)
		fw.progress.add(ctx, 0, len(chunk), cancelledMessage)
		return
	}
	if !fw.w.cfg.RetryOnStorageError {
		fw.fail(ctx, chunk, msg)
		return
	}

	fw.w.logger.Warn("Chunk failed, retrying at half size",
		zap.String("family", string(fw.spec.Family)),
		zap.Int("rows", len(chunk)),
		zap.Error(err),
	)
	fw.w.metrics.ObserveChunk(fw.spec.Family, metrics.ChunkRetried, 0)

	allOK := true
	for _, half := range halves(chunk) {
		rows, err := fw.exec(ctx, half)
		if err != nil {
			allOK = false
			fw.fail(ctx, half, fw.w.storageMessage(err))
			continue
		}
		fw.acknowledge(half, rows)
		fw.progress.add(ctx, len(half), 0, "")
	}
	if allOK {
		fw.diagnostics = append(fw.diagnostics, models.ConversionDiagnostic{
			Index:    chunk[0].Common().SourceIndex,
			Family:   fw.spec.Family,
			Kind:     models.KindStorageError,
			Reason:   fmt.Sprintf("chunk of %d rows succeeded after retry at half size: %s", len(chunk), msg),
			Severity: models.SeverityWarning,
		})
	}
}

func (fw *familyWriter) exec(ctx context.Context, chunk []models.Metric) (int64, error) {
	query := buildUpsert(fw.spec, len(chunk))
	args := make([]any, 0, len(chunk)*len(fw.spec.Columns))
	for _, m := range chunk {
		args = append(args, fw.spec.Row(m)...)
	}

	started := time.Now()
	res, err := fw.w.db.ExecContext(ctx, query, args...)
	if err != nil {
		fw.w.metrics.ObserveChunk(fw.spec.Family, metrics.ChunkFailed, time.Since(started))
		return 0, err
	}
	fw.w.metrics.ObserveChunk(fw.spec.Family, metrics.ChunkOK, time.Since(started))

	rows, err := res.RowsAffected()
	if err != nil {
		rows = int64(len(chunk))
	}
	fw.w.logger.Debug("Chunk written",
		zap.String("family", string(fw.spec.Family)),
		zap.Int("chunk", fw.result.Chunks),
		zap.Int("rows", len(chunk)),
		zap.Int64("rows_affected", rows),
	)
	return rows, nil
}

func (fw *familyWriter) acknowledge(chunk []models.Metric, rows int64) {
	fw.result.Written += len(chunk)
	fw.result.RowsAffected += rows
	fw.result.Chunks++
}

func (fw *familyWriter) fail(ctx context.Context, chunk []models.Metric, msg string) {
	fw.w.logger.Error("Chunk rejected",
		zap.String("family", string(fw.spec.Family)),
		zap.Int("rows", len(chunk)),
		zap.String("error", msg),
	)
	fw.reject(chunk, msg)
	fw.progress.add(ctx, 0, len(chunk), msg)
}

func (fw *familyWriter) reject(chunk []models.Metric, msg string) {
	for _, m := range chunk {
		fw.rejected = append(fw.rejected, models.NewRejection(m, models.KindStorageError, msg))
	}
}

// halves 将失败的批次一分为二；单行批次原样重试一次
func halves(chunk []models.Metric) [][]models.Metric {
	if len(chunk) < 2 {
		return [][]models.Metric{chunk}
	}
	mid := len(chunk) / 2
	return [][]models.Metric{chunk[:mid], chunk[mid:]}
}

// storageMessage 驱动错误信息，附带 SQLSTATE，按配置截断
func (w *BatchWriter) storageMessage(err error) string {
	msg := err.Error()
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		msg = fmt.Sprintf("%s (SQLSTATE %s)", pqErr.Message, pqErr.Code)
	}
	return truncate(msg, w.cfg.StorageErrorMaxLen)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

// progressTracker 汇总各家族进度，按批次数或时间间隔推送
type progressTracker struct {
	sink     ProgressSink
	logger   *zap.Logger
	every    int
	interval time.Duration
	total    int

	mu          sync.Mutex
	processed   int
	failed      int
	lastError   string
	sinceReport int
	lastReport  time.Time
	seq         uint64

	// sendMu 串行化推送；sent 为已推送的最新快照序号，旧快照直接丢弃
	sendMu sync.Mutex
	sent   uint64
}

func newProgressTracker(cfg *config.IngestConfig, sink ProgressSink, total int, logger *zap.Logger) *progressTracker {
	return &progressTracker{
		sink:       sink,
		logger:     logger,
		every:      cfg.ProgressEveryChunks,
		interval:   cfg.ProgressInterval,
		total:      total,
		lastReport: time.Now(),
	}
}

func (p *progressTracker) add(ctx context.Context, processed, failed int, lastError string) {
	if p.sink == nil {
		return
	}
	p.mu.Lock()
	p.processed += processed
	p.failed += failed
	if lastError != "" {
		p.lastError = lastError
	}
	p.sinceReport++
	due := (p.every > 0 && p.sinceReport >= p.every) ||
		(p.interval > 0 && time.Since(p.lastReport) >= p.interval)
	if !due {
		p.mu.Unlock()
		return
	}
	seq, update := p.snapshotLocked()
	p.mu.Unlock()

	p.send(ctx, seq, update)
}

func (p *progressTracker) flush(ctx context.Context) {
	if p.sink == nil {
		return
	}
	p.mu.Lock()
	seq, update := p.snapshotLocked()
	p.mu.Unlock()

	p.send(context.WithoutCancel(ctx), seq, update)
}

func (p *progressTracker) snapshotLocked() (uint64, models.Progress) {
	p.sinceReport = 0
	p.lastReport = time.Now()
	p.seq++
	return p.seq, models.Progress{
		Processed: p.processed,
		Failed:    p.failed,
		Total:     p.total,
		LastError: p.lastError,
	}
}

// send 在不持有计数锁的情况下推送；推送失败不影响写入
func (p *progressTracker) send(ctx context.Context, seq uint64, update models.Progress) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if seq <= p.sent {
		return
	}
	p.sent = seq
	if err := p.sink.Report(ctx, update); err != nil {
		p.logger.Warn("Failed to report progress",
			zap.Int("processed", update.Processed),
			zap.Int("failed", update.Failed),
			zap.Int("total", update.Total),
			zap.Error(err),
		)
	}
}
