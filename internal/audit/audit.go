package audit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Record describes one mutating action on the board, an order or the
// finance back office.
type Record struct {
	ID        string
	Timestamp time.Time
	Action    string
	OrderID   int64
	Endpoint  string
	Request   string
	Message   string
	Err       string
}

// Logger accepts audit records without blocking the caller.
type Logger interface {
	Log(rec Record)
}

type Nop struct{}

func (Nop) Log(Record) {}

type PoolConfig struct {
	BatchSize   int
	Timeout     time.Duration
	ChannelSize int
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{BatchSize: 20, Timeout: 2 * time.Second, ChannelSize: 256}
}

type Processor interface {
	Process(batch []Record) error
}

// LogProcessor writes records to the structured log. With a Filter set only
// records whose action or message contains it are written.
type LogProcessor struct {
	Log    logrus.FieldLogger
	Filter string
}

func (p *LogProcessor) Process(batch []Record) error {
	filter := strings.ToLower(p.Filter)
	for _, rec := range batch {
		if filter != "" &&
			!strings.Contains(strings.ToLower(rec.Message), filter) &&
			!strings.Contains(strings.ToLower(rec.Action), filter) {
			continue
		}
		entry := p.Log.WithFields(logrus.Fields{
			"audit_id": rec.ID,
			"action":   rec.Action,
			"endpoint": rec.Endpoint,
		})
		if rec.OrderID != 0 {
			entry = entry.WithField("order_id", rec.OrderID)
		}
		if rec.Err != "" {
			entry.WithField("error", rec.Err).Warn(rec.Message)
			continue
		}
		entry.Info(rec.Message)
	}
	return nil
}

type Pool struct {
	inputCh    chan Record
	processors []Processor
	batchSize  int
	timeout    time.Duration
	log        logrus.FieldLogger

	wg sync.WaitGroup
}

var _ Logger = (*Pool)(nil)

func NewPool(cfg PoolConfig, log logrus.FieldLogger, processors ...Processor) *Pool {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	return &Pool{
		inputCh:    make(chan Record, cfg.ChannelSize),
		processors: processors,
		batchSize:  cfg.BatchSize,
		timeout:    cfg.Timeout,
		log:        log,
	}
}

func (p *Pool) Start(ctx context.Context, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker(ctx)
		}()
	}
}

func (p *Pool) worker(ctx context.Context) {
	var batch []Record
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case rec := <-p.inputCh:
					batch = append(batch, rec)
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				p.processBatch(batch)
			}
			return
		case rec := <-p.inputCh:
			batch = append(batch, rec)
			if len(batch) >= p.batchSize {
				if !timer.Stop() {
					<-timer.C
				}
				p.processBatch(batch)
				batch = nil
				timer.Reset(p.timeout)
			}
		case <-timer.C:
			if len(batch) > 0 {
				p.processBatch(batch)
				batch = nil
			}
			timer.Reset(p.timeout)
		}
	}
}

func (p *Pool) processBatch(batch []Record) {
	for _, proc := range p.processors {
		if err := proc.Process(batch); err != nil {
			p.log.WithError(err).WithField("batch", len(batch)).Error("audit batch failed")
		}
	}
}

// Log stamps the record and queues it. A full queue drops the record.
func (p *Pool) Log(rec Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	select {
	case p.inputCh <- rec:
	default:
		p.log.WithField("action", rec.Action).Warn("audit channel full, dropping record")
	}
}

func (p *Pool) Shutdown(cancel context.CancelFunc) {
	cancel()
	p.wg.Wait()
}

// Failed builds the Err field from err, or leaves it empty.
func Failed(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
