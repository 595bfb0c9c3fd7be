package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
)

const (
	// DefaultQueueSize: ёмкость очереди на запись по умолчанию.
	DefaultQueueSize = 256

	orderFilePrefix = "order_"
	dailyFilePrefix = "daily_"
	fileSuffix      = ".json"

	dirPerm  = 0o755
	filePerm = 0o644
)

// WriterOptions задаёт параметры Writer.
type WriterOptions struct {
	Logger    *log.Entry
	Metrics   *metrics.POSMetrics
	QueueSize int
}

// Option настраивает Writer.
type Option func(*WriterOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WriterOptions) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики записи.
func WithMetrics(m *metrics.POSMetrics) Option {
	return func(opts *WriterOptions) {
		opts.Metrics = m
	}
}

// WithQueueSize задаёт ёмкость очереди заказов на запись.
func WithQueueSize(size int) Option {
	return func(opts *WriterOptions) {
		opts.QueueSize = size
	}
}

// Writer сохраняет заказы в каталог: order_<номер>.json на каждый заказ и
// daily_<YYYY-MM-DD>.json с массивом заказов за UTC-сутки.
//
// Persist только ставит заказ в очередь. Все записи выполняет одна горутина Run,
// поэтому read-modify-write дневного файла не теряет обновлений.
type Writer struct {
	dir     string
	logger  *log.Entry
	metrics *metrics.POSMetrics

	queue chan domain.Order
	done  chan struct{}

	mu     sync.RWMutex // защищает closed и отправку в queue
	closed bool

	fileMu sync.Mutex // сериализует WriteOrder
}

// NewWriter создаёт Writer для каталога dir. Каталог создаётся при первой записи.
func NewWriter(dir string, options ...Option) *Writer {
	opts := WriterOptions{QueueSize: DefaultQueueSize}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-writer")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}

	return &Writer{
		dir:     dir,
		logger:  logger,
		metrics: opts.Metrics,
		queue:   make(chan domain.Order, opts.QueueSize),
		done:    make(chan struct{}),
	}
}

// Persist ставит заказ в очередь на запись и никогда не блокирует.
// Ошибки (переполнение, остановленный writer) только логируются.
func (w *Writer) Persist(order domain.Order) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	entry := w.logger.WithField("order_number", order.OrderNumber)
	if w.closed {
		entry.WithError(domain.ErrWriterClosed).Error("order is not persisted")
		w.metrics.RecordPersistFailure(metrics.PersistStageQueue)
		return
	}

	select {
	case w.queue <- order.Clone():
	default:
		entry.WithError(domain.ErrPersistQueueFull).Error("order is not persisted")
		w.metrics.RecordPersistFailure(metrics.PersistStageQueue)
	}
}

// Run обрабатывает очередь до Close или отмены ctx. Перед выходом записывает
// всё, что уже было поставлено в очередь.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case order, ok := <-w.queue:
			if !ok {
				return
			}
			w.handle(order)
		case <-ctx.Done():
			w.drain()
			return
		}
	}
}

// Close перестаёт принимать заказы. Run дописывает очередь и завершается.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	close(w.queue)
}

// Done закрывается, когда Run завершился.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

func (w *Writer) drain() {
	for {
		select {
		case order, ok := <-w.queue:
			if !ok {
				return
			}
			w.handle(order)
		default:
			return
		}
	}
}

func (w *Writer) handle(order domain.Order) {
	start := time.Now()
	if err := w.WriteOrder(order); err != nil {
		w.logger.WithError(err).WithFields(log.Fields{
			"order_number": order.OrderNumber,
			"date":         order.DateKey(),
		}).Error("failed to persist order")
		return
	}
	w.metrics.RecordPersistDuration(time.Since(start))
	w.logger.WithField("order_number", order.OrderNumber).Debug("order persisted")
}

// WriteOrder синхронно записывает файл заказа и дописывает его в дневной файл.
func (w *Writer) WriteOrder(order domain.Order) error {
	w.fileMu.Lock()
	defer w.fileMu.Unlock()

	if err := os.MkdirAll(w.dir, dirPerm); err != nil {
		w.metrics.RecordPersistFailure(metrics.PersistStageOrderFile)
		return fmt.Errorf("create orders dir: %w", err)
	}

	if err := writeJSON(w.orderPath(order.OrderNumber), order); err != nil {
		w.metrics.RecordPersistFailure(metrics.PersistStageOrderFile)
		return fmt.Errorf("write order file: %w", err)
	}

	date := order.DateKey()
	daily, err := w.readDaily(date)
	if err != nil {
		w.metrics.RecordPersistFailure(metrics.PersistStageDailyFile)
		return err
	}
	daily = append(daily, order)
	if err := writeJSON(w.dailyPath(date), daily); err != nil {
		w.metrics.RecordPersistFailure(metrics.PersistStageDailyFile)
		return fmt.Errorf("write daily file: %w", err)
	}

	return nil
}

// ReadDaily возвращает заказы из дневного файла. Для отсутствующего файла возвращает пустой список.
func (w *Writer) ReadDaily(date string) ([]domain.Order, error) {
	w.fileMu.Lock()
	defer w.fileMu.Unlock()
	return w.readDaily(date)
}

// ReadOrder читает файл заказа. Для отсутствующего файла возвращает fs.ErrNotExist.
func (w *Writer) ReadOrder(number int64) (domain.Order, error) {
	raw, err := os.ReadFile(w.orderPath(number))
	if err != nil {
		return domain.Order{}, fmt.Errorf("read order file: %w", err)
	}

	var order domain.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return domain.Order{}, fmt.Errorf("decode order file: %w", err)
	}
	return order, nil
}

// DailyDates возвращает даты, за которые есть дневные файлы, по возрастанию.
func (w *Writer) DailyDates() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(w.dir, dailyFilePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, fmt.Errorf("list daily files: %w", err)
	}

	dates := make([]string, 0, len(matches))
	for _, path := range matches {
		name := filepath.Base(path)
		date := name[len(dailyFilePrefix) : len(name)-len(fileSuffix)]
		if _, err := time.Parse(domain.DateLayout, date); err != nil {
			continue
		}
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates, nil
}

// Writable проверяет, что в каталог можно писать. Используется health-check'ом.
func (w *Writer) Writable() error {
	if err := os.MkdirAll(w.dir, dirPerm); err != nil {
		return fmt.Errorf("create orders dir: %w", err)
	}
	probe, err := os.CreateTemp(w.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("orders dir is not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}

func (w *Writer) readDaily(date string) ([]domain.Order, error) {
	raw, err := os.ReadFile(w.dailyPath(date))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []domain.Order{}, nil
		}
		return nil, fmt.Errorf("read daily file: %w", err)
	}

	var orders []domain.Order
	if err := json.Unmarshal(raw, &orders); err != nil {
		// Не перезаписываем повреждённый файл, чтобы не потерять уже сохранённые заказы.
		return nil, fmt.Errorf("decode daily file %s: %w", date, err)
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

func (w *Writer) orderPath(number int64) string {
	return filepath.Join(w.dir, orderFilePrefix+strconv.FormatInt(number, 10)+fileSuffix)
}

func (w *Writer) dailyPath(date string) string {
	return filepath.Join(w.dir, dailyFilePrefix+date+fileSuffix)
}

// writeJSON пишет v во временный файл рядом с path и переименовывает его.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

var _ domain.OrderPersister = (*Writer)(nil)
