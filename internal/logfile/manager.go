package logfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// DefaultMaxSize порог ротации по умолчанию (5 MiB)
const DefaultMaxSize int64 = 5 * 1024 * 1024

// backupTimeLayout суффикс бэкапа: <file>.2006-01-02-15-04-05.bak
const backupTimeLayout = "2006-01-02-15-04-05"

// ErrClosed запись в закрытый Manager
var ErrClosed = errors.New("log file is closed")

// Option настройка Manager
type Option func(*Manager)

// WithClock источник времени для имени бэкапа
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithOnRotate вызывается после каждой успешной ротации (под мьютексом, без записи в журнал)
func WithOnRotate(fn func(backupPath string)) Option {
	return func(m *Manager) { m.onRotate = fn }
}

// Manager единственный владелец активного файла журнала.
// Проверка размера, ротация и запись выполняются под одним мьютексом,
// поэтому два запроса не могут ротировать одновременно и запись не попадает в старый файл.
type Manager struct {
	mu       sync.Mutex
	path     string
	maxSize  int64
	file     *os.File
	size     int64
	now      func() time.Time
	onRotate func(string)
}

// Open открывает (или создаёт) path в режиме append, создавая каталог
func Open(path string, maxSize int64, opts ...Option) (*Manager, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	m := &Manager{path: path, maxSize: maxSize, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.openLocked(); err != nil {
		return nil, err
	}
	return m, nil
}

// Path путь активного файла
func (m *Manager) Path() string {
	return m.path
}

// Append дописывает entry целиком. Если текущий размер уже больше порога,
// файл сначала переименовывается в бэкап, а entry пишется в новый пустой файл.
func (m *Manager) Append(entry []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file == nil {
		return ErrClosed
	}

	var rotateErr error
	if m.size > m.maxSize {
		rotateErr = m.rotateLocked()
		if m.file == nil {
			return rotateErr
		}
	}

	n, err := m.file.Write(entry)
	m.size += int64(n)
	if err != nil {
		return errors.Join(rotateErr, fmt.Errorf("write log entry: %w", err))
	}
	// запись не потеряна даже если ротация не удалась
	if rotateErr != nil {
		return fmt.Errorf("rotate log file: %w", rotateErr)
	}
	return nil
}

// Write реализует io.Writer: один вызов = одна запись
func (m *Manager) Write(p []byte) (int, error) {
	if err := m.Append(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Sync реализует zapcore.WriteSyncer
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	return m.file.Sync()
}

// Close закрывает активный файл. Повторный вызов безопасен.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

func (m *Manager) openLocked() error {
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	m.file = f
	m.size = info.Size()
	return nil
}

// rotateLocked: close, rename в бэкап, открыть новый файл.
// При ошибке rename продолжаем писать в прежний файл.
func (m *Manager) rotateLocked() error {
	closeErr := m.file.Close()
	m.file = nil

	var renameErr error
	backup := m.backupName()
	if closeErr == nil {
		renameErr = os.Rename(m.path, backup)
	}

	if err := m.openLocked(); err != nil {
		return errors.Join(closeErr, renameErr, err)
	}
	if closeErr != nil || renameErr != nil {
		return errors.Join(closeErr, renameErr)
	}
	if m.onRotate != nil {
		m.onRotate(backup)
	}
	return nil
}

// backupName имя бэкапа; при совпадении секунды добавляется .1, .2, ...
func (m *Manager) backupName() string {
	base := m.path + "." + m.now().Format(backupTimeLayout)
	name := base + ".bak"
	for i := 1; fileExists(name); i++ {
		name = base + "." + strconv.Itoa(i) + ".bak"
	}
	return name
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
