package seckill

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// GhostJournal — durable локальный журнал успешных резервирований,
// событие о которых не удалось опубликовать. Формат: JSON line на запись.
// Журнал читается оператором через cmd/seckill-replay.
type GhostJournal struct {
	mu   sync.Mutex
	path string
}

// NewGhostJournal создаёт журнал по указанному пути.
func NewGhostJournal(path string) *GhostJournal {
	return &GhostJournal{path: path}
}

// Append дописывает ghost-заказ в журнал с fsync: запись обязана пережить
// падение процесса.
func (j *GhostJournal) Append(ghost domain.GhostOrder) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	line, err := json.Marshal(ghost)
	if err != nil {
		return fmt.Errorf("marshal ghost order: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ghost journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write ghost journal: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync ghost journal: %w", err)
	}
	return nil
}

// ReadAll читает все записи журнала. Отсутствие файла — пустой журнал.
func (j *GhostJournal) ReadAll() ([]domain.GhostOrder, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ghost journal: %w", err)
	}
	defer f.Close()

	var ghosts []domain.GhostOrder
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ghost domain.GhostOrder
		if err := json.Unmarshal(line, &ghost); err != nil {
			return nil, fmt.Errorf("parse ghost journal line: %w", err)
		}
		ghosts = append(ghosts, ghost)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ghost journal: %w", err)
	}
	return ghosts, nil
}

// Truncate очищает журнал после успешного replay.
func (j *GhostJournal) Truncate() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.Truncate(j.path, 0); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("truncate ghost journal: %w", err)
	}
	return nil
}
