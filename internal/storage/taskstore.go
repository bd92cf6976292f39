// Package storage provides the file-backed task store. The store owns the
// tasks.json document exclusively: every save rewrites the whole file under
// single-writer discipline, and task IDs come from a persisted counter so
// they remain stable across deletions.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pmbridge/pmbridge/pkg/models"
)

const (
	tasksFile   = "tasks.json"
	counterFile = ".task_counter"
)

// TaskStore defines the interface for durable task persistence.
type TaskStore interface {
	// Load reads the task document from disk. A missing file loads as empty.
	Load() error
	// Save rewrites the whole task document.
	Save() error
	// Tasks returns the in-memory task list in insertion order.
	Tasks() []models.Task
	// Replace swaps the in-memory task list wholesale.
	Replace(tasks []models.Task)
	// Get returns a copy of the task with the given ID.
	Get(taskID string) (*models.Task, bool)
	// Put updates the task with a matching ID in place.
	Put(task models.Task) error
	// NextID allocates the next sequential task ID (PREFIX-N). The counter
	// is persisted independently of the task list, so IDs are never reused
	// after deletions.
	NextID() (string, error)
}

type fileTaskStore struct {
	basePath string
	prefix   string
	tasks    []models.Task
}

// NewTaskStore creates a TaskStore backed by tasks.json in basePath.
// IDs are issued as prefix-N.
func NewTaskStore(basePath, prefix string) TaskStore {
	if prefix == "" {
		prefix = "TASK"
	}
	return &fileTaskStore{basePath: basePath, prefix: prefix}
}

func (s *fileTaskStore) tasksPath() string {
	return filepath.Join(s.basePath, tasksFile)
}

func (s *fileTaskStore) counterPath() string {
	return filepath.Join(s.basePath, counterFile)
}

func (s *fileTaskStore) Load() error {
	data, err := os.ReadFile(s.tasksPath())
	if err != nil {
		if os.IsNotExist(err) {
			s.tasks = nil
			return nil
		}
		return fmt.Errorf("loading tasks: %w", err)
	}

	var tasks []models.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return fmt.Errorf("loading tasks: parsing JSON: %w", err)
	}
	s.tasks = tasks
	return nil
}

func (s *fileTaskStore) Save() error {
	if err := os.MkdirAll(s.basePath, 0o750); err != nil {
		return fmt.Errorf("saving tasks: creating directory: %w", err)
	}

	list := s.tasks
	if list == nil {
		list = []models.Task{}
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("saving tasks: marshalling JSON: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(s.tasksPath(), data, 0o600); err != nil {
		return fmt.Errorf("saving tasks: writing file: %w", err)
	}
	return nil
}

func (s *fileTaskStore) Tasks() []models.Task {
	out := make([]models.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

func (s *fileTaskStore) Replace(tasks []models.Task) {
	s.tasks = tasks
}

func (s *fileTaskStore) Get(taskID string) (*models.Task, bool) {
	for i := range s.tasks {
		if s.tasks[i].ID == taskID {
			cp := s.tasks[i]
			return &cp, true
		}
	}
	return nil, false
}

func (s *fileTaskStore) Put(task models.Task) error {
	for i := range s.tasks {
		if s.tasks[i].ID == task.ID {
			s.tasks[i] = task
			return nil
		}
	}
	return fmt.Errorf("task %s not found", task.ID)
}

// NextID reads and increments the counter file under an exclusive lock,
// returning the next sequential ID.
func (s *fileTaskStore) NextID() (string, error) {
	if err := os.MkdirAll(s.basePath, 0o750); err != nil {
		return "", fmt.Errorf("allocating task ID: creating directory: %w", err)
	}

	unlock, err := s.lockCounter()
	if err != nil {
		return "", fmt.Errorf("allocating task ID: acquiring lock: %w", err)
	}
	defer unlock()

	counter := 0
	data, err := os.ReadFile(s.counterPath())
	if err == nil {
		trimmed := strings.TrimSpace(string(data))
		if trimmed != "" {
			counter, err = strconv.Atoi(trimmed)
			if err != nil {
				return "", fmt.Errorf("allocating task ID: parsing counter: %w", err)
			}
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("allocating task ID: reading counter: %w", err)
	}

	counter++
	if err := os.WriteFile(s.counterPath(), []byte(strconv.Itoa(counter)), 0o600); err != nil {
		return "", fmt.Errorf("allocating task ID: writing counter: %w", err)
	}
	return fmt.Sprintf("%s-%d", s.prefix, counter), nil
}

// lockCounter acquires an exclusive flock on the counter file.
func (s *fileTaskStore) lockCounter() (unlock func() error, err error) {
	f, err := os.OpenFile(s.counterPath(), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening counter lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("acquiring counter lock: %w", err)
	}

	return func() error {
		defer f.Close()
		return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}, nil
}
