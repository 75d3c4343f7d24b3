package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/betbot/botdash/pkg/logger"
)

// Service 持久化服务接口
type Service interface {
	NewStore(prefix, id, tag string) Store
}

// Store 存储接口
type Store interface {
	Save(data interface{}) error
	Load(data interface{}) error
	Delete() error
}

// ErrNotExists 表示数据不存在
var ErrNotExists = fmt.Errorf("persistence data not exists")

// JSONFileService 基于 JSON 文件的持久化服务
type JSONFileService struct {
	baseDir string
}

// NewJSONFileService 创建 JSON 文件持久化服务
func NewJSONFileService(baseDir string) *JSONFileService {
	return &JSONFileService{
		baseDir: baseDir,
	}
}

// NewStore 创建新的存储
func (s *JSONFileService) NewStore(prefix, id, tag string) Store {
	return &JSONFileStore{
		service: s,
		key:     fmt.Sprintf("%s:%s:%s", prefix, id, tag),
	}
}

// JSONFileStore JSON 文件存储实现
type JSONFileStore struct {
	service *JSONFileService
	key     string
}

var keySanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func (s *JSONFileStore) filePath() string {
	safe := keySanitizer.ReplaceAllString(s.key, "_")
	return filepath.Join(s.service.baseDir, safe+".json")
}

// Save 保存数据（先写临时文件再 rename）
func (s *JSONFileStore) Save(data interface{}) error {
	logger.Debugf("[persistence] Save: key=%s", s.key)
	if err := os.MkdirAll(s.service.baseDir, 0o700); err != nil {
		return err
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	path := s.filePath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load 加载数据
func (s *JSONFileStore) Load(data interface{}) error {
	logger.Debugf("[persistence] Load: key=%s", s.key)
	b, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExists
		}
		return err
	}
	if len(b) == 0 {
		return ErrNotExists
	}
	return json.Unmarshal(b, data)
}

// Delete 删除数据，不存在时不报错
func (s *JSONFileStore) Delete() error {
	logger.Debugf("[persistence] Delete: key=%s", s.key)
	if err := os.Remove(s.filePath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// KV 基于 Service 的字符串键值存储，每个 key 一个文件
type KV struct {
	service Service
	prefix  string

	mu sync.Mutex
}

// NewKV 创建字符串 KV
func NewKV(service Service, prefix string) *KV {
	return &KV{service: service, prefix: prefix}
}

type kvEntry struct {
	Value string `json:"value"`
}

func (kv *KV) store(key string) Store {
	return kv.service.NewStore(kv.prefix, key, "v")
}

// GetString 返回 (value, found, err)
func (kv *KV) GetString(key string) (string, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	var e kvEntry
	if err := kv.store(key).Load(&e); err != nil {
		if err == ErrNotExists {
			return "", false, nil
		}
		return "", false, err
	}
	return e.Value, true, nil
}

// SetString 写入
func (kv *KV) SetString(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return kv.store(key).Save(kvEntry{Value: value})
}

// Delete 删除
func (kv *KV) Delete(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return kv.store(key).Delete()
}
