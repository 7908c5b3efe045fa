package corpus

import (
	"context"
	"fmt"
	"os"

	"github.com/fyerfyer/regulation-mapper/internal/models"
)

// Loader 法规语料加载接口
type Loader interface {
	// Load 加载完整的章节语料
	Load(ctx context.Context) (models.Corpus, error)
}

// FileLoader 从JSON文件加载语料
// 每次调用都重新读取文件，修改语料无需重启服务
type FileLoader struct {
	path string
}

// NewFileLoader 创建文件语料加载器
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Path 返回语料文件路径
func (l *FileLoader) Path() string {
	return l.path
}

// Load 读取并解析语料文件
func (l *FileLoader) Load(ctx context.Context) (models.Corpus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus %s: %w", l.path, err)
	}

	corpus, err := models.ParseCorpus(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse corpus %s: %w", l.path, err)
	}
	return corpus, nil
}

// StaticLoader 返回固定语料，用于测试和内嵌语料
type StaticLoader struct {
	corpus models.Corpus
}

// NewStaticLoader 创建固定语料加载器
func NewStaticLoader(corpus models.Corpus) *StaticLoader {
	return &StaticLoader{corpus: corpus}
}

// Load 返回固定语料
func (l *StaticLoader) Load(ctx context.Context) (models.Corpus, error) {
	return l.corpus, nil
}
