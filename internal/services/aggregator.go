package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/regulation-mapper/internal/models"
	"github.com/fyerfyer/regulation-mapper/internal/render"
	"github.com/gammazero/workerpool"
	"github.com/sirupsen/logrus"
)

// DefaultWorkers 默认并发分类数
const DefaultWorkers = 10

// ChapterClassifier 章节分类接口
// 由classifier.Classifier实现
type ChapterClassifier interface {
	Classify(ctx context.Context, documentText, chapterText, chapterNum, partNum string) (*models.ClassificationResult, error)
}

// chapterTask 一个待分类的章节，章节文本在分发前已渲染完成
type chapterTask struct {
	chapterText string
	chapterNum  string
	partNum     string
}

// TaskOutcome 单个分类任务的执行结果
// Result 与 Err 有且只有一个非空
type TaskOutcome struct {
	ChapterNum string
	PartNum    string
	Result     *models.ClassificationResult
	Err        error
}

// Aggregator 并发分类所有章节并汇总报告
type Aggregator struct {
	classifier  ChapterClassifier
	workers     int
	taskTimeout time.Duration
	logger      *logrus.Logger
}

// AggregatorOption 汇总器配置选项
type AggregatorOption func(*Aggregator)

// WithWorkers 设置并发数
func WithWorkers(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithTaskTimeout 设置单个分类任务的超时时间，0表示不限制
func WithTaskTimeout(timeout time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if timeout >= 0 {
			a.taskTimeout = timeout
		}
	}
}

// WithAggregatorLogger 设置日志记录器
func WithAggregatorLogger(logger *logrus.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAggregator 创建汇总器
func NewAggregator(classifier ChapterClassifier, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		classifier: classifier,
		workers:    DefaultWorkers,
		logger:     logrus.New(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Aggregate 对语料中的每个章节执行一次分类并汇总
// 执行失败的任务只记录日志并丢弃，不会中断其他任务
func (a *Aggregator) Aggregate(ctx context.Context, documentText string, corpus models.Corpus) *models.AggregateReport {
	report := models.NewAggregateReport()

	tasks := buildTasks(corpus)
	if len(tasks) == 0 {
		return report
	}

	outcomes := make(chan TaskOutcome, len(tasks))
	wp := workerpool.New(a.workers)

	for _, task := range tasks {
		task := task
		wp.Submit(func() {
			outcomes <- a.run(ctx, documentText, task)
		})
	}

	go func() {
		wp.StopWait()
		close(outcomes)
	}()

	// 按完成顺序收集
	for outcome := range outcomes {
		if outcome.Err != nil {
			a.logger.WithError(outcome.Err).WithFields(logrus.Fields{
				"chapter_num": outcome.ChapterNum,
				"part_num":    outcome.PartNum,
			}).Error("Chapter classification failed")
			continue
		}
		report.Add(outcome.Result)
	}

	a.logger.WithFields(logrus.Fields{
		"chapters":          len(tasks),
		"processed":         report.Summary.TotalChaptersProcessed,
		"relevant_chapters": report.Summary.RelevantChaptersCount,
	}).Info("Aggregation completed")

	return report
}

// run 执行单个分类任务，panic也转换为失败结果
func (a *Aggregator) run(ctx context.Context, documentText string, task chapterTask) (outcome TaskOutcome) {
	outcome = TaskOutcome{ChapterNum: task.chapterNum, PartNum: task.partNum}

	defer func() {
		if r := recover(); r != nil {
			outcome.Result = nil
			outcome.Err = fmt.Errorf("classification panicked: %v", r)
		}
	}()

	if a.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.taskTimeout)
		defer cancel()
	}

	result, err := a.classifier.Classify(ctx, documentText, task.chapterText, task.chapterNum, task.partNum)
	if err == nil && result == nil {
		err = errors.New("classifier returned no result")
	}
	if err != nil {
		outcome.Err = err
		return outcome
	}

	outcome.Result = result
	return outcome
}

// buildTasks 展开语料为章节任务列表
func buildTasks(corpus models.Corpus) []chapterTask {
	tasks := make([]chapterTask, 0, corpus.ChapterCount())
	for _, part := range corpus {
		partNum := render.Identifier(part.PartNum, "None")
		for _, chapter := range part.Chapters {
			tasks = append(tasks, chapterTask{
				chapterText: render.Chapter(chapter, part.PartNum, part.PartTitle).String(),
				chapterNum:  render.Identifier(chapter.ChapterNum, "Unknown"),
				partNum:     partNum,
			})
		}
	}
	return tasks
}
