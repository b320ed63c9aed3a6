package template

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/crowdflow/internal/cache"
	"github.com/BaSui01/crowdflow/types"
)

const (
	bundleCacheType  = "template_bundle"
	generationKey    = "template:bundle:gen"
	bundleKeyPattern = "template:bundle:v%d:%s"
)

// BundleCache bundle 缓存，由 internal/cache.Manager 实现
type BundleCache interface {
	Get(ctx context.Context, key string) (string, error)
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
}

// Recorder 模板指标记录，由 internal/metrics.Collector 实现
type Recorder interface {
	RecordTemplateResolution(operation string, resources int, duration time.Duration)
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTemplateResolution(string, int, time.Duration) {}
func (nopRecorder) RecordCacheHit(string)                               {}
func (nopRecorder) RecordCacheMiss(string)                              {}

// Store 模板资源与任务类型存储
type Store struct {
	db           *gorm.DB
	cache        BundleCache
	cacheTTL     time.Duration
	rejectCycles bool
	recorder     Recorder
	logger       *zap.Logger
}

// StoreOption 配置 Store
type StoreOption func(*Store)

// WithCache 启用 bundle 缓存
func WithCache(c BundleCache, ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithCycleCheck 是否在插入依赖边时拒绝环
func WithCycleCheck(enabled bool) StoreOption {
	return func(s *Store) { s.rejectCycles = enabled }
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) StoreOption {
	return func(s *Store) { s.recorder = r }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore 创建存储
func NewStore(db *gorm.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:           db,
		rejectCycles: true,
		recorder:     nopRecorder{},
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "template_store"))
	return s
}

// AutoMigrate 创建模板相关表
func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&TemplateResource{}, &DependencyEdge{}, &RequirementEdge{}, &TaskType{},
	)
}

// ============================================================
// 资源
// ============================================================

// CreateResource 创建资源
func (s *Store) CreateResource(ctx context.Context, name, content string) (*TemplateResource, error) {
	if name == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "resource name is required")
	}
	r := &TemplateResource{Name: name, Content: content}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&TemplateResource{}).Where("name = ?", name).Count(&n).Error; err != nil {
			return types.Internal("check resource", err)
		}
		if n > 0 {
			return types.Errorf(types.ErrAlreadyExists, "resource %q already exists", name)
		}
		if err := tx.Create(r).Error; err != nil {
			return types.Internal("create resource", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return r, nil
}

// GetResource 按名称获取资源
func (s *Store) GetResource(ctx context.Context, name string) (*TemplateResource, error) {
	return getResource(s.db.WithContext(ctx), name)
}

// UpdateContent 更新资源内容
func (s *Store) UpdateContent(ctx context.Context, name, content string) error {
	res := s.db.WithContext(ctx).Model(&TemplateResource{}).Where("name = ?", name).Update("content", content)
	if res.Error != nil {
		return types.Internal("update resource", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.Errorf(types.ErrNotFound, "resource %q not found", name)
	}
	s.invalidate(ctx)
	return nil
}

// AddDependencies 为 name 添加直接依赖；开启环检测时拒绝自依赖与成环的边
func (s *Store) AddDependencies(ctx context.Context, name string, deps ...string) error {
	_, err := s.addDependencies(ctx, name, deps)
	return err
}

// addDependencies 返回实际新插入的边数，已存在的边不计
func (s *Store) addDependencies(ctx context.Context, name string, deps []string) (int, error) {
	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted = 0
		from, err := getResource(tx, name)
		if err != nil {
			return err
		}
		targets, err := getResources(tx, deps)
		if err != nil {
			return err
		}
		for _, to := range targets {
			if s.rejectCycles {
				if err := checkEdge(ctx, tx, from, to); err != nil {
					return err
				}
			}
			edge := &DependencyEdge{ResourceID: from.ID, DependencyID: to.ID}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(edge)
			if res.Error != nil {
				return types.Internal("add dependency", res.Error)
			}
			inserted += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx)
	return inserted, nil
}

// RemoveDependency 删除一条直接依赖
func (s *Store) RemoveDependency(ctx context.Context, name, dep string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		from, err := getResource(tx, name)
		if err != nil {
			return err
		}
		to, err := getResource(tx, dep)
		if err != nil {
			return err
		}
		res := tx.Where("resource_id = ? AND dependency_id = ?", from.ID, to.ID).Delete(&DependencyEdge{})
		if res.Error != nil {
			return types.Internal("remove dependency", res.Error)
		}
		if res.RowsAffected == 0 {
			return types.Errorf(types.ErrNotFound, "%q does not depend on %q", name, dep)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// AddRequirements 为 name 添加直接要求
func (s *Store) AddRequirements(ctx context.Context, name string, reqs ...string) error {
	_, err := s.addRequirements(ctx, name, reqs)
	return err
}

func (s *Store) addRequirements(ctx context.Context, name string, reqs []string) (int, error) {
	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted = 0
		from, err := getResource(tx, name)
		if err != nil {
			return err
		}
		targets, err := getResources(tx, reqs)
		if err != nil {
			return err
		}
		for _, to := range targets {
			edge := &RequirementEdge{ResourceID: from.ID, RequirementID: to.ID}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(edge)
			if res.Error != nil {
				return types.Internal("add requirement", res.Error)
			}
			inserted += int(res.RowsAffected)
		}
		return nil
	})
	return inserted, err
}

// DirectDependencies 返回直接依赖，按名称排序
func (s *Store) DirectDependencies(ctx context.Context, name string) ([]TemplateResource, error) {
	db := s.db.WithContext(ctx)
	r, err := getResource(db, name)
	if err != nil {
		return nil, err
	}
	ids := db.Model(&DependencyEdge{}).Select("dependency_id").Where("resource_id = ?", r.ID)
	return listResources(db.Where("id IN (?)", ids))
}

// DirectRequirements 返回直接要求，按名称排序
func (s *Store) DirectRequirements(ctx context.Context, name string) ([]TemplateResource, error) {
	db := s.db.WithContext(ctx)
	r, err := getResource(db, name)
	if err != nil {
		return nil, err
	}
	ids := db.Model(&RequirementEdge{}).Select("requirement_id").Where("resource_id = ?", r.ID)
	return listResources(db.Where("id IN (?)", ids))
}

// Dependencies 返回传递依赖闭包，按名称排序
func (s *Store) Dependencies(ctx context.Context, name string) ([]TemplateResource, error) {
	start := time.Now()
	db := s.db.WithContext(ctx)
	r, err := getResource(db, name)
	if err != nil {
		return nil, err
	}
	closure, err := Closure(ctx, r.ID, dependencyExpander(db))
	if err != nil {
		return nil, types.Internal("resolve dependencies", err)
	}
	out, err := listResources(db.Where("id IN ?", idList(closure)))
	if err != nil {
		return nil, err
	}
	s.recorder.RecordTemplateResolution("dependencies", len(out), time.Since(start))
	return out, nil
}

// ============================================================
// 任务类型
// ============================================================

// CreateTaskType 创建任务类型
func (s *Store) CreateTaskType(ctx context.Context, name, iterator, point, renderer string) (*TaskType, error) {
	if name == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "task type name is required")
	}
	var tt *TaskType
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&TaskType{}).Where("name = ?", name).Count(&n).Error; err != nil {
			return types.Internal("check task type", err)
		}
		if n > 0 {
			return types.Errorf(types.ErrAlreadyExists, "task type %q already exists", name)
		}
		it, err := getResource(tx, iterator)
		if err != nil {
			return err
		}
		pt, err := getResource(tx, point)
		if err != nil {
			return err
		}
		rd, err := getResource(tx, renderer)
		if err != nil {
			return err
		}
		tt = &TaskType{
			Name:               name,
			IteratorTemplateID: it.ID,
			PointTemplateID:    pt.ID,
			RendererID:         rd.ID,
		}
		if err := tx.Omit(clause.Associations).Create(tt).Error; err != nil {
			return types.Internal("create task type", err)
		}
		tt.IteratorTemplate, tt.PointTemplate, tt.Renderer = it, pt, rd
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tt, nil
}

// GetTaskType 按名称获取任务类型（含三个模板资源）
func (s *Store) GetTaskType(ctx context.Context, name string) (*TaskType, error) {
	var tt TaskType
	err := s.db.WithContext(ctx).
		Preload("IteratorTemplate").
		Preload("PointTemplate").
		Preload("Renderer").
		Where("name = ?", name).
		First(&tt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.Errorf(types.ErrNotFound, "task type %q not found", name)
	}
	if err != nil {
		return nil, types.Internal("load task type", err)
	}
	return &tt, nil
}

// ListTaskTypes 返回全部任务类型名
func (s *Store) ListTaskTypes(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).Model(&TaskType{}).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, types.Internal("list task types", err)
	}
	return names, nil
}

// ResolveTaskType 解析任务类型需要的全部资源：
// 三个根资源与它们的传递依赖的并集，按依赖优先排序
func (s *Store) ResolveTaskType(ctx context.Context, name string) (*Bundle, error) {
	start := time.Now()

	key, cacheable := s.bundleKey(ctx, name)
	if cacheable {
		var cached Bundle
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			s.recorder.RecordCacheHit(bundleCacheType)
			return &cached, nil
		} else if !cache.IsCacheMiss(err) {
			s.logger.Warn("bundle cache read failed", zap.String("task_type", name), zap.Error(err))
		}
		s.recorder.RecordCacheMiss(bundleCacheType)
	}

	tt, err := s.GetTaskType(ctx, name)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	ids := make(map[uint]struct{})
	expand := dependencyExpander(db)
	for _, root := range tt.Roots() {
		ids[root] = struct{}{}
		closure, err := Closure(ctx, root, expand)
		if err != nil {
			return nil, types.Internal("resolve task type", err)
		}
		for id := range closure {
			ids[id] = struct{}{}
		}
	}

	resources, err := listResources(db.Where("id IN ?", idList(ids)))
	if err != nil {
		return nil, err
	}
	var edges []DependencyEdge
	if err := db.Where("resource_id IN ?", idList(ids)).Find(&edges).Error; err != nil {
		return nil, types.Internal("load bundle edges", err)
	}

	bundle := newBundle(tt, resources, edges)
	s.recorder.RecordTemplateResolution("task_type", len(bundle.Resources), time.Since(start))

	if cacheable {
		if err := s.cache.SetJSON(ctx, key, bundle, s.cacheTTL); err != nil {
			s.logger.Warn("bundle cache write failed", zap.String("task_type", name), zap.Error(err))
		}
	}
	return bundle, nil
}

// ============================================================
// 内部辅助
// ============================================================

// bundleKey 读取当前世代并生成缓存键；缓存不可用时返回 false
func (s *Store) bundleKey(ctx context.Context, name string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	gen := int64(0)
	raw, err := s.cache.Get(ctx, generationKey)
	switch {
	case err == nil:
		if gen, err = strconv.ParseInt(raw, 10, 64); err != nil {
			s.logger.Warn("invalid bundle generation", zap.String("value", raw))
			return "", false
		}
	case cache.IsCacheMiss(err):
	default:
		s.logger.Warn("bundle generation read failed", zap.Error(err))
		return "", false
	}
	return fmt.Sprintf(bundleKeyPattern, gen, name), true
}

// invalidate 递增世代，使所有已缓存的 bundle 失效
func (s *Store) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Incr(ctx, generationKey); err != nil {
		s.logger.Warn("bundle cache invalidation failed", zap.Error(err))
	}
}

// checkEdge from → to 会不会成环：from == to，或 from 已在 to 的闭包中
func checkEdge(ctx context.Context, tx *gorm.DB, from, to *TemplateResource) error {
	if from.ID == to.ID {
		return types.Errorf(types.ErrCyclicDependency, "resource %q cannot depend on itself", from.Name)
	}
	closure, err := Closure(ctx, to.ID, dependencyExpander(tx))
	if err != nil {
		return types.Internal("check dependency cycle", err)
	}
	if _, ok := closure[from.ID]; ok {
		return types.Errorf(types.ErrCyclicDependency,
			"adding %q -> %q would create a dependency cycle", from.Name, to.Name)
	}
	return nil
}

// dependencyExpander 每轮一次查询取回 frontier 的全部直接依赖
func dependencyExpander(db *gorm.DB) Expander[uint] {
	return func(_ context.Context, frontier []uint) ([]uint, error) {
		var next []uint
		err := db.Model(&DependencyEdge{}).
			Where("resource_id IN ?", frontier).
			Pluck("dependency_id", &next).Error
		return next, err
	}
}

func getResource(db *gorm.DB, name string) (*TemplateResource, error) {
	var r TemplateResource
	err := db.Where("name = ?", name).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.Errorf(types.ErrNotFound, "resource %q not found", name)
	}
	if err != nil {
		return nil, types.Internal("load resource", err)
	}
	return &r, nil
}

// getResources 按给定顺序加载资源，任一缺失即失败
func getResources(db *gorm.DB, names []string) ([]*TemplateResource, error) {
	out := make([]*TemplateResource, 0, len(names))
	for _, name := range names {
		r, err := getResource(db, name)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func listResources(q *gorm.DB) ([]TemplateResource, error) {
	var out []TemplateResource
	if err := q.Order("name").Find(&out).Error; err != nil {
		return nil, types.Internal("list resources", err)
	}
	return out, nil
}

func idList(set map[uint]struct{}) []uint {
	ids := make([]uint, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
