package crowd

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/crowdflow/types"
)

// Registry 众包类型注册表
// 启动期注册并装配，Seal 之后只读，通过依赖注入传给处理器
type Registry struct {
	mu     sync.RWMutex
	specs  map[string]*Specification
	owners map[string]string // table -> crowd
	sealed bool
	logger *zap.Logger
}

// NewRegistry 创建注册表
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		specs:  make(map[string]*Specification),
		owners: make(map[string]string),
		logger: logger.With(zap.String("component", "crowd_registry")),
	}
}

// Register 构建并装配一个众包类型
func (r *Registry) Register(name string, task, group, worker, response Shape, opts ...Option) (*Specification, error) {
	if name == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "crowd name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return nil, types.Errorf(types.ErrRegistrySealed, "registry is sealed, cannot register crowd %q", name)
	}
	if _, exists := r.specs[name]; exists {
		return nil, types.Errorf(types.ErrDuplicateRegistration, "crowd %q is already registered", name)
	}

	spec := NewSpecification(name, task, group, worker, response, opts...)
	if err := spec.WireRelationships(); err != nil {
		return nil, err
	}

	tables := spec.Tables()
	for _, table := range tables.All() {
		if owner, taken := r.owners[table]; taken {
			return nil, types.Errorf(types.ErrMalformedShape,
				"crowd %q: table %q already belongs to crowd %q", name, table, owner)
		}
	}
	for _, table := range tables.All() {
		r.owners[table] = name
	}
	r.specs[name] = spec

	r.logger.Info("crowd registered",
		zap.String("crowd", name),
		zap.Strings("tables", tables.All()),
	)
	return spec, nil
}

// Get 按名称查找规格
func (r *Registry) Get(name string) (*Specification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[name]
	if !ok {
		return nil, types.Errorf(types.ErrUnknownCrowdType, "crowd %q is not registered", name)
	}
	return spec, nil
}

// Names 返回已注册的众包类型名（有序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specifications 返回全部规格，按名称排序
func (r *Registry) Specifications() []*Specification {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Specification, 0, len(names))
	for _, name := range names {
		out = append(out, r.specs[name])
	}
	return out
}

// Seal 冻结注册表
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sealed {
		r.sealed = true
		r.logger.Info("crowd registry sealed", zap.Int("crowds", len(r.specs)))
	}
}

// Sealed 是否已冻结
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}
