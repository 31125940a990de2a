package sse

// FuncObserver adapts a closure to ConnectionObserver, mirroring the
// teacher's event-bus pattern of wrapping plain functions as named
// listeners.
type FuncObserver struct {
	name     string
	priority int
	fn       func(ConnectionState) bool
}

func NewFuncObserver(name string, priority int, fn func(ConnectionState) bool) *FuncObserver {
	return &FuncObserver{name: name, priority: priority, fn: fn}
}

func (f *FuncObserver) Name() string                      { return f.name }
func (f *FuncObserver) Priority() int                      { return f.priority }
func (f *FuncObserver) OnChange(state ConnectionState) bool { return f.fn(state) }

// FuncSubscriber adapts a closure callback into a Subscriber, for
// internal handlers such as the engine's AutoRemoveInterceptor that have
// no state beyond their callback.
type FuncSubscriber struct {
	name      string
	watches   []WatchSpec
	strategy  AutoClearStrategy
	goThrough bool
	isPeek    bool
	callback  func(Chain, Response) Response

	currentWatch WatchSpec
	destroyed    bool
}

func NewFuncSubscriber(name string, watches []WatchSpec, strategy AutoClearStrategy, goThrough, isPeek bool, callback func(Chain, Response) Response) *FuncSubscriber {
	return &FuncSubscriber{
		name:      name,
		watches:   watches,
		strategy:  strategy,
		goThrough: goThrough,
		isPeek:    isPeek,
		callback:  callback,
	}
}

func (f *FuncSubscriber) Name() string                 { return f.name }
func (f *FuncSubscriber) Watches() []WatchSpec         { return f.watches }
func (f *FuncSubscriber) CurrentWatch() WatchSpec      { return f.currentWatch }
func (f *FuncSubscriber) SetCurrentWatch(w WatchSpec)  { f.currentWatch = w }
func (f *FuncSubscriber) AutoClearStrategy() AutoClearStrategy { return f.strategy }
func (f *FuncSubscriber) GoThrough() bool              { return f.goThrough }
func (f *FuncSubscriber) IsPeek() bool                 { return f.isPeek }
func (f *FuncSubscriber) Callback(c Chain, r Response) Response { return f.callback(c, r) }
func (f *FuncSubscriber) OnCreate()                    {}
func (f *FuncSubscriber) OnMatch(string)               {}
func (f *FuncSubscriber) OnDestroy()                   {}
func (f *FuncSubscriber) Destroyed() bool              { return f.destroyed }
func (f *FuncSubscriber) SetDestroyed(d bool)          { f.destroyed = d }
