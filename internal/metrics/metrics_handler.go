package metrics

import (
	"sort"
	"sync"
	"time"

	"liqfeed/logger"
)

// Metric is one structured metric event. Unit is taken from the "unit" field
// and removed from Fields.
type Metric struct {
	Timestamp time.Time
	Component string
	Name      string
	Value     interface{}
	Type      string
	Unit      string
	Fields    logger.Fields
}

// MetricHandler consumes metric events, e.g. a test recorder or an exporter.
type MetricHandler func(Metric)

// MetricHandlerID identifies a registered handler. Zero is never issued.
type MetricHandlerID uint64

// handlerSet delivers metrics to subscribers in registration order.
type handlerSet struct {
	mu     sync.RWMutex
	byID   map[MetricHandlerID]MetricHandler
	lastID MetricHandlerID
}

var handlers = &handlerSet{byID: make(map[MetricHandlerID]MetricHandler)}

func (s *handlerSet) add(h MetricHandler) MetricHandlerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	s.byID[s.lastID] = h
	return s.lastID
}

func (s *handlerSet) remove(id MetricHandlerID) {
	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()
}

func (s *handlerSet) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *handlerSet) reset() {
	s.mu.Lock()
	s.byID = make(map[MetricHandlerID]MetricHandler)
	s.lastID = 0
	s.mu.Unlock()
}

// snapshot copies the handlers so they run without the lock held.
func (s *handlerSet) snapshot() []MetricHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.byID) == 0 {
		return nil
	}
	ids := make([]MetricHandlerID, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]MetricHandler, len(ids))
	for i, id := range ids {
		out[i] = s.byID[id]
	}
	return out
}

// RegisterMetricHandler subscribes handler to every emitted metric. A nil
// handler is ignored and yields 0.
func RegisterMetricHandler(handler MetricHandler) MetricHandlerID {
	if handler == nil {
		return 0
	}
	return handlers.add(handler)
}

func UnregisterMetricHandler(id MetricHandlerID) {
	if id != 0 {
		handlers.remove(id)
	}
}

// HandlerCount returns the number of registered handlers.
func HandlerCount() int {
	return handlers.count()
}

// recordMetric writes the metric log line and notifies handlers. It reports
// false for unnamed metrics and for metrics whose feature is switched off.
func recordMetric(log *logger.Log, component, name string, value interface{}, metricType string, fields logger.Fields) (Metric, bool) {
	if name == "" || !metricEnabled(name) {
		return Metric{}, false
	}
	if metricType == "" {
		metricType = "counter"
	}
	if log == nil {
		log = logger.GetLogger()
	}

	m := Metric{
		Timestamp: timeNow(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    make(logger.Fields, len(fields)),
	}
	for k, v := range fields {
		if k == "unit" {
			m.Unit, _ = v.(string)
			continue
		}
		m.Fields[k] = v
	}

	log.WithComponent(component).LogMetric(component, name, value, metricType, m.logFields())

	for _, h := range handlers.snapshot() {
		h(m)
	}
	return m, true
}

func (m Metric) logFields() logger.Fields {
	out := make(logger.Fields, len(m.Fields)+1)
	for k, v := range m.Fields {
		out[k] = v
	}
	if m.Unit != "" {
		out["unit"] = m.Unit
	}
	return out
}
