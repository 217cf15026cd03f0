package series

// Event is one dict-valued observation in a named event stream.
type Event struct {
	TS   int64
	Data Dict
}

// EventList is a dict-typed series whose metric slot holds the event name.
// It shares the ordering and dedup semantics of TimeSeries.
type EventList struct {
	TimeSeries
}

// NewEventList builds an event list for (key, name) and merges any given
// events.
func NewEventList(key, name string, events ...Event) (*EventList, error) {
	ts, err := newSeries(key, name, TypeDict)
	if err != nil {
		return nil, err
	}
	el := &EventList{TimeSeries: *ts}
	for _, ev := range events {
		if _, err := el.Add(ev); err != nil {
			return nil, err
		}
	}
	return el, nil
}

// Name returns the event stream's name.
func (e *EventList) Name() string { return e.Metric() }

// Add merges one event. Events carry no wall clock offset, so it is zero.
func (e *EventList) Add(ev Event) (int, error) {
	return e.InsertPoint(Point{TS: ev.TS, Offset: 0, Value: ev.Data}, false)
}

// Events returns the contained events in timestamp order.
func (e *EventList) Events() []Event {
	out := make([]Event, 0, e.Len())
	for _, p := range e.All() {
		out = append(out, Event{TS: p.TS, Data: p.Value.(Dict)})
	}
	return out
}
