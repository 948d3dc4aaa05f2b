package model

// Status is a module-specific lifecycle state. The sync engine never matches
// on concrete values; it only asks the owning module whether a status is
// terminal.
type Status string

// Service tickets.
const (
	ServiceOpen         Status = "open"
	ServiceInProgress   Status = "in_progress"
	ServiceWaitingParts Status = "waiting_parts"
	ServiceCompleted    Status = "completed"
	ServiceCancelled    Status = "cancelled"
)

// Deliveries.
const (
	DeliveryScheduled Status = "scheduled"
	DeliveryInTransit Status = "in_transit"
	DeliveryDelivered Status = "delivered"
	DeliveryCancelled Status = "cancelled"
)

// Tasks.
const (
	TaskTodo       Status = "todo"
	TaskInProgress Status = "in_progress"
	TaskDone       Status = "done"
	TaskCancelled  Status = "cancelled"
)

// Pre-delivery inspections.
const (
	PDIPending    Status = "pending"
	PDIInProgress Status = "in_progress"
	PDIApproved   Status = "approved"
	PDIRejected   Status = "rejected"
)

// Resource bookings and imported external events.
const (
	BookingTentative Status = "tentative"
	BookingConfirmed Status = "confirmed"
	BookingCancelled Status = "cancelled"
)

type statusSet struct {
	all      map[Status]struct{}
	terminal map[Status]struct{}
}

func newStatusSet(active []Status, terminal []Status) statusSet {
	s := statusSet{
		all:      make(map[Status]struct{}, len(active)+len(terminal)),
		terminal: make(map[Status]struct{}, len(terminal)),
	}
	for _, st := range active {
		s.all[st] = struct{}{}
	}
	for _, st := range terminal {
		s.all[st] = struct{}{}
		s.terminal[st] = struct{}{}
	}
	return s
}

var moduleStatuses = map[SourceModule]statusSet{
	ModuleService: newStatusSet(
		[]Status{ServiceOpen, ServiceInProgress, ServiceWaitingParts},
		[]Status{ServiceCompleted, ServiceCancelled},
	),
	ModuleDelivery: newStatusSet(
		[]Status{DeliveryScheduled, DeliveryInTransit},
		[]Status{DeliveryDelivered, DeliveryCancelled},
	),
	ModuleTask: newStatusSet(
		[]Status{TaskTodo, TaskInProgress},
		[]Status{TaskDone, TaskCancelled},
	),
	ModulePDI: newStatusSet(
		[]Status{PDIPending, PDIInProgress},
		[]Status{PDIApproved, PDIRejected},
	),
	ModuleResourceBooking: newStatusSet(
		[]Status{BookingTentative, BookingConfirmed},
		[]Status{BookingCancelled},
	),
	ModuleExternalImport: newStatusSet(
		[]Status{BookingTentative, BookingConfirmed},
		[]Status{BookingCancelled},
	),
}

// Knows reports whether s is a declared status of module m.
func (m SourceModule) Knows(s Status) bool {
	set, ok := moduleStatuses[m]
	if !ok {
		return false
	}
	_, ok = set.all[s]
	return ok
}

// IsTerminal reports whether s is a final state for module m. Unknown
// modules and statuses are never terminal.
func (m SourceModule) IsTerminal(s Status) bool {
	set, ok := moduleStatuses[m]
	if !ok {
		return false
	}
	_, ok = set.terminal[s]
	return ok
}
