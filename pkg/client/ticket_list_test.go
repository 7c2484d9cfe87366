package client

import (
	"reflect"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func ticketAt(id int64, status TicketStatus, user, queue *int64, minute int) Ticket {
	return Ticket{
		ID:        id,
		Status:    status,
		ContactID: id * 10,
		UserID:    user,
		QueueID:   queue,
		UpdatedAt: epoch.Add(time.Duration(minute) * time.Minute),
	}
}

func ticketFrame(t *testing.T, action Action, ticket Ticket) Frame {
	t.Helper()
	e, err := events.TicketEvent(action, &ticket, TopicStatus(ticket.Status))
	if err != nil {
		t.Fatalf("ticket event: %v", err)
	}
	return e.Frame()
}

func deleteFrame(t *testing.T, id int64) Frame {
	t.Helper()
	e, err := events.TicketDeletedEvent(id, TopicTicket(id))
	if err != nil {
		t.Fatalf("delete event: %v", err)
	}
	return e.Frame()
}

func messageFrame(t *testing.T, action Action, msg Message, ticket *Ticket) Frame {
	t.Helper()
	e, err := events.NewEvent(EventAppMessage, action, MessagePayload{Action: action, Message: &msg, Ticket: ticket}, TopicTicket(msg.TicketID))
	if err != nil {
		t.Fatalf("message event: %v", err)
	}
	return e.Frame()
}

func ids(tickets []Ticket) []int64 {
	out := make([]int64, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.ID)
	}
	return out
}

func mustApply(t *testing.T, l *TicketList, f Frame) bool {
	t.Helper()
	changed, err := l.Apply(f)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	return changed
}

func newOpenBoard(t *testing.T, me int64, queues ...int64) *TicketList {
	t.Helper()
	l := NewTicketList(TicketFilter{Status: StatusOpen, UserID: me, QueueIDs: queues})
	l.LoadPage([]Ticket{
		ticketAt(1, StatusOpen, domain.IDPtr(me), domain.IDPtr(5), 3),
		ticketAt(2, StatusOpen, domain.IDPtr(me), domain.IDPtr(5), 2),
		ticketAt(3, StatusOpen, domain.IDPtr(me), nil, 1),
	}, true)
	return l
}

func TestTicketListUpdateReplacesInPlace(t *testing.T) {
	l := newOpenBoard(t, 7, 5)

	updated := ticketAt(2, StatusOpen, domain.IDPtr(7), domain.IDPtr(5), 10)
	updated.LastMessage = "edited"
	if !mustApply(t, l, ticketFrame(t, ActionUpdate, updated)) {
		t.Fatalf("expected change")
	}
	if got := ids(l.Tickets()); !reflect.DeepEqual(got, []int64{1, 2, 3}) {
		t.Fatalf("update reordered board: %v", got)
	}
	if l.Tickets()[1].LastMessage != "edited" {
		t.Fatalf("update not applied")
	}
}

func TestTicketListUpdateIsIdempotent(t *testing.T) {
	l := newOpenBoard(t, 7, 5)
	frame := ticketFrame(t, ActionUpdate, ticketAt(3, StatusOpen, domain.IDPtr(7), domain.IDPtr(5), 20))

	mustApply(t, l, frame)
	once := l.Tickets()
	mustApply(t, l, frame)
	if !reflect.DeepEqual(once, l.Tickets()) {
		t.Fatalf("second apply changed state")
	}
}

func TestTicketListUnreadActivityMovesToFront(t *testing.T) {
	l := newOpenBoard(t, 7, 5)

	mustApply(t, l, ticketFrame(t, ActionUpdateUnread, ticketAt(3, StatusOpen, domain.IDPtr(7), nil, 30)))
	if got := ids(l.Tickets()); !reflect.DeepEqual(got, []int64{3, 1, 2}) {
		t.Fatalf("updateUnread: %v", got)
	}

	ticket := ticketAt(2, StatusOpen, domain.IDPtr(7), domain.IDPtr(5), 31)
	ticket.UnreadMessages = 4
	msg := Message{ID: "M1", TicketID: 2, Body: "hi", CreatedAt: epoch}
	mustApply(t, l, messageFrame(t, ActionCreate, msg, &ticket))
	got := l.Tickets()
	if !reflect.DeepEqual(ids(got), []int64{2, 3, 1}) {
		t.Fatalf("new message: %v", ids(got))
	}
	if got[0].UnreadMessages != 4 {
		t.Fatalf("ticket snapshot not refreshed: %+v", got[0])
	}
}

func TestTicketListCreatePrependsAndDeleteRemoves(t *testing.T) {
	l := newOpenBoard(t, 7, 5)

	mustApply(t, l, ticketFrame(t, ActionCreate, ticketAt(9, StatusOpen, domain.IDPtr(7), domain.IDPtr(5), 40)))
	if got := ids(l.Tickets()); !reflect.DeepEqual(got, []int64{9, 1, 2, 3}) {
		t.Fatalf("create: %v", got)
	}
	mustApply(t, l, deleteFrame(t, 1))
	if got := ids(l.Tickets()); !reflect.DeepEqual(got, []int64{9, 2, 3}) {
		t.Fatalf("delete: %v", got)
	}
	if mustApply(t, l, deleteFrame(t, 1)) {
		t.Fatalf("deleting an absent id should be a no-op")
	}
}

func TestTicketListFiltersForeignTickets(t *testing.T) {
	l := newOpenBoard(t, 7, 5)

	if mustApply(t, l, ticketFrame(t, ActionCreate, ticketAt(20, StatusOpen, domain.IDPtr(8), domain.IDPtr(5), 50))) {
		t.Fatalf("ticket of another agent was added")
	}
	if mustApply(t, l, ticketFrame(t, ActionCreate, ticketAt(21, StatusOpen, domain.IDPtr(7), domain.IDPtr(6), 50))) {
		t.Fatalf("ticket of a foreign queue was added")
	}
	if !mustApply(t, l, ticketFrame(t, ActionUpdate, ticketAt(1, StatusClosed, domain.IDPtr(7), domain.IDPtr(5), 50))) {
		t.Fatalf("closed ticket should leave the open board")
	}
	if got := ids(l.Tickets()); !reflect.DeepEqual(got, []int64{2, 3}) {
		t.Fatalf("unexpected board %v", got)
	}

	all := NewTicketList(TicketFilter{Status: StatusOpen, UserID: 7, ShowAll: true})
	if !mustApply(t, all, ticketFrame(t, ActionCreate, ticketAt(20, StatusOpen, domain.IDPtr(8), domain.IDPtr(5), 50))) {
		t.Fatalf("showAll board should include other agents")
	}
}

func TestTicketListPageDoesNotRollBackEvents(t *testing.T) {
	l := newOpenBoard(t, 7, 5)
	fresh := ticketAt(2, StatusOpen, domain.IDPtr(7), domain.IDPtr(5), 60)
	fresh.LastMessage = "from event"
	mustApply(t, l, ticketFrame(t, ActionUpdate, fresh))

	stale := ticketAt(2, StatusOpen, domain.IDPtr(7), domain.IDPtr(5), 2)
	stale.LastMessage = "from page"
	added := l.LoadPage([]Ticket{stale, ticketAt(4, StatusOpen, domain.IDPtr(7), domain.IDPtr(5), 0)}, false)

	if added != 1 {
		t.Fatalf("expected 1 added, got %d", added)
	}
	if got := ids(l.Tickets()); !reflect.DeepEqual(got, []int64{1, 2, 3, 4}) {
		t.Fatalf("unexpected board %v", got)
	}
	if l.Tickets()[1].LastMessage != "from event" {
		t.Fatalf("stale page overwrote event")
	}
	if l.HasMore() {
		t.Fatalf("expected no more pages")
	}
}

func TestTicketListPageDoesNotRestoreRemovedTicket(t *testing.T) {
	l := NewTicketList(TicketFilter{Status: StatusPending, UserID: 7})
	l.LoadPage([]Ticket{ticketAt(1, StatusPending, nil, nil, 0)}, true)

	mustApply(t, l, deleteFrame(t, 9))
	mustApply(t, l, ticketFrame(t, ActionUpdate, ticketAt(9, StatusOpen, domain.IDPtr(8), nil, 10)))

	added := l.LoadPage([]Ticket{ticketAt(9, StatusPending, nil, nil, 5)}, false)
	if added != 0 {
		t.Fatalf("stale page copy was added")
	}
	if got := ids(l.Tickets()); !reflect.DeepEqual(got, []int64{1}) {
		t.Fatalf("unexpected board %v", got)
	}
}

func TestTicketListDeleteStampBlocksOlderPageCopies(t *testing.T) {
	l := NewTicketList(TicketFilter{Status: StatusPending, UserID: 7})
	l.LoadPage([]Ticket{ticketAt(4, StatusPending, nil, nil, 3)}, true)

	del := deleteFrame(t, 4)
	del.Timestamp = epoch.Add(20 * time.Minute)
	if !mustApply(t, l, del) {
		t.Fatalf("expected ticket 4 removed")
	}
	if added := l.LoadPage([]Ticket{ticketAt(4, StatusPending, nil, nil, 20)}, true); added != 0 {
		t.Fatalf("copy as old as the removal came back")
	}
	if added := l.LoadPage([]Ticket{ticketAt(4, StatusPending, nil, nil, 30)}, false); added != 1 {
		t.Fatalf("copy newer than the removal should load")
	}
}

func TestTicketListResetForgetsRemovals(t *testing.T) {
	l := newOpenBoard(t, 7, 5)
	if !mustApply(t, l, ticketFrame(t, ActionUpdate, ticketAt(2, StatusPending, nil, domain.IDPtr(5), 10))) {
		t.Fatalf("expected ticket 2 to leave the open board")
	}
	if added := l.LoadPage([]Ticket{ticketAt(2, StatusOpen, domain.IDPtr(7), domain.IDPtr(5), 2)}, true); added != 0 {
		t.Fatalf("stale copy of ticket 2 came back")
	}

	l.Reset(TicketFilter{Status: StatusOpen, UserID: 7, QueueIDs: []int64{5}})
	if added := l.LoadPage([]Ticket{ticketAt(2, StatusOpen, domain.IDPtr(7), domain.IDPtr(5), 2)}, false); added != 1 {
		t.Fatalf("reset should forget removals")
	}
}

func TestTicketListSearchDoesNotAddFromEvents(t *testing.T) {
	l := NewTicketList(TicketFilter{Status: StatusOpen, UserID: 7, Searching: true})
	l.LoadPage([]Ticket{ticketAt(1, StatusOpen, domain.IDPtr(7), nil, 0)}, false)

	if mustApply(t, l, ticketFrame(t, ActionCreate, ticketAt(2, StatusOpen, domain.IDPtr(7), nil, 1))) {
		t.Fatalf("search results grew from an event")
	}
	if !mustApply(t, l, ticketFrame(t, ActionUpdate, ticketAt(1, StatusOpen, domain.IDPtr(7), nil, 2))) {
		t.Fatalf("present search result should still update")
	}
}

func TestTicketListContactUpdate(t *testing.T) {
	l := newOpenBoard(t, 7, 5)
	e, err := events.NewEvent(EventContact, ActionUpdate, ContactPayload{Action: ActionUpdate, Contact: &Contact{ID: 20, Name: "Renamed"}}, events.TopicGlobal)
	if err != nil {
		t.Fatalf("contact event: %v", err)
	}
	if !mustApply(t, l, e.Frame()) {
		t.Fatalf("expected contact change")
	}
	if c := l.Tickets()[1].Contact; c == nil || c.Name != "Renamed" {
		t.Fatalf("contact not patched: %+v", c)
	}
}
