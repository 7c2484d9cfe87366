package service

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

func TestInboundFromNewContactCreatesPendingTicketWithoutQueue(t *testing.T) {
	f := newFixture(t)

	msg := f.inbound(t, "IN-1", "5511999990000", "hello")
	ticket, err := f.tickets.ShowTicket(f.ctx, msg.TicketID)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if ticket.Status != domain.TicketStatusPending {
		t.Fatalf("status = %s, want pending", ticket.Status)
	}
	if ticket.QueueID != nil || ticket.UserID != nil {
		t.Fatalf("queue/user should be unset, got %v/%v", ticket.QueueID, ticket.UserID)
	}
	if ticket.Contact == nil || ticket.Contact.Number != "5511999990000" {
		t.Fatalf("unexpected contact %+v", ticket.Contact)
	}

	created := f.rec.matching(events.EventTicket, events.ActionCreate)
	if len(created) != 1 || !hasTopics(created[0], "pending", events.TopicNotification) {
		t.Fatalf("expected one ticket create on pending+notification, got %+v", created)
	}
	texts := f.sender.texts()
	if len(texts) != 1 || !strings.Contains(texts[0], "*1* - Sales") || !strings.Contains(texts[0], "*2* - Support") {
		t.Fatalf("expected greeting menu, got %q", texts)
	}
}

func TestInboundOnSingleQueueConnectionAssignsQueue(t *testing.T) {
	f := newFixture(t, withConnectionQueues(1))

	msg := f.inbound(t, "IN-1", "5511999990001", "hi")
	ticket, _ := f.tickets.ShowTicket(f.ctx, msg.TicketID)
	if ticket.QueueID == nil || *ticket.QueueID != f.sales.ID {
		t.Fatalf("queue = %v, want %d", ticket.QueueID, f.sales.ID)
	}
	if len(f.sender.texts()) != 0 {
		t.Fatal("single queue connections need no menu")
	}
}

func TestInboundJoinsActiveTicket(t *testing.T) {
	f := newFixture(t, withConnectionQueues(1))

	first := f.inbound(t, "IN-1", "5511999990002", "one")
	second := f.inbound(t, "IN-2", "+55 11 99999-0002", "two")
	if first.TicketID != second.TicketID {
		t.Fatalf("messages split across tickets %d and %d", first.TicketID, second.TicketID)
	}
	ticket, _ := f.tickets.ShowTicket(f.ctx, first.TicketID)
	if ticket.UnreadMessages != 2 || ticket.LastMessage != "two" {
		t.Fatalf("unread=%d last=%q", ticket.UnreadMessages, ticket.LastMessage)
	}
	if got := len(f.rec.matching(events.EventTicket, events.ActionCreate)); got != 1 {
		t.Fatalf("ticket create events = %d, want 1", got)
	}
	if got := len(f.rec.matching(events.EventAppMessage, events.ActionCreate)); got != 2 {
		t.Fatalf("appMessage create events = %d, want 2", got)
	}
}

func TestRedeliveredInboundIsIgnored(t *testing.T) {
	f := newFixture(t, withConnectionQueues(1))
	f.inbound(t, "IN-1", "5511999990003", "one")
	f.inbound(t, "IN-1", "5511999990003", "one")

	if got := len(f.rec.matching(events.EventAppMessage, events.ActionCreate)); got != 1 {
		t.Fatalf("appMessage create events = %d, want 1", got)
	}
}

func TestResolveWithoutDefaultConnection(t *testing.T) {
	store := memory.NewStore()
	repos := store.Set()
	svc := NewTicketService(TicketDependencies{Repos: repos})
	contact := &domain.Contact{Name: "x", Number: "1"}
	if err := repos.Contacts.Create(t.Context(), contact); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := svc.ResolveTicketForInboundMessage(t.Context(), contact, 0, 1)
	if !apperrors.HasCode(err, apperrors.CodeNoDefaultWhatsapp) {
		t.Fatalf("expected %s, got %v", apperrors.CodeNoDefaultWhatsapp, err)
	}
}

func TestReopenWindowRevivesRecentTicket(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}
	f := newFixture(t, withConnectionQueues(1), withReopenWindow(10*time.Minute, clock))

	closed := f.mustTicket(t, "5511999990004", domain.TicketStatusClosed, f.agent, &f.sales.ID)
	advance(5 * time.Minute)
	msg := f.inbound(t, "IN-1", "5511999990004", "one more thing")
	if msg.TicketID != closed.ID {
		t.Fatalf("expected reopen of %d, got ticket %d", closed.ID, msg.TicketID)
	}
	ticket, _ := f.tickets.ShowTicket(f.ctx, closed.ID)
	if ticket.Status != domain.TicketStatusPending || ticket.UserID != nil {
		t.Fatalf("reopened ticket should be pending without user, got %s/%v", ticket.Status, ticket.UserID)
	}

	closedAgain, err := f.tickets.UpdateTicket(f.ctx, nil, ticket.ID, UpdateTicketInput{Status: statusPtr(domain.TicketStatusOpen), UserID: domain.Some(f.agent.ID)})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.tickets.UpdateTicket(f.ctx, nil, closedAgain.ID, UpdateTicketInput{Status: statusPtr(domain.TicketStatusClosed)}); err != nil {
		t.Fatalf("close: %v", err)
	}
	advance(time.Hour)
	late := f.inbound(t, "IN-2", "5511999990004", "hello again")
	if late.TicketID == closed.ID {
		t.Fatal("messages outside the window should open a new ticket")
	}
}

func TestConcurrentCreateTicketYieldsOneWinner(t *testing.T) {
	f := newFixture(t)
	contact := f.mustContact(t, "5511999990005")

	const n = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		won       int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tickets.CreateTicket(f.ctx, f.agent, CreateTicketInput{ContactID: contact.ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case apperrors.HasCode(err, apperrors.CodeOtherOpenTicket):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if won != 1 || conflicts != n-1 {
		t.Fatalf("won=%d conflicts=%d", won, conflicts)
	}

	page, err := f.tickets.ListTickets(f.ctx, f.admin, ListTicketsInput{ShowAll: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Count != 1 {
		t.Fatalf("tickets after race = %d, want 1", page.Count)
	}
}

func TestCreateTicketDefaults(t *testing.T) {
	f := newFixture(t)
	contact := f.mustContact(t, "5511999990006")

	ticket, err := f.tickets.CreateTicket(f.ctx, f.agent, CreateTicketInput{ContactID: contact.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.Status != domain.TicketStatusOpen || !domain.SameID(ticket.UserID, &f.agent.ID) {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if ticket.QueueID == nil || *ticket.QueueID != f.sales.ID {
		t.Fatal("single-queue agent should get their queue")
	}

	other := f.mustContact(t, "5511999990007")
	_, err = f.tickets.CreateTicket(f.ctx, f.multi, CreateTicketInput{ContactID: other.ID})
	if !apperrors.HasCode(err, apperrors.CodeQueueRequired) {
		t.Fatalf("multi-queue agent without queue: got %v", err)
	}

	_, err = f.tickets.CreateTicket(f.ctx, f.agent, CreateTicketInput{ContactID: contact.ID})
	if !apperrors.HasCode(err, apperrors.CodeOtherOpenTicket) {
		t.Fatalf("second ticket: got %v", err)
	}
	if de := apperrors.ToDomainError(err); de.Details["ticket_id"] != ticket.ID {
		t.Fatalf("conflict should name the open ticket, got %v", de.Details)
	}
}

func TestAcceptWithoutQueueRequiresSelection(t *testing.T) {
	f := newFixture(t)
	pending := f.mustTicket(t, "5511999990008", domain.TicketStatusPending, nil, nil)

	_, err := f.tickets.UpdateTicket(f.ctx, f.multi, pending.ID, UpdateTicketInput{
		Status: statusPtr(domain.TicketStatusOpen),
		UserID: domain.Some(f.multi.ID),
	})
	if !apperrors.HasCode(err, apperrors.CodeQueueRequired) {
		t.Fatalf("expected %s, got %v", apperrors.CodeQueueRequired, err)
	}
	still, _ := f.tickets.ShowTicket(f.ctx, pending.ID)
	if still.Status != domain.TicketStatusPending {
		t.Fatal("rejected accept must not write")
	}

	_, err = f.tickets.UpdateTicket(f.ctx, f.multi, pending.ID, UpdateTicketInput{
		Status:  statusPtr(domain.TicketStatusOpen),
		UserID:  domain.Some(f.multi.ID),
		QueueID: domain.Some(f.billing.ID),
	})
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("queue outside the user's set: got %v", err)
	}

	open, err := f.tickets.UpdateTicket(f.ctx, f.multi, pending.ID, UpdateTicketInput{
		Status:  statusPtr(domain.TicketStatusOpen),
		UserID:  domain.Some(f.multi.ID),
		QueueID: domain.Some(f.support.ID),
	})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if open.Status != domain.TicketStatusOpen || *open.QueueID != f.support.ID || *open.UserID != f.multi.ID {
		t.Fatalf("unexpected ticket %+v", open)
	}

	_, err = f.tickets.UpdateTicket(f.ctx, f.multi, pending.ID, UpdateTicketInput{Status: statusPtr(domain.TicketStatusOpen)})
	if err != nil {
		t.Fatalf("open -> open without changes should be a no-op transfer: %v", err)
	}
}

func TestAcceptByUserWithoutQueues(t *testing.T) {
	f := newFixture(t)
	pending := f.mustTicket(t, "5511999990009", domain.TicketStatusPending, nil, nil)

	_, err := f.tickets.UpdateTicket(f.ctx, f.admin, pending.ID, UpdateTicketInput{
		Status: statusPtr(domain.TicketStatusOpen),
		UserID: domain.Some(f.admin.ID),
	})
	if !apperrors.HasCode(err, apperrors.CodeQueueRequired) {
		t.Fatalf("accept without acknowledging the missing queue: got %v", err)
	}

	open, err := f.tickets.UpdateTicket(f.ctx, f.admin, pending.ID, UpdateTicketInput{
		Status:  statusPtr(domain.TicketStatusOpen),
		UserID:  domain.Some(f.admin.ID),
		QueueID: domain.Null(),
	})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if open.QueueID != nil {
		t.Fatal("queue should stay unset")
	}

	_, err = f.tickets.UpdateTicket(f.ctx, f.admin, pending.ID, UpdateTicketInput{Status: statusPtr(domain.TicketStatusOpen)})
	if err != nil {
		t.Fatalf("noop: %v", err)
	}
}

func TestCreateOpenTicketWithoutQueueNeedsExplicitNull(t *testing.T) {
	f := newFixture(t)
	contact := f.mustContact(t, "5511999990023")

	_, err := f.tickets.CreateTicket(f.ctx, f.admin, CreateTicketInput{ContactID: contact.ID})
	if !apperrors.HasCode(err, apperrors.CodeQueueRequired) {
		t.Fatalf("open ticket without queue: got %v", err)
	}

	ticket, err := f.tickets.CreateTicket(f.ctx, f.admin, CreateTicketInput{ContactID: contact.ID, QueueID: domain.Null()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.Status != domain.TicketStatusOpen || ticket.QueueID != nil {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
}

func TestCloseRetainsUserAndBroadcasts(t *testing.T) {
	f := newFixture(t, withFarewell("Bye!"))
	open := f.mustTicket(t, "5511999990010", domain.TicketStatusOpen, f.agent, &f.sales.ID)
	f.rec.reset()

	closed, err := f.tickets.UpdateTicket(f.ctx, f.agent, open.ID, UpdateTicketInput{
		Status: statusPtr(domain.TicketStatusClosed),
		UserID: domain.Some(f.agent.ID),
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != domain.TicketStatusClosed || !domain.SameID(closed.UserID, &f.agent.ID) {
		t.Fatalf("unexpected ticket %+v", closed)
	}

	deletes := f.rec.matching(events.EventTicket, events.ActionDelete)
	if len(deletes) != 1 || !hasTopics(deletes[0], "open") {
		t.Fatalf("expected removal from the open board, got %+v", deletes)
	}
	updates := f.rec.matching(events.EventTicket, events.ActionUpdate)
	if len(updates) != 1 || !hasTopics(updates[0], "closed", events.TopicNotification, events.TopicTicket(open.ID)) {
		t.Fatalf("expected update to closed + chat box, got %+v", updates)
	}
	payload, err := events.DecodeTicket(updates[0])
	if err != nil || payload.Ticket == nil || payload.Ticket.Contact == nil || payload.Ticket.User == nil {
		t.Fatalf("update must carry the full ticket, got %+v (%v)", payload, err)
	}

	if texts := f.sender.texts(); len(texts) != 1 || texts[0] != "Bye!" {
		t.Fatalf("farewell = %q", texts)
	}
}

func TestReopenPreservesQueue(t *testing.T) {
	f := newFixture(t)
	closed := f.mustTicket(t, "5511999990011", domain.TicketStatusClosed, f.multi, &f.support.ID)

	_, err := f.tickets.UpdateTicket(f.ctx, f.multi, closed.ID, UpdateTicketInput{Status: statusPtr(domain.TicketStatusOpen)})
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("reopen without user: got %v", err)
	}

	reopened, err := f.tickets.UpdateTicket(f.ctx, f.multi, closed.ID, UpdateTicketInput{
		Status: statusPtr(domain.TicketStatusOpen),
		UserID: domain.Some(f.multi.ID),
	})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.QueueID == nil || *reopened.QueueID != f.support.ID {
		t.Fatalf("queue = %v, want %d", reopened.QueueID, f.support.ID)
	}
}

func TestReopenConflictsWithNewerActiveTicket(t *testing.T) {
	f := newFixture(t)
	closed := f.mustTicket(t, "5511999990012", domain.TicketStatusClosed, f.agent, &f.sales.ID)
	f.mustTicket(t, "5511999990012", domain.TicketStatusPending, nil, nil)

	_, err := f.tickets.UpdateTicket(f.ctx, f.agent, closed.ID, UpdateTicketInput{
		Status: statusPtr(domain.TicketStatusOpen),
		UserID: domain.Some(f.agent.ID),
	})
	if !apperrors.HasCode(err, apperrors.CodeOtherOpenTicket) {
		t.Fatalf("expected %s, got %v", apperrors.CodeOtherOpenTicket, err)
	}
}

func TestTransferReconcilesQueueWithTargetUser(t *testing.T) {
	f := newFixture(t)
	open := f.mustTicket(t, "5511999990013", domain.TicketStatusOpen, f.multi, &f.support.ID)

	toAgent, err := f.tickets.UpdateTicket(f.ctx, f.multi, open.ID, UpdateTicketInput{UserID: domain.Some(f.agent.ID)})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if toAgent.Status != domain.TicketStatusOpen || *toAgent.UserID != f.agent.ID || *toAgent.QueueID != f.sales.ID {
		t.Fatalf("single-queue target should take the ticket into its queue, got %+v", toAgent)
	}

	second := f.mustUser(t, "second", domain.ProfileUser, f.billing.ID, f.support.ID)
	toSecond, err := f.tickets.UpdateTicket(f.ctx, f.agent, open.ID, UpdateTicketInput{UserID: domain.Some(second.ID)})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if toSecond.QueueID != nil {
		t.Fatalf("multi-queue target without the current queue should clear it, got %v", *toSecond.QueueID)
	}

	_, err = f.tickets.UpdateTicket(f.ctx, second, open.ID, UpdateTicketInput{
		UserID:  domain.Some(f.agent.ID),
		QueueID: domain.Some(f.support.ID),
	})
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("explicit incompatible queue: got %v", err)
	}
}

func TestTransferWithoutUserReturnsToQueue(t *testing.T) {
	f := newFixture(t)
	open := f.mustTicket(t, "5511999990014", domain.TicketStatusOpen, f.multi, &f.sales.ID)

	pending, err := f.tickets.UpdateTicket(f.ctx, f.multi, open.ID, UpdateTicketInput{
		UserID:  domain.Null(),
		QueueID: domain.Some(f.support.ID),
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if pending.Status != domain.TicketStatusPending || pending.UserID != nil || *pending.QueueID != f.support.ID {
		t.Fatalf("unexpected ticket %+v", pending)
	}
}

func TestReturnToQueueKeepsQueue(t *testing.T) {
	f := newFixture(t)
	open := f.mustTicket(t, "5511999990015", domain.TicketStatusOpen, f.multi, &f.support.ID)

	pending, err := f.tickets.UpdateTicket(f.ctx, f.multi, open.ID, UpdateTicketInput{Status: statusPtr(domain.TicketStatusPending)})
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if pending.UserID != nil || *pending.QueueID != f.support.ID {
		t.Fatalf("unexpected ticket %+v", pending)
	}

	_, err = f.tickets.UpdateTicket(f.ctx, f.multi, open.ID, UpdateTicketInput{UserID: domain.Some(f.multi.ID)})
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("assigning a pending ticket without accepting: got %v", err)
	}
}

func TestInvalidTransitionsAreRejected(t *testing.T) {
	f := newFixture(t)
	pending := f.mustTicket(t, "5511999990016", domain.TicketStatusPending, nil, nil)
	closed := f.mustTicket(t, "5511999990017", domain.TicketStatusClosed, f.admin, nil)

	cases := []struct {
		id int64
		to domain.TicketStatus
	}{
		{pending.ID, domain.TicketStatusClosed},
		{closed.ID, domain.TicketStatusPending},
		{closed.ID, domain.TicketStatusClosed},
	}
	for _, tc := range cases {
		_, err := f.tickets.UpdateTicket(f.ctx, f.admin, tc.id, UpdateTicketInput{Status: statusPtr(tc.to), UserID: domain.Some(f.admin.ID)})
		if !apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
			t.Errorf("ticket %d -> %s: got %v", tc.id, tc.to, err)
		}
	}

	_, err := f.tickets.UpdateTicket(f.ctx, f.admin, pending.ID, UpdateTicketInput{Status: statusPtr("archived")})
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("unknown status: got %v", err)
	}
	_, err = f.tickets.UpdateTicket(f.ctx, f.admin, 9999, UpdateTicketInput{})
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("missing ticket: got %v", err)
	}
}

func TestConnectionChangeRequiresPermission(t *testing.T) {
	f := newFixture(t)
	second := &domain.Whatsapp{Name: "second", Status: domain.ConnectionConnected}
	if err := f.repos.Whatsapps.Create(f.ctx, second); err != nil {
		t.Fatalf("seed: %v", err)
	}
	open := f.mustTicket(t, "5511999990018", domain.TicketStatusOpen, f.agent, &f.sales.ID)

	_, err := f.tickets.UpdateTicket(f.ctx, f.agent, open.ID, UpdateTicketInput{WhatsappID: &second.ID})
	if !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("agent connection change: got %v", err)
	}
	moved, err := f.tickets.UpdateTicket(f.ctx, f.admin, open.ID, UpdateTicketInput{WhatsappID: &second.ID})
	if err != nil {
		t.Fatalf("admin connection change: %v", err)
	}
	if moved.WhatsappID != second.ID {
		t.Fatalf("whatsapp = %d, want %d", moved.WhatsappID, second.ID)
	}

	history, err := f.tickets.ListHistory(f.ctx, f.admin, open.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	last := history[len(history)-1]
	if last.ChangeType != domain.ChangeTypeConnection || !domain.SameID(last.ChangedByID, &f.admin.ID) {
		t.Fatalf("unexpected history entry %+v", last)
	}
	if _, err := f.tickets.ListHistory(f.ctx, f.agent, open.ID); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("agent history access: got %v", err)
	}
}

func TestListTicketsVisibility(t *testing.T) {
	f := newFixture(t)
	mine := f.mustTicket(t, "5511999990019", domain.TicketStatusOpen, f.agent, &f.sales.ID)
	theirs := f.mustTicket(t, "5511999990020", domain.TicketStatusOpen, f.multi, &f.sales.ID)
	waiting := f.mustTicket(t, "5511999990021", domain.TicketStatusPending, nil, nil)

	page, err := f.tickets.ListTickets(f.ctx, f.agent, ListTicketsInput{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	ids := map[int64]bool{}
	for _, tk := range page.Tickets {
		ids[tk.ID] = true
	}
	if !ids[mine.ID] || !ids[waiting.ID] || ids[theirs.ID] {
		t.Fatalf("agent sees %v", ids)
	}

	page, _ = f.tickets.ListTickets(f.ctx, f.agent, ListTicketsInput{ShowAll: true})
	if page.Count != 2 {
		t.Fatalf("showAll is admin-only, agent got %d tickets", page.Count)
	}
	page, _ = f.tickets.ListTickets(f.ctx, f.admin, ListTicketsInput{ShowAll: true, Status: domain.TicketStatusOpen})
	if page.Count != 2 || page.HasMore {
		t.Fatalf("admin open board = %d (hasMore=%v)", page.Count, page.HasMore)
	}
	page, _ = f.tickets.ListTickets(f.ctx, f.admin, ListTicketsInput{ShowAll: true, SearchParam: "0021"})
	if page.Count != 1 || page.Tickets[0].ID != waiting.ID {
		t.Fatalf("search by number returned %+v", page.Tickets)
	}
}

func TestDeleteTicket(t *testing.T) {
	f := newFixture(t)
	open := f.mustTicket(t, "5511999990022", domain.TicketStatusOpen, f.agent, &f.sales.ID)

	if err := f.tickets.DeleteTicket(f.ctx, f.agent, open.ID); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("agent delete: got %v", err)
	}
	f.rec.reset()
	if err := f.tickets.DeleteTicket(f.ctx, f.admin, open.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	deletes := f.rec.matching(events.EventTicket, events.ActionDelete)
	if len(deletes) != 1 || !hasTopics(deletes[0], "open", events.TopicNotification, events.TopicTicket(open.ID)) {
		t.Fatalf("unexpected delete events %+v", deletes)
	}
	if _, err := f.tickets.ShowTicket(f.ctx, open.ID); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("deleted ticket still visible: %v", err)
	}
}
