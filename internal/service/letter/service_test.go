package letter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/letter-api/internal/email"
	"github.com/jwalitptl/letter-api/internal/model"
	"github.com/jwalitptl/letter-api/internal/repository/memory"
	"github.com/jwalitptl/letter-api/internal/service/notification"
	"github.com/jwalitptl/letter-api/internal/service/recipient"
	apperrors "github.com/jwalitptl/letter-api/pkg/errors"
	"github.com/jwalitptl/letter-api/pkg/metrics"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg *email.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type fixture struct {
	svc           *service
	letters       *memory.LetterRepository
	notifications *memory.NotificationRepository
	mailer        *mockSender
	alice         *model.User
	bob           *model.User
	carol         *model.User
	dan           *model.User
	admin         *model.User
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		alice: &model.User{Name: "Alice", Email: "alice@example.com", Department: "Finance"},
		bob:   &model.User{Name: "Bob", Email: "bob@example.com", Department: "HR"},
		carol: &model.User{Name: "Carol", Email: "carol@example.com", Department: "Finance"},
		dan:   &model.User{Name: "Dan", Email: "dan@example.com", Department: "Legal"},
		admin: &model.User{Name: "Root", Email: "root@example.com", Department: "IT", Role: model.UserRoleAdmin},
	}
	users := memory.NewUserRepository(f.alice, f.bob, f.carol, f.dan, f.admin)
	f.letters = memory.NewLetterRepository()
	f.notifications = memory.NewNotificationRepository()
	f.mailer = new(mockSender)

	m := metrics.NewNop()
	f.svc = NewService(
		f.letters,
		recipient.NewResolver(users, recipient.Config{}),
		notification.NewService(f.notifications, nil, m),
		f.mailer,
		m,
		cfg,
	).(*service)
	return f
}

func (f *fixture) request(priority model.Priority, cc model.CCInput) *model.SendLetterRequest {
	return &model.SendLetterRequest{
		Subject:     "Budget review",
		From:        []string{"Alice"},
		To:          "Bob",
		Department:  "Finance",
		Priority:    priority,
		Content:     "Please review the attached budget.",
		CCEmployees: cc,
	}
}

func (f *fixture) canonical(t *testing.T) []*model.Letter {
	t.Helper()
	all, err := f.letters.List(context.Background(), &model.LetterFilters{Canonical: true})
	require.NoError(t, err)
	return all
}

func (f *fixture) duplicates(t *testing.T) []*model.Letter {
	t.Helper()
	all, err := f.letters.List(context.Background(), nil)
	require.NoError(t, err)
	var dups []*model.Letter
	for _, l := range all {
		if l.IsCC {
			dups = append(dups, l)
		}
	}
	return dups
}

func TestSend_UrgentIsHeldForApproval(t *testing.T) {
	f := newFixture(t, Config{})

	letter, err := f.svc.Send(context.Background(), f.request(model.PriorityUrgent,
		model.DepartmentMapCC(map[string][]string{"Finance": {"Carol"}})))
	require.NoError(t, err)

	assert.Equal(t, model.LetterStatusPending, letter.Status)
	assert.Len(t, f.canonical(t), 1)
	assert.Empty(t, f.duplicates(t))
	assert.Empty(t, f.notifications.All())
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestSend_NormalFansOutToCC(t *testing.T) {
	f := newFixture(t, Config{})
	f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg *email.Message) bool {
		return len(msg.CC) == 2 && msg.To[0] == "bob@example.com"
	})).Return(nil).Once()

	letter, err := f.svc.Send(context.Background(), f.request(model.PriorityNormal,
		model.DepartmentMapCC(map[string][]string{"Finance": {"Carol"}, "Legal": {"Dan"}})))
	require.NoError(t, err)

	assert.Equal(t, model.LetterStatusSent, letter.Status)
	assert.True(t, letter.Unread)
	assert.False(t, letter.IsCC)
	assert.Equal(t, "alice@example.com", letter.FromEmail)
	assert.Equal(t, "bob@example.com", letter.ToEmail)

	require.Len(t, f.canonical(t), 1)
	dups := f.duplicates(t)
	require.Len(t, dups, 2)
	for _, d := range dups {
		assert.True(t, d.IsCC)
		require.NotNil(t, d.OriginalLetterID)
		assert.Equal(t, letter.ID, *d.OriginalLetterID)
		assert.Equal(t, model.LetterStatusSent, d.Status)
	}
	assert.ElementsMatch(t, []string{"carol@example.com", "dan@example.com"}, []string{dups[0].ToEmail, dups[1].ToEmail})

	notes := f.notifications.All()
	require.Len(t, notes, 3)
	assert.Equal(t, f.bob.ID, notes[0].RecipientID)
	assert.Equal(t, "New Letter Received", notes[0].Title)
	assert.Equal(t, `You have received a new letter from Alice regarding "Budget review"`, notes[0].Message)
	assert.Equal(t, model.NotificationPriorityMedium, notes[0].Priority)
	assert.Equal(t, "Letter Copy Received (CC)", notes[1].Title)
	assert.Equal(t, "Letter Copy Received (CC)", notes[2].Title)

	f.mailer.AssertNumberOfCalls(t, "Send", 1)
	f.mailer.AssertExpectations(t)
}

func TestSend_UnknownCCAddressIsSkipped(t *testing.T) {
	f := newFixture(t, Config{})
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	req := f.request(model.PriorityNormal, model.EmailListCC("carol@example.com", "ghost@example.com"))
	_, err := f.svc.Send(context.Background(), req)
	require.NoError(t, err)

	dups := f.duplicates(t)
	require.Len(t, dups, 1)
	assert.Equal(t, "carol@example.com", dups[0].ToEmail)
	assert.Len(t, f.notifications.All(), 2)

	msg := f.mailer.Calls[0].Arguments.Get(1).(*email.Message)
	assert.Equal(t, []string{"carol@example.com", "ghost@example.com"}, msg.CC)
}

func TestSend_MailFailureKeepsRecords(t *testing.T) {
	f := newFixture(t, Config{})
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("relay refused"))

	_, err := f.svc.Send(context.Background(), f.request(model.PriorityNormal,
		model.DepartmentMapCC(map[string][]string{"Finance": {"Carol"}})))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrMailDelivery))

	assert.Len(t, f.canonical(t), 1)
	assert.Len(t, f.duplicates(t), 1)
	assert.Len(t, f.notifications.All(), 2)
}

func TestSend_ResolutionFailureWritesNothing(t *testing.T) {
	f := newFixture(t, Config{})

	req := f.request(model.PriorityNormal, model.CCInput{})
	req.To = "Nobody"
	_, err := f.svc.Send(context.Background(), req)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))

	req = f.request(model.PriorityNormal, model.CCInput{})
	req.From = []string{" "}
	_, err = f.svc.Send(context.Background(), req)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))

	assert.Zero(t, f.letters.Len())
	assert.Empty(t, f.notifications.All())
}

func TestSend_Validation(t *testing.T) {
	f := newFixture(t, Config{})

	cases := map[string]func(*model.SendLetterRequest){
		"subject":    func(r *model.SendLetterRequest) { r.Subject = "" },
		"content":    func(r *model.SendLetterRequest) { r.Content = "  " },
		"department": func(r *model.SendLetterRequest) { r.Department = "" },
		"priority":   func(r *model.SendLetterRequest) { r.Priority = "critical" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := f.request(model.PriorityNormal, model.CCInput{})
			mutate(req)
			_, err := f.svc.Send(context.Background(), req)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))
		})
	}
}

func TestSend_DefaultsToNormalPriority(t *testing.T) {
	f := newFixture(t, Config{})
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	letter, err := f.svc.Send(context.Background(), f.request("", model.CCInput{}))
	require.NoError(t, err)
	assert.Equal(t, model.PriorityNormal, letter.Priority)
	assert.Equal(t, model.LetterStatusSent, letter.Status)
}

func TestApprove_IsIdempotent(t *testing.T) {
	f := newFixture(t, Config{})
	pending, err := f.svc.Send(context.Background(), f.request(model.PriorityHigh,
		model.DepartmentMapCC(map[string][]string{"Finance": {"Carol"}})))
	require.NoError(t, err)

	f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg *email.Message) bool {
		return len(msg.CC) == 1 && msg.CC[0] == "carol@example.com"
	})).Return(nil).Once()

	approved, err := f.svc.Approve(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LetterStatusSent, approved.Status)

	_, err = f.svc.Approve(context.Background(), pending.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidState))

	f.mailer.AssertNumberOfCalls(t, "Send", 1)

	stored, err := f.letters.Get(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LetterStatusSent, stored.Status)
	assert.Empty(t, f.duplicates(t))

	notes := f.notifications.All()
	require.Len(t, notes, 1)
	assert.Equal(t, f.bob.ID, notes[0].RecipientID)
	assert.Equal(t, model.NotificationNewLetter, notes[0].Type)
	assert.Equal(t, model.NotificationPriorityMedium, notes[0].Priority)
}

func TestApprove_MailFailureLeavesPending(t *testing.T) {
	f := newFixture(t, Config{})
	pending, err := f.svc.Send(context.Background(), f.request(model.PriorityUrgent, model.CCInput{}))
	require.NoError(t, err)

	f.mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("timeout")).Once()
	_, err = f.svc.Approve(context.Background(), pending.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrMailDelivery))

	stored, err := f.letters.Get(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LetterStatusPending, stored.Status)
	assert.Empty(t, f.notifications.All())

	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil).Once()
	approved, err := f.svc.Approve(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LetterStatusSent, approved.Status)
	assert.Equal(t, model.NotificationPriorityHigh, f.notifications.All()[0].Priority)
}

func TestApprove_NotFound(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.svc.Approve(context.Background(), uuid.New())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}

func TestApprove_NonPending(t *testing.T) {
	f := newFixture(t, Config{})
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	sent, err := f.svc.Send(context.Background(), f.request(model.PriorityNormal, model.CCInput{}))
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), sent.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidState))
	f.mailer.AssertNumberOfCalls(t, "Send", 1)
}

func TestReject(t *testing.T) {
	f := newFixture(t, Config{})
	pending, err := f.svc.Send(context.Background(), f.request(model.PriorityHigh, model.CCInput{}))
	require.NoError(t, err)

	rejected, err := f.svc.Reject(context.Background(), pending.ID, "Out of budget", f.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LetterStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "Out of budget", *rejected.RejectionReason)
	assert.NotNil(t, rejected.RejectedAt)
	assert.Equal(t, 1, f.letters.Len())

	_, err = f.svc.Reject(context.Background(), pending.ID, "again", f.admin.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidState))

	_, err = f.svc.Approve(context.Background(), pending.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidState))
}

func TestReject_RequiresReason(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.svc.Reject(context.Background(), uuid.New(), " ", f.admin.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))
}

func TestReject_ReplyLetter(t *testing.T) {
	f := newFixture(t, Config{ReplyOnReject: true})
	pending, err := f.svc.Send(context.Background(), f.request(model.PriorityUrgent, model.CCInput{}))
	require.NoError(t, err)

	_, err = f.svc.Reject(context.Background(), pending.ID, "Needs sign-off", f.admin.ID)
	require.NoError(t, err)

	inbox, err := f.svc.ListInbox(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	reply := inbox[0]
	assert.Equal(t, "Rejected letter: Budget review", reply.Subject)
	assert.Equal(t, "root@example.com", reply.FromEmail)
	assert.Equal(t, "Needs sign-off\n\n--- Original Message ---\n\nPlease review the attached budget.", reply.Content)
	assert.Equal(t, model.LetterStatusSent, reply.Status)

	notes := f.notifications.All()
	require.Len(t, notes, 1)
	assert.Equal(t, f.alice.ID, notes[0].RecipientID)
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestMarkRead_NotifiesOnceOnChange(t *testing.T) {
	f := newFixture(t, Config{})
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	letter, err := f.svc.Send(context.Background(), f.request(model.PriorityNormal, model.CCInput{}))
	require.NoError(t, err)
	before := len(f.notifications.All())

	read, err := f.svc.MarkRead(context.Background(), letter.ID)
	require.NoError(t, err)
	assert.False(t, read.Unread)

	_, err = f.svc.MarkRead(context.Background(), letter.ID)
	require.NoError(t, err)

	notes := f.notifications.All()
	require.Len(t, notes, before+1)
	last := notes[len(notes)-1]
	assert.Equal(t, model.NotificationLetterRead, last.Type)
	assert.Equal(t, f.alice.ID, last.RecipientID)
	assert.Equal(t, "Letter Read", last.Title)
	assert.Equal(t, `Bob has read your letter regarding "Budget review"`, last.Message)
	assert.Equal(t, model.NotificationPriorityLow, last.Priority)

	unread, err := f.svc.MarkUnread(context.Background(), letter.ID)
	require.NoError(t, err)
	assert.True(t, unread.Unread)
	assert.Len(t, f.notifications.All(), before+1)
}

func TestToggleStar(t *testing.T) {
	f := newFixture(t, Config{})
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	letter, err := f.svc.Send(context.Background(), f.request(model.PriorityNormal, model.CCInput{}))
	require.NoError(t, err)
	before := len(f.notifications.All())

	_, err = f.svc.ToggleStar(context.Background(), letter.ID, true)
	require.NoError(t, err)
	_, err = f.svc.ToggleStar(context.Background(), letter.ID, true)
	require.NoError(t, err)
	unstarred, err := f.svc.ToggleStar(context.Background(), letter.ID, false)
	require.NoError(t, err)
	assert.False(t, unstarred.Starred)

	notes := f.notifications.All()
	require.Len(t, notes, before+1)
	assert.Equal(t, model.NotificationLetterStarred, notes[len(notes)-1].Type)
	assert.Equal(t, `Bob has starred your letter regarding "Budget review"`, notes[len(notes)-1].Message)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t, Config{})
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	sent, err := f.svc.Send(context.Background(), f.request(model.PriorityNormal, model.CCInput{}))
	require.NoError(t, err)

	delivered, err := f.svc.UpdateStatus(context.Background(), sent.ID, model.LetterStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, model.LetterStatusDelivered, delivered.Status)

	read, err := f.svc.UpdateStatus(context.Background(), sent.ID, model.LetterStatusRead)
	require.NoError(t, err)
	assert.Equal(t, model.LetterStatusRead, read.Status)

	_, err = f.svc.UpdateStatus(context.Background(), sent.ID, model.LetterStatusDelivered)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidState))

	_, err = f.svc.UpdateStatus(context.Background(), sent.ID, model.LetterStatusSent)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))

	pending, err := f.svc.Send(context.Background(), f.request(model.PriorityHigh, model.CCInput{}))
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(context.Background(), pending.ID, model.LetterStatusRead)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidState))
}

func TestForward(t *testing.T) {
	f := newFixture(t, Config{})
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	req := f.request(model.PriorityNormal, model.DepartmentMapCC(map[string][]string{"Finance": {"Carol"}}))
	req.Attachments = []*model.Attachment{{Filename: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}}
	original, err := f.svc.Send(context.Background(), req)
	require.NoError(t, err)

	forwarded, err := f.svc.Forward(context.Background(), original.ID, f.bob, []string{"Dan", " "}, "FYI")
	require.NoError(t, err)
	require.Len(t, forwarded, 1)

	fwd := forwarded[0]
	assert.NotEqual(t, original.ID, fwd.ID)
	assert.Equal(t, "Fwd: Budget review", fwd.Subject)
	assert.Equal(t, "FYI\n\n--- Forwarded Message ---\n\nPlease review the attached budget.", fwd.Content)
	assert.Equal(t, "bob@example.com", fwd.FromEmail)
	assert.Equal(t, "dan@example.com", fwd.ToEmail)
	assert.Equal(t, "Legal", fwd.Department)
	assert.Empty(t, fwd.CC)
	assert.Empty(t, fwd.CCEmployees)
	assert.False(t, fwd.IsCC)

	att, err := f.svc.GetAttachment(context.Background(), fwd.ID, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), att.Data)

	stored, err := f.letters.Get(context.Background(), original.ID)
	require.NoError(t, err)
	assert.Equal(t, "Please review the attached budget.", stored.Content)
}

func TestForward_BlankCommentAndPendingPriority(t *testing.T) {
	f := newFixture(t, Config{})
	original, err := f.svc.Send(context.Background(), f.request(model.PriorityUrgent, model.CCInput{}))
	require.NoError(t, err)

	forwarded, err := f.svc.Forward(context.Background(), original.ID, f.bob, []string{"Carol"}, "  ")
	require.NoError(t, err)
	require.Len(t, forwarded, 1)
	assert.Equal(t, "--- Forwarded Message ---\n\nPlease review the attached budget.", forwarded[0].Content)
	assert.Equal(t, model.LetterStatusPending, forwarded[0].Status)
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	_, err = f.svc.Forward(context.Background(), original.ID, f.bob, nil, "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))
}

func TestAttachmentRoundTrip(t *testing.T) {
	f := newFixture(t, Config{})
	data := []byte{0x25, 0x50, 0x44, 0x46, 0x00, 0xff}

	req := f.request(model.PriorityHigh, model.CCInput{})
	req.Attachments = []*model.Attachment{{Filename: "a.pdf", ContentType: "application/pdf", Data: data}}
	letter, err := f.svc.Send(context.Background(), req)
	require.NoError(t, err)

	att, err := f.svc.GetAttachment(context.Background(), letter.ID, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, data, att.Data)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.Equal(t, int64(len(data)), att.Size)

	_, err = f.svc.GetAttachment(context.Background(), letter.ID, "b.pdf")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}

func TestListsAndDelete(t *testing.T) {
	f := newFixture(t, Config{})
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	ctx := context.Background()

	sent, err := f.svc.Send(ctx, f.request(model.PriorityNormal, model.DepartmentMapCC(map[string][]string{"Finance": {"Carol"}})))
	require.NoError(t, err)
	pending, err := f.svc.Send(ctx, f.request(model.PriorityUrgent, model.CCInput{}))
	require.NoError(t, err)

	inbox, err := f.svc.ListInbox(ctx, "bob@example.com")
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, pending.ID, inbox[0].ID)

	outbox, err := f.svc.ListSent(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, outbox, 1)
	assert.Equal(t, sent.ID, outbox[0].ID)

	queue, err := f.svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, pending.ID, queue[0].ID)

	carol, err := f.svc.ListInbox(ctx, "carol@example.com")
	require.NoError(t, err)
	require.Len(t, carol, 1)

	require.NoError(t, f.svc.Delete(ctx, sent.ID))
	carol, err = f.svc.ListInbox(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.Empty(t, carol)

	err = f.svc.Delete(ctx, sent.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))

	all, err := f.svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSend_UsesClockForMailDate(t *testing.T) {
	f := newFixture(t, Config{})
	f.svc.now = func() time.Time { return time.Date(2024, 12, 24, 9, 0, 0, 0, time.UTC) }
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Send(context.Background(), f.request(model.PriorityNormal, model.CCInput{}))
	require.NoError(t, err)

	msg := f.mailer.Calls[0].Arguments.Get(1).(*email.Message)
	assert.Contains(t, msg.TextBody, "Date: 12/24/2024")
}
