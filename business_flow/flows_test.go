package business_flow

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/ibnu-sodik/wage-backend/app/message"
	"github.com/ibnu-sodik/wage-backend/app/services"
	"github.com/ibnu-sodik/wage-backend/app/session"
	"github.com/ibnu-sodik/wage-backend/app/wa"
	"github.com/ibnu-sodik/wage-backend/models"
	"github.com/ibnu-sodik/wage-backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *log.Logger { return log.New(io.Discard, "", 0) }

type stubUserRepo struct{ user *models.User }

func (r *stubUserRepo) ByID(_ context.Context, id uint) (*models.User, error) {
	if r.user != nil && r.user.ID == id {
		return r.user, nil
	}
	return nil, nil
}
func (r *stubUserRepo) ByEmail(_ context.Context, email string) (*models.User, error) {
	if r.user != nil && r.user.Email == email {
		return r.user, nil
	}
	return nil, nil
}
func (r *stubUserRepo) Save(_ context.Context, _ *models.User) error { return nil }

func activeUser(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	return &models.User{
		ID:           7,
		Email:        "owner@tokomaju.id",
		FirstName:    "Toko",
		PasswordHash: hash,
		IsActive:     utils.ToPtr(true),
	}
}

func TestLoginFlow(t *testing.T) {
	user := activeUser(t, "rahasia-123")
	tokens := services.NewTokenService("0123456789abcdef0123456789abcdef", "wage-backend", time.Hour, 24*time.Hour)
	flow := NewLoginFlow(&stubUserRepo{user: user}, tokens, testLog())

	got, pair, err := flow.Login(context.Background(), "owner@tokomaju.id", "rahasia-123", ClientMetadata{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	require.NotNil(t, pair)

	claims, err := tokens.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	refreshed, err := flow.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
}

func TestLoginFlowRejectsBadCredentials(t *testing.T) {
	user := activeUser(t, "rahasia-123")
	tokens := services.NewTokenService("0123456789abcdef0123456789abcdef", "wage-backend", time.Hour, 24*time.Hour)
	flow := NewLoginFlow(&stubUserRepo{user: user}, tokens, testLog())

	_, _, err := flow.Login(context.Background(), "owner@tokomaju.id", "salah", ClientMetadata{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = flow.Login(context.Background(), "nobody@tokomaju.id", "rahasia-123", ClientMetadata{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginFlowRejectsInactiveAccount(t *testing.T) {
	user := activeUser(t, "rahasia-123")
	user.IsActive = utils.ToPtr(false)
	tokens := services.NewTokenService("0123456789abcdef0123456789abcdef", "wage-backend", time.Hour, 24*time.Hour)
	flow := NewLoginFlow(&stubUserRepo{user: user}, tokens, testLog())

	_, _, err := flow.Login(context.Background(), "owner@tokomaju.id", "rahasia-123", ClientMetadata{})
	assert.ErrorIs(t, err, ErrAccountInactive)
}

type stubJobRepo struct{ existing *models.BroadcastJob }

func (r *stubJobRepo) ByKey(_ context.Context, id, tenantID uint) (*models.BroadcastJob, error) {
	return r.existing, nil
}
func (r *stubJobRepo) ListDue(_ context.Context, _ time.Time, _ int) ([]*models.BroadcastJob, error) {
	return nil, nil
}
func (r *stubJobRepo) ByFilter(_ context.Context, _ models.BroadcastJobFilter, _ string, _, _ int) ([]*models.BroadcastJob, error) {
	return nil, nil
}
func (r *stubJobRepo) Save(_ context.Context, _ *models.BroadcastJob) error { return nil }
func (r *stubJobRepo) UpdateStatus(_ context.Context, _, _ uint, _ models.BroadcastJobStatus) error {
	return nil
}

type stubTemplateRepo struct{ tpl *models.MessageTemplate }

func (r *stubTemplateRepo) ByKey(_ context.Context, _, _ uint) (*models.MessageTemplate, error) {
	return r.tpl, nil
}
func (r *stubTemplateRepo) Save(_ context.Context, _ *models.MessageTemplate) error { return nil }

func newValidationFlow(jobs *stubJobRepo, templates *stubTemplateRepo) MessageFlow {
	return NewMessageFlow(nil, jobs, nil, templates, &stubUserRepo{}, nil, message.NewBuilder("", "", message.DefaultLimits()), testLog())
}

func TestScheduleBroadcastValidation(t *testing.T) {
	flow := newValidationFlow(&stubJobRepo{}, &stubTemplateRepo{})
	ctx := context.Background()
	due := utils.UTCNowAdd(time.Hour)

	_, err := flow.ScheduleBroadcast(ctx, 7, BroadcastRequest{JobID: 1, Kind: models.MessageKindLive, MessageText: utils.ToPtr("hi"), DeliveryAt: due})
	assert.ErrorIs(t, err, ErrNoRecipients)

	recipients := []BroadcastRecipient{{ContactNumber: "08123"}}

	_, err = flow.ScheduleBroadcast(ctx, 7, BroadcastRequest{JobID: 1, Kind: models.MessageKindLive, DeliveryAt: due, Recipients: recipients})
	assert.ErrorIs(t, err, ErrMissingMessage)

	_, err = flow.ScheduleBroadcast(ctx, 7, BroadcastRequest{JobID: 1, Kind: models.MessageKindTemplate, DeliveryAt: due, Recipients: recipients})
	assert.ErrorIs(t, err, ErrMissingTemplate)

	_, err = flow.ScheduleBroadcast(ctx, 7, BroadcastRequest{JobID: 1, Kind: models.MessageKindTemplate, TemplateID: utils.ToPtr(uint(9)), DeliveryAt: due, Recipients: recipients})
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestScheduleBroadcastRejectsDuplicateJob(t *testing.T) {
	flow := newValidationFlow(&stubJobRepo{existing: &models.BroadcastJob{ID: 1, TenantID: 7}}, &stubTemplateRepo{})

	_, err := flow.ScheduleBroadcast(context.Background(), 7, BroadcastRequest{
		JobID:       1,
		Kind:        models.MessageKindLive,
		MessageText: utils.ToPtr("hi"),
		DeliveryAt:  utils.UTCNowAdd(time.Hour),
		Recipients:  []BroadcastRecipient{{ContactNumber: "08123"}},
	})
	assert.ErrorIs(t, err, ErrJobExists)
}

func TestSendLiveThroughRegistry(t *testing.T) {
	mock := wa.NewMockTransport()
	store := wa.NewFileCredentialStore(t.TempDir())
	registry := session.NewRegistry(mock, store, testLog(), session.DefaultConfig())
	defer registry.Close(context.Background())

	flow := NewMessageFlow(nil, &stubJobRepo{}, nil, &stubTemplateRepo{}, &stubUserRepo{}, registry, message.NewBuilder("", "", message.DefaultLimits()), testLog())

	err := flow.SendLive(context.Background(), 7, "device-a", "08123456789", "Halo")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	s, err := registry.Ensure(context.Background(), "7", "device-a")
	require.NoError(t, err)
	require.Eventually(t, s.Connected, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, flow.SendLive(context.Background(), 7, "device-a", "08123456789", "Halo"))
	sent := mock.LastConn().Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "628123456789@s.whatsapp.net", sent[0].To, "leading zero is normalized to country code")
}

func TestSendTemplatedRendersSenderPlaceholders(t *testing.T) {
	mock := wa.NewMockTransport()
	store := wa.NewFileCredentialStore(t.TempDir())
	registry := session.NewRegistry(mock, store, testLog(), session.DefaultConfig())
	defer registry.Close(context.Background())

	user := activeUser(t, "rahasia-123")
	tpl := &models.MessageTemplate{
		ID:       9,
		TenantID: 7,
		Kind:     models.TemplateKindPlainText,
		Message:  "Halo {name}, salam dari {my_name}",
	}
	flow := NewMessageFlow(nil, &stubJobRepo{}, nil, &stubTemplateRepo{tpl: tpl}, &stubUserRepo{user: user}, registry, message.NewBuilder("", "", message.DefaultLimits()), testLog())

	req := TemplatedSendRequest{DeviceID: "device-a", To: "08123456789", ContactName: "Budi", TemplateID: 9}

	err := flow.SendTemplated(context.Background(), 7, req)
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	s, err := registry.Ensure(context.Background(), "7", "device-a")
	require.NoError(t, err)
	require.Eventually(t, s.Connected, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, flow.SendTemplated(context.Background(), 7, req))
	sent := mock.LastConn().Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Halo Budi, salam dari Toko", sent[0].Message.Text)
}
