package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/brokerage-ledger/internal/events"
	"github.com/trogers1052/brokerage-ledger/internal/memstore"
	"github.com/trogers1052/brokerage-ledger/internal/models"
)

func newTestService() (*Service, *events.Recorder) {
	recorder := events.NewRecorder()
	return NewService(memstore.New(time.Second), recorder, zerolog.Nop()), recorder
}

func TestCreateUser(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	u := &models.User{Name: " Ada ", Email: " Ada@Example.com "}
	require.NoError(t, svc.CreateUser(ctx, u))
	assert.NotZero(t, u.ID)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, models.RoleClient, u.Role)
	assert.Equal(t, models.KYCPending, u.KYCStatus)

	got, err := svc.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	dup := &models.User{Name: "Ada Again", Email: "ada@example.com"}
	assert.ErrorIs(t, svc.CreateUser(ctx, dup), models.ErrValidation)
}

func TestCreateUser_validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	testCases := []struct {
		name  string
		user  *models.User
		field string
	}{
		{"missing name", &models.User{Email: "a@b.c"}, "name"},
		{"bad email", &models.User{Name: "A", Email: "nope"}, "email"},
		{"bad role", &models.User{Name: "A", Email: "a@b.c", Role: "root"}, "role"},
		{"bad kyc", &models.User{Name: "A", Email: "a@b.c", KYCStatus: "maybe"}, "kyc_status"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.CreateUser(ctx, tc.user)
			var ve *models.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestSetKYCStatus(t *testing.T) {
	svc, recorder := newTestService()
	ctx := context.Background()

	u := &models.User{Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, svc.CreateUser(ctx, u))

	updated, err := svc.SetKYCStatus(ctx, u.ID, models.KYCApproved, 7)
	require.NoError(t, err)
	assert.Equal(t, models.KYCApproved, updated.KYCStatus)

	evs := recorder.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, models.EventKYCStatusChanged, evs[0].EventType)
	assert.Equal(t, int64(7), evs[0].Actor)
	before, ok := evs[0].Before.(*models.User)
	require.True(t, ok)
	assert.Equal(t, models.KYCPending, before.KYCStatus)

	// no change, no event
	_, err = svc.SetKYCStatus(ctx, u.ID, models.KYCApproved, 7)
	require.NoError(t, err)
	assert.Len(t, recorder.Events(), 1)

	_, err = svc.SetKYCStatus(ctx, u.ID, "maybe", 7)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = svc.SetKYCStatus(ctx, 9999, models.KYCRejected, 7)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
