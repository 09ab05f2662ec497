package consent

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "workflow-engine/internal/common/errors"
	"workflow-engine/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissing(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	expired := now.Add(-24 * time.Hour)
	later := now.Add(24 * time.Hour)

	records := []models.ConsentRecord{
		{ConsentType: "account_access", Granted: true, GrantedAt: now.Add(-time.Hour)},
		{ConsentType: "transfer_authorization", Granted: true, ExpiresAt: &expired},
		{ConsentType: "transfer_authorization", Granted: true, ExpiresAt: &later},
		{ConsentType: "data_sharing", Granted: false},
		{ConsentType: "marketing", Granted: true, ExpiresAt: &expired},
	}

	tests := []struct {
		name     string
		required []string
		missing  []string
	}{
		{"nothing required", nil, nil},
		{"all granted", []string{"account_access", "transfer_authorization"}, nil},
		{"revoked", []string{"account_access", "data_sharing"}, []string{"data_sharing"}},
		{"expired", []string{"marketing"}, []string{"marketing"}},
		{"absent", []string{"credit_pull", "credit_pull"}, []string{"credit_pull"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.missing, Missing(tt.required, records, now))
			assert.Equal(t, len(tt.missing) == 0, HasConsent(tt.required, records, now))
		})
	}
}

func TestHasConsent_ExpiryBoundary(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	records := []models.ConsentRecord{{ConsentType: "account_access", Granted: true, ExpiresAt: &now}}
	assert.False(t, HasConsent([]string{"account_access"}, records, now))
}

func TestPostgresStore_GetConsents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	granted := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := granted.AddDate(1, 0, 0)
	mock.ExpectQuery("SELECT consent_type, granted, granted_at, expires_at").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"consent_type", "granted", "granted_at", "expires_at"}).
			AddRow("account_access", true, granted, nil).
			AddRow("transfer_authorization", true, granted, expires))

	store := NewPostgresStore(db)
	records, err := store.GetConsents(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Nil(t, records[0].ExpiresAt)
	require.NotNil(t, records[1].ExpiresAt)
	assert.True(t, records[1].ExpiresAt.Equal(expires))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT consent_type").WithArgs("u-1").WillReturnError(errors.New("connection reset"))

	_, err = NewPostgresStore(db).GetConsents(context.Background(), "u-1")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConsentStoreFailed))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	store.Put("u-1", []models.ConsentRecord{{ConsentType: "account_access", Granted: true}})

	records, err := store.GetConsents(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	records, err = store.GetConsents(context.Background(), "u-2")
	require.NoError(t, err)
	assert.Empty(t, records)
}
