package profile

import (
	"context"
	"database/sql"
	"testing"

	"workflow-engine/internal/common/errors"
	"workflow-engine/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresProvider_GetProfile(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT attributes, compliance_flags FROM user_profiles").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"attributes", "compliance_flags"}).
			AddRow([]byte(`{"linked_accounts":2,"address":{"state":"CA"}}`), []byte(`{kyc_verified,us_resident}`)))

	prof, err := NewPostgresProvider(db).GetProfile(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", prof.UserID)
	assert.EqualValues(t, 2, prof.Attributes["linked_accounts"])
	assert.Equal(t, []string{"kyc_verified", "us_resident"}, prof.ComplianceFlags)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProvider_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT attributes").WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err = NewPostgresProvider(db).GetProfile(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeProfileNotFound))
}

func TestMemoryProvider_ReturnsCopies(t *testing.T) {
	p := NewMemoryProvider()
	p.Put(models.UserProfile{UserID: "u-1", Attributes: map[string]interface{}{"linked_accounts": 1}})

	prof, err := p.GetProfile(context.Background(), "u-1")
	require.NoError(t, err)
	prof.Attributes["linked_accounts"] = 99

	again, _ := p.GetProfile(context.Background(), "u-1")
	assert.Equal(t, 1, again.Attributes["linked_accounts"])

	_, err = p.GetProfile(context.Background(), "u-2")
	assert.True(t, errors.HasCode(err, errors.ErrCodeProfileNotFound))
}
